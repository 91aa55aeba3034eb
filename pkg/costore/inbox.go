package costore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Inbox operations
//
// An actor inbox is an ordinary stream-kind CoValue with a message wire
// shape layered on top of its entries. The log is append-only: entries are
// never removed, and the processed flag lives in a companion set keyed by
// entry id. Draining uses a per-session watermark so a restarted runtime
// neither reprocesses messages handled under the durable processed set nor
// loses messages delivered while it was down.

// CreateInbox creates a new stream-kind CoValue to serve as an actor inbox.
// The nonce ties the inbox id to its owning actor so re-seeding is
// idempotent.
func (c *Client) CreateInbox(ctx context.Context, schemaID, actorID string) (*CoValue, error) {
	return c.Create(ctx, KindStream, schemaID, nil, "inbox:"+actorID)
}

// AppendMessage validates and appends a message to an inbox, returning the
// assigned entry id. The payload must already be fully resolved; enforcing
// that is the actor runtime's job, before the message ever reaches the
// store.
func (c *Client) AppendMessage(ctx context.Context, inboxID string, m *Message) (string, error) {
	if err := m.Validate(); err != nil {
		return "", fmt.Errorf("invalid message: %w", err)
	}

	v, err := c.Read(ctx, inboxID)
	if err != nil {
		return "", err
	}
	if v.Kind != KindStream {
		return "", fmt.Errorf("inbox %s is %s, want %s", inboxID, v.Kind, KindStream)
	}

	fields, err := messageToFields(m)
	if err != nil {
		return "", err
	}

	entryID, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: EntriesKey(c.instanceName, inboxID),
		Values: fields,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to append message: %w", err)
	}
	m.ID = entryID

	if err := c.publishChange(ctx, &ChangeEvent{ID: inboxID, Schema: v.Schema, Kind: v.Kind, Op: "message"}); err != nil {
		return entryID, err
	}
	return entryID, nil
}

// ReadMessagesAfter returns the inbox messages strictly after the given
// entry id, in arrival order, with the Processed flag populated from the
// companion set. An empty afterID reads from the start of the log.
func (c *Client) ReadMessagesAfter(ctx context.Context, inboxID, afterID string) ([]*Message, error) {
	start := "-"
	if afterID != "" {
		// "(" prefixes an exclusive range start.
		start = "(" + afterID
	}

	entries, err := c.rdb.XRange(ctx, EntriesKey(c.instanceName, inboxID), start, "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read inbox entries: %w", err)
	}

	messages := make([]*Message, 0, len(entries))
	for _, entry := range entries {
		m, err := fieldsToMessage(entry.ID, entry.Values)
		if err != nil {
			return nil, err
		}
		processed, err := c.rdb.SIsMember(ctx, ProcessedKey(c.instanceName, inboxID), entry.ID).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check processed flag: %w", err)
		}
		m.Processed = processed
		messages = append(messages, m)
	}
	return messages, nil
}

// MarkProcessed flips the processed flag for an inbox entry. This is the
// only mutation an inbox entry ever sees, and it is monotonic: a processed
// message never becomes unprocessed.
func (c *Client) MarkProcessed(ctx context.Context, inboxID, entryID string) error {
	if err := c.rdb.SAdd(ctx, ProcessedKey(c.instanceName, inboxID), entryID).Err(); err != nil {
		return fmt.Errorf("failed to mark message processed: %w", err)
	}
	return nil
}

// MessageCount returns the total number of entries ever appended to an
// inbox. The count is monotonically non-decreasing - nothing removes inbox
// entries.
func (c *Client) MessageCount(ctx context.Context, inboxID string) (int64, error) {
	n, err := c.rdb.XLen(ctx, EntriesKey(c.instanceName, inboxID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count inbox entries: %w", err)
	}
	return n, nil
}

// GetWatermark returns the last entry id a session has drained from an
// inbox, or "" if the session has not touched the inbox yet.
func (c *Client) GetWatermark(ctx context.Context, session, inboxID string) (string, error) {
	id, err := c.rdb.Get(ctx, WatermarkKey(c.instanceName, session, inboxID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read watermark: %w", err)
	}
	return id, nil
}

// SetWatermark records the last drained entry id for a session's view of an
// inbox.
func (c *Client) SetWatermark(ctx context.Context, session, inboxID, entryID string) error {
	if err := c.rdb.Set(ctx, WatermarkKey(c.instanceName, session, inboxID), entryID, 0).Err(); err != nil {
		return fmt.Errorf("failed to set watermark: %w", err)
	}
	return nil
}
