package costore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Client provides instance-scoped Redis operations for the collaborative
// store. All keys and channels are automatically namespaced with the
// instance name. The client is thread-safe and can be used concurrently
// from multiple goroutines.
//
// The client is the adapter boundary the rest of the runtime programs
// against: read/create/update/delete/append plus raw access, name
// resolution and change subscriptions. Replica merge semantics belong to
// the substrate; the client adds no locking of its own.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// NewClient creates a new store client for the specified instance.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: Warren instance identifier (must not be empty)
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// InstanceName returns the instance this client is scoped to.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the client should not be used.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Create writes a new CoValue of the given kind and returns it. The id is
// derived from the header plus the supplied nonce; pass an empty nonce to
// get a fresh random one. Content is the initial map body for map-kind and
// the initial items for list-kind; stream-kind values start empty.
//
// Create is idempotent for a fixed nonce: re-creating an existing id is a
// no-op returning the stored value.
func (c *Client) Create(ctx context.Context, kind Kind, schemaID string, content any, nonce string) (*CoValue, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	if nonce == "" {
		nonce = uuid.New().String()
	}

	id := DeriveID(kind, schemaID, nonce)

	// Idempotency: an existing value under this id wins.
	existing, err := c.GetRaw(ctx, id)
	if err != nil && !IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	v := &CoValue{
		ID:          id,
		Kind:        kind,
		Schema:      schemaID,
		CreatedAtMs: time.Now().UnixMilli(),
	}

	switch kind {
	case KindMap:
		body, ok := content.(map[string]any)
		if content != nil && !ok {
			return nil, fmt.Errorf("map-kind content must be an object, got %T", content)
		}
		if body == nil {
			body = map[string]any{}
		}
		v.Content = body
	case KindList:
		items, ok := content.([]any)
		if content != nil && !ok {
			return nil, fmt.Errorf("list-kind content must be an array, got %T", content)
		}
		v.Content = items
	case KindStream:
		if content != nil {
			return nil, fmt.Errorf("stream-kind values start empty, got initial content %T", content)
		}
		v.Content = []any{}
	}

	hash, err := headerToHash(v)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize header: %w", err)
	}

	if err := c.rdb.HSet(ctx, HeaderKey(c.instanceName, id), hash).Err(); err != nil {
		return nil, fmt.Errorf("failed to write header to Redis: %w", err)
	}

	if kind == KindList {
		if items, _ := v.Content.([]any); len(items) > 0 {
			encoded := make([]interface{}, 0, len(items))
			for _, item := range items {
				raw, err := encodeItem(item)
				if err != nil {
					return nil, err
				}
				encoded = append(encoded, raw)
			}
			if err := c.rdb.RPush(ctx, ItemsKey(c.instanceName, id), encoded...).Err(); err != nil {
				return nil, fmt.Errorf("failed to write initial items: %w", err)
			}
		}
	}

	// Index by schema so collection reads can find this value.
	if schemaID != "" {
		if err := c.rdb.SAdd(ctx, SchemaIndexKey(c.instanceName, schemaID), id).Err(); err != nil {
			return nil, fmt.Errorf("failed to index value by schema: %w", err)
		}
	}

	if err := c.publishChange(ctx, &ChangeEvent{ID: id, Schema: schemaID, Kind: kind, Op: "create"}); err != nil {
		return nil, err
	}

	return v, nil
}

// Read retrieves a CoValue by id, loading list items or stream entry
// payloads as needed. Returns (nil, redis.Nil) if the value doesn't exist
// or has been tombstoned. Use IsNotFound() to check for not-found errors.
func (c *Client) Read(ctx context.Context, id string) (*CoValue, error) {
	v, err := c.GetRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.Deleted {
		return nil, redis.Nil
	}
	return v, nil
}

// GetRaw retrieves a CoValue by id without masking tombstones. The update
// path uses this to load the existing record before merging.
func (c *Client) GetRaw(ctx context.Context, id string) (*CoValue, error) {
	hashData, err := c.rdb.HGetAll(ctx, HeaderKey(c.instanceName, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read header from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys.
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	v, err := hashToCoValue(id, hashData)
	if err != nil {
		return nil, err
	}

	switch v.Kind {
	case KindList:
		raws, err := c.rdb.LRange(ctx, ItemsKey(c.instanceName, id), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read list items: %w", err)
		}
		items := make([]any, 0, len(raws))
		for _, raw := range raws {
			item, err := decodeItem(raw)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		v.Content = items

	case KindStream:
		entries, err := c.rdb.XRange(ctx, EntriesKey(c.instanceName, id), "-", "+").Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read stream entries: %w", err)
		}
		payloads := make([]any, 0, len(entries))
		for _, entry := range entries {
			if raw, ok := entry.Values["payload"].(string); ok && raw != "" {
				payload, err := decodeItem(raw)
				if err != nil {
					return nil, err
				}
				payloads = append(payloads, payload)
			}
		}
		v.Content = payloads
	}

	return v, nil
}

// Update replaces the body of a map-kind CoValue. The caller (the operation
// router) is responsible for merge and validation ordering; by the time a
// write reaches the store it has already been validated against its schema.
func (c *Client) Update(ctx context.Context, id string, body map[string]any) error {
	v, err := c.GetRaw(ctx, id)
	if err != nil {
		return err
	}
	if v.Kind != KindMap {
		return fmt.Errorf("update targets map-kind values, %s is %s", id, v.Kind)
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal map body: %w", err)
	}

	if err := c.rdb.HSet(ctx, HeaderKey(c.instanceName, id), "body", string(encoded)).Err(); err != nil {
		return fmt.Errorf("failed to update value in Redis: %w", err)
	}

	return c.publishChange(ctx, &ChangeEvent{ID: id, Schema: v.Schema, Kind: v.Kind, Op: "update"})
}

// Delete tombstones a CoValue. The record and its history remain in the
// store; subsequent reads report not found.
func (c *Client) Delete(ctx context.Context, id string) error {
	v, err := c.GetRaw(ctx, id)
	if err != nil {
		return err
	}

	if err := c.rdb.HSet(ctx, HeaderKey(c.instanceName, id), "deleted", "true").Err(); err != nil {
		return fmt.Errorf("failed to tombstone value: %w", err)
	}

	return c.publishChange(ctx, &ChangeEvent{ID: id, Schema: v.Schema, Kind: v.Kind, Op: "delete"})
}

// AppendList appends items to a list-kind CoValue, skipping items already
// present. Returns the number of items added and skipped. Item validation
// is the router's responsibility and has happened before this call.
func (c *Client) AppendList(ctx context.Context, id string, items []any) (added, skipped int, err error) {
	v, err := c.Read(ctx, id)
	if err != nil {
		return 0, 0, err
	}
	if v.Kind != KindList {
		return 0, 0, fmt.Errorf("append targets list- or stream-kind values, %s is %s", id, v.Kind)
	}

	existing := map[string]struct{}{}
	if current, ok := v.Content.([]any); ok {
		for _, item := range current {
			raw, err := encodeItem(item)
			if err != nil {
				return 0, 0, err
			}
			existing[raw] = struct{}{}
		}
	}

	key := ItemsKey(c.instanceName, id)
	for _, item := range items {
		raw, err := encodeItem(item)
		if err != nil {
			return added, skipped, err
		}
		if _, dup := existing[raw]; dup {
			skipped++
			continue
		}
		if err := c.rdb.RPush(ctx, key, raw).Err(); err != nil {
			return added, skipped, fmt.Errorf("failed to append item: %w", err)
		}
		existing[raw] = struct{}{}
		added++
	}

	if added > 0 {
		if err := c.publishChange(ctx, &ChangeEvent{ID: id, Schema: v.Schema, Kind: v.Kind, Op: "append"}); err != nil {
			return added, skipped, err
		}
	}
	return added, skipped, nil
}

// AppendStream appends a payload to a stream-kind CoValue and returns the
// assigned entry id. Stream appends are never deduplicated: the log is the
// history.
func (c *Client) AppendStream(ctx context.Context, id string, payload any) (string, error) {
	v, err := c.Read(ctx, id)
	if err != nil {
		return "", err
	}
	if v.Kind != KindStream {
		return "", fmt.Errorf("stream append targets stream-kind values, %s is %s", id, v.Kind)
	}

	raw, err := encodeItem(payload)
	if err != nil {
		return "", err
	}

	entryID, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: EntriesKey(c.instanceName, id),
		Values: map[string]interface{}{"payload": raw},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to append stream entry: %w", err)
	}

	if err := c.publishChange(ctx, &ChangeEvent{ID: id, Schema: v.Schema, Kind: v.Kind, Op: "append"}); err != nil {
		return entryID, err
	}
	return entryID, nil
}

// ListBySchema returns the ids of all live CoValues created against a
// schema. Tombstoned values are filtered out.
func (c *Client) ListBySchema(ctx context.Context, schemaID string) ([]string, error) {
	ids, err := c.rdb.SMembers(ctx, SchemaIndexKey(c.instanceName, schemaID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read schema index: %w", err)
	}

	live := make([]string, 0, len(ids))
	for _, id := range ids {
		deleted, err := c.rdb.HGet(ctx, HeaderKey(c.instanceName, id), "deleted").Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to check tombstone for %s: %w", id, err)
		}
		if deleted == "true" {
			continue
		}
		live = append(live, id)
	}
	return live, nil
}

// RegisterName binds a human-readable name to a content id in the name
// registry. Names exist for authoring and seeding only; runtime documents
// carry content ids exclusively.
func (c *Client) RegisterName(ctx context.Context, name, id string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if !IsID(id) {
		return fmt.Errorf("cannot register name %q: %q is not a content id", name, id)
	}
	if err := c.rdb.HSet(ctx, NamesKey(c.instanceName), name, id).Err(); err != nil {
		return fmt.Errorf("failed to register name: %w", err)
	}
	return nil
}

// ResolveHumanReadableKey resolves a reference to a content id. Input that
// already matches the content-id pattern resolves to itself. Returns
// ("", redis.Nil) for unknown names.
func (c *Client) ResolveHumanReadableKey(ctx context.Context, ref string) (string, error) {
	if IsID(ref) {
		return ref, nil
	}

	id, err := c.rdb.HGet(ctx, NamesKey(c.instanceName), ref).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", redis.Nil
		}
		return "", fmt.Errorf("failed to resolve name: %w", err)
	}
	return id, nil
}

// publishChange publishes a change event for subscribers. Reactive stores
// and query layers depend on every write being announced here.
func (c *Client) publishChange(ctx context.Context, ev *ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}
	if err := c.rdb.Publish(ctx, ChangeEventsChannel(c.instanceName), data).Err(); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

// ChangeSubscription represents an active Pub/Sub subscription to store
// change events. Caller must call Close() when done to clean up resources.
type ChangeSubscription struct {
	events <-chan *ChangeEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of change events.
// The channel will be closed when the subscription is closed or the context
// is cancelled.
func (s *ChangeSubscription) Events() <-chan *ChangeEvent {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors include JSON unmarshaling failures and other non-fatal issues.
// The subscription continues after errors - messages are skipped.
func (s *ChangeSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements
// io.Closer. Safe to call multiple times - subsequent calls are no-ops.
func (s *ChangeSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeChanges subscribes to store change events for this instance.
// Caller must call subscription.Close() when done. Context cancellation
// also stops the subscription.
//
// Events are delivered on a buffered channel (size 64) to prevent blocking.
// If the subscriber is too slow, events may be dropped by Redis Pub/Sub
// (at-most-once delivery); reactive consumers re-read state on each event,
// so a dropped event costs freshness, not correctness.
func (c *Client) SubscribeChanges(ctx context.Context) (*ChangeSubscription, error) {
	pubsub := c.rdb.Subscribe(ctx, ChangeEventsChannel(c.instanceName))

	eventsChan := make(chan *ChangeEvent, 64)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var ev ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal change event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &ChangeSubscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a store "not found" error
// (redis.Nil). Reads of missing or tombstoned values and unresolvable
// names return this.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
