package costore

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go values and Redis storage
//
// Headers are stored as Redis hashes (string-to-string maps). Map-kind
// content is JSON-encoded into a single "body" hash field; list items and
// stream entry payloads are JSON-encoded individually. This keeps the header
// fields queryable while leaving document shapes flexible.

// headerToHash converts a CoValue's header (and, for map-kind, its content)
// to a Redis hash format.
func headerToHash(v *CoValue) (map[string]interface{}, error) {
	hash := map[string]interface{}{
		"kind":          string(v.Kind),
		"schema":        v.Schema,
		"created_at_ms": v.CreatedAtMs,
		"deleted":       strconv.FormatBool(v.Deleted),
	}

	if v.Kind == KindMap {
		body, err := json.Marshal(v.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal map body: %w", err)
		}
		hash["body"] = string(body)
	}

	return hash, nil
}

// hashToCoValue converts a Redis header hash back to a CoValue. List items
// and stream entries are loaded separately by the client.
func hashToCoValue(id string, hash map[string]string) (*CoValue, error) {
	kind := Kind(hash["kind"])
	if err := kind.Validate(); err != nil {
		return nil, fmt.Errorf("corrupt header for %s: %w", id, err)
	}

	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)
	deleted, _ := strconv.ParseBool(hash["deleted"])

	v := &CoValue{
		ID:          id,
		Kind:        kind,
		Schema:      hash["schema"],
		CreatedAtMs: createdAtMs,
		Deleted:     deleted,
	}

	if kind == KindMap {
		var body map[string]any
		if raw := hash["body"]; raw != "" {
			if err := json.Unmarshal([]byte(raw), &body); err != nil {
				return nil, fmt.Errorf("failed to unmarshal map body for %s: %w", id, err)
			}
		}
		if body == nil {
			body = map[string]any{}
		}
		v.Content = body
	}

	return v, nil
}

// encodeItem JSON-encodes a single list item or stream entry payload.
func encodeItem(item any) (string, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("failed to marshal item: %w", err)
	}
	return string(data), nil
}

// decodeItem decodes a single JSON-encoded list item or stream entry payload.
func decodeItem(raw string) (any, error) {
	var item any
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return item, nil
}

// messageToFields converts a Message to Redis stream entry fields. The
// processed flag is deliberately excluded: it lives in the companion
// processed set, never on the immutable entry.
func messageToFields(m *Message) (map[string]interface{}, error) {
	payloadJSON, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message payload: %w", err)
	}

	return map[string]interface{}{
		"type":    m.Type,
		"payload": string(payloadJSON),
		"source":  m.Source,
		"target":  m.Target,
	}, nil
}

// fieldsToMessage converts Redis stream entry fields back to a Message.
func fieldsToMessage(entryID string, fields map[string]interface{}) (*Message, error) {
	m := &Message{ID: entryID}

	if v, ok := fields["type"].(string); ok {
		m.Type = v
	}
	if v, ok := fields["source"].(string); ok {
		m.Source = v
	}
	if v, ok := fields["target"].(string); ok {
		m.Target = v
	}
	if v, ok := fields["payload"].(string); ok && v != "" {
		if err := json.Unmarshal([]byte(v), &m.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload of entry %s: %w", entryID, err)
		}
	}

	if m.Type == "" {
		return nil, fmt.Errorf("entry %s has no message type", entryID)
	}
	return m, nil
}
