package costore

import (
	"fmt"
)

// Kind identifies the container shape of a CoValue.
type Kind string

const (
	// KindMap is a keyed object container.
	KindMap Kind = "co-map"

	// KindList is an ordered list container.
	KindList Kind = "co-list"

	// KindStream is an append-only log container. Actor inboxes are streams.
	KindStream Kind = "co-stream"
)

// Validate checks if the Kind is a valid enum value.
func (k Kind) Validate() error {
	switch k {
	case KindMap, KindList, KindStream:
		return nil
	default:
		return fmt.Errorf("unknown container kind: %q", k)
	}
}

// CoValue is a durable unit of collaborative state. The header fields
// (ID, Kind, Schema, CreatedAtMs, Deleted) describe the container; Content
// holds the current value - a map[string]any for map-kind, a []any for
// list-kind, and a []any of entry payloads for stream-kind.
type CoValue struct {
	ID          string `json:"id"`           // Content-addressed id (co_z...)
	Kind        Kind   `json:"kind"`         // Container kind
	Schema      string `json:"schema"`       // Content id of the value's schema ("" for schema-less values)
	CreatedAtMs int64  `json:"created_at_ms"`
	Deleted     bool   `json:"deleted"`      // Tombstone flag - the record is never physically removed
	Content     any    `json:"content"`
}

// Message is an inbox entry. Payloads must be fully resolved before a
// message is appended: the inbox is a durable, replicated log whose entries
// must be meaningful to any later reader on any replica, independent of the
// resolution context that produced them.
type Message struct {
	ID        string         `json:"id"`                  // Stream entry id, assigned on append
	Type      string         `json:"type"`                // Event type routed into the target's state machine
	Payload   map[string]any `json:"payload,omitempty"`   // Fully resolved payload
	Source    string         `json:"source,omitempty"`    // Sending actor id, if any
	Target    string         `json:"target"`              // Receiving actor id
	Processed bool           `json:"processed"`           // Flipped once the target has consumed the message
}

// Validate checks if the Message has valid field values.
func (m *Message) Validate() error {
	if m.Type == "" {
		return fmt.Errorf("message type cannot be empty")
	}
	if m.Target == "" {
		return fmt.Errorf("message target cannot be empty")
	}
	return nil
}

// ChangeEvent describes a single mutation of the store, published on the
// instance's change channel after every successful write.
type ChangeEvent struct {
	ID     string `json:"id"`               // CoValue id that changed
	Schema string `json:"schema,omitempty"` // Schema id of the changed value
	Kind   Kind   `json:"kind"`
	Op     string `json:"op"` // "create", "update", "delete", "append" or "message"
}
