package runtime

import (
	"fmt"
	"strings"
)

// Operation names accepted by the router. The set is closed; anything else
// fails fast with a listing of these.
const (
	OpRead         = "read"
	OpCreate       = "create"
	OpUpdate       = "update"
	OpDelete       = "delete"
	OpAppend       = "append"
	OpSchema       = "schema"
	OpResolve      = "resolve"
	OpSeed         = "seed"
	OpProcessInbox = "process-inbox"
)

var supportedOps = []string{
	OpRead, OpCreate, OpUpdate, OpDelete, OpAppend,
	OpSchema, OpResolve, OpSeed, OpProcessInbox,
}

// Operation is the single tagged payload accepted by Router.Execute. Which
// parameters apply depends on Op; missing required parameters fail fast
// naming the parameter and the operation.
type Operation struct {
	Op string `json:"op"`

	// Key addresses one CoValue (or registered name) for read, update,
	// delete, append and schema. Keys addresses a batch read.
	Key  string   `json:"key,omitempty"`
	Keys []string `json:"keys,omitempty"`

	// Schema is a schema reference: the type to create against, or the
	// collection to read.
	Schema string `json:"schema,omitempty"`

	// Kind selects the container kind on create (defaults to co-map).
	Kind string `json:"kind,omitempty"`

	// Data is the body for create and update. Update bodies may contain
	// {"$ctx": field} placeholders, evaluated against the existing record.
	Data map[string]any `json:"data,omitempty"`

	// Items are the initial list content on create, or the candidates for
	// append.
	Items []any `json:"items,omitempty"`

	// Filter narrows a collection read to rows whose fields equal these
	// values.
	Filter map[string]any `json:"filter,omitempty"`

	// Ref is the human-readable reference for resolve (seed-time use only).
	Ref string `json:"ref,omitempty"`

	// Actor is the target of process-inbox.
	Actor string `json:"actor,omitempty"`

	// Documents is the bulk payload for seed.
	Documents []map[string]any `json:"documents,omitempty"`

	// Name optionally registers a human-readable name for a created value.
	Name string `json:"name,omitempty"`

	// Nonce optionally pins the derived content id on create, making the
	// create idempotent. Seeding uses this; ordinary callers leave it empty.
	Nonce string `json:"nonce,omitempty"`
}

// AppendResult reports the outcome of an append operation.
type AppendResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// SeedResult reports the outcome of a bulk seed.
type SeedResult struct {
	Created int               `json:"created"`
	Skipped int               `json:"skipped"`
	IDs     map[string]string `json:"ids"` // registered name -> content id
}

// ProcessInboxResult reports how many messages one drain pass handled.
type ProcessInboxResult struct {
	Processed int `json:"processed"`
}

func unknownOperationError(op string) error {
	return fmt.Errorf("unknown operation %q (supported: %s)", op, strings.Join(supportedOps, ", "))
}

func missingParameterError(op, param string) error {
	return fmt.Errorf("operation %q requires parameter %q", op, param)
}
