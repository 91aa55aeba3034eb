package machine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dyluth/warren/pkg/runtime"
)

// OperationToolName is the built-in tool every runtime registers: it lets a
// state machine perform router operations declaratively, with the payload
// as the operation document.
const OperationToolName = "operation"

// NewOperationTool builds the built-in tool executing router operations.
// The invocation payload is the operation itself ({"op": "create", ...});
// the result becomes the SUCCESS payload. Reads are snapshotted - the
// machine sees the value at invocation time, and stays current through its
// context queries, not through held stores.
func NewOperationTool(router *runtime.Router) Tool {
	return ToolFunc(func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("invalid operation payload: %w", err)
		}
		var op runtime.Operation
		if err := json.Unmarshal(raw, &op); err != nil {
			return nil, fmt.Errorf("invalid operation payload: %w", err)
		}
		if op.Op == "" {
			return nil, fmt.Errorf("operation payload missing op")
		}

		result, err := router.Execute(ctx, op)
		if err != nil {
			return nil, err
		}

		switch r := result.(type) {
		case nil:
			return map[string]any{}, nil
		case *runtime.Store:
			value := r.Get()
			r.Close()
			return map[string]any{"value": value}, nil
		default:
			encoded, err := json.Marshal(r)
			if err != nil {
				return nil, fmt.Errorf("failed to encode operation result: %w", err)
			}
			var out map[string]any
			if err := json.Unmarshal(encoded, &out); err != nil {
				// Scalar results (resolve returns a bare id) get wrapped.
				return map[string]any{"result": r}, nil
			}
			return out, nil
		}
	})
}
