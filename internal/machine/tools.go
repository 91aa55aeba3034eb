package machine

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Tool is an effect a state machine action can invoke: a router operation,
// an external call, anything with a resolvable outcome. The returned map
// becomes the payload of the synthetic SUCCESS event; an error becomes an
// ERROR event. Tools never deliver results in place - the outcome always
// round-trips through the invoking actor's inbox.
type Tool interface {
	Invoke(ctx context.Context, payload map[string]any) (map[string]any, error)
}

// ToolFunc adapts a plain function to the Tool interface.
type ToolFunc func(ctx context.Context, payload map[string]any) (map[string]any, error)

// Invoke implements Tool.
func (f ToolFunc) Invoke(ctx context.Context, payload map[string]any) (map[string]any, error) {
	return f(ctx, payload)
}

// ToolRegistry maps tool names to implementations. It is an explicit object
// handed to the interpreter, never process-wide state, so test interpreters
// can carry their own tool sets.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool under a name. Re-registering a name replaces the
// previous tool.
func (r *ToolRegistry) Register(name string, tool Tool) error {
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool == nil {
		return fmt.Errorf("tool %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
	return nil
}

// Lookup returns the tool registered under a name.
func (r *ToolRegistry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names in sorted order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
