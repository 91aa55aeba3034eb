package schema

import (
	"fmt"
	"sync"
)

// Registry maps schema names and content ids to compiled definitions. It is
// an explicit object handed to the router and interpreters - never
// process-wide state - so multiple runtimes can coexist in one process and
// in tests.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]string
	byID   map[string]*Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]string),
		byID:   make(map[string]*Definition),
	}
}

// Register adds a compiled definition under its content id, and under its
// human-readable name when it has one. A definition must have been assigned
// its content id before registration.
func (r *Registry) Register(def *Definition) error {
	if def.ID == "" {
		return fmt.Errorf("cannot register schema %q: no content id assigned", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[def.ID] = def
	if def.Name != "" {
		r.byName[def.Name] = def.ID
	}
	return nil
}

// Lookup returns the definition registered under a content id.
func (r *Registry) Lookup(id string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byID[id]
	return def, ok
}

// ResolveName returns the content id registered under a human-readable
// name.
func (r *Registry) ResolveName(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	return id, ok
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
