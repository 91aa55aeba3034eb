package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dyluth/warren/pkg/costore"
	"github.com/dyluth/warren/pkg/schema"
)

// InboxDrainer drains the unprocessed messages of one actor's inbox. The
// actor runtime attaches itself here so process-inbox can be dispatched
// through the router like every other operation.
type InboxDrainer interface {
	Drain(ctx context.Context, actorID string) (int, error)
}

// Router is the single dispatch surface mediating every read and write
// against the collaborative store.
//
// Guarantees:
//   - every write is validated against its resolved schema before being
//     persisted - there is no "write first, validate later" path;
//   - every read returns a live Store the caller subscribes to, because all
//     data is externally mutable;
//   - schema resolution failure on a write rejects the write.
type Router struct {
	store    *costore.Client
	registry *schema.Registry

	mu      sync.RWMutex
	drainer InboxDrainer
}

// NewRouter creates a router over a store client and a schema registry. The
// registry is an explicit dependency, not process state, so independent
// routers can coexist in tests.
func NewRouter(store *costore.Client, registry *schema.Registry) *Router {
	return &Router{
		store:    store,
		registry: registry,
	}
}

// Store exposes the underlying store client for collaborators that need
// direct inbox access (the actor runtime).
func (r *Router) Store() *costore.Client {
	return r.store
}

// Registry exposes the schema registry.
func (r *Router) Registry() *schema.Registry {
	return r.registry
}

// AttachDrainer registers the actor runtime behind the process-inbox
// operation.
func (r *Router) AttachDrainer(d InboxDrainer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drainer = d
}

// Execute dispatches a tagged operation payload. Reads return a *Store;
// writes return a plain result:
//
//	read          -> *Store
//	create        -> *costore.CoValue
//	update        -> *costore.CoValue
//	delete        -> nil
//	append        -> *AppendResult
//	schema        -> *schema.Definition
//	resolve       -> string (content id)
//	seed          -> *SeedResult
//	process-inbox -> *ProcessInboxResult
func (r *Router) Execute(ctx context.Context, op Operation) (any, error) {
	switch op.Op {
	case OpRead:
		return r.executeRead(ctx, op)
	case OpCreate:
		return r.executeCreate(ctx, op)
	case OpUpdate:
		return r.executeUpdate(ctx, op)
	case OpDelete:
		return r.executeDelete(ctx, op)
	case OpAppend:
		return r.executeAppend(ctx, op)
	case OpSchema:
		return r.executeSchema(ctx, op)
	case OpResolve:
		return r.executeResolve(ctx, op)
	case OpSeed:
		return r.executeSeed(ctx, op)
	case OpProcessInbox:
		return r.executeProcessInbox(ctx, op)
	default:
		return nil, unknownOperationError(op.Op)
	}
}

// resolveKey resolves a key that may be a human-readable name. Write paths
// treat failure as fatal; the read path degrades to an empty live value.
func (r *Router) resolveKey(ctx context.Context, key string) (string, error) {
	if costore.IsID(key) {
		return key, nil
	}
	if id, ok := r.registry.ResolveName(key); ok {
		return id, nil
	}
	return r.store.ResolveHumanReadableKey(ctx, key)
}

// loadDefinition resolves a schema reference and returns its compiled
// definition, reading and compiling the stored schema document on first
// use.
func (r *Router) loadDefinition(ctx context.Context, ref string) (*schema.Definition, error) {
	id, err := r.resolveKey(ctx, ref)
	if err != nil {
		if costore.IsNotFound(err) {
			return nil, fmt.Errorf("schema reference %q does not resolve", ref)
		}
		return nil, err
	}

	if def, ok := r.registry.Lookup(id); ok {
		return def, nil
	}

	v, err := r.store.Read(ctx, id)
	if err != nil {
		if costore.IsNotFound(err) {
			return nil, fmt.Errorf("schema %s not found in store", id)
		}
		return nil, err
	}

	doc, ok := v.Content.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("schema %s is not a document", id)
	}

	def, err := schema.Compile(doc)
	if err != nil {
		return nil, err
	}
	def.ID = id
	if err := r.registry.Register(def); err != nil {
		return nil, err
	}
	return def, nil
}

func (r *Router) executeCreate(ctx context.Context, op Operation) (any, error) {
	kind := costore.KindMap
	if op.Kind != "" {
		kind = costore.Kind(op.Kind)
		if err := kind.Validate(); err != nil {
			return nil, err
		}
	}

	var (
		def      *schema.Definition
		schemaID string
	)
	if op.Schema != "" {
		// A write against an unresolvable schema is rejected outright: data
		// is never persisted unvalidated.
		var err error
		def, err = r.loadDefinition(ctx, op.Schema)
		if err != nil {
			return nil, err
		}
		schemaID = def.ID
		if def.Kind != kind {
			return nil, fmt.Errorf("schema %q governs %s values, cannot create %s", op.Schema, def.Kind, kind)
		}
	}

	var content any
	switch kind {
	case costore.KindMap:
		if op.Data != nil {
			content = op.Data
		} else {
			content = map[string]any{}
		}
	case costore.KindList:
		items := op.Items
		if items == nil {
			items = []any{}
		}
		content = items
	case costore.KindStream:
		content = nil
	}

	if def != nil && kind != costore.KindStream {
		if err := def.Validate(content); err != nil {
			return nil, err
		}
	}

	v, err := r.store.Create(ctx, kind, schemaID, content, op.Nonce)
	if err != nil {
		return nil, err
	}

	if op.Name != "" {
		if err := r.store.RegisterName(ctx, op.Name, v.ID); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (r *Router) executeUpdate(ctx context.Context, op Operation) (any, error) {
	if op.Key == "" {
		return nil, missingParameterError(OpUpdate, "key")
	}
	if op.Data == nil {
		return nil, missingParameterError(OpUpdate, "data")
	}

	id, err := r.resolveKey(ctx, op.Key)
	if err != nil {
		if costore.IsNotFound(err) {
			return nil, fmt.Errorf("update target %q does not resolve", op.Key)
		}
		return nil, err
	}

	existing, err := r.store.GetRaw(ctx, id)
	if err != nil {
		if costore.IsNotFound(err) {
			return nil, fmt.Errorf("update target %s not found", id)
		}
		return nil, err
	}
	if existing.Kind != costore.KindMap {
		return nil, fmt.Errorf("update targets map-kind values, %s is %s", id, existing.Kind)
	}

	existingBody, _ := existing.Content.(map[string]any)
	if existingBody == nil {
		existingBody = map[string]any{}
	}

	// Expression placeholders evaluate against the existing record, before
	// the merge.
	resolved, err := ResolveExpressions(op.Data, existingBody)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(existingBody)+len(resolved))
	for k, v := range existingBody {
		merged[k] = v
	}
	for k, v := range resolved {
		merged[k] = v
	}

	// Re-validate the merged result; only then write.
	if existing.Schema != "" {
		def, err := r.loadDefinition(ctx, existing.Schema)
		if err != nil {
			return nil, err
		}
		if err := def.Validate(merged); err != nil {
			return nil, err
		}
	}

	if err := r.store.Update(ctx, id, merged); err != nil {
		return nil, err
	}

	existing.Content = merged
	return existing, nil
}

func (r *Router) executeDelete(ctx context.Context, op Operation) (any, error) {
	if op.Key == "" {
		return nil, missingParameterError(OpDelete, "key")
	}

	id, err := r.resolveKey(ctx, op.Key)
	if err != nil {
		if costore.IsNotFound(err) {
			return nil, fmt.Errorf("delete target %q does not resolve", op.Key)
		}
		return nil, err
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return nil, err
	}
	return nil, nil
}

func (r *Router) executeAppend(ctx context.Context, op Operation) (any, error) {
	if op.Key == "" {
		return nil, missingParameterError(OpAppend, "key")
	}
	if len(op.Items) == 0 {
		return nil, missingParameterError(OpAppend, "items")
	}

	id, err := r.resolveKey(ctx, op.Key)
	if err != nil {
		if costore.IsNotFound(err) {
			return nil, fmt.Errorf("append target %q does not resolve", op.Key)
		}
		return nil, err
	}

	v, err := r.store.Read(ctx, id)
	if err != nil {
		if costore.IsNotFound(err) {
			return nil, fmt.Errorf("append target %s not found", id)
		}
		return nil, err
	}
	if v.Kind != costore.KindList && v.Kind != costore.KindStream {
		return nil, fmt.Errorf("append is restricted to list- and stream-kind values, %s is %s", id, v.Kind)
	}

	// Validate every candidate before any item is written, so a bad batch
	// leaves the container untouched.
	if v.Schema != "" {
		def, err := r.loadDefinition(ctx, v.Schema)
		if err != nil {
			return nil, err
		}
		var violations []schema.Violation
		for i, item := range op.Items {
			if err := def.ValidateItem(item, i); err != nil {
				if ve, ok := schema.AsValidation(err); ok {
					violations = append(violations, ve.Violations...)
					continue
				}
				return nil, err
			}
		}
		if len(violations) > 0 {
			return nil, &schema.ValidationError{Violations: violations}
		}
	}

	result := &AppendResult{}
	switch v.Kind {
	case costore.KindList:
		added, skipped, err := r.store.AppendList(ctx, id, op.Items)
		if err != nil {
			return nil, err
		}
		result.Added, result.Skipped = added, skipped
	case costore.KindStream:
		for _, item := range op.Items {
			if _, err := r.store.AppendStream(ctx, id, item); err != nil {
				return nil, err
			}
			result.Added++
		}
	}
	return result, nil
}

// executeSchema loads a schema definition either directly by reference or
// by extracting it from a target CoValue's header - the canonical way a
// caller discovers a value's type without a side channel.
func (r *Router) executeSchema(ctx context.Context, op Operation) (any, error) {
	if op.Key == "" {
		return nil, missingParameterError(OpSchema, "key")
	}

	id, err := r.resolveKey(ctx, op.Key)
	if err != nil {
		if costore.IsNotFound(err) {
			return nil, fmt.Errorf("schema target %q does not resolve", op.Key)
		}
		return nil, err
	}

	if def, ok := r.registry.Lookup(id); ok {
		return def, nil
	}

	v, err := r.store.Read(ctx, id)
	if err != nil {
		if costore.IsNotFound(err) {
			return nil, fmt.Errorf("schema target %s not found", id)
		}
		return nil, err
	}

	// The key may name a schema document itself...
	if doc, ok := v.Content.(map[string]any); ok {
		if rawKind, ok := doc["type"].(string); ok && strings.HasPrefix(rawKind, "co-") {
			def, err := schema.Compile(doc)
			if err != nil {
				return nil, err
			}
			def.ID = id
			if err := r.registry.Register(def); err != nil {
				return nil, err
			}
			return def, nil
		}
	}

	// ...or a data value whose header carries the schema reference.
	if v.Schema == "" {
		return nil, fmt.Errorf("value %s carries no schema", id)
	}
	return r.loadDefinition(ctx, v.Schema)
}

func (r *Router) executeResolve(ctx context.Context, op Operation) (any, error) {
	if op.Ref == "" {
		return nil, missingParameterError(OpResolve, "ref")
	}

	id, err := r.resolveKey(ctx, op.Ref)
	if err != nil {
		if costore.IsNotFound(err) {
			return nil, fmt.Errorf("reference %q does not resolve", op.Ref)
		}
		return nil, err
	}
	return id, nil
}

func (r *Router) executeProcessInbox(ctx context.Context, op Operation) (any, error) {
	if op.Actor == "" {
		return nil, missingParameterError(OpProcessInbox, "actor")
	}

	r.mu.RLock()
	drainer := r.drainer
	r.mu.RUnlock()
	if drainer == nil {
		return nil, fmt.Errorf("operation %q requires an attached actor runtime", OpProcessInbox)
	}

	processed, err := drainer.Drain(ctx, op.Actor)
	if err != nil {
		return nil, err
	}
	return &ProcessInboxResult{Processed: processed}, nil
}
