package runtime

import (
	"context"
	"reflect"

	"github.com/dyluth/warren/pkg/costore"
)

// Live reads
//
// Every read returns a *Store rather than a snapshot: the underlying data
// is externally mutable, so the router keeps each read result fresh by
// re-reading whenever a matching change event arrives. A read that fails to
// resolve returns an empty/null live value, never an error - reads are
// stores, not one-shot throwing calls.

func (r *Router) executeRead(ctx context.Context, op Operation) (any, error) {
	switch {
	case op.Key != "":
		return r.readSingle(ctx, op.Key), nil
	case len(op.Keys) > 0:
		return r.readBatch(ctx, op.Keys), nil
	case op.Schema != "":
		return r.readCollection(ctx, op.Schema, op.Filter), nil
	default:
		return nil, missingParameterError(OpRead, "key")
	}
}

// liveStore builds a Store whose value is recomputed on every change event
// accepted by match. The watch runs on its own context: a live store
// outlives the request that created it and is torn down only when its last
// subscriber leaves or Close is called.
func (r *Router) liveStore(compute func(context.Context) any, match func(*costore.ChangeEvent) bool) *Store {
	watchCtx, cancel := context.WithCancel(context.Background())

	st := NewStore(compute(watchCtx), cancel)

	sub, err := r.store.SubscribeChanges(watchCtx)
	if err != nil {
		// Without a feed the store is static but still valid.
		return st
	}

	go func() {
		for {
			select {
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				if match(ev) {
					st.Set(compute(watchCtx))
				}
			case _, ok := <-sub.Errors():
				if !ok {
					return
				}
				// Non-fatal: a garbled event costs one refresh.
			case <-watchCtx.Done():
				sub.Close()
				return
			}
		}
	}()

	return st
}

func (r *Router) readSingle(ctx context.Context, key string) *Store {
	id, err := r.resolveKey(ctx, key)
	if err != nil {
		return NewStore(nil, nil)
	}

	compute := func(c context.Context) any {
		v, err := r.store.Read(c, id)
		if err != nil {
			return nil
		}
		return v.Content
	}
	return r.liveStore(compute, func(ev *costore.ChangeEvent) bool {
		return ev.ID == id
	})
}

func (r *Router) readBatch(ctx context.Context, keys []string) *Store {
	ids := make(map[string]struct{}, len(keys))
	ordered := make([]string, 0, len(keys))
	for _, key := range keys {
		id, err := r.resolveKey(ctx, key)
		if err != nil {
			continue
		}
		if _, dup := ids[id]; !dup {
			ids[id] = struct{}{}
			ordered = append(ordered, id)
		}
	}

	compute := func(c context.Context) any {
		out := make(map[string]any, len(ordered))
		for _, id := range ordered {
			v, err := r.store.Read(c, id)
			if err != nil {
				out[id] = nil
				continue
			}
			out[id] = v.Content
		}
		return out
	}
	return r.liveStore(compute, func(ev *costore.ChangeEvent) bool {
		_, watched := ids[ev.ID]
		return watched
	})
}

func (r *Router) readCollection(ctx context.Context, schemaRef string, filter map[string]any) *Store {
	schemaID, err := r.resolveKey(ctx, schemaRef)
	if err != nil {
		return NewStore([]map[string]any{}, nil)
	}

	compute := func(c context.Context) any {
		return r.collectionRows(c, schemaID, filter)
	}
	return r.liveStore(compute, func(ev *costore.ChangeEvent) bool {
		return ev.Schema == schemaID
	})
}

// rowFromValue projects a CoValue into a collection row: its content with
// the id made addressable as an ordinary field.
func rowFromValue(v *costore.CoValue) map[string]any {
	row := map[string]any{"id": v.ID}
	if body, ok := v.Content.(map[string]any); ok {
		for k, val := range body {
			row[k] = val
		}
	} else if v.Content != nil {
		row["items"] = v.Content
	}
	return row
}

// matchesFilter reports whether every filter field equals the row's value.
// Filters reaching this point are fully concrete; dynamic placeholders are
// the query layer's business.
func matchesFilter(row map[string]any, filter map[string]any) bool {
	for field, want := range filter {
		got, present := row[field]
		if !present || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
