package runtime

import (
	"context"
	"fmt"

	"github.com/dyluth/warren/pkg/costore"
)

// Reactive queries
//
// A context field whose value is shaped {schema, filter} is a query, not a
// literal: its effective value is the set of documents of that schema whose
// fields match the filter. Filter values may themselves be {"$ctx": field}
// placeholders, re-resolved against the current context on every
// evaluation, so a query tracks both the collection and the fields it
// depends on.
//
// A filter that narrows to exactly {"id": ...} is a point lookup and
// evaluates to the single matching document (or nil), not a one-element
// list.

// Query is a declarative collection binding embedded in a context document.
type Query struct {
	Schema string
	Filter map[string]any
}

// AsQuery reports whether v is a query object: a map carrying a string
// "schema" and nothing beyond an optional "filter" map.
func AsQuery(v any) (*Query, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}

	schemaRef, ok := obj["schema"].(string)
	if !ok || schemaRef == "" {
		return nil, false
	}

	q := &Query{Schema: schemaRef}
	for key, val := range obj {
		switch key {
		case "schema":
		case "filter":
			filter, ok := val.(map[string]any)
			if !ok {
				return nil, false
			}
			q.Filter = filter
		default:
			return nil, false
		}
	}
	return q, true
}

// EvaluateQuery resolves the query's dynamic filter against scope and
// returns the current result: a []map[string]any of matching rows, or for
// an id-only filter the single row (nil when absent).
func (r *Router) EvaluateQuery(ctx context.Context, q *Query, scope map[string]any) (any, error) {
	filter, err := resolveFilter(q.Filter, scope)
	if err != nil {
		return nil, err
	}

	if id, ok := findOneID(filter); ok {
		return r.queryOne(ctx, id)
	}

	schemaID, err := r.resolveKey(ctx, q.Schema)
	if err != nil {
		if costore.IsNotFound(err) {
			return []map[string]any{}, nil
		}
		return nil, err
	}
	return r.collectionRows(ctx, schemaID, filter), nil
}

// WatchQuery is the live form of EvaluateQuery: the returned store
// republishes the query result whenever the underlying collection changes.
// The filter is resolved once against scope; callers re-watch when a
// dependency field changes.
func (r *Router) WatchQuery(ctx context.Context, q *Query, scope map[string]any) (*Store, error) {
	filter, err := resolveFilter(q.Filter, scope)
	if err != nil {
		return nil, err
	}

	if id, ok := findOneID(filter); ok {
		if !costore.IsID(id) {
			return NewStore(nil, nil), nil
		}
		compute := func(c context.Context) any {
			row, err := r.queryOne(c, id)
			if err != nil {
				return nil
			}
			return row
		}
		return r.liveStore(compute, func(ev *costore.ChangeEvent) bool {
			return ev.ID == id
		}), nil
	}

	schemaID, err := r.resolveKey(ctx, q.Schema)
	if err != nil {
		return NewStore([]map[string]any{}, nil), nil
	}
	compute := func(c context.Context) any {
		return r.collectionRows(c, schemaID, filter)
	}
	return r.liveStore(compute, func(ev *costore.ChangeEvent) bool {
		return ev.Schema == schemaID
	}), nil
}

// HydrateContext returns a copy of raw with every query field replaced by
// its evaluated result. Queries whose filters reference other query fields
// are evaluated once their dependencies have resolved; a dependency cycle
// between queries is an error.
func (r *Router) HydrateContext(ctx context.Context, raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	pending := make(map[string]*Query)
	for field, value := range raw {
		if q, ok := AsQuery(value); ok {
			pending[field] = q
			continue
		}
		out[field] = value
	}

	for len(pending) > 0 {
		progressed := false
		for field, q := range pending {
			result, err := r.EvaluateQuery(ctx, q, out)
			if err != nil {
				// Unresolvable placeholder: dependency may itself be a
				// still-pending query. Retry on the next round.
				continue
			}
			out[field] = result
			delete(pending, field)
			progressed = true
		}
		if !progressed {
			fields := make([]string, 0, len(pending))
			for field := range pending {
				fields = append(fields, field)
			}
			return nil, fmt.Errorf("context queries do not resolve (circular or dangling dependencies): %v", fields)
		}
	}
	return out, nil
}

// resolveFilter evaluates {"$ctx": field} placeholders in filter values
// against scope. A nil filter resolves to nil.
func resolveFilter(filter map[string]any, scope map[string]any) (map[string]any, error) {
	if filter == nil {
		return nil, nil
	}
	return ResolveExpressions(filter, scope)
}

// findOneID reports the point-lookup id when the filter narrows to exactly
// {"id": <string>}.
func findOneID(filter map[string]any) (string, bool) {
	if len(filter) != 1 {
		return "", false
	}
	id, ok := filter["id"].(string)
	return id, ok
}

func (r *Router) queryOne(ctx context.Context, key string) (any, error) {
	id, err := r.resolveKey(ctx, key)
	if err != nil {
		if costore.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	v, err := r.store.Read(ctx, id)
	if err != nil {
		if costore.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return rowFromValue(v), nil
}

// collectionRows loads the current members of a schema's collection and
// applies a concrete filter. Read failures on individual members drop the
// member rather than failing the query.
func (r *Router) collectionRows(ctx context.Context, schemaID string, filter map[string]any) []map[string]any {
	ids, err := r.store.ListBySchema(ctx, schemaID)
	if err != nil {
		return []map[string]any{}
	}

	rows := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		v, err := r.store.Read(ctx, id)
		if err != nil {
			continue
		}
		row := rowFromValue(v)
		if matchesFilter(row, filter) {
			rows = append(rows, row)
		}
	}
	return rows
}
