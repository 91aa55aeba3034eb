package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/warren/pkg/costore"
)

// Resolver resolves a human-readable reference to a content id. The store
// client satisfies this; tests supply fixed maps.
type Resolver interface {
	ResolveHumanReadableKey(ctx context.Context, ref string) (string, error)
}

// referenceKeys are the document keys whose string values carry schema or
// target references subject to seed-time transformation. The set covers
// plain documents, nested query objects ({schema, filter}) and actor
// definitions ({machine, ...}). Inside tool payloads the "target" key
// additionally carries a reference; elsewhere (machine transitions) it is a
// plain state name.
var referenceKeys = map[string]struct{}{
	"$schema": {},
	"$co":     {},
	"schema":  {},
	"machine": {},
}

// TransformForSeeding returns a copy of doc with every human-readable
// schema/target reference rewritten to a content id, however deeply nested.
// An unresolvable reference is a hard failure: no document with a dangling
// human-readable reference may ever be persisted.
//
// In data documents a bare {"$co": "ref"} object additionally collapses to
// the referenced content id, so the stored field satisfies reference-typed
// properties directly. Schema documents keep the {"$co": id} property shape;
// only the reference inside is rewritten.
//
// Fields that do not carry references are never altered, so transforming a
// document with no references is the identity.
func TransformForSeeding(ctx context.Context, doc map[string]any, resolver Resolver) (map[string]any, error) {
	flatten := true
	if rawKind, ok := doc["type"].(string); ok && strings.HasPrefix(rawKind, "co-") {
		flatten = false
	}

	tr := &transformer{resolver: resolver, flatten: flatten}
	out, err := tr.value(ctx, "$", doc, false, false)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

type transformer struct {
	resolver Resolver
	flatten  bool
}

func (t *transformer) value(ctx context.Context, path string, value any, isRef, inPayload bool) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		if t.flatten && len(v) == 1 {
			if ref, ok := v["$co"].(string); ok && ref != "" {
				return t.value(ctx, path+".$co", ref, true, inPayload)
			}
		}

		out := make(map[string]any, len(v))
		for key, child := range v {
			_, carriesRef := referenceKeys[key]
			if key == "target" && inPayload {
				carriesRef = true
			}
			transformed, err := t.value(ctx, path+"."+key, child, carriesRef, inPayload || key == "payload")
			if err != nil {
				return nil, err
			}
			out[key] = transformed
		}
		return out, nil

	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			transformed, err := t.value(ctx, fmt.Sprintf("%s[%d]", path, i), child, isRef, inPayload)
			if err != nil {
				return nil, err
			}
			out[i] = transformed
		}
		return out, nil

	case string:
		if !isRef {
			return v, nil
		}
		if costore.IsID(v) {
			return v, nil
		}
		id, err := t.resolver.ResolveHumanReadableKey(ctx, v)
		if err != nil {
			if costore.IsNotFound(err) {
				return nil, fmt.Errorf("%s: reference %q does not resolve to a content id", path, v)
			}
			return nil, fmt.Errorf("%s: failed to resolve reference %q: %w", path, v, err)
		}
		return id, nil

	default:
		return v, nil
	}
}
