package runtime

import (
	"fmt"
	"strings"
)

// Expression placeholders
//
// A placeholder is a single-key object {"$ctx": "field"} standing for the
// value of a context field. Placeholders appear in update bodies, dynamic
// query filters and tool payloads, and are always evaluated against a
// concrete scope before anything durable is written. A document containing
// an unevaluated placeholder is "pending" and must never reach a replicated
// log.

// Placeholder returns the referenced field name if v is a context
// placeholder.
func Placeholder(v any) (string, bool) {
	obj, ok := v.(map[string]any)
	if !ok || len(obj) != 1 {
		return "", false
	}
	field, ok := obj["$ctx"].(string)
	if !ok || field == "" {
		return "", false
	}
	return field, true
}

// HasPendingExpressions reports whether v contains, at any depth, a map
// carrying a $-prefixed key. Inbox delivery rejects such payloads: a
// durable, replicated log entry must be meaningful to any later reader
// without the resolution context that produced it.
func HasPendingExpressions(v any) bool {
	switch val := v.(type) {
	case map[string]any:
		for key, child := range val {
			if strings.HasPrefix(key, "$") {
				return true
			}
			if HasPendingExpressions(child) {
				return true
			}
		}
	case []any:
		for _, child := range val {
			if HasPendingExpressions(child) {
				return true
			}
		}
	}
	return false
}

// ResolveExpressions returns a copy of data with every placeholder replaced
// by the named field's value from scope. Referencing a field absent from
// the scope is an error: silent nulls would persist and replicate.
func ResolveExpressions(data map[string]any, scope map[string]any) (map[string]any, error) {
	out, err := resolveValue("$", data, scope)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func resolveValue(path string, v any, scope map[string]any) (any, error) {
	if field, ok := Placeholder(v); ok {
		value, present := scope[field]
		if !present {
			return nil, fmt.Errorf("%s: placeholder references unknown field %q", path, field)
		}
		return value, nil
	}

	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for key, child := range val {
			resolved, err := resolveValue(path+"."+key, child, scope)
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil

	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			resolved, err := resolveValue(fmt.Sprintf("%s[%d]", path, i), child, scope)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil

	default:
		return v, nil
	}
}
