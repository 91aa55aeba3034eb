package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dyluth/warren/pkg/costore"
)

// Violation is a single failed constraint, addressed by document path.
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError carries the complete list of violated constraints for a
// document - never just the first - so callers can surface every problem in
// one pass.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Path, v.Message))
	}
	return fmt.Sprintf("validation failed with %d violation(s): %s", len(e.Violations), strings.Join(parts, "; "))
}

// AsValidation unwraps err into a *ValidationError if it is one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// Validate checks data against the definition. Returns nil when the data
// conforms, or a *ValidationError listing every violated constraint.
func (d *Definition) Validate(data any) error {
	var violations []Violation

	switch d.Kind {
	case costore.KindMap:
		violations = d.validateMap(data)
	case costore.KindList, costore.KindStream:
		violations = d.validateListLike(data)
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// validateMap enforces the map-kind container rule: a non-null, non-array
// object - then every declared property and required field.
func (d *Definition) validateMap(data any) []Violation {
	if data == nil {
		return []Violation{{Path: "$", Message: "map-kind value must be a non-null object"}}
	}
	obj, ok := data.(map[string]any)
	if !ok {
		return []Violation{{Path: "$", Message: fmt.Sprintf("map-kind value must be an object, got %s", typeName(data))}}
	}

	var violations []Violation

	for _, field := range d.Required {
		if _, present := obj[field]; !present {
			violations = append(violations, Violation{
				Path:    "$." + field,
				Message: "required field is missing",
			})
		}
	}

	for field, value := range obj {
		prop, declared := d.Properties[field]
		if !declared {
			// Undeclared fields are permitted: contexts carry query
			// objects and runtime bookkeeping the schema doesn't name.
			continue
		}
		violations = append(violations, checkProperty("$."+field, prop, value)...)
	}

	return violations
}

// validateListLike enforces the list/stream-kind container rule: an array,
// or an object carrying an items array. The dual form accommodates a
// container read either as a raw array or as a wrapped handle with
// metadata.
func (d *Definition) validateListLike(data any) []Violation {
	items, violation := extractItems(data)
	if violation != nil {
		return []Violation{*violation}
	}

	if d.Items == nil {
		return nil
	}

	var violations []Violation
	for i, item := range items {
		violations = append(violations, checkProperty(fmt.Sprintf("$[%d]", i), d.Items, item)...)
	}
	return violations
}

// ValidateItem checks a single candidate item against the list/stream item
// constraint. The append operation uses this per item so its error can name
// the offending entry.
func (d *Definition) ValidateItem(item any, index int) error {
	if d.Kind == costore.KindMap {
		return &ValidationError{Violations: []Violation{{
			Path:    "$",
			Message: "map-kind values do not accept appended items",
		}}}
	}
	if d.Items == nil {
		return nil
	}
	if violations := checkProperty(fmt.Sprintf("$[%d]", index), d.Items, item); len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func extractItems(data any) ([]any, *Violation) {
	switch v := data.(type) {
	case []any:
		return v, nil
	case map[string]any:
		rawItems, present := v["items"]
		if !present {
			return nil, &Violation{Path: "$", Message: "wrapped container handle must carry an items array"}
		}
		items, ok := rawItems.([]any)
		if !ok {
			return nil, &Violation{Path: "$.items", Message: fmt.Sprintf("items must be an array, got %s", typeName(rawItems))}
		}
		return items, nil
	case nil:
		return nil, &Violation{Path: "$", Message: "list-kind value must be an array or a wrapped handle"}
	default:
		return nil, &Violation{Path: "$", Message: fmt.Sprintf("list-kind value must be an array or a wrapped handle, got %s", typeName(data))}
	}
}

func checkProperty(path string, prop *Property, value any) []Violation {
	switch prop.Type {
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return []Violation{{Path: path, Message: fmt.Sprintf("expected string, got %s", typeName(value))}}
		}
		if prop.Pattern != nil && !prop.Pattern.MatchString(s) {
			return []Violation{{Path: path, Message: fmt.Sprintf("value %q does not match pattern %s", s, prop.Pattern)}}
		}

	case TypeNumber:
		switch value.(type) {
		case float64, float32, int, int64:
		default:
			return []Violation{{Path: path, Message: fmt.Sprintf("expected number, got %s", typeName(value))}}
		}

	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return []Violation{{Path: path, Message: fmt.Sprintf("expected boolean, got %s", typeName(value))}}
		}

	case TypeObject:
		if _, ok := value.(map[string]any); !ok {
			return []Violation{{Path: path, Message: fmt.Sprintf("expected object, got %s", typeName(value))}}
		}

	case TypeArray:
		if _, ok := value.([]any); !ok {
			return []Violation{{Path: path, Message: fmt.Sprintf("expected array, got %s", typeName(value))}}
		}

	case TypeReference:
		s, ok := value.(string)
		if !ok {
			return []Violation{{Path: path, Message: fmt.Sprintf("expected content-id reference, got %s", typeName(value))}}
		}
		if !prop.Pattern.MatchString(s) {
			return []Violation{{Path: path, Message: fmt.Sprintf("value %q is not a content-id reference", s)}}
		}
	}

	return nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
