package schema

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/dyluth/warren/pkg/costore"
)

// Property type names produced by compilation. The set is closed: an
// interpreter switches over these tags rather than reflecting over open
// document shapes.
const (
	TypeString    = "string"
	TypeNumber    = "number"
	TypeBoolean   = "boolean"
	TypeObject    = "object"
	TypeArray     = "array"
	TypeReference = "reference"
)

// Definition is the compiled, runtime form of a schema document.
type Definition struct {
	ID         string               // Content id once seeded ("" while authoring)
	Name       string               // Human-readable $id from the source document
	Kind       costore.Kind         // Container kind the schema governs
	Properties map[string]*Property // Map-kind property constraints
	Required   []string             // Map-kind required property names
	Items      *Property            // List/stream-kind item constraint
}

// Property is a single compiled constraint. For TypeReference, Pattern
// holds the content-id pattern produced by macro-expanding $co and Ref
// retains the original schema reference for seed-time transformation.
type Property struct {
	Type    string
	Pattern *regexp.Regexp
	Ref     string
}

// Compile turns a schema document into its runtime Definition. It fails
// fast on malformed or unrecognized container kinds and property shapes.
func Compile(doc map[string]any) (*Definition, error) {
	name, _ := doc["$id"].(string)

	rawKind, ok := doc["type"].(string)
	if !ok {
		return nil, fmt.Errorf("schema %q: missing container kind (type)", name)
	}
	kind := costore.Kind(rawKind)
	if err := kind.Validate(); err != nil {
		return nil, fmt.Errorf("schema %q: %w", name, err)
	}

	def := &Definition{
		Name: name,
		Kind: kind,
	}

	switch kind {
	case costore.KindMap:
		props, err := compileProperties(name, doc["properties"])
		if err != nil {
			return nil, err
		}
		def.Properties = props

		required, err := compileRequired(name, doc["required"])
		if err != nil {
			return nil, err
		}
		for _, field := range required {
			if _, declared := props[field]; !declared {
				return nil, fmt.Errorf("schema %q: required field %q is not declared in properties", name, field)
			}
		}
		def.Required = required

	case costore.KindList, costore.KindStream:
		if rawItems, present := doc["items"]; present {
			itemDoc, ok := rawItems.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("schema %q: items must be an object, got %T", name, rawItems)
			}
			prop, err := compileProperty(name, "items", itemDoc)
			if err != nil {
				return nil, err
			}
			def.Items = prop
		}
	}

	return def, nil
}

func compileProperties(schemaName string, raw any) (map[string]*Property, error) {
	if raw == nil {
		return map[string]*Property{}, nil
	}
	propsDoc, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("schema %q: properties must be an object, got %T", schemaName, raw)
	}

	props := make(map[string]*Property, len(propsDoc))
	for field, rawProp := range propsDoc {
		propDoc, ok := rawProp.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("schema %q: property %q must be an object, got %T", schemaName, field, rawProp)
		}
		prop, err := compileProperty(schemaName, field, propDoc)
		if err != nil {
			return nil, err
		}
		props[field] = prop
	}
	return props, nil
}

// compileProperty compiles one property constraint. A $co keyword is
// macro-expanded here into a content-id string constraint carrying the
// original reference as side metadata; this is the only place the expansion
// happens, it is not duplicated as a runtime check elsewhere.
func compileProperty(schemaName, field string, doc map[string]any) (*Property, error) {
	if rawRef, present := doc["$co"]; present {
		ref, ok := rawRef.(string)
		if !ok || ref == "" {
			return nil, fmt.Errorf("schema %q: property %q: $co must be a non-empty string reference", schemaName, field)
		}
		return &Property{
			Type:    TypeReference,
			Pattern: regexp.MustCompile(costore.IDPatternString()),
			Ref:     ref,
		}, nil
	}

	rawType, ok := doc["type"].(string)
	if !ok {
		return nil, fmt.Errorf("schema %q: property %q: missing type", schemaName, field)
	}

	switch rawType {
	case TypeString, TypeNumber, TypeBoolean, TypeObject, TypeArray:
	default:
		return nil, fmt.Errorf("schema %q: property %q: unknown type %q", schemaName, field, rawType)
	}

	prop := &Property{Type: rawType}

	if rawPattern, present := doc["pattern"]; present {
		if rawType != TypeString {
			return nil, fmt.Errorf("schema %q: property %q: pattern only applies to strings", schemaName, field)
		}
		src, ok := rawPattern.(string)
		if !ok {
			return nil, fmt.Errorf("schema %q: property %q: pattern must be a string", schemaName, field)
		}
		compiled, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("schema %q: property %q: invalid pattern: %w", schemaName, field, err)
		}
		prop.Pattern = compiled
	}

	return prop, nil
}

func compileRequired(schemaName string, raw any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	rawList, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("schema %q: required must be an array, got %T", schemaName, raw)
	}

	required := make([]string, 0, len(rawList))
	for _, entry := range rawList {
		field, ok := entry.(string)
		if !ok {
			return nil, fmt.Errorf("schema %q: required entries must be strings, got %T", schemaName, entry)
		}
		required = append(required, field)
	}
	sort.Strings(required)
	return required, nil
}

// References returns every schema reference retained during compilation,
// in deterministic order. Seeding uses this to establish creation order.
func (d *Definition) References() []string {
	seen := map[string]struct{}{}
	var refs []string

	add := func(p *Property) {
		if p != nil && p.Type == TypeReference {
			if _, dup := seen[p.Ref]; !dup {
				seen[p.Ref] = struct{}{}
				refs = append(refs, p.Ref)
			}
		}
	}

	fields := make([]string, 0, len(d.Properties))
	for field := range d.Properties {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		add(d.Properties[field])
	}
	add(d.Items)

	return refs
}
