package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/warren/pkg/costore"
	"github.com/dyluth/warren/pkg/schema"
)

// executeSeed ingests a bundle of human-authored documents: schema documents
// (recognized by a container-kind "type") and data documents (recognized by
// a "$schema" reference). Human-readable references between documents are
// rewritten to content ids before anything is persisted.
//
// Schemas are seeded in two passes so cyclic $co references resolve: first
// every schema gets its id and name registered, then each schema's content
// is transformed and written. Seeding is idempotent - re-running a bundle
// skips documents whose names are already registered.
func (r *Router) executeSeed(ctx context.Context, op Operation) (any, error) {
	if len(op.Documents) == 0 {
		return nil, missingParameterError(OpSeed, "documents")
	}

	var schemaDocs, dataDocs []map[string]any
	for i, doc := range op.Documents {
		if doc == nil {
			return nil, fmt.Errorf("seed document %d is null", i)
		}
		if rawKind, ok := doc["type"].(string); ok && strings.HasPrefix(rawKind, "co-") {
			schemaDocs = append(schemaDocs, doc)
		} else {
			dataDocs = append(dataDocs, doc)
		}
	}

	result := &SeedResult{IDs: make(map[string]string)}

	// Pass 1: reserve an id and a name for every schema, content deferred.
	for _, doc := range schemaDocs {
		name, _ := doc["$id"].(string)
		if name == "" {
			return nil, fmt.Errorf("seed: schema document missing $id")
		}

		if id, err := r.store.ResolveHumanReadableKey(ctx, name); err == nil {
			result.IDs[name] = id
			result.Skipped++
			continue
		} else if !costore.IsNotFound(err) {
			return nil, err
		}

		v, err := r.store.Create(ctx, costore.KindMap, "", map[string]any{}, "schema:"+name)
		if err != nil {
			return nil, fmt.Errorf("seed: failed to create schema %q: %w", name, err)
		}
		if err := r.store.RegisterName(ctx, name, v.ID); err != nil {
			return nil, err
		}
		result.IDs[name] = v.ID
		result.Created++
	}

	// Pass 2: with every schema name resolvable, transform and persist the
	// schema bodies, then compile them into the registry.
	for _, doc := range schemaDocs {
		name := doc["$id"].(string)
		id := result.IDs[name]

		transformed, err := schema.TransformForSeeding(ctx, doc, r.store)
		if err != nil {
			return nil, fmt.Errorf("seed: schema %q: %w", name, err)
		}
		if err := r.store.Update(ctx, id, transformed); err != nil {
			return nil, err
		}

		def, err := schema.Compile(transformed)
		if err != nil {
			return nil, fmt.Errorf("seed: schema %q: %w", name, err)
		}
		def.ID = id
		if err := r.registry.Register(def); err != nil {
			return nil, err
		}
	}

	// Pass 3: data documents, validated through the ordinary create path.
	for i, doc := range dataDocs {
		name, _ := doc["$id"].(string)

		if name != "" {
			if id, err := r.store.ResolveHumanReadableKey(ctx, name); err == nil {
				result.IDs[name] = id
				result.Skipped++
				continue
			} else if !costore.IsNotFound(err) {
				return nil, err
			}
		}

		transformed, err := schema.TransformForSeeding(ctx, doc, r.store)
		if err != nil {
			return nil, fmt.Errorf("seed: document %d: %w", i, err)
		}

		createOp := Operation{Op: OpCreate, Name: name}
		if name != "" {
			createOp.Nonce = "seed:" + name
		}

		schemaID, _ := transformed["$schema"].(string)
		createOp.Schema = schemaID

		kind := costore.KindMap
		if schemaID != "" {
			def, err := r.loadDefinition(ctx, schemaID)
			if err != nil {
				return nil, fmt.Errorf("seed: document %d: %w", i, err)
			}
			kind = def.Kind
		}
		createOp.Kind = string(kind)

		switch kind {
		case costore.KindMap:
			createOp.Data = stripSeedMetadata(transformed)
		case costore.KindList:
			items, _ := transformed["items"].([]any)
			createOp.Items = items
		case costore.KindStream:
			// Streams start empty; entries arrive through append.
		}

		created, err := r.executeCreate(ctx, createOp)
		if err != nil {
			return nil, fmt.Errorf("seed: document %d: %w", i, err)
		}
		if name != "" {
			result.IDs[name] = created.(*costore.CoValue).ID
		}
		result.Created++
	}

	return result, nil
}

// stripSeedMetadata drops the seed-only envelope fields from a document
// body; everything else is the persisted content.
func stripSeedMetadata(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "$id" || k == "$schema" {
			continue
		}
		out[k] = v
	}
	return out
}
