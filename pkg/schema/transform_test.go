package schema

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapResolver resolves references from a fixed map, standing in for the
// store's name registry.
type mapResolver map[string]string

func (r mapResolver) ResolveHumanReadableKey(_ context.Context, ref string) (string, error) {
	if id, ok := r[ref]; ok {
		return id, nil
	}
	return "", redis.Nil
}

func TestTransformForSeeding(t *testing.T) {
	ctx := context.Background()
	resolver := mapResolver{
		"schema/task":   "co_zTASKTASKTASKTASKTASKTASK",
		"schema/person": "co_zPERSONPERSONPERSONPERSON",
		"machine/item":  "co_zMACHINEMACHINEMACHINE000",
	}

	t.Run("rewrites top-level schema references", func(t *testing.T) {
		doc := map[string]any{
			"$schema": "schema/task",
			"title":   "untouched",
		}

		out, err := TransformForSeeding(ctx, doc, resolver)
		require.NoError(t, err)
		assert.Equal(t, "co_zTASKTASKTASKTASKTASKTASK", out["$schema"])
		assert.Equal(t, "untouched", out["title"])
	})

	t.Run("rewrites references inside nested query objects", func(t *testing.T) {
		doc := map[string]any{
			"context": map[string]any{
				"tasks": map[string]any{
					"schema": "schema/task",
					"filter": map[string]any{"done": false},
				},
			},
		}

		out, err := TransformForSeeding(ctx, doc, resolver)
		require.NoError(t, err)

		query := out["context"].(map[string]any)["tasks"].(map[string]any)
		assert.Equal(t, "co_zTASKTASKTASKTASKTASKTASK", query["schema"])
		assert.Equal(t, map[string]any{"done": false}, query["filter"])
	})

	t.Run("rewrites references inside tool payloads and machine refs", func(t *testing.T) {
		doc := map[string]any{
			"machine": "machine/item",
			"states": map[string]any{
				"creating": map[string]any{
					"entry": []any{
						map[string]any{
							"tool": "operation",
							"payload": map[string]any{
								"op":     "create",
								"target": "schema/person",
							},
						},
					},
				},
			},
		}

		out, err := TransformForSeeding(ctx, doc, resolver)
		require.NoError(t, err)
		assert.Equal(t, "co_zMACHINEMACHINEMACHINE000", out["machine"])

		entry := out["states"].(map[string]any)["creating"].(map[string]any)["entry"].([]any)
		payload := entry[0].(map[string]any)["payload"].(map[string]any)
		assert.Equal(t, "co_zPERSONPERSONPERSONPERSON", payload["target"])
	})

	t.Run("state names in machine transitions are not references", func(t *testing.T) {
		doc := map[string]any{
			"initial": "idle",
			"states": map[string]any{
				"idle": map[string]any{
					"on": map[string]any{
						"CREATE": map[string]any{"target": "creating"},
					},
				},
				"creating": map[string]any{},
			},
		}

		out, err := TransformForSeeding(ctx, doc, resolver)
		require.NoError(t, err)
		transition := out["states"].(map[string]any)["idle"].(map[string]any)["on"].(map[string]any)["CREATE"].(map[string]any)
		assert.Equal(t, "creating", transition["target"])
	})

	t.Run("already resolved references pass through verbatim", func(t *testing.T) {
		doc := map[string]any{"$schema": "co_zTASKTASKTASKTASKTASKTASK"}

		out, err := TransformForSeeding(ctx, doc, resolver)
		require.NoError(t, err)
		assert.Equal(t, "co_zTASKTASKTASKTASKTASKTASK", out["$schema"])
	})

	t.Run("unresolvable reference is a hard failure", func(t *testing.T) {
		doc := map[string]any{"$schema": "schema/ghost"}

		_, err := TransformForSeeding(ctx, doc, resolver)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema/ghost")
	})

	t.Run("documents without references are unchanged", func(t *testing.T) {
		doc := map[string]any{
			"title": "plain",
			"tags":  []any{"a", "b"},
			"inner": map[string]any{"n": float64(1)},
		}

		out, err := TransformForSeeding(ctx, doc, resolver)
		require.NoError(t, err)
		assert.Equal(t, doc, out)
	})

	t.Run("does not mutate the input document", func(t *testing.T) {
		doc := map[string]any{"$schema": "schema/task"}

		_, err := TransformForSeeding(ctx, doc, resolver)
		require.NoError(t, err)
		assert.Equal(t, "schema/task", doc["$schema"])
	})
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	def := compileTestSchema(t, map[string]any{
		"$id":  "schema/task",
		"type": "co-map",
	})

	t.Run("rejects registration without a content id", func(t *testing.T) {
		err := reg.Register(def)
		assert.Error(t, err)
	})

	t.Run("registers and looks up by id and name", func(t *testing.T) {
		def.ID = "co_zTASKTASKTASKTASKTASKTASK"
		require.NoError(t, reg.Register(def))

		got, ok := reg.Lookup(def.ID)
		require.True(t, ok)
		assert.Equal(t, def, got)

		id, ok := reg.ResolveName("schema/task")
		require.True(t, ok)
		assert.Equal(t, def.ID, id)

		assert.Equal(t, 1, reg.Len())
	})
}
