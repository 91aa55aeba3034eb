package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/warren/pkg/costore"
)

// A bundle with mutually referencing schemas plus data documents that
// reference the schemas and each other by human-readable name.
func crossReferencingBundle() []map[string]any {
	return []map[string]any{
		{
			"$id":  "schema/person",
			"type": "co-map",
			"properties": map[string]any{
				"name":     map[string]any{"type": "string"},
				"top_task": map[string]any{"$co": "schema/task"},
			},
			"required": []any{"name"},
		},
		{
			"$id":  "schema/task",
			"type": "co-map",
			"properties": map[string]any{
				"title":    map[string]any{"type": "string"},
				"assignee": map[string]any{"$co": "schema/person"},
			},
			"required": []any{"title"},
		},
		{
			"$id":     "person/ada",
			"$schema": "schema/person",
			"name":    "Ada",
		},
		{
			"$id":      "task/report",
			"$schema":  "schema/task",
			"title":    "write the report",
			"assignee": map[string]any{"$co": "person/ada"},
		},
	}
}

func TestExecuteSeed(t *testing.T) {
	ctx := context.Background()

	t.Run("seeds schemas with circular references", func(t *testing.T) {
		r := setupTestRouter(t)

		result, err := r.Execute(ctx, Operation{Op: OpSeed, Documents: crossReferencingBundle()})
		require.NoError(t, err)
		sr := result.(*SeedResult)
		assert.Equal(t, 4, sr.Created)
		assert.Equal(t, 0, sr.Skipped)

		personID := sr.IDs["schema/person"]
		taskID := sr.IDs["schema/task"]
		require.True(t, costore.IsID(personID))
		require.True(t, costore.IsID(taskID))

		// Each stored schema carries the other's content id, not its name.
		v, err := r.Store().Read(ctx, personID)
		require.NoError(t, err)
		props := v.Content.(map[string]any)["properties"].(map[string]any)
		topTask := props["top_task"].(map[string]any)
		assert.Equal(t, taskID, topTask["$co"])
	})

	t.Run("data documents carry resolved schema references", func(t *testing.T) {
		r := setupTestRouter(t)

		result, err := r.Execute(ctx, Operation{Op: OpSeed, Documents: crossReferencingBundle()})
		require.NoError(t, err)
		sr := result.(*SeedResult)

		v, err := r.Store().Read(ctx, sr.IDs["person/ada"])
		require.NoError(t, err)
		assert.Equal(t, sr.IDs["schema/person"], v.Schema)
		// Seed envelope fields are not part of the stored body.
		body := v.Content.(map[string]any)
		assert.Equal(t, map[string]any{"name": "Ada"}, body)

		// Cross-reference literals collapse to the target's content id.
		task, err := r.Store().Read(ctx, sr.IDs["task/report"])
		require.NoError(t, err)
		assert.Equal(t, sr.IDs["person/ada"], task.Content.(map[string]any)["assignee"])
	})

	t.Run("re-seeding the same bundle is a no-op", func(t *testing.T) {
		r := setupTestRouter(t)

		first, err := r.Execute(ctx, Operation{Op: OpSeed, Documents: crossReferencingBundle()})
		require.NoError(t, err)
		second, err := r.Execute(ctx, Operation{Op: OpSeed, Documents: crossReferencingBundle()})
		require.NoError(t, err)

		sr := second.(*SeedResult)
		assert.Equal(t, 0, sr.Created)
		assert.Equal(t, 4, sr.Skipped)
		assert.Equal(t, first.(*SeedResult).IDs, sr.IDs)
	})

	t.Run("dangling reference fails the bundle", func(t *testing.T) {
		r := setupTestRouter(t)

		_, err := r.Execute(ctx, Operation{Op: OpSeed, Documents: []map[string]any{
			{
				"$id":     "task/orphan",
				"$schema": "schema/never-seeded",
				"title":   "x",
			},
		}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not resolve")
	})

	t.Run("schema document without $id is rejected", func(t *testing.T) {
		r := setupTestRouter(t)

		_, err := r.Execute(ctx, Operation{Op: OpSeed, Documents: []map[string]any{
			{"type": "co-map"},
		}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "$id")
	})
}
