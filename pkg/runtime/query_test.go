package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/warren/pkg/costore"
)

func TestAsQuery(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  bool
	}{
		{"schema only", map[string]any{"schema": "schema/task"}, true},
		{"schema and filter", map[string]any{"schema": "schema/task", "filter": map[string]any{"status": "open"}}, true},
		{"missing schema", map[string]any{"filter": map[string]any{}}, false},
		{"extra keys", map[string]any{"schema": "schema/task", "limit": float64(5)}, false},
		{"filter not a map", map[string]any{"schema": "schema/task", "filter": "status=open"}, false},
		{"plain string", "schema/task", false},
		{"empty schema", map[string]any{"schema": ""}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := AsQuery(tc.value)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestEvaluateQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("dynamic filter values resolve against the scope", func(t *testing.T) {
		r := setupTestRouter(t)
		seedTaskSchema(t, r)

		_, err := r.Execute(ctx, Operation{Op: OpCreate, Schema: "schema/task", Data: map[string]any{"title": "a", "status": "open"}})
		require.NoError(t, err)
		_, err = r.Execute(ctx, Operation{Op: OpCreate, Schema: "schema/task", Data: map[string]any{"title": "b", "status": "done"}})
		require.NoError(t, err)

		q := &Query{
			Schema: "schema/task",
			Filter: map[string]any{"status": map[string]any{"$ctx": "wanted"}},
		}
		result, err := r.EvaluateQuery(ctx, q, map[string]any{"wanted": "done"})
		require.NoError(t, err)

		rows := result.([]map[string]any)
		require.Len(t, rows, 1)
		assert.Equal(t, "b", rows[0]["title"])
	})

	t.Run("id-only filter is a point lookup", func(t *testing.T) {
		r := setupTestRouter(t)
		seedTaskSchema(t, r)

		created, err := r.Execute(ctx, Operation{Op: OpCreate, Schema: "schema/task", Data: map[string]any{"title": "target"}})
		require.NoError(t, err)
		id := created.(*costore.CoValue).ID

		q := &Query{Schema: "schema/task", Filter: map[string]any{"id": id}}
		result, err := r.EvaluateQuery(ctx, q, nil)
		require.NoError(t, err)

		// A single row, not a one-element list.
		row, ok := result.(map[string]any)
		require.True(t, ok, "expected a row, got %T", result)
		assert.Equal(t, "target", row["title"])
		assert.Equal(t, id, row["id"])
	})

	t.Run("point lookup of an absent id is nil", func(t *testing.T) {
		r := setupTestRouter(t)
		seedTaskSchema(t, r)

		q := &Query{Schema: "schema/task", Filter: map[string]any{"id": "co_z000000000000000000000000"}}
		result, err := r.EvaluateQuery(ctx, q, nil)
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("unknown dependency field is an error", func(t *testing.T) {
		r := setupTestRouter(t)
		seedTaskSchema(t, r)

		q := &Query{
			Schema: "schema/task",
			Filter: map[string]any{"status": map[string]any{"$ctx": "nope"}},
		}
		_, err := r.EvaluateQuery(ctx, q, map[string]any{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown field "nope"`)
	})
}

func TestWatchQuery(t *testing.T) {
	r := setupTestRouter(t)
	ctx := context.Background()
	seedTaskSchema(t, r)

	q := &Query{Schema: "schema/task", Filter: map[string]any{"status": "open"}}
	st, err := r.WatchQuery(ctx, q, nil)
	require.NoError(t, err)
	defer st.Close()
	assert.Empty(t, st.Get().([]map[string]any))

	_, err = r.Execute(ctx, Operation{Op: OpCreate, Schema: "schema/task", Data: map[string]any{"title": "a", "status": "open"}})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(st.Get().([]map[string]any)) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHydrateContext(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces query fields and keeps literals", func(t *testing.T) {
		r := setupTestRouter(t)
		seedTaskSchema(t, r)

		_, err := r.Execute(ctx, Operation{Op: OpCreate, Schema: "schema/task", Data: map[string]any{"title": "a", "status": "open"}})
		require.NoError(t, err)

		raw := map[string]any{
			"wanted": "open",
			"tasks": map[string]any{
				"schema": "schema/task",
				"filter": map[string]any{"status": map[string]any{"$ctx": "wanted"}},
			},
		}
		hydrated, err := r.HydrateContext(ctx, raw)
		require.NoError(t, err)

		assert.Equal(t, "open", hydrated["wanted"])
		rows := hydrated["tasks"].([]map[string]any)
		require.Len(t, rows, 1)
		assert.Equal(t, "a", rows[0]["title"])

		// The raw context document is untouched.
		_, stillQuery := AsQuery(raw["tasks"])
		assert.True(t, stillQuery)
	})

	t.Run("unresolvable query dependencies are an error", func(t *testing.T) {
		r := setupTestRouter(t)
		seedTaskSchema(t, r)

		raw := map[string]any{
			"tasks": map[string]any{
				"schema": "schema/task",
				"filter": map[string]any{"status": map[string]any{"$ctx": "never_set"}},
			},
		}
		_, err := r.HydrateContext(ctx, raw)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tasks")
	})
}
