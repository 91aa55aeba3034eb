package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/warren/pkg/costore"
)

func TestReadSingle(t *testing.T) {
	ctx := context.Background()

	t.Run("returns a live store that tracks updates", func(t *testing.T) {
		r := setupTestRouter(t)
		seedTaskSchema(t, r)

		created, err := r.Execute(ctx, Operation{
			Op:     OpCreate,
			Schema: "schema/task",
			Data:   map[string]any{"title": "draft", "status": "open"},
		})
		require.NoError(t, err)
		id := created.(*costore.CoValue).ID

		result, err := r.Execute(ctx, Operation{Op: OpRead, Key: id})
		require.NoError(t, err)
		st := result.(*Store)
		defer st.Close()

		body := st.Get().(map[string]any)
		assert.Equal(t, "open", body["status"])

		_, err = r.Execute(ctx, Operation{
			Op:   OpUpdate,
			Key:  id,
			Data: map[string]any{"status": "done"},
		})
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			body, ok := st.Get().(map[string]any)
			return ok && body["status"] == "done"
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("unresolvable key reads as null, not an error", func(t *testing.T) {
		r := setupTestRouter(t)

		result, err := r.Execute(ctx, Operation{Op: OpRead, Key: "no/such/thing"})
		require.NoError(t, err)
		st := result.(*Store)
		defer st.Close()
		assert.Nil(t, st.Get())
	})

	t.Run("deleted value reads as null", func(t *testing.T) {
		r := setupTestRouter(t)
		seedTaskSchema(t, r)

		created, err := r.Execute(ctx, Operation{
			Op:     OpCreate,
			Schema: "schema/task",
			Data:   map[string]any{"title": "doomed"},
		})
		require.NoError(t, err)
		id := created.(*costore.CoValue).ID

		result, err := r.Execute(ctx, Operation{Op: OpRead, Key: id})
		require.NoError(t, err)
		st := result.(*Store)
		defer st.Close()
		require.NotNil(t, st.Get())

		_, err = r.Execute(ctx, Operation{Op: OpDelete, Key: id})
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			return st.Get() == nil
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestReadBatch(t *testing.T) {
	r := setupTestRouter(t)
	ctx := context.Background()
	seedTaskSchema(t, r)

	a, err := r.Execute(ctx, Operation{Op: OpCreate, Schema: "schema/task", Data: map[string]any{"title": "a"}})
	require.NoError(t, err)
	b, err := r.Execute(ctx, Operation{Op: OpCreate, Schema: "schema/task", Data: map[string]any{"title": "b"}})
	require.NoError(t, err)
	idA := a.(*costore.CoValue).ID
	idB := b.(*costore.CoValue).ID

	result, err := r.Execute(ctx, Operation{Op: OpRead, Keys: []string{idA, idB, "no/such/thing"}})
	require.NoError(t, err)
	st := result.(*Store)
	defer st.Close()

	// Unresolvable members are dropped; resolvable ones are keyed by id.
	batch := st.Get().(map[string]any)
	require.Len(t, batch, 2)
	assert.Equal(t, "a", batch[idA].(map[string]any)["title"])
	assert.Equal(t, "b", batch[idB].(map[string]any)["title"])
}

func TestReadCollection(t *testing.T) {
	ctx := context.Background()

	t.Run("filters rows and injects ids", func(t *testing.T) {
		r := setupTestRouter(t)
		seedTaskSchema(t, r)

		open, err := r.Execute(ctx, Operation{Op: OpCreate, Schema: "schema/task", Data: map[string]any{"title": "a", "status": "open"}})
		require.NoError(t, err)
		_, err = r.Execute(ctx, Operation{Op: OpCreate, Schema: "schema/task", Data: map[string]any{"title": "b", "status": "done"}})
		require.NoError(t, err)

		result, err := r.Execute(ctx, Operation{
			Op:     OpRead,
			Schema: "schema/task",
			Filter: map[string]any{"status": "open"},
		})
		require.NoError(t, err)
		st := result.(*Store)
		defer st.Close()

		rows := st.Get().([]map[string]any)
		require.Len(t, rows, 1)
		assert.Equal(t, "a", rows[0]["title"])
		assert.Equal(t, open.(*costore.CoValue).ID, rows[0]["id"])
	})

	t.Run("tracks membership changes", func(t *testing.T) {
		r := setupTestRouter(t)
		seedTaskSchema(t, r)

		result, err := r.Execute(ctx, Operation{Op: OpRead, Schema: "schema/task"})
		require.NoError(t, err)
		st := result.(*Store)
		defer st.Close()
		assert.Empty(t, st.Get().([]map[string]any))

		created, err := r.Execute(ctx, Operation{Op: OpCreate, Schema: "schema/task", Data: map[string]any{"title": "new"}})
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			return len(st.Get().([]map[string]any)) == 1
		}, 2*time.Second, 10*time.Millisecond)

		_, err = r.Execute(ctx, Operation{Op: OpDelete, Key: created.(*costore.CoValue).ID})
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			return len(st.Get().([]map[string]any)) == 0
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("unknown schema reads as an empty collection", func(t *testing.T) {
		r := setupTestRouter(t)

		result, err := r.Execute(ctx, Operation{Op: OpRead, Schema: "schema/never"})
		require.NoError(t, err)
		st := result.(*Store)
		defer st.Close()
		assert.Empty(t, st.Get().([]map[string]any))
	})
}

func TestReadSubscription(t *testing.T) {
	r := setupTestRouter(t)
	ctx := context.Background()
	seedTaskSchema(t, r)

	created, err := r.Execute(ctx, Operation{Op: OpCreate, Schema: "schema/task", Data: map[string]any{"title": "draft", "status": "open"}})
	require.NoError(t, err)
	id := created.(*costore.CoValue).ID

	result, err := r.Execute(ctx, Operation{Op: OpRead, Key: id})
	require.NoError(t, err)
	st := result.(*Store)

	ch, cancel := st.Subscribe()

	_, err = r.Execute(ctx, Operation{Op: OpUpdate, Key: id, Data: map[string]any{"status": "done"}})
	require.NoError(t, err)

	select {
	case v := <-ch:
		assert.Equal(t, "done", v.(map[string]any)["status"])
	case <-time.After(2 * time.Second):
		t.Fatal("no republication after update")
	}

	// Last unsubscribe tears the store down.
	cancel()
	assert.Equal(t, 0, st.SubscriberCount())
}
