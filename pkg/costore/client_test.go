package costore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.NotNil(t, client)
		assert.Equal(t, "test-instance", client.InstanceName())
	})

	t.Run("rejects empty instance name", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "instance name cannot be empty")
	})
}

func TestPing(t *testing.T) {
	client, _ := setupTestClient(t)
	err := client.Ping(context.Background())
	assert.NoError(t, err)
}

func TestCreate(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("creates map value with content-addressed id", func(t *testing.T) {
		v, err := client.Create(ctx, KindMap, "", map[string]any{"name": "rook"}, "")
		require.NoError(t, err)
		assert.True(t, IsID(v.ID))
		assert.Equal(t, KindMap, v.Kind)

		got, err := client.Read(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"name": "rook"}, got.Content)
	})

	t.Run("create is idempotent for a fixed nonce", func(t *testing.T) {
		a, err := client.Create(ctx, KindMap, "", map[string]any{"n": float64(1)}, "fixed-nonce")
		require.NoError(t, err)
		b, err := client.Create(ctx, KindMap, "", map[string]any{"n": float64(2)}, "fixed-nonce")
		require.NoError(t, err)

		assert.Equal(t, a.ID, b.ID)
		// First write wins.
		assert.Equal(t, map[string]any{"n": float64(1)}, b.Content)
	})

	t.Run("creates list value with initial items", func(t *testing.T) {
		v, err := client.Create(ctx, KindList, "", []any{"a", "b"}, "")
		require.NoError(t, err)

		got, err := client.Read(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, []any{"a", "b"}, got.Content)
	})

	t.Run("streams start empty", func(t *testing.T) {
		v, err := client.Create(ctx, KindStream, "", nil, "")
		require.NoError(t, err)

		got, err := client.Read(ctx, v.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Content)
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		_, err := client.Create(ctx, Kind("co-tree"), "", nil, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown container kind")
	})

	t.Run("publishes change event after creation", func(t *testing.T) {
		sub, err := client.SubscribeChanges(ctx)
		require.NoError(t, err)
		defer sub.Close()

		v, err := client.Create(ctx, KindMap, "", map[string]any{}, "")
		require.NoError(t, err)

		select {
		case ev := <-sub.Events():
			assert.Equal(t, v.ID, ev.ID)
			assert.Equal(t, "create", ev.Op)
		case <-time.After(1 * time.Second):
			t.Fatal("timeout waiting for change event")
		}
	})
}

func TestReadAndDelete(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("read of missing value reports not found", func(t *testing.T) {
		_, err := client.Read(ctx, "co_z000000000000000000000000")
		assert.True(t, IsNotFound(err))
	})

	t.Run("delete tombstones rather than removes", func(t *testing.T) {
		v, err := client.Create(ctx, KindMap, "", map[string]any{"x": true}, "")
		require.NoError(t, err)

		require.NoError(t, client.Delete(ctx, v.ID))

		_, err = client.Read(ctx, v.ID)
		assert.True(t, IsNotFound(err))

		// The raw record survives with its tombstone flag set.
		raw, err := client.GetRaw(ctx, v.ID)
		require.NoError(t, err)
		assert.True(t, raw.Deleted)
		assert.Equal(t, map[string]any{"x": true}, raw.Content)
	})
}

func TestUpdate(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("replaces map body", func(t *testing.T) {
		v, err := client.Create(ctx, KindMap, "", map[string]any{"a": "old"}, "")
		require.NoError(t, err)

		require.NoError(t, client.Update(ctx, v.ID, map[string]any{"a": "new", "b": float64(2)}))

		got, err := client.Read(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"a": "new", "b": float64(2)}, got.Content)
	})

	t.Run("rejects update of list value", func(t *testing.T) {
		v, err := client.Create(ctx, KindList, "", nil, "")
		require.NoError(t, err)

		err = client.Update(ctx, v.ID, map[string]any{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "map-kind")
	})
}

func TestAppendList(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("appends and deduplicates", func(t *testing.T) {
		v, err := client.Create(ctx, KindList, "", []any{"a"}, "")
		require.NoError(t, err)

		added, skipped, err := client.AppendList(ctx, v.ID, []any{"a", "b", "b"})
		require.NoError(t, err)
		assert.Equal(t, 1, added)
		assert.Equal(t, 2, skipped)

		got, err := client.Read(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, []any{"a", "b"}, got.Content)
	})

	t.Run("second append of same item is a no-op", func(t *testing.T) {
		v, err := client.Create(ctx, KindList, "", nil, "")
		require.NoError(t, err)

		added, skipped, err := client.AppendList(ctx, v.ID, []any{"only"})
		require.NoError(t, err)
		assert.Equal(t, 1, added)
		assert.Equal(t, 0, skipped)

		added, skipped, err = client.AppendList(ctx, v.ID, []any{"only"})
		require.NoError(t, err)
		assert.Equal(t, 0, added)
		assert.Equal(t, 1, skipped)

		got, err := client.Read(ctx, v.ID)
		require.NoError(t, err)
		assert.Len(t, got.Content, 1)
	})

	t.Run("rejects append to map value", func(t *testing.T) {
		v, err := client.Create(ctx, KindMap, "", nil, "")
		require.NoError(t, err)

		_, _, err = client.AppendList(ctx, v.ID, []any{"x"})
		assert.Error(t, err)
	})
}

func TestListBySchema(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	schemaID := DeriveID(KindMap, "", "schema-nonce")

	a, err := client.Create(ctx, KindMap, schemaID, map[string]any{"n": "a"}, "")
	require.NoError(t, err)
	b, err := client.Create(ctx, KindMap, schemaID, map[string]any{"n": "b"}, "")
	require.NoError(t, err)

	ids, err := client.ListBySchema(ctx, schemaID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	// Tombstoned values drop out of the index view.
	require.NoError(t, client.Delete(ctx, a.ID))
	ids, err = client.ListBySchema(ctx, schemaID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids)
}

func TestNameRegistry(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	v, err := client.Create(ctx, KindMap, "", nil, "")
	require.NoError(t, err)

	t.Run("registers and resolves a name", func(t *testing.T) {
		require.NoError(t, client.RegisterName(ctx, "schema/person", v.ID))

		id, err := client.ResolveHumanReadableKey(ctx, "schema/person")
		require.NoError(t, err)
		assert.Equal(t, v.ID, id)
	})

	t.Run("content ids resolve to themselves", func(t *testing.T) {
		id, err := client.ResolveHumanReadableKey(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, v.ID, id)
	})

	t.Run("unknown name reports not found", func(t *testing.T) {
		_, err := client.ResolveHumanReadableKey(ctx, "schema/nope")
		assert.True(t, IsNotFound(err))
	})

	t.Run("rejects registering a non-id target", func(t *testing.T) {
		err := client.RegisterName(ctx, "schema/bad", "not-an-id")
		assert.Error(t, err)
	})
}
