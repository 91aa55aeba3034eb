package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceholder(t *testing.T) {
	cases := []struct {
		name  string
		value any
		field string
		want  bool
	}{
		{"simple placeholder", map[string]any{"$ctx": "status"}, "status", true},
		{"extra keys disqualify", map[string]any{"$ctx": "status", "x": float64(1)}, "", false},
		{"non-string field", map[string]any{"$ctx": float64(1)}, "", false},
		{"empty field", map[string]any{"$ctx": ""}, "", false},
		{"plain string", "status", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			field, ok := Placeholder(tc.value)
			assert.Equal(t, tc.want, ok)
			assert.Equal(t, tc.field, field)
		})
	}
}

func TestHasPendingExpressions(t *testing.T) {
	assert.False(t, HasPendingExpressions(map[string]any{"type": "CREATE", "title": "x"}))
	assert.True(t, HasPendingExpressions(map[string]any{"title": map[string]any{"$ctx": "draft"}}))
	assert.True(t, HasPendingExpressions(map[string]any{
		"payload": []any{map[string]any{"nested": map[string]any{"$anything": true}}},
	}))
	assert.False(t, HasPendingExpressions([]any{"a", float64(1), nil}))
}

func TestResolveExpressions(t *testing.T) {
	scope := map[string]any{"status": "open", "count": float64(3)}

	t.Run("resolves nested placeholders", func(t *testing.T) {
		out, err := ResolveExpressions(map[string]any{
			"top":  map[string]any{"$ctx": "status"},
			"deep": map[string]any{"list": []any{map[string]any{"$ctx": "count"}}},
		}, scope)
		require.NoError(t, err)
		assert.Equal(t, "open", out["top"])
		assert.Equal(t, []any{float64(3)}, out["deep"].(map[string]any)["list"])
	})

	t.Run("unknown field names the path", func(t *testing.T) {
		_, err := ResolveExpressions(map[string]any{
			"a": map[string]any{"b": map[string]any{"$ctx": "missing"}},
		}, scope)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "$.a.b")
		assert.Contains(t, err.Error(), `"missing"`)
	})

	t.Run("input is not mutated", func(t *testing.T) {
		in := map[string]any{"v": map[string]any{"$ctx": "status"}}
		_, err := ResolveExpressions(in, scope)
		require.NoError(t, err)
		_, still := Placeholder(in["v"])
		assert.True(t, still)
	})
}
