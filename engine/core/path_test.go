package core_test

import (
	"testing"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	doc := map[string]any{
		"user": map[string]any{
			"name": "ada",
			"tags": []any{"admin", "ops"},
		},
		"count": 3,
		"blank": nil,
	}

	t.Run("Should resolve nested object paths", func(t *testing.T) {
		value, err := core.ResolvePath(doc, "user.name")
		require.NoError(t, err)
		assert.Equal(t, "ada", value)
	})
	t.Run("Should resolve array indices", func(t *testing.T) {
		value, err := core.ResolvePath(doc, "user.tags.1")
		require.NoError(t, err)
		assert.Equal(t, "ops", value)
	})
	t.Run("Should distinguish null values from missing paths", func(t *testing.T) {
		value, err := core.ResolvePath(doc, "blank")
		require.NoError(t, err)
		assert.Nil(t, value)

		_, err = core.ResolvePath(doc, "missing")
		assert.ErrorContains(t, err, "not found")
	})
	t.Run("Should return whole document for empty path", func(t *testing.T) {
		value, err := core.ResolvePath(doc, "")
		require.NoError(t, err)
		assert.Equal(t, doc, value)
	})
}

func TestResolvePathDefault(t *testing.T) {
	t.Run("Should fall back when path is absent", func(t *testing.T) {
		value := core.ResolvePathDefault(map[string]any{"a": 1}, "b", "fallback")
		assert.Equal(t, "fallback", value)
	})
	t.Run("Should return resolved value when present", func(t *testing.T) {
		value := core.ResolvePathDefault(map[string]any{"a": float64(1)}, "a", "fallback")
		assert.Equal(t, float64(1), value)
	})
}

func TestSetPath(t *testing.T) {
	t.Run("Should create intermediate maps", func(t *testing.T) {
		m := map[string]any{}
		require.NoError(t, core.SetPath(m, "a.b.c", 1))
		assert.Equal(t, map[string]any{"a": map[string]any{"b": map[string]any{"c": 1}}}, m)
	})
	t.Run("Should replace colliding scalar segments", func(t *testing.T) {
		m := map[string]any{"a": "scalar"}
		require.NoError(t, core.SetPath(m, "a.b", 2))
		assert.Equal(t, map[string]any{"a": map[string]any{"b": 2}}, m)
	})
	t.Run("Should reject empty paths and nil maps", func(t *testing.T) {
		assert.Error(t, core.SetPath(map[string]any{}, "", 1))
		assert.Error(t, core.SetPath(nil, "a", 1))
		assert.Error(t, core.SetPath(map[string]any{}, "a..b", 1))
	})
}
