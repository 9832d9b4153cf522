package builtin_test

import (
	"context"
	"testing"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/task/builtin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoin_Concat(t *testing.T) {
	t.Run("Should join items into a string with the configured separator", func(t *testing.T) {
		join := builtin.NewJoin()
		in, _ := newInput(core.Input{
			"data":      []any{"a", "b", "c"},
			"separator": "-",
		})
		out, err := join.Execute(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "a-b-c", out["result"])
		assert.Equal(t, 3, out["count"])
	})

	t.Run("Should default the separator to a comma", func(t *testing.T) {
		join := builtin.NewJoin()
		in, _ := newInput(core.Input{"data": []any{"x", "y"}})
		out, err := join.Execute(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "x,y", out["result"])
	})

	t.Run("Should stringify non-string items naturally", func(t *testing.T) {
		join := builtin.NewJoin()
		in, _ := newInput(core.Input{
			"data":      []any{1, 2.5, true},
			"separator": " ",
		})
		out, err := join.Execute(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "1 2.5 true", out["result"])
	})

	t.Run("Should fall back to payload items when no data is configured", func(t *testing.T) {
		join := builtin.NewJoin()
		in, _ := newInput(core.Input{})
		in.Payload = core.Output{"items": []any{"p", "q"}}
		out, err := join.Execute(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "p,q", out["result"])
	})
}

func TestJoin_Keyed(t *testing.T) {
	left := []any{
		map[string]any{"id": 1, "name": "Ada"},
		map[string]any{"id": 2, "name": "Grace"},
		map[string]any{"id": 3, "name": "Alan"},
	}
	right := []any{
		map[string]any{"id": 1, "score": 95},
		map[string]any{"id": 2, "score": 87},
	}

	t.Run("Should inner-join two arrays on the key field", func(t *testing.T) {
		join := builtin.NewJoin()
		in, _ := newInput(core.Input{
			"left":    left,
			"right":   right,
			"leftKey": "id",
		})
		out, err := join.Execute(context.Background(), in)
		require.NoError(t, err)
		items, ok := out["items"].([]any)
		require.True(t, ok)
		require.Len(t, items, 2)
		first, ok := items[0].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "Ada", first["name"])
		assert.Equal(t, 95, first["score"])
		assert.Equal(t, 2, out["count"])
	})

	t.Run("Should keep unmatched left rows on a left join", func(t *testing.T) {
		join := builtin.NewJoin()
		in, _ := newInput(core.Input{
			"left":     left,
			"right":    right,
			"leftKey":  "id",
			"joinType": "left",
		})
		out, err := join.Execute(context.Background(), in)
		require.NoError(t, err)
		items, ok := out["items"].([]any)
		require.True(t, ok)
		require.Len(t, items, 3)
		last, ok := items[2].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "Alan", last["name"])
		_, hasScore := last["score"]
		assert.False(t, hasScore)
	})

	t.Run("Should join on a different right key when configured", func(t *testing.T) {
		join := builtin.NewJoin()
		in, _ := newInput(core.Input{
			"left": []any{
				map[string]any{"userId": 7, "name": "Ada"},
			},
			"right": []any{
				map[string]any{"id": 7, "role": "admin"},
			},
			"leftKey":  "userId",
			"rightKey": "id",
		})
		out, err := join.Execute(context.Background(), in)
		require.NoError(t, err)
		items := out["items"].([]any)
		require.Len(t, items, 1)
		row := items[0].(map[string]any)
		assert.Equal(t, "admin", row["role"])
	})

	t.Run("Should keep the first right occurrence on duplicate keys", func(t *testing.T) {
		join := builtin.NewJoin()
		in, _ := newInput(core.Input{
			"left": []any{map[string]any{"id": 1}},
			"right": []any{
				map[string]any{"id": 1, "rank": "first"},
				map[string]any{"id": 1, "rank": "second"},
			},
			"leftKey": "id",
		})
		out, err := join.Execute(context.Background(), in)
		require.NoError(t, err)
		items := out["items"].([]any)
		require.Len(t, items, 1)
		assert.Equal(t, "first", items[0].(map[string]any)["rank"])
	})

	t.Run("Should prefer left-side values on field collisions", func(t *testing.T) {
		join := builtin.NewJoin()
		in, _ := newInput(core.Input{
			"left": []any{
				map[string]any{"id": 1, "status": "left"},
			},
			"right": []any{
				map[string]any{"id": 1, "status": "right"},
			},
			"leftKey": "id",
		})
		out, err := join.Execute(context.Background(), in)
		require.NoError(t, err)
		items := out["items"].([]any)
		require.Len(t, items, 1)
		assert.Equal(t, "left", items[0].(map[string]any)["status"])
	})

	t.Run("Should drop left rows missing the key on an inner join", func(t *testing.T) {
		join := builtin.NewJoin()
		in, _ := newInput(core.Input{
			"left": []any{
				map[string]any{"name": "no key"},
				map[string]any{"id": 1, "name": "keyed"},
			},
			"right":   right,
			"leftKey": "id",
		})
		out, err := join.Execute(context.Background(), in)
		require.NoError(t, err)
		items := out["items"].([]any)
		require.Len(t, items, 1)
		assert.Equal(t, "keyed", items[0].(map[string]any)["name"])
	})

	t.Run("Should resolve sides from paths", func(t *testing.T) {
		join := builtin.NewJoin()
		in, fc := newInput(core.Input{
			"leftPath":  "vars.users",
			"rightPath": "vars.scores",
			"leftKey":   "id",
		})
		fc.vars["users"] = []any{map[string]any{"id": 1, "name": "Ada"}}
		fc.vars["scores"] = []any{map[string]any{"id": 1, "score": 95}}
		out, err := join.Execute(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, 1, out["count"])
	})

	t.Run("Should error when one side is missing", func(t *testing.T) {
		join := builtin.NewJoin()
		in, _ := newInput(core.Input{
			"left":    left,
			"leftKey": "id",
		})
		_, err := join.Execute(context.Background(), in)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "right side")
	})
}

func TestJoin_Validate(t *testing.T) {
	t.Run("Should accept a plain concat config", func(t *testing.T) {
		result := builtin.NewJoin().Validate(core.Input{"data": []any{"a"}})
		assert.True(t, result.Valid)
	})

	t.Run("Should require leftKey in keyed mode", func(t *testing.T) {
		result := builtin.NewJoin().Validate(core.Input{"left": []any{}, "right": []any{}})
		require.False(t, result.Valid)
		assert.Contains(t, result.Errors[0], "leftKey")
	})

	t.Run("Should reject an unknown join type", func(t *testing.T) {
		result := builtin.NewJoin().Validate(core.Input{
			"left":     []any{},
			"right":    []any{},
			"leftKey":  "id",
			"joinType": "outer",
		})
		require.False(t, result.Valid)
		assert.Contains(t, result.Errors[0], "outer")
	})
}
