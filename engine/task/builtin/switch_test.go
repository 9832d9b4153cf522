package builtin_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/task/builtin"
)

func TestSwitch_Execute(t *testing.T) {
	ctx := context.Background()
	sw := builtin.NewSwitch()

	t.Run("Should match a numeric value against a range case", func(t *testing.T) {
		in, _ := newInput(core.Input{
			"switchValue": 5,
			"cases": []any{
				map[string]any{"matchType": "range", "rangeMin": 0, "rangeMax": 10, "output": "low"},
				map[string]any{"matchType": "range", "rangeMin": 11, "rangeMax": 100, "output": "high"},
			},
		})
		out, err := sw.Execute(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, "low", out["output"])
		assert.Equal(t, true, out["matched"])
		assert.Equal(t, "low", sw.SelectedPort(out))
	})
	t.Run("Should pick the first matching case", func(t *testing.T) {
		in, _ := newInput(core.Input{
			"switchValue": "alpha",
			"cases": []any{
				map[string]any{"value": "alpha", "output": "first"},
				map[string]any{"value": "alpha", "output": "second"},
			},
		})
		out, err := sw.Execute(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, "first", out["output"])
	})
	t.Run("Should resolve the value from a field path", func(t *testing.T) {
		in, _ := newInput(core.Input{
			"switchField": "order.tier",
			"cases": []any{
				map[string]any{"value": "gold", "output": "priority"},
			},
			"defaultCase": "standard",
		})
		in.Payload = core.Output{"order": map[string]any{"tier": "gold"}}

		out, err := sw.Execute(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, "priority", out["output"])
	})
	t.Run("Should match contains and regex cases", func(t *testing.T) {
		in, _ := newInput(core.Input{
			"switchValue": "order-2026-0042",
			"cases": []any{
				map[string]any{"matchType": "regex", "value": `^order-\d{4}-\d+$`, "output": "order"},
			},
		})
		out, err := sw.Execute(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, "order", out["output"])

		in, _ = newInput(core.Input{
			"switchValue": "hello world",
			"cases": []any{
				map[string]any{"matchType": "contains", "value": "world", "output": "greeting"},
			},
		})
		out, err = sw.Execute(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, "greeting", out["output"])
	})
	t.Run("Should fall back to the default case", func(t *testing.T) {
		in, _ := newInput(core.Input{
			"switchValue": "unknown",
			"cases": []any{
				map[string]any{"value": "alpha", "output": "first"},
			},
			"defaultCase": "fallback",
		})
		out, err := sw.Execute(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, "fallback", out["output"])
		assert.Equal(t, false, out["matched"])
	})
	t.Run("Should fail when nothing matches and no default exists", func(t *testing.T) {
		in, _ := newInput(core.Input{
			"switchValue": "unknown",
			"cases": []any{
				map[string]any{"value": "alpha", "output": "first"},
			},
		})
		_, err := sw.Execute(ctx, in)
		assert.ErrorContains(t, err, "no case matched")
	})
	t.Run("Should fail when the switch field is absent", func(t *testing.T) {
		in, _ := newInput(core.Input{
			"switchField": "missing.path",
			"cases":       []any{map[string]any{"value": 1, "output": "one"}},
		})
		in.Payload = core.Output{"present": true}

		_, err := sw.Execute(ctx, in)
		assert.ErrorContains(t, err, "not found")
	})
}

func TestSwitch_Validate(t *testing.T) {
	sw := builtin.NewSwitch()

	t.Run("Should require at least one case", func(t *testing.T) {
		result := sw.Validate(core.Input{})
		assert.False(t, result.Valid)
	})
	t.Run("Should require an output per case", func(t *testing.T) {
		result := sw.Validate(core.Input{
			"cases": []any{map[string]any{"value": 1}},
		})
		assert.False(t, result.Valid)
		assert.Contains(t, result.Errors[0], "output is required")
	})
	t.Run("Should reject invalid regex patterns", func(t *testing.T) {
		result := sw.Validate(core.Input{
			"cases": []any{map[string]any{"matchType": "regex", "value": "([", "output": "x"}},
		})
		assert.False(t, result.Valid)
	})
	t.Run("Should require bounds on range cases", func(t *testing.T) {
		result := sw.Validate(core.Input{
			"cases": []any{map[string]any{"matchType": "range", "output": "x"}},
		})
		assert.False(t, result.Valid)
	})
	t.Run("Should warn when no default case is declared", func(t *testing.T) {
		result := sw.Validate(core.Input{
			"cases": []any{map[string]any{"value": 1, "output": "one"}},
		})
		assert.True(t, result.Valid)
		assert.NotEmpty(t, result.Warnings)
	})
}
