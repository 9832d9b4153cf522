package expr

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errContains(err error, substr string) bool {
	return err != nil && strings.Contains(err.Error(), substr)
}

func TestNewEvaluator(t *testing.T) {
	t.Run("Should create evaluator with defaults", func(t *testing.T) {
		evaluator, err := NewEvaluator()
		require.NoError(t, err)
		assert.NotNil(t, evaluator.env)
		assert.NotNil(t, evaluator.programCache)
		assert.Equal(t, uint64(1000), evaluator.costLimit)
	})
	t.Run("Should honor custom cost limit", func(t *testing.T) {
		evaluator, err := NewEvaluator(WithCostLimit(500))
		require.NoError(t, err)
		assert.Equal(t, uint64(500), evaluator.costLimit)
	})
}

func TestEvaluator_Evaluate(t *testing.T) {
	evaluator, err := NewEvaluator()
	require.NoError(t, err)

	t.Run("Should evaluate simple boolean expression", func(t *testing.T) {
		result, err := evaluator.Evaluate(context.Background(),
			`input.status == "approved"`,
			map[string]any{"input": map[string]any{"status": "approved"}})
		require.NoError(t, err)
		assert.True(t, result)
	})
	t.Run("Should evaluate against node outputs", func(t *testing.T) {
		data := map[string]any{
			"nodes": map[string]any{
				"score": map[string]any{
					"output": map[string]any{"valid": true, "value": 0.95},
				},
			},
		}
		result, err := evaluator.Evaluate(context.Background(),
			`nodes.score.output.valid && nodes.score.output.value > 0.8`, data)
		require.NoError(t, err)
		assert.True(t, result)
	})
	t.Run("Should return false for failed conditions", func(t *testing.T) {
		result, err := evaluator.Evaluate(context.Background(),
			`input.count > 10`,
			map[string]any{"input": map[string]any{"count": 5}})
		require.NoError(t, err)
		assert.False(t, result)
	})
	t.Run("Should error on missing fields", func(t *testing.T) {
		result, err := evaluator.Evaluate(context.Background(),
			`input.missing == "x"`,
			map[string]any{"input": map[string]any{}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no such key")
		assert.False(t, result)
	})
	t.Run("Should support has() for optional fields", func(t *testing.T) {
		data := map[string]any{"input": map[string]any{"status": "approved"}}
		result, err := evaluator.Evaluate(context.Background(), `has(input.status)`, data)
		require.NoError(t, err)
		assert.True(t, result)

		result, err = evaluator.Evaluate(context.Background(), `has(input.missing)`, data)
		require.NoError(t, err)
		assert.False(t, result)
	})
	t.Run("Should enforce boolean results", func(t *testing.T) {
		_, err := evaluator.Evaluate(context.Background(),
			`input.status`,
			map[string]any{"input": map[string]any{"status": "approved"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boolean")
	})
	t.Run("Should report compilation failures", func(t *testing.T) {
		_, err := evaluator.Evaluate(context.Background(),
			`input.status ==`,
			map[string]any{"input": map[string]any{}})
		require.Error(t, err)
		assert.True(t, errContains(err, "compilation"))
	})
	t.Run("Should enforce type safety", func(t *testing.T) {
		_, err := evaluator.Evaluate(context.Background(),
			`input.count > 10`,
			map[string]any{"input": map[string]any{"count": "not-a-number"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no such overload")
	})
	t.Run("Should respect context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := evaluator.Evaluate(ctx, `true`, map[string]any{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled) || errContains(err, "context"))
	})
	t.Run("Should evaluate webhook filter variables", func(t *testing.T) {
		data := map[string]any{
			"payload": map[string]any{"action": "create"},
			"headers": map[string]any{"content-type": "application/json"},
			"query":   map[string]any{"source": "web"},
		}
		result, err := evaluator.Evaluate(context.Background(),
			`payload.action == "create" && headers["content-type"] == "application/json" && query.source == "web"`,
			data)
		require.NoError(t, err)
		assert.True(t, result)
	})
	t.Run("Should reuse cached programs", func(t *testing.T) {
		small, err := NewEvaluator(WithCacheSize(2))
		require.NoError(t, err)
		data := map[string]any{"input": map[string]any{"value": 1}}
		expressions := []string{
			`input.value == 1`,
			`input.value > 0`,
			`input.value < 10`,
			`input.value != 0`,
		}
		for _, expression := range expressions {
			result, err := small.Evaluate(context.Background(), expression, data)
			require.NoError(t, err)
			assert.True(t, result)
		}
		result, err := small.Evaluate(context.Background(), expressions[0], data)
		require.NoError(t, err)
		assert.True(t, result)
	})
}

func TestEvaluator_EvaluateValue(t *testing.T) {
	evaluator, err := NewEvaluator()
	require.NoError(t, err)

	t.Run("Should return scalar results", func(t *testing.T) {
		value, err := evaluator.EvaluateValue(context.Background(),
			`item.price * 2.0`,
			map[string]any{"item": map[string]any{"price": 10.5}})
		require.NoError(t, err)
		assert.Equal(t, float64(21), value)
	})
	t.Run("Should return list results as native slices", func(t *testing.T) {
		value, err := evaluator.EvaluateValue(context.Background(),
			`[1, 2, 3].map(x, x * 2)`,
			map[string]any{})
		require.NoError(t, err)
		assert.Equal(t, []any{float64(2), float64(4), float64(6)}, value)
	})
	t.Run("Should return map results as native maps", func(t *testing.T) {
		value, err := evaluator.EvaluateValue(context.Background(),
			`{"name": input.name, "ok": true}`,
			map[string]any{"input": map[string]any{"name": "ada"}})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"name": "ada", "ok": true}, value)
	})
	t.Run("Should support string functions", func(t *testing.T) {
		value, err := evaluator.EvaluateValue(context.Background(),
			`input.name.size()`,
			map[string]any{"input": map[string]any{"name": "ada"}})
		require.NoError(t, err)
		assert.Equal(t, float64(3), value)
	})
}

func TestEvaluator_ValidateExpression(t *testing.T) {
	evaluator, err := NewEvaluator()
	require.NoError(t, err)

	t.Run("Should validate correct expressions", func(t *testing.T) {
		assert.NoError(t, evaluator.ValidateExpression(`input.status == "approved"`))
	})
	t.Run("Should reject invalid expressions", func(t *testing.T) {
		err := evaluator.ValidateExpression(`input.status ==`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid expression")
	})
	t.Run("Should reject empty expressions", func(t *testing.T) {
		assert.Error(t, evaluator.ValidateExpression("  "))
	})
}

func TestEvaluator_CostLimit(t *testing.T) {
	t.Run("Should evaluate cheap expressions within the limit", func(t *testing.T) {
		evaluator, err := NewEvaluator()
		require.NoError(t, err)
		result, err := evaluator.Evaluate(context.Background(),
			`size(input.list) > 3`,
			map[string]any{"input": map[string]any{"list": []any{1, 2, 3, 4, 5}}})
		require.NoError(t, err)
		assert.True(t, result)
	})
	t.Run("Should stop runaway expressions", func(t *testing.T) {
		evaluator, err := NewEvaluator(WithCostLimit(5))
		require.NoError(t, err)
		data := map[string]any{"input": map[string]any{"value": "test"}}
		result, err := evaluator.Evaluate(context.Background(),
			`input.value + input.value + input.value + input.value + input.value +
			 input.value + input.value + input.value + input.value + input.value == "x"`,
			data)
		if err != nil {
			assert.Contains(t, err.Error(), "cost limit")
		} else {
			assert.False(t, result)
		}
	})
}
