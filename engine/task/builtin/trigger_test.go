package builtin_test

import (
	"context"
	"testing"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/task/builtin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrigger_Execute(t *testing.T) {
	t.Run("Should surface the trigger payload as its output", func(t *testing.T) {
		trigger := builtin.NewTrigger()
		in, fc := newInput(core.Input{})
		fc.trigger = core.Output{"orderId": "ord-1", "amount": 250}
		out, err := trigger.Execute(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "ord-1", out["orderId"])
		assert.Equal(t, 250, out["amount"])
	})

	t.Run("Should return an empty output for an empty trigger", func(t *testing.T) {
		trigger := builtin.NewTrigger()
		in, _ := newInput(core.Input{})
		out, err := trigger.Execute(context.Background(), in)
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("Should not alias the trigger payload", func(t *testing.T) {
		trigger := builtin.NewTrigger()
		in, fc := newInput(core.Input{})
		fc.trigger = core.Output{"n": 1}
		out, err := trigger.Execute(context.Background(), in)
		require.NoError(t, err)
		out["n"] = 2
		assert.Equal(t, 1, fc.trigger["n"])
	})
}

func TestOutput_Execute(t *testing.T) {
	t.Run("Should pass the inbound payload through unchanged", func(t *testing.T) {
		output := builtin.NewOutput()
		in, _ := newInput(core.Input{})
		in.Payload = core.Output{"status": "done"}
		out, err := output.Execute(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "done", out["status"])
	})

	t.Run("Should return an explicit data object when configured", func(t *testing.T) {
		output := builtin.NewOutput()
		in, _ := newInput(core.Input{
			"data": map[string]any{"code": 0},
		})
		in.Payload = core.Output{"ignored": true}
		out, err := output.Execute(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, 0, out["code"])
		_, hasIgnored := out["ignored"]
		assert.False(t, hasIgnored)
	})

	t.Run("Should wrap a scalar data value under result", func(t *testing.T) {
		output := builtin.NewOutput()
		in, _ := newInput(core.Input{"data": "final"})
		out, err := output.Execute(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "final", out["result"])
	})
}
