package executor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/events"
	"github.com/meshflow/meshflow/engine/executor"
	"github.com/meshflow/meshflow/engine/expr"
	"github.com/meshflow/meshflow/engine/task/builtin"
	"github.com/meshflow/meshflow/engine/workflow"
)

func newTestExecutor(t *testing.T, opts ...executor.Option) *executor.Executor {
	t.Helper()
	eval, err := expr.NewEvaluator()
	require.NoError(t, err)
	registry, err := builtin.NewRegistry(builtin.Deps{Evaluator: eval})
	require.NoError(t, err)
	return executor.New(registry, opts...)
}

func filterPipeline() *workflow.Config {
	return &workflow.Config{
		ID: "filter-pipeline",
		Nodes: []workflow.Node{
			{ID: "start", Type: "trigger"},
			{
				ID:   "keep-active",
				Type: "filter",
				Config: core.Input{
					"field":    "status",
					"operator": "equals",
					"value":    "active",
				},
			},
			{ID: "done", Type: "output"},
		},
		Edges: []workflow.Edge{
			{From: "start", To: "keep-active"},
			{From: "keep-active", To: "done"},
		},
	}
}

func activeInactiveInput() core.Output {
	return core.Output{
		"items": []any{
			map[string]any{"status": "active"},
			map[string]any{"status": "inactive"},
		},
	}
}

func TestExecutor_Execute(t *testing.T) {
	t.Run("Should run a linear filter pipeline end to end", func(t *testing.T) {
		mem := events.NewMemory()
		exec := newTestExecutor(t, executor.WithEmitter(mem))
		res, err := exec.Execute(context.Background(), filterPipeline(), activeInactiveInput())
		require.NoError(t, err)

		assert.Equal(t, "filter-pipeline", res.WorkflowID)
		assert.Equal(t, 3, res.NodesExecuted)
		assert.Equal(t, 1, res.Output["count"])
		items, ok := res.Output["items"].([]any)
		require.True(t, ok)
		require.Len(t, items, 1)
		first, ok := items[0].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "active", first["status"])
		kept, ok := res.Variables["filteredArray"].([]any)
		require.True(t, ok)
		assert.Len(t, kept, 1)
		assert.Empty(t, res.Errors)

		flows := mem.ByKind(events.KindDataFlowing)
		require.Len(t, flows, 2)
		betweenFilterAndOutput := 0
		for _, ev := range flows {
			if ev.Detail["fromNodeId"] == "keep-active" && ev.Detail["toNodeId"] == "done" {
				betweenFilterAndOutput++
			}
		}
		assert.Equal(t, 1, betweenFilterAndOutput)
	})

	t.Run("Should emit lifecycle events in protocol order", func(t *testing.T) {
		mem := events.NewMemory()
		exec := newTestExecutor(t, executor.WithEmitter(mem))
		_, err := exec.Execute(context.Background(), filterPipeline(), activeInactiveInput())
		require.NoError(t, err)

		evs := mem.Events()
		require.NotEmpty(t, evs)
		assert.Equal(t, events.KindWorkflowStarted, evs[0].Kind)
		assert.Equal(t, events.KindWorkflowCompleted, evs[len(evs)-1].Kind)

		stateIdx := func(nodeID, state string) int {
			for i, ev := range evs {
				if ev.Kind != events.KindNodeStateChanged {
					continue
				}
				if ev.Detail["nodeId"] == nodeID && ev.Detail["currentState"] == state {
					return i
				}
			}
			return -1
		}
		outputIdx := func(nodeID string) int {
			for i, ev := range evs {
				if ev.Kind == events.KindNodeOutput && ev.Detail["nodeId"] == nodeID {
					return i
				}
			}
			return -1
		}
		flowIdx := func(from, to string) int {
			for i, ev := range evs {
				if ev.Kind == events.KindDataFlowing &&
					ev.Detail["fromNodeId"] == from && ev.Detail["toNodeId"] == to {
					return i
				}
			}
			return -1
		}

		executing := stateIdx("keep-active", "executing")
		produced := outputIdx("keep-active")
		completed := stateIdx("keep-active", "completed")
		flowing := flowIdx("keep-active", "done")
		require.GreaterOrEqual(t, executing, 0)
		require.GreaterOrEqual(t, produced, 0)
		require.GreaterOrEqual(t, completed, 0)
		require.GreaterOrEqual(t, flowing, 0)
		assert.Less(t, executing, produced)
		assert.Less(t, produced, completed)
		assert.Less(t, completed, flowing)
	})

	t.Run("Should synthesize a linear chain when the document declares no edges", func(t *testing.T) {
		wf := &workflow.Config{
			ID: "edgeless",
			Nodes: []workflow.Node{
				{ID: "start", Type: "trigger"},
				{
					ID:     "stamp",
					Type:   "set",
					Config: core.Input{"key": "stage", "value": "ran"},
				},
				{ID: "done", Type: "output"},
			},
		}
		exec := newTestExecutor(t)
		res, err := exec.Execute(context.Background(), wf, core.Output{"n": 1})
		require.NoError(t, err)
		assert.Equal(t, 3, res.NodesExecuted)
		assert.Equal(t, "ran", res.Variables["stage"])
		assert.Equal(t, []any{"stage"}, res.Output["keys"])
	})

	t.Run("Should route only the selected conditional branch", func(t *testing.T) {
		wf := &workflow.Config{
			ID: "branching",
			Nodes: []workflow.Node{
				{ID: "start", Type: "trigger"},
				{
					ID:     "check",
					Type:   "conditional",
					Config: core.Input{"expression": "payload.amount > 10"},
				},
				{
					ID:     "big",
					Type:   "set",
					Config: core.Input{"key": "route", "value": "big"},
				},
				{
					ID:     "small",
					Type:   "set",
					Config: core.Input{"key": "route", "value": "small"},
				},
			},
			Edges: []workflow.Edge{
				{From: "start", To: "check"},
				{From: "check", FromPort: "true", To: "big"},
				{From: "check", FromPort: "false", To: "small"},
			},
		}
		mem := events.NewMemory()
		exec := newTestExecutor(t)
		res, err := exec.Execute(context.Background(), wf, core.Output{"amount": 25}, executor.WithEmitter(mem))
		require.NoError(t, err)

		assert.Equal(t, 3, res.NodesExecuted)
		assert.Equal(t, "big", res.Variables["route"])
		for _, ev := range mem.ByKind(events.KindNodeStateChanged) {
			assert.NotEqual(t, "small", ev.Detail["nodeId"], "unselected branch must not execute")
		}
	})

	t.Run("Should abort when a node's task type is not registered", func(t *testing.T) {
		wf := &workflow.Config{
			ID: "unknown-type",
			Nodes: []workflow.Node{
				{ID: "start", Type: "trigger"},
				{ID: "mystery", Type: "teleport"},
			},
		}
		exec := newTestExecutor(t)
		_, err := exec.Execute(context.Background(), wf, nil)
		require.Error(t, err)
		var abort *executor.WorkflowAbortError
		require.ErrorAs(t, err, &abort)
		assert.Equal(t, "mystery", abort.NodeID)
		assert.ErrorContains(t, err, "not registered")
	})

	t.Run("Should record a thrown task failure and abort the run", func(t *testing.T) {
		wf := &workflow.Config{
			ID: "throwing",
			Nodes: []workflow.Node{
				{ID: "start", Type: "trigger"},
				{
					ID:     "bad-json",
					Type:   "json_decode",
					Config: core.Input{"data": "{broken"},
				},
			},
		}
		mem := events.NewMemory()
		exec := newTestExecutor(t, executor.WithEmitter(mem))
		_, err := exec.Execute(context.Background(), wf, nil)
		require.Error(t, err)
		var abort *executor.WorkflowAbortError
		require.ErrorAs(t, err, &abort)
		assert.Equal(t, "bad-json", abort.NodeID)

		recs := exec.History().Records()
		require.Len(t, recs, 1)
		assert.Equal(t, core.StatusFailed, recs[0].Status)
		require.Len(t, recs[0].Errors, 1)
		assert.Equal(t, "bad-json", recs[0].Errors[0].NodeID)
		assert.Equal(t, "json_decode", recs[0].Errors[0].NodeType)

		failedStates := 0
		for _, ev := range mem.ByKind(events.KindNodeStateChanged) {
			if ev.Detail["currentState"] == "failed" {
				failedStates++
				assert.Equal(t, "bad-json", ev.Detail["nodeId"])
			}
		}
		assert.Equal(t, 1, failedStates)
		kinds := mem.Kinds()
		assert.Equal(t, events.KindWorkflowFailed, kinds[len(kinds)-1])
	})

	t.Run("Should stop between nodes when the context is canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		mem := events.NewMemory()
		exec := newTestExecutor(t, executor.WithEmitter(mem))
		_, err := exec.Execute(ctx, filterPipeline(), activeInactiveInput())
		require.Error(t, err)
		var abort *executor.WorkflowAbortError
		require.ErrorAs(t, err, &abort)
		assert.Empty(t, abort.NodeID)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, []events.Kind{events.KindWorkflowStarted, events.KindWorkflowFailed}, mem.Kinds())
	})

	t.Run("Should enforce the node execution limit", func(t *testing.T) {
		wf := &workflow.Config{
			ID: "capped",
			Nodes: []workflow.Node{
				{ID: "start", Type: "trigger"},
				{
					ID:     "stamp",
					Type:   "set",
					Config: core.Input{"key": "stage", "value": "ran"},
				},
				{ID: "done", Type: "output"},
			},
		}
		exec := newTestExecutor(t)
		_, err := exec.Execute(context.Background(), wf, nil, executor.WithMaxNodes(2))
		require.Error(t, err)
		assert.ErrorContains(t, err, "limit of 2 node executions")
		recs := exec.History().Records()
		require.Len(t, recs, 1)
		assert.Equal(t, 2, recs[0].NodesExecuted)
	})

	t.Run("Should interpolate node config against the run scope", func(t *testing.T) {
		wf := &workflow.Config{
			ID: "interpolated",
			Nodes: []workflow.Node{
				{ID: "start", Type: "trigger"},
				{
					ID:     "stamp",
					Type:   "set",
					Config: core.Input{"key": "greeting", "value": "hi {{ .payload.name }}"},
				},
			},
		}
		exec := newTestExecutor(t)
		res, err := exec.Execute(context.Background(), wf, core.Output{"name": "Ada"})
		require.NoError(t, err)
		assert.Equal(t, "hi Ada", res.Variables["greeting"])
	})

	t.Run("Should expose the previous result through vars", func(t *testing.T) {
		wf := &workflow.Config{
			ID: "previous-result",
			Nodes: []workflow.Node{
				{ID: "start", Type: "trigger"},
				{
					ID:     "echo",
					Type:   "template",
					Config: core.Input{"template": "{{ .vars.previousResult.name }}"},
				},
			},
		}
		exec := newTestExecutor(t)
		res, err := exec.Execute(context.Background(), wf, core.Output{"name": "Grace"})
		require.NoError(t, err)
		assert.Equal(t, "Grace", res.Output["result"])
	})

	t.Run("Should record completed runs in history", func(t *testing.T) {
		exec := newTestExecutor(t)
		res, err := exec.Execute(context.Background(), filterPipeline(), activeInactiveInput())
		require.NoError(t, err)

		recs := exec.History().Records()
		require.Len(t, recs, 1)
		assert.Equal(t, res.ExecutionID, recs[0].ID)
		assert.Equal(t, core.StatusCompleted, recs[0].Status)
		assert.Equal(t, 3, recs[0].NodesExecuted)
		assert.False(t, recs[0].StartedAt.IsZero())
		assert.Equal(t, res.Output, recs[0].Result)
	})

	t.Run("Should keep only the newest records under the history limit", func(t *testing.T) {
		exec := newTestExecutor(t, executor.WithHistoryLimit(1))
		_, err := exec.Execute(context.Background(), filterPipeline(), activeInactiveInput())
		require.NoError(t, err)
		second, err := exec.Execute(context.Background(), filterPipeline(), activeInactiveInput())
		require.NoError(t, err)

		recs := exec.History().Records()
		require.Len(t, recs, 1)
		assert.Equal(t, second.ExecutionID, recs[0].ID)
	})
}

func TestExecutor_DryRun(t *testing.T) {
	storePipeline := func() *workflow.Config {
		return &workflow.Config{
			ID: "store",
			Nodes: []workflow.Node{
				{ID: "start", Type: "trigger"},
				{
					ID:     "save",
					Type:   "kv_set",
					Config: core.Input{"key": "greeting", "value": "hello"},
				},
			},
		}
	}

	t.Run("Should substitute service tasks with their declared sample output", func(t *testing.T) {
		exec := newTestExecutor(t)
		res, err := exec.Execute(context.Background(), storePipeline(), nil, executor.WithMode(executor.ModeDryRun))
		require.NoError(t, err)
		assert.Equal(t, core.Output{"success": true}, res.Output)
	})

	t.Run("Should fail live service calls without a gateway", func(t *testing.T) {
		exec := newTestExecutor(t)
		_, err := exec.Execute(context.Background(), storePipeline(), nil)
		require.Error(t, err)
		assert.ErrorContains(t, err, "no gateway configured")
		var abort *executor.WorkflowAbortError
		require.ErrorAs(t, err, &abort)
		assert.Equal(t, "save", abort.NodeID)
	})

	t.Run("Should generate identical outputs for identical seeds", func(t *testing.T) {
		wf := &workflow.Config{
			ID: "seeded",
			Nodes: []workflow.Node{
				{ID: "start", Type: "trigger"},
				{
					ID:     "fetch",
					Type:   "kv_get",
					Config: core.Input{"key": "cache"},
				},
			},
		}
		exec := newTestExecutor(t)
		first, err := exec.Execute(context.Background(), wf, nil,
			executor.WithMode(executor.ModeDryRun), executor.WithSampleSeed(42))
		require.NoError(t, err)
		second, err := exec.Execute(context.Background(), wf, nil,
			executor.WithMode(executor.ModeDryRun), executor.WithSampleSeed(42))
		require.NoError(t, err)
		assert.Equal(t, first.Output, second.Output)
	})

	t.Run("Should execute data tasks for real in dry-run mode", func(t *testing.T) {
		exec := newTestExecutor(t)
		res, err := exec.Execute(
			context.Background(),
			filterPipeline(),
			activeInactiveInput(),
			executor.WithMode(executor.ModeDryRun),
		)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Output["count"])
	})
}
