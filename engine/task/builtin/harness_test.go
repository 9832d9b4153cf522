package builtin_test

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/expr"
	"github.com/meshflow/meshflow/engine/task"
	"github.com/meshflow/meshflow/engine/workflow"
)

// fakeContext implements task.ExecutionContext so tasks run without standing
// up the engine. Sub-graph calls dispatch to the configured subgraph func.
type fakeContext struct {
	mu       sync.Mutex
	id       core.ID
	wf       *workflow.Config
	trigger  core.Output
	vars     map[string]any
	results  map[string]core.Output
	dryRun   bool
	subgraph func(ctx context.Context, req *task.SubgraphRequest) (*task.SubgraphResult, error)
	// subgraphCalls records branch names in call order.
	subgraphCalls []string
}

func newFakeContext() *fakeContext {
	return &fakeContext{
		id:      core.MustNewID(),
		trigger: core.Output{},
		vars:    make(map[string]any),
		results: make(map[string]core.Output),
	}
}

func (f *fakeContext) ExecutionID() core.ID        { return f.id }
func (f *fakeContext) Workflow() *workflow.Config  { return f.wf }
func (f *fakeContext) TriggerPayload() core.Output { return f.trigger }
func (f *fakeContext) DryRun() bool                { return f.dryRun }

func (f *fakeContext) NodeOutput(nodeID string) (core.Output, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out, ok := f.results[nodeID]
	return out, ok
}

func (f *fakeContext) Variables() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := make(map[string]any, len(f.vars))
	maps.Copy(snapshot, f.vars)
	return snapshot
}

func (f *fakeContext) SetVariable(key string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vars[key] = value
}

func (f *fakeContext) MergeVariables(vars map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	maps.Copy(f.vars, vars)
}

func (f *fakeContext) RunSubgraph(ctx context.Context, req *task.SubgraphRequest) (*task.SubgraphResult, error) {
	f.mu.Lock()
	f.subgraphCalls = append(f.subgraphCalls, req.Branch)
	fn := f.subgraph
	f.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("no subgraph runner configured for branch %q", req.Branch)
	}
	return fn(ctx, req)
}

func (f *fakeContext) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.subgraphCalls...)
}

// newInput builds a task input around a fresh fake context.
func newInput(config core.Input) (*task.Input, *fakeContext) {
	fc := newFakeContext()
	return &task.Input{
		Node:    &workflow.Node{ID: "node-under-test", Type: "test"},
		Config:  config,
		Context: fc,
		Payload: core.Output{},
	}, fc
}

func newEvaluator(t *testing.T) *expr.Evaluator {
	t.Helper()
	eval, err := expr.NewEvaluator()
	require.NoError(t, err)
	return eval
}
