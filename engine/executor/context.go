package executor

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/task"
	"github.com/meshflow/meshflow/engine/workflow"
)

// -----------------------------------------------------------------------------
// Run state
// -----------------------------------------------------------------------------

// runState is the mutable state of one run. Sub-graph executions fork it:
// a fork gets isolated variables and results while the error log and the
// node execution counter stay shared with the whole run.
type runState struct {
	execID  core.ID
	wf      *workflow.Config
	trigger core.Output
	owned   map[string]bool

	errs  *errorLog
	nodes *atomic.Int64

	mu       sync.RWMutex
	vars     map[string]any
	results  map[string]core.Output
	executed map[string]bool
	ports    map[string]string
}

// errorLog is the run's append-only failure record, shared across forks.
type errorLog struct {
	mu      sync.Mutex
	entries []task.ErrorEntry
}

func (l *errorLog) append(entry task.ErrorEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *errorLog) snapshot() []task.ErrorEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]task.ErrorEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func newRunState(execID core.ID, wf *workflow.Config, trigger core.Output) *runState {
	return &runState{
		execID:   execID,
		wf:       wf,
		trigger:  trigger,
		errs:     &errorLog{},
		nodes:    &atomic.Int64{},
		vars:     make(map[string]any),
		results:  make(map[string]core.Output),
		executed: make(map[string]bool),
		ports:    make(map[string]string),
	}
}

// fork isolates a sub-graph execution: variables are deep-copied and seeded
// with the request's values, results start from a snapshot of the parent's,
// and all writes stay local to the fork. The error log and node counter
// remain shared so run-wide invariants hold across branches.
func (rs *runState) fork(seed map[string]any) (*runState, error) {
	rs.mu.RLock()
	copied, err := core.DeepCopy(rs.vars)
	results := make(map[string]core.Output, len(rs.results))
	maps.Copy(results, rs.results)
	rs.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if copied == nil {
		copied = make(map[string]any)
	}
	for k, v := range seed {
		copied[k] = v
	}
	return &runState{
		execID:   rs.execID,
		wf:       rs.wf,
		trigger:  rs.trigger,
		owned:    rs.owned,
		errs:     rs.errs,
		nodes:    rs.nodes,
		vars:     copied,
		results:  results,
		executed: make(map[string]bool),
		ports:    make(map[string]string),
	}, nil
}

func (rs *runState) hasExecuted(id string) bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.executed[id]
}

func (rs *runState) markExecuted(id, port string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.executed[id] = true
	rs.ports[id] = port
}

func (rs *runState) selectedPort(id string) string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.ports[id]
}

// storeResult honors the write-once invariant: the first stored result for
// a node wins for the remainder of the run.
func (rs *runState) storeResult(id string, out core.Output) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, exists := rs.results[id]; exists {
		return
	}
	rs.results[id] = out
}

func (rs *runState) result(id string) (core.Output, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out, ok := rs.results[id]
	return out, ok
}

func (rs *runState) setVariable(key string, value any) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.vars[key] = value
}

func (rs *runState) mergeVariables(values map[string]any) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for k, v := range values {
		rs.vars[k] = v
	}
}

func (rs *runState) variablesSnapshot() map[string]any {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make(map[string]any, len(rs.vars))
	maps.Copy(out, rs.vars)
	return out
}

func (rs *runState) setPreviousResult(out core.Output) {
	rs.setVariable("previousResult", map[string]any(out))
}

func (rs *runState) appendError(entry task.ErrorEntry) {
	rs.errs.append(entry)
}

func (rs *runState) errorEntries() []task.ErrorEntry {
	return rs.errs.snapshot()
}

func (rs *runState) nodeCount() int {
	return int(rs.nodes.Load())
}

// reserveNode admits one more node execution under the run-wide cap.
func (rs *runState) reserveNode(limit int) error {
	if n := rs.nodes.Add(1); limit > 0 && n > int64(limit) {
		rs.nodes.Add(-1)
		return fmt.Errorf("run exceeded the limit of %d node executions", limit)
	}
	return nil
}

// assemblePayload merges the outputs feeding a node's in-edges, considering
// only edges whose source completed and left through its selected out-port.
// Later edges overwrite on key conflicts, in document edge order. A node
// with no contributing edge receives the trigger payload, which covers the
// entry node.
func (rs *runState) assemblePayload(adj *workflow.Adjacency, node *workflow.Node) core.Output {
	payload := core.Output{}
	contributed := false
	for _, edge := range adj.InEdges(node.ID) {
		out, ok := rs.result(edge.From)
		if !ok {
			continue
		}
		if rs.selectedPort(edge.From) != edge.FromPort {
			continue
		}
		maps.Copy(payload, out)
		contributed = true
	}
	if !contributed {
		maps.Copy(payload, rs.trigger)
	}
	return payload
}

// templateScope is the namespace node config templates render against. It
// mirrors the expression scope tasks see, extended with per-node results
// under "nodes" so templates can address any completed node's output.
func (rs *runState) templateScope(payload core.Output) map[string]any {
	vars := rs.variablesSnapshot()
	rs.mu.RLock()
	nodes := make(map[string]any, len(rs.results))
	for id, out := range rs.results {
		nodes[id] = map[string]any{"output": map[string]any(out)}
	}
	rs.mu.RUnlock()
	scope := map[string]any{
		"payload":   payload.AsMap(),
		"trigger":   rs.trigger.AsMap(),
		"vars":      vars,
		"nodes":     nodes,
		"workflow":  map[string]any{"id": rs.wf.ID, "name": rs.wf.Name, "version": rs.wf.Version},
		"execution": map[string]any{"id": rs.execID.String()},
	}
	if len(rs.wf.Env) > 0 {
		scope["env"] = rs.wf.Env
	}
	if item, ok := vars["item"]; ok {
		scope["item"] = item
	}
	if index, ok := vars["index"]; ok {
		scope["index"] = index
	}
	return scope
}

// -----------------------------------------------------------------------------
// Execution context view
// -----------------------------------------------------------------------------

// nodeContext is the task-facing view of a run, scoped to one node. Tasks
// observe results and shared data through it; sub-graph owners additionally
// get their declared branches wired back into the executor.
type nodeContext struct {
	exec     *Executor
	run      *runState
	settings *runSettings
	node     *workflow.Node
	branches map[string][]string
}

var _ task.ExecutionContext = (*nodeContext)(nil)

func (nc *nodeContext) ExecutionID() core.ID { return nc.run.execID }

func (nc *nodeContext) Workflow() *workflow.Config { return nc.run.wf }

func (nc *nodeContext) NodeOutput(nodeID string) (core.Output, bool) {
	return nc.run.result(nodeID)
}

func (nc *nodeContext) TriggerPayload() core.Output { return nc.run.trigger }

func (nc *nodeContext) Variables() map[string]any { return nc.run.variablesSnapshot() }

func (nc *nodeContext) SetVariable(key string, value any) { nc.run.setVariable(key, value) }

func (nc *nodeContext) MergeVariables(vars map[string]any) { nc.run.mergeVariables(vars) }

func (nc *nodeContext) DryRun() bool { return nc.settings.mode == ModeDryRun }

// RunSubgraph executes one owned branch: the child nodes run positionally
// on a fork of the run state, each child receiving the previous child's
// output as payload. Safe for concurrent use; parallel branches fork
// independently.
func (nc *nodeContext) RunSubgraph(
	ctx context.Context,
	req *task.SubgraphRequest,
) (*task.SubgraphResult, error) {
	if req == nil || req.Branch == "" {
		return nil, fmt.Errorf("sub-graph request must name a branch")
	}
	ids, ok := nc.branches[req.Branch]
	if !ok {
		return nil, fmt.Errorf("node %q owns no sub-graph branch %q", nc.node.ID, req.Branch)
	}
	child, err := nc.run.fork(req.Vars)
	if err != nil {
		return nil, fmt.Errorf("failed to isolate sub-graph state: %w", err)
	}
	payload := req.Payload
	if payload == nil {
		payload = core.Output{}
	}
	output := core.Output{}
	count := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("sub-graph branch %q canceled: %w", req.Branch, err)
		}
		node := child.wf.FindNode(id)
		if node == nil {
			return nil, fmt.Errorf("sub-graph branch %q references unknown node %q", req.Branch, id)
		}
		if err := child.reserveNode(nc.settings.maxNodes); err != nil {
			return nil, err
		}
		out, err := nc.exec.executeNode(ctx, child, nc.settings, node, payload)
		if err != nil {
			return nil, err
		}
		payload = out
		output = out
		count++
	}
	return &task.SubgraphResult{
		Output:        output,
		Vars:          child.variablesSnapshot(),
		NodesExecuted: count,
	}, nil
}
