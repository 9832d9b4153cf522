// Package executor drives workflow runs: it walks the node graph from the
// trigger, dispatches each node to its registered task, propagates results
// and shared variables between nodes, emits lifecycle events, and records
// every finished run into a capped in-memory history.
//
// The walk is single-threaded and cooperative: one node executes at a time,
// and concurrency only exists inside tasks that create it themselves, such
// as parallel branches. Control-flow tasks that own sub-graphs run their
// child nodes through the same execution path on isolated state forks.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/events"
	"github.com/meshflow/meshflow/engine/sample"
	"github.com/meshflow/meshflow/engine/task"
	"github.com/meshflow/meshflow/engine/workflow"
	"github.com/meshflow/meshflow/pkg/logger"
	"github.com/meshflow/meshflow/pkg/tplengine"
)

// -----------------------------------------------------------------------------
// Modes and options
// -----------------------------------------------------------------------------

// Mode selects how a run treats service-backed nodes.
type Mode string

const (
	// ModeLive executes every node for real, including gateway calls.
	ModeLive Mode = "live"
	// ModeDryRun substitutes service task execution with sample output
	// synthesized from the task's declared schemas. All other nodes run
	// normally.
	ModeDryRun Mode = "dry-run"
)

// DefaultMaxNodes bounds how many node executions one run may perform,
// counting sub-graph children and loop iterations. It is a safety net
// against runaway documents, not a scheduling policy.
const DefaultMaxNodes = 10000

// runSettings is the effective configuration of one run. New establishes
// the defaults; Execute applies per-run overrides on a copy.
type runSettings struct {
	mode         Mode
	emitter      events.Emitter
	maxNodes     int
	historyLimit int
	seed         int64
	seeded       bool
	sampler      *sample.Generator
}

// Option adjusts executor defaults or a single run.
type Option func(*runSettings)

// WithMode selects live or dry-run execution.
func WithMode(mode Mode) Option {
	return func(s *runSettings) { s.mode = mode }
}

// WithEmitter sets the sink lifecycle events are published to.
func WithEmitter(emitter events.Emitter) Option {
	return func(s *runSettings) { s.emitter = emitter }
}

// WithSampleSeed fixes the dry-run sample generator's seed so synthesized
// outputs are reproducible.
func WithSampleSeed(seed int64) Option {
	return func(s *runSettings) {
		s.seed = seed
		s.seeded = true
	}
}

// WithMaxNodes caps the number of node executions a run may perform.
func WithMaxNodes(n int) Option {
	return func(s *runSettings) {
		if n > 0 {
			s.maxNodes = n
		}
	}
}

// WithHistoryLimit caps the in-memory execution history. It only takes
// effect when passed to New.
func WithHistoryLimit(n int) Option {
	return func(s *runSettings) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

func (s *runSettings) emit(ctx context.Context, event events.Event) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(ctx, event)
}

// -----------------------------------------------------------------------------
// Executor
// -----------------------------------------------------------------------------

// Executor runs workflow documents against a task registry. It is safe for
// concurrent use: every Execute call builds its own run state, and the
// shared history is internally synchronized.
type Executor struct {
	registry *task.Registry
	tpl      *tplengine.TemplateEngine
	history  *History
	defaults runSettings
}

// New creates an executor over the given task registry. Options passed here
// become the defaults for every run.
func New(registry *task.Registry, opts ...Option) *Executor {
	defaults := runSettings{
		mode:         ModeLive,
		emitter:      events.Noop{},
		maxNodes:     DefaultMaxNodes,
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(&defaults)
	}
	return &Executor{
		registry: registry,
		tpl:      tplengine.NewEngine(tplengine.FormatText),
		history:  NewHistory(defaults.historyLimit),
		defaults: defaults,
	}
}

// History returns the capped record of past runs.
func (e *Executor) History() *History {
	return e.history
}

// -----------------------------------------------------------------------------
// Result and abort error
// -----------------------------------------------------------------------------

// Result is the outcome of a completed run. Output is the last executed
// node's result; Errors carries failures that continue-on-error constructs
// recorded without aborting the run.
type Result struct {
	ExecutionID   core.ID           `json:"executionId"`
	WorkflowID    string            `json:"workflowId"`
	Output        core.Output       `json:"output"`
	Variables     map[string]any    `json:"variables,omitempty"`
	Errors        []task.ErrorEntry `json:"errors,omitempty"`
	NodesExecuted int               `json:"nodesExecuted"`
	Duration      time.Duration     `json:"duration"`
}

// WorkflowAbortError ties a run abort to the execution and the node that
// caused it. NodeID is empty when the run failed outside any node, for
// example on cancellation.
type WorkflowAbortError struct {
	ExecutionID core.ID
	NodeID      string
	Err         error
}

func (e *WorkflowAbortError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("workflow execution %s aborted: %v", e.ExecutionID, e.Err)
	}
	return fmt.Sprintf("workflow execution %s aborted at node %s: %v", e.ExecutionID, e.NodeID, e.Err)
}

func (e *WorkflowAbortError) Unwrap() error {
	return e.Err
}

// -----------------------------------------------------------------------------
// Execute
// -----------------------------------------------------------------------------

// Execute runs one workflow document to completion. input becomes the
// trigger payload. On success the final node's output is returned; on
// failure the error is a *WorkflowAbortError and the aborted run is still
// recorded in history. The context is honored between nodes and inside
// cancellable tasks.
func (e *Executor) Execute(
	ctx context.Context,
	wf *workflow.Config,
	input core.Output,
	opts ...Option,
) (*Result, error) {
	if e.registry == nil {
		return nil, fmt.Errorf("executor has no task registry")
	}
	if wf == nil {
		return nil, fmt.Errorf("workflow document is required")
	}
	settings := e.defaults
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.emitter == nil {
		settings.emitter = events.Noop{}
	}
	if settings.seeded {
		settings.sampler = sample.NewGenerator(sample.WithSeed(settings.seed))
	} else {
		settings.sampler = sample.NewGenerator()
	}

	entry, err := wf.EntryNode()
	if err != nil {
		return nil, err
	}
	adj, err := workflow.BuildAdjacency(wf)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workflow edges: %w", err)
	}
	execID, err := core.NewID()
	if err != nil {
		return nil, err
	}
	if input == nil {
		input = core.Output{}
	}
	rs := newRunState(execID, wf, input)
	rs.owned = e.ownedNodes(wf)

	log := logger.FromContext(ctx).With(
		"workflow_id", wf.ID,
		"execution_id", execID.String(),
	)
	ctx = logger.ContextWithLogger(ctx, log)
	log.Info("Workflow execution started", "mode", string(settings.mode), "nodes", len(wf.Nodes))
	startedAt := time.Now()
	recordExecutionStarted(ctx, settings.mode)
	settings.emit(ctx, events.WorkflowStarted(execID, wf.ID, len(wf.Nodes)))

	output, err := e.walk(ctx, rs, &settings, adj, entry)
	duration := time.Since(startedAt)
	record := Record{
		ID:            execID,
		WorkflowID:    wf.ID,
		StartedAt:     startedAt,
		Duration:      duration,
		NodesExecuted: rs.nodeCount(),
		Errors:        rs.errorEntries(),
	}
	if err != nil {
		abort := &WorkflowAbortError{ExecutionID: execID, NodeID: failedNodeID(err), Err: err}
		record.Status = core.StatusFailed
		record.Error = abort.Error()
		e.history.Append(record)
		recordExecutionFinished(ctx, core.StatusFailed)
		settings.emit(ctx, events.WorkflowFailed(execID, err))
		log.Error("Workflow execution failed", "error", err, "duration", duration)
		return nil, abort
	}
	record.Status = core.StatusCompleted
	record.Result = output
	e.history.Append(record)
	recordExecutionFinished(ctx, core.StatusCompleted)
	settings.emit(ctx, events.WorkflowCompleted(execID, rs.nodeCount(), output))
	log.Info("Workflow execution completed", "nodes_executed", rs.nodeCount(), "duration", duration)
	return &Result{
		ExecutionID:   execID,
		WorkflowID:    wf.ID,
		Output:        output,
		Variables:     rs.variablesSnapshot(),
		Errors:        rs.errorEntries(),
		NodesExecuted: rs.nodeCount(),
		Duration:      duration,
	}, nil
}

// walk drives the top-level traversal. Nodes owned by sub-graph owners
// never run here; their owners schedule them through RunSubgraph.
func (e *Executor) walk(
	ctx context.Context,
	rs *runState,
	settings *runSettings,
	adj *workflow.Adjacency,
	entry *workflow.Node,
) (core.Output, error) {
	queue := []string{entry.ID}
	output := core.Output{}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("workflow run canceled: %w", err)
		}
		id := queue[0]
		queue = queue[1:]
		if rs.hasExecuted(id) {
			// A completed node is never re-executed within one run.
			continue
		}
		if rs.owned[id] {
			continue
		}
		node := rs.wf.FindNode(id)
		if node == nil {
			return nil, fmt.Errorf("walk reached unknown node %q", id)
		}
		if err := rs.reserveNode(settings.maxNodes); err != nil {
			return nil, err
		}
		payload := rs.assemblePayload(adj, node)
		out, err := e.executeNode(ctx, rs, settings, node, payload)
		if err != nil {
			return nil, err
		}
		port := e.routePort(node, out)
		rs.markExecuted(id, port)
		output = out
		for _, edge := range adj.Successors(id, port) {
			if rs.owned[edge.To] {
				continue
			}
			settings.emit(ctx, events.DataFlowing(rs.execID, edge.From, edge.To, out))
			if !rs.hasExecuted(edge.To) {
				queue = append(queue, edge.To)
			}
		}
	}
	return output, nil
}

// failedNodeID digs the failing node out of a wrapped execution error.
func failedNodeID(err error) string {
	var execErr *task.ExecutionError
	if errors.As(err, &execErr) {
		return execErr.NodeID
	}
	return ""
}
