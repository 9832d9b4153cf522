package task

import (
	"context"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/workflow"
)

// -----------------------------------------------------------------------------
// Task contract
// -----------------------------------------------------------------------------

// Task is the contract every node implementation fulfills. A task is a
// stateless executor: all run-specific data arrives through Execute's input
// and all results leave through the returned output.
type Task interface {
	// Type returns the node type string this task handles, e.g. "conditional".
	Type() string
	// Validate checks a node's configuration before execution. It returns a
	// result carrying every problem found, not just the first.
	Validate(config core.Input) ValidationResult
	// Execute runs the task against the given input. The returned output is
	// stored as the node's result and routed to its successors.
	Execute(ctx context.Context, in *Input) (core.Output, error)
	// Schema describes the task's configuration and output shapes.
	Schema() *Schema
	// DisplayInfo returns UI metadata for catalogs and editors.
	DisplayInfo() DisplayInfo
}

// Router is implemented by tasks that choose an output port based on their
// result, such as conditional and switch. Tasks without Router route
// everything through the default port.
type Router interface {
	// SelectedPort returns the output port the given result should leave
	// through. An empty string means the default port.
	SelectedPort(out core.Output) string
}

// SubgraphOwner is implemented by tasks that run other nodes as a sub-graph,
// such as loop and parallel. The scheduler uses the returned node ids to
// exclude them from the top-level walk and to hand the owner a scoped runner.
type SubgraphOwner interface {
	// Subgraphs maps branch names to the node ids each branch executes.
	Subgraphs(config core.Input) map[string][]string
}

// ServiceTask is implemented by tasks that call out through the gateway.
// In dry-run mode the engine substitutes their execution with sample output
// instead of touching external systems.
type ServiceTask interface {
	// ToolName returns the gateway tool this task invokes.
	ToolName() string
}

// RawConfigProvider is implemented by tasks that render part of their own
// configuration. The engine skips template interpolation for the returned
// keys so the task sees the authored text.
type RawConfigProvider interface {
	// RawConfigKeys lists config keys the engine must not interpolate.
	RawConfigKeys() []string
}

// -----------------------------------------------------------------------------
// Execution input
// -----------------------------------------------------------------------------

// Input bundles everything a task receives for one node execution.
type Input struct {
	// Node is the workflow node being executed.
	Node *workflow.Node
	// Config is the node configuration after template interpolation.
	Config core.Input
	// Context gives the task scoped access to the shared execution state.
	Context ExecutionContext
	// Payload is the data flowing in from upstream nodes. For nodes with a
	// single inbound edge this is that node's output.
	Payload core.Output
}

// ExecutionContext is the view of the run a task may use. It is intentionally
// narrow: tasks observe results and shared data but never drive the walk.
type ExecutionContext interface {
	// ExecutionID identifies the current run.
	ExecutionID() core.ID
	// Workflow returns the document being executed.
	Workflow() *workflow.Config
	// NodeOutput returns the stored result of a node that already ran.
	NodeOutput(nodeID string) (core.Output, bool)
	// TriggerPayload returns the data the run was started with.
	TriggerPayload() core.Output
	// Variables returns a snapshot of the run-scoped mutable data bag.
	Variables() map[string]any
	// SetVariable writes to the run-scoped data bag.
	SetVariable(key string, value any)
	// MergeVariables folds a batch of writes into the run's data bag.
	// Subgraph owners use it to apply branch bags in a defined order.
	MergeVariables(vars map[string]any)
	// DryRun reports whether the run substitutes service calls with samples.
	DryRun() bool
	// RunSubgraph executes one owned branch on an isolated copy of the run
	// context. Only tasks implementing SubgraphOwner receive a context whose
	// branches are populated; calls name branches from Subgraphs.
	RunSubgraph(ctx context.Context, req *SubgraphRequest) (*SubgraphResult, error)
}

// SubgraphRequest describes one branch execution on behalf of an owner task.
type SubgraphRequest struct {
	// Branch names the child node list to run, as declared by Subgraphs.
	Branch string
	// Payload becomes the first child node's inbound data.
	Payload core.Output
	// Vars are seeded into the branch's isolated data bag, e.g. the loop
	// item and index.
	Vars map[string]any
}

// SubgraphResult is the outcome of one branch execution. Vars is the
// branch's final data bag; the owner decides if and when it merges back.
type SubgraphResult struct {
	Output        core.Output
	Vars          map[string]any
	NodesExecuted int
}

// -----------------------------------------------------------------------------
// Validation
// -----------------------------------------------------------------------------

// ValidationResult aggregates the outcome of validating one node config.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// OK returns a passing result.
func OK() ValidationResult {
	return ValidationResult{Valid: true}
}

// Invalid returns a failing result carrying the given problems.
func Invalid(errs ...string) ValidationResult {
	return ValidationResult{Valid: false, Errors: errs}
}

// Merge folds another result into this one. The combined result is valid
// only when both are.
func (r ValidationResult) Merge(other ValidationResult) ValidationResult {
	return ValidationResult{
		Valid:    r.Valid && other.Valid,
		Errors:   append(append([]string{}, r.Errors...), other.Errors...),
		Warnings: append(append([]string{}, r.Warnings...), other.Warnings...),
	}
}

// AddError appends a problem and marks the result invalid.
func (r *ValidationResult) AddError(msg string) {
	r.Valid = false
	r.Errors = append(r.Errors, msg)
}

// AddWarning appends a non-fatal observation.
func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
