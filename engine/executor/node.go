package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/events"
	"github.com/meshflow/meshflow/engine/task"
	"github.com/meshflow/meshflow/engine/workflow"
	"github.com/meshflow/meshflow/pkg/logger"
)

// -----------------------------------------------------------------------------
// Node lifecycle
// -----------------------------------------------------------------------------

// executeNode runs one node through the full lifecycle: state events around
// dispatch, result storage, the previous-result convention, and the error
// log on failure. Sub-graph children pass through here as well, so every
// node execution in a run observes the same protocol.
func (e *Executor) executeNode(
	ctx context.Context,
	rs *runState,
	settings *runSettings,
	node *workflow.Node,
	payload core.Output,
) (core.Output, error) {
	settings.emit(ctx, events.NodeStateChanged(
		rs.execID, node.ID, node.Type, core.StatePending, core.StateExecuting, 0,
	))
	start := time.Now()
	out, err := e.dispatch(ctx, rs, settings, node, payload)
	duration := time.Since(start)
	recordNodeExecution(ctx, node.Type, duration, err == nil)
	log := logger.FromContext(ctx)
	if err != nil {
		rs.appendError(task.ErrorEntry{NodeID: node.ID, NodeType: node.Type, Message: err.Error()})
		settings.emit(ctx, events.NodeStateChanged(
			rs.execID, node.ID, node.Type, core.StateExecuting, core.StateFailed, duration,
		))
		log.Error("Node execution failed", "node_id", node.ID, "node_type", node.Type, "error", err)
		return nil, task.NewExecutionError(node.Type, node.ID, err)
	}
	if out == nil {
		out = core.Output{}
	}
	rs.storeResult(node.ID, out)
	rs.setPreviousResult(out)
	settings.emit(ctx, events.NodeOutputProduced(rs.execID, node.ID, node.Type, out, duration))
	settings.emit(ctx, events.NodeStateChanged(
		rs.execID, node.ID, node.Type, core.StateExecuting, core.StateCompleted, duration,
	))
	log.Debug("Node completed", "node_id", node.ID, "node_type", node.Type, "duration", duration)
	return out, nil
}

// dispatch resolves the task, prepares its interpolated config and scoped
// context, and executes it. Dry runs substitute service tasks with sample
// output before Execute is reached.
func (e *Executor) dispatch(
	ctx context.Context,
	rs *runState,
	settings *runSettings,
	node *workflow.Node,
	payload core.Output,
) (core.Output, error) {
	t, err := e.registry.Get(node.Type)
	if err != nil {
		return nil, err
	}
	config, err := e.interpolateConfig(rs, t, node, payload)
	if err != nil {
		return nil, err
	}
	if result := t.Validate(config); !result.Valid {
		return nil, fmt.Errorf("config validation failed: %s", strings.Join(result.Errors, "; "))
	}
	if settings.mode == ModeDryRun {
		if _, ok := t.(task.ServiceTask); ok {
			return e.sampleOutput(settings, node.Type)
		}
	}
	nc := &nodeContext{exec: e, run: rs, settings: settings, node: node}
	if owner, ok := t.(task.SubgraphOwner); ok {
		nc.branches = owner.Subgraphs(config)
	}
	in := &task.Input{Node: node, Config: config, Context: nc, Payload: payload}
	return t.Execute(ctx, in)
}

// sampleOutput synthesizes a dry-run result for one service node: the
// declared sample output when present, otherwise a value generated from the
// declared output schema.
func (e *Executor) sampleOutput(settings *runSettings, nodeType string) (core.Output, error) {
	def, err := e.registry.Definition(nodeType)
	if err != nil {
		return nil, err
	}
	if len(def.SampleOutput) > 0 {
		out, err := core.DeepCopy(def.SampleOutput)
		if err != nil {
			return nil, fmt.Errorf("failed to copy sample output: %w", err)
		}
		return out, nil
	}
	if len(def.OutputSchema) > 0 {
		return settings.sampler.OutputFromSchema(def.OutputSchema)
	}
	return core.Output{}, nil
}

// interpolateConfig renders template expressions inside a node's raw config
// against the run scope. Keys a task declares as raw pass through verbatim;
// the task renders those itself once the right scope exists.
func (e *Executor) interpolateConfig(
	rs *runState,
	t task.Task,
	node *workflow.Node,
	payload core.Output,
) (core.Input, error) {
	if len(node.Config) == 0 {
		return node.Config, nil
	}
	var filter func(string) bool
	if provider, ok := t.(task.RawConfigProvider); ok {
		raw := make(map[string]bool)
		for _, key := range provider.RawConfigKeys() {
			raw[key] = true
		}
		filter = func(key string) bool { return raw[key] }
	}
	parsed, err := e.tpl.ParseAnyWithFilter(map[string]any(node.Config), rs.templateScope(payload), filter)
	if err != nil {
		return nil, fmt.Errorf("config interpolation failed: %w", err)
	}
	config, ok := parsed.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("config interpolation produced %T, want an object", parsed)
	}
	return core.Input(config), nil
}

// routePort asks a routing task which out-port its result selects. Tasks
// without routing, and empty selections, use the default port.
func (e *Executor) routePort(node *workflow.Node, out core.Output) string {
	t, err := e.registry.Get(node.Type)
	if err != nil {
		return workflow.DefaultPort
	}
	if router, ok := t.(task.Router); ok {
		if port := router.SelectedPort(out); port != "" {
			return port
		}
	}
	return workflow.DefaultPort
}

// ownedNodes collects every node id claimed by a sub-graph owner, so the
// top-level walk leaves them to their owners.
func (e *Executor) ownedNodes(wf *workflow.Config) map[string]bool {
	owned := make(map[string]bool)
	for i := range wf.Nodes {
		node := &wf.Nodes[i]
		t, err := e.registry.Get(node.Type)
		if err != nil {
			continue
		}
		owner, ok := t.(task.SubgraphOwner)
		if !ok {
			continue
		}
		for _, ids := range owner.Subgraphs(node.Config) {
			for _, id := range ids {
				owned[id] = true
			}
		}
	}
	return owned
}
