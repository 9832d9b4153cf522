package events

import (
	"time"

	"github.com/meshflow/meshflow/engine/core"
)

// Kind enumerates the execution event categories surfaced to clients.
type Kind string

const (
	KindWorkflowStarted   Kind = "workflow.started"
	KindWorkflowCompleted Kind = "workflow.completed"
	KindWorkflowFailed    Kind = "workflow.failed"
	KindNodeStateChanged  Kind = "workflow.node.state_changed"
	KindNodeOutput        Kind = "workflow.node.output_produced"
	KindDataFlowing       Kind = "workflow.node.data_flowing"
)

// DefaultSource identifies the engine as the event producer.
const DefaultSource = "meshflow.engine"

// Event is one execution event before transport encoding. Detail carries the
// kind-specific payload.
type Event struct {
	Kind        Kind           `json:"kind"`
	ExecutionID core.ID        `json:"executionId"`
	Timestamp   time.Time      `json:"timestamp"`
	Source      string         `json:"source"`
	Detail      map[string]any `json:"detail"`
}

func newEvent(kind Kind, execID core.ID, detail map[string]any) Event {
	return Event{
		Kind:        kind,
		ExecutionID: execID,
		Timestamp:   time.Now().UTC(),
		Source:      DefaultSource,
		Detail:      detail,
	}
}

// WorkflowStarted marks the beginning of a run.
func WorkflowStarted(execID core.ID, workflowID string, nodeCount int) Event {
	return newEvent(KindWorkflowStarted, execID, map[string]any{
		"workflowId": workflowID,
		"nodeCount":  nodeCount,
	})
}

// WorkflowCompleted marks a successful run with its final result.
func WorkflowCompleted(execID core.ID, nodesExecuted int, result core.Output) Event {
	return newEvent(KindWorkflowCompleted, execID, map[string]any{
		"nodesExecuted": nodesExecuted,
		"result":        result,
	})
}

// WorkflowFailed marks an aborted run.
func WorkflowFailed(execID core.ID, err error) Event {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return newEvent(KindWorkflowFailed, execID, map[string]any{
		"error": msg,
	})
}

// NodeStateChanged records a node transition. Duration is only meaningful on
// transitions out of the executing state and is reported in milliseconds.
func NodeStateChanged(
	execID core.ID,
	nodeID, nodeType string,
	previous, current core.NodeState,
	duration time.Duration,
) Event {
	detail := map[string]any{
		"nodeId":        nodeID,
		"nodeType":      nodeType,
		"previousState": string(previous),
		"currentState":  string(current),
	}
	if duration > 0 {
		detail["duration"] = duration.Milliseconds()
	}
	return newEvent(KindNodeStateChanged, execID, detail)
}

// NodeOutputProduced records a node's result along with its run time.
func NodeOutputProduced(
	execID core.ID,
	nodeID, nodeType string,
	output core.Output,
	duration time.Duration,
) Event {
	return newEvent(KindNodeOutput, execID, map[string]any{
		"nodeId":   nodeID,
		"nodeType": nodeType,
		"output":   output,
		"duration": duration.Milliseconds(),
	})
}

// DataFlowing records data moving across one edge.
func DataFlowing(execID core.ID, fromNodeID, toNodeID string, data core.Output) Event {
	return newEvent(KindDataFlowing, execID, map[string]any{
		"fromNodeId": fromNodeID,
		"toNodeId":   toNodeID,
		"data":       data,
	})
}
