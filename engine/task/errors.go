package task

import (
	"fmt"
)

// ErrorEntry is one recorded node failure in a run's error log. The log is
// append-only for the lifetime of the run; entries survive even when a
// continue-on-error construct swallows the failure itself.
type ErrorEntry struct {
	NodeID   string `json:"nodeId"`
	NodeType string `json:"nodeType"`
	Message  string `json:"message"`
}

// ExecutionError ties a task failure to the node and task type it happened
// in. The orchestrator relies on Unwrap to classify the underlying cause.
type ExecutionError struct {
	TaskType string `json:"taskType"`
	NodeID   string `json:"nodeId"`
	Message  string `json:"message"`
	Cause    error  `json:"-"`
}

// NewExecutionError wraps a failure with its node and task type.
func NewExecutionError(taskType, nodeID string, cause error) *ExecutionError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &ExecutionError{TaskType: taskType, NodeID: nodeID, Message: msg, Cause: cause}
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task %s failed at node %s: %s", e.TaskType, e.NodeID, e.Message)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}
