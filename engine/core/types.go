package core

import (
	"encoding/json"
	"fmt"
)

// -----------------------------------------------------------------------------
// Input / Output
// -----------------------------------------------------------------------------

// Input is the free-form configuration or payload handed to a task.
type Input map[string]any

// Output is the JSON-serializable result produced by a task.
type Output map[string]any

// EnvMap carries environment values attached to a workflow document.
type EnvMap map[string]string

func (i Input) Prop(key string) any {
	if i == nil {
		return nil
	}
	return i[key]
}

// String renders the input as compact JSON, mainly for logs and errors.
func (i Input) String() string {
	b, err := json.Marshal(i)
	if err != nil {
		return ""
	}
	return string(b)
}

func (o Output) String() string {
	b, err := json.Marshal(o)
	if err != nil {
		return ""
	}
	return string(b)
}

// AsMap returns the output as a plain map, never nil.
func (o Output) AsMap() map[string]any {
	if o == nil {
		return map[string]any{}
	}
	return o
}

// -----------------------------------------------------------------------------
// Node State
// -----------------------------------------------------------------------------

// NodeState is the per-node execution state machine:
// pending -> executing -> {completed | failed}.
type NodeState string

const (
	StatePending   NodeState = "pending"
	StateExecuting NodeState = "executing"
	StateCompleted NodeState = "completed"
	StateFailed    NodeState = "failed"
)

func (s NodeState) String() string {
	return string(s)
}

// Terminal reports whether the state admits no further transitions.
func (s NodeState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// -----------------------------------------------------------------------------
// Run Status
// -----------------------------------------------------------------------------

// StatusType is the terminal status of a whole workflow run.
type StatusType string

const (
	StatusCompleted StatusType = "completed"
	StatusFailed    StatusType = "failed"
)

func (s StatusType) String() string {
	return string(s)
}

// -----------------------------------------------------------------------------
// Error
// -----------------------------------------------------------------------------

// Error codes attached to the serializable error envelope. The HTTP layer
// maps them onto response statuses.
const (
	ErrCodeValidation = "validation_error"
	ErrCodeNotFound   = "not_found"
	ErrCodeBadRequest = "bad_request"
	ErrCodeExecution  = "execution_error"
	ErrCodeInternal   = "internal_error"
)

// Error is the serializable error envelope carried in results and events.
type Error struct {
	Message string         `json:"message"           yaml:"message"           mapstructure:"message"`
	Code    string         `json:"code,omitempty"    yaml:"code,omitempty"    mapstructure:"code,omitempty"`
	Details map[string]any `json:"details,omitempty" yaml:"details,omitempty" mapstructure:"details,omitempty"`
}

func NewError(err error, code string, details map[string]any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Message: err.Error(), Code: code, Details: details}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}
