package builtin

import (
	"context"
	"maps"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/schema"
	"github.com/meshflow/meshflow/engine/task"
)

// -----------------------------------------------------------------------------
// trigger
// -----------------------------------------------------------------------------

// Trigger is the entry point of a run. It surfaces the trigger payload as its
// output so downstream nodes address it like any other node result.
type Trigger struct{}

// NewTrigger creates the trigger task.
func NewTrigger() *Trigger {
	return &Trigger{}
}

func (t *Trigger) Type() string { return TypeTrigger }

func (t *Trigger) Validate(_ core.Input) task.ValidationResult {
	return task.OK()
}

func (t *Trigger) Execute(_ context.Context, in *task.Input) (core.Output, error) {
	payload := in.Context.TriggerPayload()
	out := make(core.Output, len(payload))
	maps.Copy(out, payload)
	return out, nil
}

func (t *Trigger) Schema() *task.Schema {
	return &task.Schema{Type: TypeTrigger}
}

func (t *Trigger) OutputSchema() schema.Schema {
	return schema.Schema{
		"type":        "object",
		"description": "the payload the run was started with",
	}
}

func (t *Trigger) DisplayInfo() task.DisplayInfo {
	return task.DisplayInfo{
		Category: task.CategoryTrigger,
		Label:    "Trigger",
		Icon:     "play",
		Tags:     []string{"entry", "start"},
	}
}

// -----------------------------------------------------------------------------
// output
// -----------------------------------------------------------------------------

// OutputNode marks a terminal node. It passes the inbound payload through
// unchanged, or an explicit 'data' value when configured, so the run's final
// result is whatever reached it.
type OutputNode struct{}

// NewOutput creates the output task.
func NewOutput() *OutputNode {
	return &OutputNode{}
}

func (o *OutputNode) Type() string { return TypeOutput }

func (o *OutputNode) Validate(_ core.Input) task.ValidationResult {
	return task.OK()
}

func (o *OutputNode) Execute(_ context.Context, in *task.Input) (core.Output, error) {
	if data, ok := in.Config["data"]; ok {
		if m, isMap := data.(map[string]any); isMap {
			return core.Output(m), nil
		}
		return core.Output{"result": data}, nil
	}
	out := make(core.Output, len(in.Payload))
	maps.Copy(out, in.Payload)
	return out, nil
}

func (o *OutputNode) Schema() *task.Schema {
	return &task.Schema{
		Type: TypeOutput,
		Properties: map[string]task.PropertySpec{
			"data": {Description: "explicit final value; defaults to the inbound payload"},
		},
	}
}

func (o *OutputNode) OutputSchema() schema.Schema {
	return schema.Schema{
		"type":        "object",
		"description": "the data that reached this node",
	}
}

func (o *OutputNode) DisplayInfo() task.DisplayInfo {
	return task.DisplayInfo{
		Category: task.CategoryData,
		Label:    "Output",
		Icon:     "flag",
		Tags:     []string{"terminal", "result"},
	}
}
