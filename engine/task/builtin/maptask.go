package builtin

import (
	"context"
	"fmt"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/expr"
	"github.com/meshflow/meshflow/engine/schema"
	"github.com/meshflow/meshflow/engine/task"
)

// Map projects each element of an array through an expression or a field
// extraction. The mapped array is also written to the shared bag under
// "mappedArray" for downstream consumers.
type Map struct {
	eval *expr.Evaluator
}

type mapConfig struct {
	Items      []any  `json:"items"`
	ItemsPath  string `json:"itemsPath"`
	Expression string `json:"expression"`
	Field      string `json:"field"`
}

// NewMap creates the map task.
func NewMap(eval *expr.Evaluator) *Map {
	return &Map{eval: eval}
}

func (m *Map) Type() string { return TypeMap }

func (m *Map) Validate(config core.Input) task.ValidationResult {
	cfg, err := decodeConfig[mapConfig](config)
	if err != nil {
		return task.Invalid(err.Error())
	}
	result := task.OK()
	if cfg.Expression == "" && cfg.Field == "" {
		result.AddError("either 'expression' or 'field' is required")
	}
	if cfg.Expression != "" {
		if err := m.eval.ValidateExpression(cfg.Expression); err != nil {
			result.AddError(err.Error())
		}
	}
	return result
}

func (m *Map) Execute(ctx context.Context, in *task.Input) (core.Output, error) {
	cfg, err := decodeConfig[mapConfig](in.Config)
	if err != nil {
		return nil, err
	}
	items, err := resolveItems(in)
	if err != nil {
		return nil, err
	}
	mapped := make([]any, 0, len(items))
	for index, item := range items {
		var value any
		switch {
		case cfg.Expression != "":
			value, err = m.eval.EvaluateValue(ctx, cfg.Expression, itemScope(in, item, index))
			if err != nil {
				return nil, fmt.Errorf("map expression failed at item %d: %w", index, err)
			}
		case cfg.Field != "":
			value, _ = lookupField(item, cfg.Field)
		default:
			return nil, fmt.Errorf("map node has neither 'expression' nor 'field'")
		}
		mapped = append(mapped, value)
	}
	in.Context.SetVariable("mappedArray", mapped)
	return core.Output{"items": mapped, "count": len(mapped)}, nil
}

func (m *Map) Schema() *task.Schema {
	return &task.Schema{
		Type: TypeMap,
		Properties: map[string]task.PropertySpec{
			"items":      {Type: "array", Description: "array literal to project"},
			"itemsPath":  {Type: "string", Description: "dot path addressing the array to project"},
			"expression": {Type: "string", Description: "per-item expression over item and index"},
			"field":      {Type: "string", Description: "dot path extracted from each item"},
		},
	}
}

func (m *Map) OutputSchema() schema.Schema {
	return schema.Schema{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{"type": "array"},
			"count": map[string]any{"type": "integer"},
		},
		"required": []any{"items", "count"},
	}
}

func (m *Map) DisplayInfo() task.DisplayInfo {
	return task.DisplayInfo{
		Category: task.CategoryData,
		Label:    "Map",
		Icon:     "shuffle",
		Tags:     []string{"project", "transform", "collection"},
	}
}
