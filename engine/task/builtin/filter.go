package builtin

import (
	"context"
	"fmt"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/expr"
	"github.com/meshflow/meshflow/engine/schema"
	"github.com/meshflow/meshflow/engine/task"
)

// Filter keeps the elements of an array that satisfy an expression or a
// field comparison. The kept elements are also written to the shared bag
// under "filteredArray" for downstream consumers.
type Filter struct {
	eval *expr.Evaluator
}

type filterConfig struct {
	Items      []any  `json:"items"`
	ItemsPath  string `json:"itemsPath"`
	Expression string `json:"expression"`
	Field      string `json:"field"`
	Operator   string `json:"operator"`
	Value      any    `json:"value"`
}

// NewFilter creates the filter task.
func NewFilter(eval *expr.Evaluator) *Filter {
	return &Filter{eval: eval}
}

func (f *Filter) Type() string { return TypeFilter }

func (f *Filter) Validate(config core.Input) task.ValidationResult {
	cfg, err := decodeConfig[filterConfig](config)
	if err != nil {
		return task.Invalid(err.Error())
	}
	result := task.OK()
	if cfg.Expression == "" && cfg.Field == "" && cfg.Operator == "" {
		result.AddError("either 'expression' or a field/operator comparison is required")
		return result
	}
	if cfg.Expression != "" {
		if err := f.eval.ValidateExpression(cfg.Expression); err != nil {
			result.AddError(err.Error())
		}
		return result
	}
	if cfg.Operator == "" {
		result.AddError("operator is required with 'field'")
	} else if !knownOperator(cfg.Operator) {
		result.AddError(fmt.Sprintf("unknown operator %q", cfg.Operator))
	}
	return result
}

func (f *Filter) Execute(ctx context.Context, in *task.Input) (core.Output, error) {
	cfg, err := decodeConfig[filterConfig](in.Config)
	if err != nil {
		return nil, err
	}
	items, err := resolveItems(in)
	if err != nil {
		return nil, err
	}
	kept := make([]any, 0, len(items))
	for index, item := range items {
		keep, err := f.keepItem(ctx, in, cfg, item, index)
		if err != nil {
			return nil, fmt.Errorf("filter failed at item %d: %w", index, err)
		}
		if keep {
			kept = append(kept, item)
		}
	}
	in.Context.SetVariable("filteredArray", kept)
	return core.Output{
		"items":   kept,
		"count":   len(kept),
		"removed": len(items) - len(kept),
	}, nil
}

func (f *Filter) keepItem(
	ctx context.Context,
	in *task.Input,
	cfg filterConfig,
	item any,
	index int,
) (bool, error) {
	if cfg.Expression != "" {
		return f.eval.Evaluate(ctx, cfg.Expression, itemScope(in, item, index))
	}
	return evaluateCondition(item, conditionEntry{
		Field:    cfg.Field,
		Operator: cfg.Operator,
		Value:    cfg.Value,
	})
}

func (f *Filter) Schema() *task.Schema {
	return &task.Schema{
		Type: TypeFilter,
		Properties: map[string]task.PropertySpec{
			"items":      {Type: "array", Description: "array literal to filter"},
			"itemsPath":  {Type: "string", Description: "dot path addressing the array to filter"},
			"expression": {Type: "string", Description: "boolean expression over item and index"},
			"field":      {Type: "string", Description: "dot path compared per item"},
			"operator": {
				Type: "string",
				Enum: []any{
					OpEquals, OpNotEquals, OpGreaterThan, OpLessThan,
					OpContains, OpExists, OpStartsWith, OpEndsWith,
				},
			},
			"value": {Description: "comparison operand"},
		},
	}
}

func (f *Filter) OutputSchema() schema.Schema {
	return schema.Schema{
		"type": "object",
		"properties": map[string]any{
			"items":   map[string]any{"type": "array"},
			"count":   map[string]any{"type": "integer"},
			"removed": map[string]any{"type": "integer"},
		},
		"required": []any{"items", "count"},
	}
}

func (f *Filter) DisplayInfo() task.DisplayInfo {
	return task.DisplayInfo{
		Category: task.CategoryData,
		Label:    "Filter",
		Icon:     "filter",
		Tags:     []string{"select", "where", "collection"},
	}
}
