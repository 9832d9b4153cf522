package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/expr"
	"github.com/meshflow/meshflow/engine/schema"
	"github.com/meshflow/meshflow/engine/task"
)

// Reduce operations.
const (
	ReduceSum    = "sum"
	ReduceAvg    = "avg"
	ReduceMin    = "min"
	ReduceMax    = "max"
	ReduceCount  = "count"
	ReduceConcat = "concat"
	ReduceCustom = "custom"
)

// Reduce folds an array into a single value. Numeric operations coerce
// non-numeric field values to 0; the custom operation evaluates an
// expression as a binary reducer over acc, item and index.
type Reduce struct {
	eval *expr.Evaluator
}

type reduceConfig struct {
	Items        []any  `json:"items"`
	ItemsPath    string `json:"itemsPath"`
	Operation    string `json:"operation"`
	Field        string `json:"field"`
	Separator    string `json:"separator"`
	Expression   string `json:"expression"`
	InitialValue any    `json:"initialValue"`
}

// NewReduce creates the reduce task.
func NewReduce(eval *expr.Evaluator) *Reduce {
	return &Reduce{eval: eval}
}

func (r *Reduce) Type() string { return TypeReduce }

func (r *Reduce) Validate(config core.Input) task.ValidationResult {
	cfg, err := decodeConfig[reduceConfig](config)
	if err != nil {
		return task.Invalid(err.Error())
	}
	result := task.OK()
	switch cfg.Operation {
	case ReduceSum, ReduceAvg, ReduceMin, ReduceMax, ReduceCount, ReduceConcat:
	case ReduceCustom:
		if cfg.Expression == "" {
			result.AddError("custom operation requires an 'expression'")
		} else if err := r.eval.ValidateExpression(cfg.Expression); err != nil {
			result.AddError(err.Error())
		}
	case "":
		result.AddError("operation is required")
	default:
		result.AddError(fmt.Sprintf("unknown operation %q", cfg.Operation))
	}
	return result
}

func (r *Reduce) Execute(ctx context.Context, in *task.Input) (core.Output, error) {
	cfg, err := decodeConfig[reduceConfig](in.Config)
	if err != nil {
		return nil, err
	}
	items, err := resolveItems(in)
	if err != nil {
		return nil, err
	}
	var result any
	switch cfg.Operation {
	case ReduceSum:
		result = r.sum(items, cfg.Field)
	case ReduceAvg:
		if len(items) == 0 {
			result = float64(0)
		} else {
			result = r.sum(items, cfg.Field) / float64(len(items))
		}
	case ReduceMin:
		result = r.extreme(items, cfg.Field, func(candidate, best float64) bool { return candidate < best })
	case ReduceMax:
		result = r.extreme(items, cfg.Field, func(candidate, best float64) bool { return candidate > best })
	case ReduceCount:
		result = len(items)
	case ReduceConcat:
		result = r.concat(items, cfg.Field, cfg.Separator)
	case ReduceCustom:
		result, err = r.custom(ctx, in, cfg, items)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown operation %q", cfg.Operation)
	}
	return core.Output{
		"result":    result,
		"operation": cfg.Operation,
		"count":     len(items),
	}, nil
}

// numericValue reads the aggregated field from one item. Non-numeric and
// absent values coerce to 0 per the aggregation contract.
func numericValue(item any, field string) float64 {
	value, found := lookupField(item, field)
	if !found {
		return 0
	}
	return core.AsFloat(value)
}

func (r *Reduce) sum(items []any, field string) float64 {
	total := float64(0)
	for _, item := range items {
		total += numericValue(item, field)
	}
	return total
}

func (r *Reduce) extreme(items []any, field string, better func(candidate, best float64) bool) float64 {
	if len(items) == 0 {
		return 0
	}
	best := numericValue(items[0], field)
	for _, item := range items[1:] {
		if candidate := numericValue(item, field); better(candidate, best) {
			best = candidate
		}
	}
	return best
}

func (r *Reduce) concat(items []any, field, separator string) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		value, found := lookupField(item, field)
		if !found {
			continue
		}
		parts = append(parts, core.AsString(value))
	}
	return strings.Join(parts, separator)
}

func (r *Reduce) custom(ctx context.Context, in *task.Input, cfg reduceConfig, items []any) (any, error) {
	acc := cfg.InitialValue
	for index, item := range items {
		scope := itemScope(in, item, index)
		// Numeric scalars widen to float64 so the fold stays closed under
		// CEL arithmetic: results come back as doubles, and CEL does not
		// mix int and double operands.
		scope["item"] = widenNumber(item)
		scope["acc"] = widenNumber(acc)
		value, err := r.eval.EvaluateValue(ctx, cfg.Expression, scope)
		if err != nil {
			return nil, fmt.Errorf("reduce expression failed at item %d: %w", index, err)
		}
		acc = value
	}
	return acc, nil
}

func widenNumber(v any) any {
	if isNumeric(v) {
		return core.AsFloat(v)
	}
	return v
}

func (r *Reduce) Schema() *task.Schema {
	return &task.Schema{
		Type: TypeReduce,
		Properties: map[string]task.PropertySpec{
			"items":     {Type: "array", Description: "array literal to fold"},
			"itemsPath": {Type: "string", Description: "dot path addressing the array to fold"},
			"operation": {
				Type: "string",
				Enum: []any{ReduceSum, ReduceAvg, ReduceMin, ReduceMax, ReduceCount, ReduceConcat, ReduceCustom},
			},
			"field":        {Type: "string", Description: "dot path aggregated per item"},
			"separator":    {Type: "string", Description: "joiner for the concat operation"},
			"expression":   {Type: "string", Description: "reducer over acc, item and index for the custom operation"},
			"initialValue": {Description: "starting accumulator for the custom operation"},
		},
		Required: []string{"operation"},
	}
}

func (r *Reduce) OutputSchema() schema.Schema {
	return schema.Schema{
		"type": "object",
		"properties": map[string]any{
			"result":    map[string]any{},
			"operation": map[string]any{"type": "string"},
			"count":     map[string]any{"type": "integer"},
		},
		"required": []any{"result", "operation", "count"},
	}
}

func (r *Reduce) DisplayInfo() task.DisplayInfo {
	return task.DisplayInfo{
		Category: task.CategoryData,
		Label:    "Reduce",
		Icon:     "sigma",
		Tags:     []string{"aggregate", "fold", "collection"},
	}
}
