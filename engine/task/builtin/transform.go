package builtin

import (
	"context"
	"fmt"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/expr"
	"github.com/meshflow/meshflow/engine/schema"
	"github.com/meshflow/meshflow/engine/task"
)

// Transform reshapes a value, either through a single expression or through a
// mapping spec whose string leaves are expressions evaluated against the run
// scope. Nested objects in the spec recurse, everything else passes through
// verbatim.
type Transform struct {
	evaluator *expr.Evaluator
}

type transformConfig struct {
	Expression string         `json:"expression"`
	Mapping    map[string]any `json:"mapping"`
}

// NewTransform creates the transform task.
func NewTransform(evaluator *expr.Evaluator) *Transform {
	return &Transform{evaluator: evaluator}
}

func (t *Transform) Type() string { return TypeTransform }

func (t *Transform) Validate(config core.Input) task.ValidationResult {
	cfg, err := decodeConfig[transformConfig](config)
	if err != nil {
		return task.Invalid(err.Error())
	}
	result := task.OK()
	if cfg.Expression == "" && len(cfg.Mapping) == 0 {
		result.AddError("either 'expression' or 'mapping' is required")
	}
	if cfg.Expression != "" {
		if err := t.evaluator.ValidateExpression(cfg.Expression); err != nil {
			result.AddError(fmt.Sprintf("invalid expression: %v", err))
		}
	}
	if err := t.validateMapping(cfg.Mapping, ""); err != nil {
		result.AddError(err.Error())
	}
	return result
}

func (t *Transform) validateMapping(mapping map[string]any, prefix string) error {
	for key, value := range mapping {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		switch leaf := value.(type) {
		case string:
			if err := t.evaluator.ValidateExpression(leaf); err != nil {
				return fmt.Errorf("invalid mapping expression at %q: %w", path, err)
			}
		case map[string]any:
			if err := t.validateMapping(leaf, path); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Transform) Execute(ctx context.Context, in *task.Input) (core.Output, error) {
	cfg, err := decodeConfig[transformConfig](in.Config)
	if err != nil {
		return nil, err
	}
	scope := evalScope(in)
	if cfg.Expression != "" {
		value, err := t.evaluator.EvaluateValue(ctx, cfg.Expression, scope)
		if err != nil {
			return nil, fmt.Errorf("transform expression failed: %w", err)
		}
		return core.Output{"result": value}, nil
	}
	if len(cfg.Mapping) == 0 {
		return nil, fmt.Errorf("either 'expression' or 'mapping' is required")
	}
	mapped, err := t.applyMapping(ctx, cfg.Mapping, scope, "")
	if err != nil {
		return nil, err
	}
	return core.Output{"result": mapped}, nil
}

func (t *Transform) applyMapping(
	ctx context.Context,
	mapping map[string]any,
	scope map[string]any,
	prefix string,
) (map[string]any, error) {
	out := make(map[string]any, len(mapping))
	for key, value := range mapping {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		switch leaf := value.(type) {
		case string:
			resolved, err := t.evaluator.EvaluateValue(ctx, leaf, scope)
			if err != nil {
				return nil, fmt.Errorf("mapping %q failed: %w", path, err)
			}
			out[key] = resolved
		case map[string]any:
			nested, err := t.applyMapping(ctx, leaf, scope, path)
			if err != nil {
				return nil, err
			}
			out[key] = nested
		default:
			out[key] = leaf
		}
	}
	return out, nil
}

func (t *Transform) Schema() *task.Schema {
	return &task.Schema{
		Type: TypeTransform,
		Properties: map[string]task.PropertySpec{
			"expression": {Type: "string", Description: "expression producing the transformed value"},
			"mapping":    {Type: "object", Description: "output shape whose string leaves are expressions"},
		},
	}
}

func (t *Transform) OutputSchema() schema.Schema {
	return schema.Schema{
		"type": "object",
		"properties": map[string]any{
			"result": map[string]any{"description": "transformed value"},
		},
		"required": []any{"result"},
	}
}

func (t *Transform) DisplayInfo() task.DisplayInfo {
	return task.DisplayInfo{
		Category: task.CategoryData,
		Label:    "Transform",
		Icon:     "wand",
		Tags:     []string{"reshape", "expression", "mapping"},
	}
}
