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

// Output ports a conditional node routes through.
const (
	PortTrue  = "true"
	PortFalse = "false"
)

// Logical connectors between condition entries.
const (
	LogicalAnd = "AND"
	LogicalOr  = "OR"
)

// Conditional evaluates either a single expression or an ordered condition
// list against its working data and routes the run through the "true" or
// "false" output port.
type Conditional struct {
	eval *expr.Evaluator
}

type conditionalConfig struct {
	Expression string           `json:"expression"`
	Conditions []conditionEntry `json:"conditions"`
}

// conditionEntry is one field comparison. LogicalOperator is the trailing
// connector combining this entry's cumulative result with the next entry.
type conditionEntry struct {
	Field           string `json:"field"`
	Operator        string `json:"operator"`
	Value           any    `json:"value"`
	LogicalOperator string `json:"logicalOperator"`
}

// NewConditional creates the conditional task.
func NewConditional(eval *expr.Evaluator) *Conditional {
	return &Conditional{eval: eval}
}

func (c *Conditional) Type() string { return TypeConditional }

func (c *Conditional) Validate(config core.Input) task.ValidationResult {
	cfg, err := decodeConfig[conditionalConfig](config)
	if err != nil {
		return task.Invalid(err.Error())
	}
	result := task.OK()
	if cfg.Expression == "" && len(cfg.Conditions) == 0 {
		result.AddError("either 'expression' or 'conditions' is required")
		return result
	}
	if cfg.Expression != "" {
		if err := c.eval.ValidateExpression(cfg.Expression); err != nil {
			result.AddError(err.Error())
		}
	}
	for i, cond := range cfg.Conditions {
		if cond.Operator == "" {
			result.AddError(fmt.Sprintf("conditions[%d]: operator is required", i))
			continue
		}
		if !knownOperator(cond.Operator) {
			result.AddError(fmt.Sprintf("conditions[%d]: unknown operator %q", i, cond.Operator))
		}
		switch strings.ToUpper(cond.LogicalOperator) {
		case "", LogicalAnd, LogicalOr:
		default:
			result.AddError(fmt.Sprintf("conditions[%d]: logicalOperator must be AND or OR", i))
		}
	}
	if cfg.Expression != "" && len(cfg.Conditions) > 0 {
		result.AddWarning("both 'expression' and 'conditions' set; conditions are ignored")
	}
	return result
}

func (c *Conditional) Execute(ctx context.Context, in *task.Input) (core.Output, error) {
	cfg, err := decodeConfig[conditionalConfig](in.Config)
	if err != nil {
		return nil, err
	}
	var matched bool
	switch {
	case cfg.Expression != "":
		matched, err = c.eval.Evaluate(ctx, cfg.Expression, evalScope(in))
		if err != nil {
			return nil, fmt.Errorf("condition expression failed: %w", err)
		}
	case len(cfg.Conditions) > 0:
		matched, err = foldConditions(resolveData(in), cfg.Conditions)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("conditional node has neither 'expression' nor 'conditions'")
	}
	branch := PortFalse
	if matched {
		branch = PortTrue
	}
	return core.Output{"branch": branch, "result": matched}, nil
}

// foldConditions combines entries left to right: each entry's trailing
// logical operator connects the cumulative result with the next entry.
func foldConditions(data any, conditions []conditionEntry) (bool, error) {
	result, err := evaluateCondition(data, conditions[0])
	if err != nil {
		return false, err
	}
	for i := 1; i < len(conditions); i++ {
		next, err := evaluateCondition(data, conditions[i])
		if err != nil {
			return false, err
		}
		if strings.EqualFold(conditions[i-1].LogicalOperator, LogicalOr) {
			result = result || next
		} else {
			result = result && next
		}
	}
	return result, nil
}

func evaluateCondition(data any, cond conditionEntry) (bool, error) {
	value, found := lookupField(data, cond.Field)
	if cond.Operator == OpExists {
		return found, nil
	}
	if !found {
		// Absent fields fail every comparison except notEquals.
		return cond.Operator == OpNotEquals, nil
	}
	return compareValues(cond.Operator, value, cond.Value)
}

// SelectedPort routes the walk through the chosen branch.
func (c *Conditional) SelectedPort(out core.Output) string {
	if branch, ok := out["branch"].(string); ok {
		return branch
	}
	return ""
}

func (c *Conditional) Schema() *task.Schema {
	return &task.Schema{
		Type: TypeConditional,
		Properties: map[string]task.PropertySpec{
			"expression": {
				Type:        "string",
				Description: "boolean expression deciding the branch",
			},
			"conditions": {
				Type:        "array",
				Description: "ordered field comparisons combined with trailing AND/OR connectors",
				Items:       &task.PropertySpec{Type: "object"},
			},
		},
	}
}

func (c *Conditional) OutputSchema() schema.Schema {
	return schema.Schema{
		"type": "object",
		"properties": map[string]any{
			"branch": map[string]any{"type": "string", "enum": []any{PortTrue, PortFalse}},
			"result": map[string]any{"type": "boolean"},
		},
		"required": []any{"branch", "result"},
	}
}

func (c *Conditional) DisplayInfo() task.DisplayInfo {
	return task.DisplayInfo{
		Category: task.CategoryControlFlow,
		Label:    "Conditional",
		Icon:     "git-branch",
		Tags:     []string{"branch", "if", "condition"},
	}
}
