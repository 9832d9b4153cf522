package builtin

import (
	"context"
	"fmt"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/expr"
	"github.com/meshflow/meshflow/engine/schema"
	"github.com/meshflow/meshflow/engine/task"
)

const (
	defaultLoopIterations = 100
	// maxLoopIterations is the hard ceiling no configuration can raise.
	maxLoopIterations = 10000
)

// SubgraphBody names the single branch a loop or retry node owns.
const SubgraphBody = "body"

// Loop iterates an array and processes each item, either by running its
// owned body sub-graph with the item in scope or by evaluating a per-item
// expression. continueOnError decides whether a failing item aborts the
// loop or is recorded and skipped.
type Loop struct {
	eval *expr.Evaluator
}

type loopConfig struct {
	Items           []any    `json:"items"`
	ItemsPath       string   `json:"itemsPath"`
	MaxIterations   int      `json:"maxIterations"`
	ContinueOnError bool     `json:"continueOnError"`
	Nodes           []string `json:"nodes"`
	Expression      string   `json:"expression"`
}

// NewLoop creates the loop task.
func NewLoop(eval *expr.Evaluator) *Loop {
	return &Loop{eval: eval}
}

func (l *Loop) Type() string { return TypeLoop }

func (l *Loop) Validate(config core.Input) task.ValidationResult {
	cfg, err := decodeConfig[loopConfig](config)
	if err != nil {
		return task.Invalid(err.Error())
	}
	result := task.OK()
	if cfg.MaxIterations < 0 {
		result.AddError("maxIterations must not be negative")
	}
	if cfg.MaxIterations > maxLoopIterations {
		result.AddError(fmt.Sprintf("maxIterations exceeds the hard cap of %d", maxLoopIterations))
	}
	if cfg.Expression != "" {
		if err := l.eval.ValidateExpression(cfg.Expression); err != nil {
			result.AddError(err.Error())
		}
	}
	if len(cfg.Nodes) > 0 && cfg.Expression != "" {
		result.AddWarning("both 'nodes' and 'expression' set; the body sub-graph wins")
	}
	return result
}

// Subgraphs declares the loop body child nodes.
func (l *Loop) Subgraphs(config core.Input) map[string][]string {
	cfg, err := decodeConfig[loopConfig](config)
	if err != nil || len(cfg.Nodes) == 0 {
		return nil
	}
	return map[string][]string{SubgraphBody: cfg.Nodes}
}

func (l *Loop) Execute(ctx context.Context, in *task.Input) (core.Output, error) {
	cfg, err := decodeConfig[loopConfig](in.Config)
	if err != nil {
		return nil, err
	}
	items, err := resolveItems(in)
	if err != nil {
		return nil, err
	}
	limit := cfg.MaxIterations
	if limit <= 0 {
		limit = defaultLoopIterations
	}
	if limit > maxLoopIterations {
		limit = maxLoopIterations
	}
	if len(items) > limit {
		items = items[:limit]
	}

	processed, failed := 0, 0
	results := make([]any, 0, len(items))
	var itemErrors []any
	for index, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("loop canceled at item %d: %w", index, err)
		}
		value, err := l.processItem(ctx, in, cfg, item, index)
		if err != nil {
			failed++
			if !cfg.ContinueOnError {
				return nil, fmt.Errorf("loop item %d failed: %w", index, err)
			}
			itemErrors = append(itemErrors, map[string]any{"index": index, "error": err.Error()})
			continue
		}
		processed++
		results = append(results, value)
	}
	return core.Output{
		"processed": processed,
		"failed":    failed,
		"results":   results,
		"errors":    itemErrors,
	}, nil
}

// processItem handles one element: the body sub-graph when the loop owns
// child nodes, a per-item expression otherwise, and identity as the final
// fallback so a bare loop still aggregates its input.
func (l *Loop) processItem(
	ctx context.Context,
	in *task.Input,
	cfg loopConfig,
	item any,
	index int,
) (any, error) {
	if len(cfg.Nodes) > 0 {
		res, err := in.Context.RunSubgraph(ctx, &task.SubgraphRequest{
			Branch:  SubgraphBody,
			Payload: core.Output{"item": item, "index": index},
			Vars:    map[string]any{"item": item, "index": index},
		})
		if err != nil {
			return nil, err
		}
		in.Context.MergeVariables(res.Vars)
		return map[string]any(res.Output), nil
	}
	if cfg.Expression != "" {
		return l.eval.EvaluateValue(ctx, cfg.Expression, itemScope(in, item, index))
	}
	return item, nil
}

func (l *Loop) Schema() *task.Schema {
	return &task.Schema{
		Type: TypeLoop,
		Properties: map[string]task.PropertySpec{
			"items":     {Type: "array", Description: "array literal to iterate"},
			"itemsPath": {Type: "string", Description: "dot path addressing the array to iterate"},
			"maxIterations": {
				Type:        "integer",
				Description: "iteration ceiling",
				Default:     defaultLoopIterations,
				Maximum:     task.Float(maxLoopIterations),
			},
			"continueOnError": {
				Type:        "boolean",
				Description: "record per-item failures and keep iterating",
				Default:     false,
			},
			"nodes": {
				Type:        "array",
				Description: "child node ids forming the loop body",
				Items:       &task.PropertySpec{Type: "string"},
			},
			"expression": {Type: "string", Description: "per-item expression when no body is declared"},
		},
	}
}

func (l *Loop) OutputSchema() schema.Schema {
	return schema.Schema{
		"type": "object",
		"properties": map[string]any{
			"processed": map[string]any{"type": "integer"},
			"failed":    map[string]any{"type": "integer"},
			"results":   map[string]any{"type": "array"},
			"errors":    map[string]any{"type": "array"},
		},
		"required": []any{"processed", "failed", "results"},
	}
}

func (l *Loop) DisplayInfo() task.DisplayInfo {
	return task.DisplayInfo{
		Category: task.CategoryControlFlow,
		Label:    "Loop",
		Icon:     "repeat",
		Tags:     []string{"iterate", "foreach", "collection"},
	}
}
