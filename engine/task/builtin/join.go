package builtin

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/schema"
	"github.com/meshflow/meshflow/engine/task"
)

// Keyed join types.
const (
	JoinInner = "inner"
	JoinLeft  = "left"
)

// Join concatenates an array into a string with a separator, or performs a
// keyed join of two arrays of objects. Declaring left/right inputs selects
// the keyed mode.
type Join struct{}

type joinConfig struct {
	Data      []any  `json:"data"`
	DataPath  string `json:"dataPath"`
	Separator string `json:"separator"`

	Left      []any  `json:"left"`
	LeftPath  string `json:"leftPath"`
	Right     []any  `json:"right"`
	RightPath string `json:"rightPath"`
	LeftKey   string `json:"leftKey"`
	RightKey  string `json:"rightKey"`
	JoinType  string `json:"joinType"`
}

// NewJoin creates the join task.
func NewJoin() *Join {
	return &Join{}
}

func (j *Join) Type() string { return TypeJoin }

func (j *Join) keyedMode(cfg joinConfig) bool {
	return cfg.Left != nil || cfg.LeftPath != "" || cfg.Right != nil || cfg.RightPath != ""
}

func (j *Join) Validate(config core.Input) task.ValidationResult {
	cfg, err := decodeConfig[joinConfig](config)
	if err != nil {
		return task.Invalid(err.Error())
	}
	result := task.OK()
	if !j.keyedMode(cfg) {
		return result
	}
	if cfg.LeftKey == "" {
		result.AddError("keyed join requires 'leftKey'")
	}
	switch cfg.JoinType {
	case "", JoinInner, JoinLeft:
	default:
		result.AddError(fmt.Sprintf("unknown joinType %q", cfg.JoinType))
	}
	return result
}

func (j *Join) Execute(_ context.Context, in *task.Input) (core.Output, error) {
	cfg, err := decodeConfig[joinConfig](in.Config)
	if err != nil {
		return nil, err
	}
	if j.keyedMode(cfg) {
		return j.keyedJoin(in, cfg)
	}
	return j.concatJoin(in, cfg)
}

func (j *Join) concatJoin(in *task.Input, cfg joinConfig) (core.Output, error) {
	items := cfg.Data
	if items == nil {
		resolved, err := resolveItems(in)
		if err != nil {
			return nil, err
		}
		items = resolved
	}
	separator := cfg.Separator
	if separator == "" {
		separator = ","
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = core.AsString(item)
	}
	return core.Output{
		"result": strings.Join(parts, separator),
		"count":  len(items),
	}, nil
}

func (j *Join) keyedJoin(in *task.Input, cfg joinConfig) (core.Output, error) {
	left, err := sideItems(in, cfg.Left, cfg.LeftPath, "left")
	if err != nil {
		return nil, err
	}
	right, err := sideItems(in, cfg.Right, cfg.RightPath, "right")
	if err != nil {
		return nil, err
	}
	rightKey := cfg.RightKey
	if rightKey == "" {
		rightKey = cfg.LeftKey
	}

	// Index the right side; on duplicate keys the first occurrence wins.
	rightIndex := make(map[string]map[string]any, len(right))
	for _, item := range right {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		key, found := lookupField(m, rightKey)
		if !found {
			continue
		}
		keyStr := core.AsString(key)
		if _, exists := rightIndex[keyStr]; !exists {
			rightIndex[keyStr] = m
		}
	}

	joined := make([]any, 0, len(left))
	for _, item := range left {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		key, found := lookupField(m, cfg.LeftKey)
		if !found {
			if cfg.JoinType == JoinLeft {
				joined = append(joined, maps.Clone(m))
			}
			continue
		}
		match, matched := rightIndex[core.AsString(key)]
		if !matched && cfg.JoinType != JoinLeft {
			continue
		}
		merged := maps.Clone(m)
		if matched {
			// Left-side values win on key collisions.
			for k, v := range match {
				if _, exists := merged[k]; !exists {
					merged[k] = v
				}
			}
		}
		joined = append(joined, merged)
	}
	return core.Output{"items": joined, "count": len(joined)}, nil
}

func sideItems(in *task.Input, literal []any, path, side string) ([]any, error) {
	if literal != nil {
		return literal, nil
	}
	if path == "" {
		return nil, fmt.Errorf("keyed join requires the %s side as a literal or a path", side)
	}
	value, err := core.ResolvePath(evalScope(in), path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s side: %w", side, err)
	}
	arr, ok := toArray(value)
	if !ok {
		return nil, fmt.Errorf("%s side path %q does not address an array", side, path)
	}
	return arr, nil
}

func (j *Join) Schema() *task.Schema {
	return &task.Schema{
		Type: TypeJoin,
		Properties: map[string]task.PropertySpec{
			"data":      {Type: "array", Description: "array joined into a string"},
			"dataPath":  {Type: "string", Description: "dot path addressing the array to join"},
			"separator": {Type: "string", Default: ","},
			"left":      {Type: "array", Description: "left side of a keyed join"},
			"leftPath":  {Type: "string"},
			"right":     {Type: "array", Description: "right side of a keyed join"},
			"rightPath": {Type: "string"},
			"leftKey":   {Type: "string", Description: "key field on the left side"},
			"rightKey":  {Type: "string", Description: "key field on the right side, defaults to leftKey"},
			"joinType":  {Type: "string", Enum: []any{JoinInner, JoinLeft}, Default: JoinInner},
		},
	}
}

func (j *Join) OutputSchema() schema.Schema {
	return schema.Schema{
		"type": "object",
		"properties": map[string]any{
			"result": map[string]any{"type": "string"},
			"items":  map[string]any{"type": "array"},
			"count":  map[string]any{"type": "integer"},
		},
		"required": []any{"count"},
	}
}

func (j *Join) DisplayInfo() task.DisplayInfo {
	return task.DisplayInfo{
		Category: task.CategoryData,
		Label:    "Join",
		Icon:     "merge",
		Tags:     []string{"concat", "combine", "collection"},
	}
}
