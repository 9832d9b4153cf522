package builtin

import (
	"context"
	"fmt"
	"sort"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/schema"
	"github.com/meshflow/meshflow/engine/task"
)

// Set writes named values into the run's shared data bag. Later nodes read
// them back through the vars scope.
type Set struct{}

type setConfig struct {
	Values map[string]any `json:"values"`
	Key    string         `json:"key"`
	Value  any            `json:"value"`
}

// NewSet creates the set task.
func NewSet() *Set {
	return &Set{}
}

func (s *Set) Type() string { return TypeSet }

func (s *Set) Validate(config core.Input) task.ValidationResult {
	cfg, err := decodeConfig[setConfig](config)
	if err != nil {
		return task.Invalid(err.Error())
	}
	result := task.OK()
	if len(cfg.Values) == 0 && cfg.Key == "" {
		result.AddError("either 'values' or 'key' is required")
	}
	return result
}

func (s *Set) Execute(_ context.Context, in *task.Input) (core.Output, error) {
	cfg, err := decodeConfig[setConfig](in.Config)
	if err != nil {
		return nil, err
	}
	if len(cfg.Values) == 0 && cfg.Key == "" {
		return nil, fmt.Errorf("either 'values' or 'key' is required")
	}
	written := make([]string, 0, len(cfg.Values)+1)
	for key, value := range cfg.Values {
		in.Context.SetVariable(key, value)
		written = append(written, key)
	}
	if cfg.Key != "" {
		in.Context.SetVariable(cfg.Key, cfg.Value)
		written = append(written, cfg.Key)
	}
	sort.Strings(written)
	keys := make([]any, len(written))
	for i, key := range written {
		keys[i] = key
	}
	return core.Output{"keys": keys, "count": len(keys)}, nil
}

func (s *Set) Schema() *task.Schema {
	return &task.Schema{
		Type: TypeSet,
		Properties: map[string]task.PropertySpec{
			"values": {Type: "object", Description: "key/value pairs written to the data bag"},
			"key":    {Type: "string", Description: "single key to write"},
			"value":  {Description: "value for 'key'"},
		},
	}
}

func (s *Set) OutputSchema() schema.Schema {
	return schema.Schema{
		"type": "object",
		"properties": map[string]any{
			"keys":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"count": map[string]any{"type": "integer"},
		},
		"required": []any{"keys", "count"},
	}
}

func (s *Set) DisplayInfo() task.DisplayInfo {
	return task.DisplayInfo{
		Category: task.CategoryData,
		Label:    "Set Variables",
		Icon:     "database",
		Tags:     []string{"state", "bag", "assign"},
	}
}
