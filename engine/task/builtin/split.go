package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/schema"
	"github.com/meshflow/meshflow/engine/task"
)

// Split divides a string into an array by separator, or chunks an array
// into fixed-size groups when chunkSize is set.
type Split struct{}

type splitConfig struct {
	Data      any    `json:"data"`
	DataPath  string `json:"dataPath"`
	Separator string `json:"separator"`
	ChunkSize int    `json:"chunkSize"`
	TrimSpace *bool  `json:"trimSpace"`
}

// NewSplit creates the split task.
func NewSplit() *Split {
	return &Split{}
}

func (s *Split) Type() string { return TypeSplit }

func (s *Split) Validate(config core.Input) task.ValidationResult {
	cfg, err := decodeConfig[splitConfig](config)
	if err != nil {
		return task.Invalid(err.Error())
	}
	result := task.OK()
	if cfg.ChunkSize < 0 {
		result.AddError("chunkSize must not be negative")
	}
	return result
}

func (s *Split) Execute(_ context.Context, in *task.Input) (core.Output, error) {
	cfg, err := decodeConfig[splitConfig](in.Config)
	if err != nil {
		return nil, err
	}
	data := cfg.Data
	if data == nil {
		data = resolveData(in)
	}
	if cfg.ChunkSize > 0 {
		return s.chunk(in, cfg, data)
	}
	text, ok := data.(string)
	if !ok {
		return nil, fmt.Errorf("split without chunkSize requires string data, got %T", data)
	}
	separator := cfg.Separator
	if separator == "" {
		separator = ","
	}
	trim := cfg.TrimSpace == nil || *cfg.TrimSpace
	parts := strings.Split(text, separator)
	items := make([]any, 0, len(parts))
	for _, part := range parts {
		if trim {
			part = strings.TrimSpace(part)
		}
		items = append(items, part)
	}
	return core.Output{"items": items, "count": len(items)}, nil
}

func (s *Split) chunk(in *task.Input, cfg splitConfig, data any) (core.Output, error) {
	arr, ok := toArray(data)
	if !ok {
		var err error
		arr, err = resolveItems(in)
		if err != nil {
			return nil, fmt.Errorf("chunking requires array data: %w", err)
		}
	}
	chunks := make([]any, 0, (len(arr)+cfg.ChunkSize-1)/cfg.ChunkSize)
	for start := 0; start < len(arr); start += cfg.ChunkSize {
		end := start + cfg.ChunkSize
		if end > len(arr) {
			end = len(arr)
		}
		chunks = append(chunks, arr[start:end])
	}
	return core.Output{"items": chunks, "count": len(chunks)}, nil
}

func (s *Split) Schema() *task.Schema {
	return &task.Schema{
		Type: TypeSplit,
		Properties: map[string]task.PropertySpec{
			"data":      {Description: "string to split or array to chunk"},
			"dataPath":  {Type: "string", Description: "dot path addressing the input"},
			"separator": {Type: "string", Default: ","},
			"chunkSize": {Type: "integer", Description: "group size; set to chunk an array instead of splitting a string"},
			"trimSpace": {Type: "boolean", Description: "trim whitespace around split parts", Default: true},
		},
	}
}

func (s *Split) OutputSchema() schema.Schema {
	return schema.Schema{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{"type": "array"},
			"count": map[string]any{"type": "integer"},
		},
		"required": []any{"items", "count"},
	}
}

func (s *Split) DisplayInfo() task.DisplayInfo {
	return task.DisplayInfo{
		Category: task.CategoryData,
		Label:    "Split",
		Icon:     "scissors",
		Tags:     []string{"divide", "chunk", "tokenize"},
	}
}
