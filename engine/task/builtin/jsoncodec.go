package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/pretty"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/schema"
	"github.com/meshflow/meshflow/engine/task"
	"github.com/meshflow/meshflow/pkg/tplengine"
)

// -----------------------------------------------------------------------------
// json_encode
// -----------------------------------------------------------------------------

// JSONEncode serializes a value to JSON text, optionally pretty-printed.
type JSONEncode struct{}

type jsonEncodeConfig struct {
	Pretty bool `json:"pretty"`
}

// NewJSONEncode creates the json_encode task.
func NewJSONEncode() *JSONEncode {
	return &JSONEncode{}
}

func (j *JSONEncode) Type() string { return TypeJSONEncode }

func (j *JSONEncode) Validate(config core.Input) task.ValidationResult {
	if _, err := decodeConfig[jsonEncodeConfig](config); err != nil {
		return task.Invalid(err.Error())
	}
	return task.OK()
}

func (j *JSONEncode) Execute(_ context.Context, in *task.Input) (core.Output, error) {
	cfg, err := decodeConfig[jsonEncodeConfig](in.Config)
	if err != nil {
		return nil, err
	}
	value := resolveData(in)
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	if cfg.Pretty {
		encoded = pretty.Pretty(encoded)
	}
	return core.Output{
		"result": string(encoded),
		"bytes":  len(encoded),
	}, nil
}

func (j *JSONEncode) Schema() *task.Schema {
	return &task.Schema{
		Type: TypeJSONEncode,
		Properties: map[string]task.PropertySpec{
			"data":     {Description: "value to serialize; defaults to the inbound payload"},
			"dataPath": {Type: "string", Description: "dot path addressing the value"},
			"pretty":   {Type: "boolean", Default: false},
		},
	}
}

func (j *JSONEncode) OutputSchema() schema.Schema {
	return schema.Schema{
		"type": "object",
		"properties": map[string]any{
			"result": map[string]any{"type": "string"},
			"bytes":  map[string]any{"type": "integer"},
		},
		"required": []any{"result", "bytes"},
	}
}

func (j *JSONEncode) DisplayInfo() task.DisplayInfo {
	return task.DisplayInfo{
		Category: task.CategoryData,
		Label:    "JSON Encode",
		Icon:     "braces",
		Tags:     []string{"serialize", "json"},
	}
}

// -----------------------------------------------------------------------------
// json_decode
// -----------------------------------------------------------------------------

// JSONDecode parses JSON text into a structured value, preserving numeric
// precision the same way template interpolation does.
type JSONDecode struct{}

// NewJSONDecode creates the json_decode task.
func NewJSONDecode() *JSONDecode {
	return &JSONDecode{}
}

func (j *JSONDecode) Type() string { return TypeJSONDecode }

func (j *JSONDecode) Validate(config core.Input) task.ValidationResult {
	result := task.OK()
	if raw, ok := config["data"]; ok {
		if _, isStr := raw.(string); !isStr {
			result.AddError(fmt.Sprintf("'data' must be a JSON string, got %T", raw))
		}
	}
	return result
}

func (j *JSONDecode) Execute(_ context.Context, in *task.Input) (core.Output, error) {
	value := resolveData(in)
	text, ok := value.(string)
	if !ok {
		// A payload map carrying the conventional result key is unwrapped so
		// an upstream json_encode chains directly into a decode.
		if m, isMap := value.(map[string]any); isMap {
			if s, isStr := m["result"].(string); isStr {
				text = s
				ok = true
			}
		}
	}
	if !ok {
		return nil, fmt.Errorf("no JSON text to decode: declare 'data' or feed a string through the inbound payload")
	}
	parsed, err := tplengine.ParseJSONPrecise(text)
	if err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return core.Output{"result": parsed}, nil
}

func (j *JSONDecode) Schema() *task.Schema {
	return &task.Schema{
		Type: TypeJSONDecode,
		Properties: map[string]task.PropertySpec{
			"data":     {Type: "string", Description: "JSON text to parse; defaults to the inbound payload"},
			"dataPath": {Type: "string", Description: "dot path addressing the text"},
		},
	}
}

func (j *JSONDecode) OutputSchema() schema.Schema {
	return schema.Schema{
		"type": "object",
		"properties": map[string]any{
			"result": map[string]any{"description": "parsed document"},
		},
		"required": []any{"result"},
	}
}

func (j *JSONDecode) DisplayInfo() task.DisplayInfo {
	return task.DisplayInfo{
		Category: task.CategoryData,
		Label:    "JSON Decode",
		Icon:     "braces",
		Tags:     []string{"parse", "json"},
	}
}
