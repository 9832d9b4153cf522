package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/schema"
	"github.com/meshflow/meshflow/engine/task"
)

// ValidateData checks a document against an inline JSON Schema. Violations
// surface in the output as field/message pairs; with failOnInvalid (the
// default) an invalid document fails the node instead.
type ValidateData struct{}

type validateConfig struct {
	Schema        map[string]any `json:"schema"`
	FailOnInvalid *bool          `json:"failOnInvalid"`
}

// NewValidate creates the validate task.
func NewValidate() *ValidateData {
	return &ValidateData{}
}

func (v *ValidateData) Type() string { return TypeValidate }

func (v *ValidateData) Validate(config core.Input) task.ValidationResult {
	cfg, err := decodeConfig[validateConfig](config)
	if err != nil {
		return task.Invalid(err.Error())
	}
	result := task.OK()
	if len(cfg.Schema) == 0 {
		result.AddError("'schema' is required")
		return result
	}
	s := schema.Schema(cfg.Schema)
	if _, err := s.Compile(); err != nil {
		result.AddError(fmt.Sprintf("invalid schema: %v", err))
	}
	return result
}

func (v *ValidateData) Execute(_ context.Context, in *task.Input) (core.Output, error) {
	cfg, err := decodeConfig[validateConfig](in.Config)
	if err != nil {
		return nil, err
	}
	if len(cfg.Schema) == 0 {
		return nil, fmt.Errorf("'schema' is required")
	}
	s := schema.Schema(cfg.Schema)
	compiled, err := s.Compile()
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	doc := resolveData(in)
	result := compiled.Validate(doc)
	fieldErrors := schema.CollectErrors(result)
	violations := make([]any, 0, len(fieldErrors))
	messages := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		violations = append(violations, map[string]any{
			"field":   fe.Field,
			"message": fe.Message,
		})
		messages = append(messages, fe.String())
	}
	failOnInvalid := cfg.FailOnInvalid == nil || *cfg.FailOnInvalid
	if !result.Valid && failOnInvalid {
		return nil, fmt.Errorf("validation failed: %s", strings.Join(messages, "; "))
	}
	return core.Output{
		"valid":      result.Valid,
		"errors":     violations,
		"errorCount": len(violations),
	}, nil
}

func (v *ValidateData) Schema() *task.Schema {
	return &task.Schema{
		Type: TypeValidate,
		Properties: map[string]task.PropertySpec{
			"schema":   {Type: "object", Description: "JSON Schema the document must satisfy"},
			"data":     {Description: "document to validate; defaults to the inbound payload"},
			"dataPath": {Type: "string", Description: "dot path addressing the document"},
			"failOnInvalid": {
				Type:        "boolean",
				Default:     true,
				Description: "fail the node on violations instead of reporting them",
			},
		},
		Required: []string{"schema"},
	}
}

func (v *ValidateData) OutputSchema() schema.Schema {
	return schema.Schema{
		"type": "object",
		"properties": map[string]any{
			"valid": map[string]any{"type": "boolean"},
			"errors": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"field":   map[string]any{"type": "string"},
						"message": map[string]any{"type": "string"},
					},
				},
			},
			"errorCount": map[string]any{"type": "integer"},
		},
		"required": []any{"valid", "errors", "errorCount"},
	}
}

func (v *ValidateData) DisplayInfo() task.DisplayInfo {
	return task.DisplayInfo{
		Category: task.CategoryData,
		Label:    "Validate",
		Icon:     "shield-check",
		Tags:     []string{"schema", "check", "quality"},
	}
}
