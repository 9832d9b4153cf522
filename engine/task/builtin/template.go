package builtin

import (
	"context"
	"fmt"
	"maps"

	"gopkg.in/yaml.v3"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/schema"
	"github.com/meshflow/meshflow/engine/task"
	"github.com/meshflow/meshflow/pkg/tplengine"
)

// Template renders a template body against the run scope plus any literal
// variables declared on the node, optionally parsing the rendered text as
// JSON or YAML.
type Template struct {
	templates *tplengine.TemplateEngine
}

type templateConfig struct {
	Template  string         `json:"template"`
	Format    string         `json:"format"`
	Variables map[string]any `json:"variables"`
}

// NewTemplate creates the template task.
func NewTemplate(templates *tplengine.TemplateEngine) *Template {
	return &Template{templates: templates}
}

func (t *Template) Type() string { return TypeTemplate }

// RawConfigKeys keeps the template body out of config interpolation: the task
// renders it itself against the full scope.
func (t *Template) RawConfigKeys() []string {
	return []string{"template"}
}

func (t *Template) Validate(config core.Input) task.ValidationResult {
	cfg, err := decodeConfig[templateConfig](config)
	if err != nil {
		return task.Invalid(err.Error())
	}
	result := task.OK()
	if cfg.Template == "" {
		result.AddError("'template' is required")
	}
	switch cfg.Format {
	case "", string(tplengine.FormatText), string(tplengine.FormatJSON), string(tplengine.FormatYAML):
	default:
		result.AddError(fmt.Sprintf("unknown format %q", cfg.Format))
	}
	return result
}

func (t *Template) Execute(_ context.Context, in *task.Input) (core.Output, error) {
	cfg, err := decodeConfig[templateConfig](in.Config)
	if err != nil {
		return nil, err
	}
	if cfg.Template == "" {
		return nil, fmt.Errorf("'template' is required")
	}
	scope := evalScope(in)
	maps.Copy(scope, cfg.Variables)
	rendered, err := t.templates.RenderString(cfg.Template, scope)
	if err != nil {
		return nil, fmt.Errorf("template render failed: %w", err)
	}
	format := cfg.Format
	if format == "" {
		format = string(tplengine.FormatText)
	}
	out := core.Output{"format": format}
	switch format {
	case string(tplengine.FormatJSON):
		parsed, err := tplengine.ParseJSONPrecise(rendered)
		if err != nil {
			return nil, fmt.Errorf("rendered template is not valid JSON: %w", err)
		}
		out["result"] = parsed
	case string(tplengine.FormatYAML):
		var parsed any
		if err := yaml.Unmarshal([]byte(rendered), &parsed); err != nil {
			return nil, fmt.Errorf("rendered template is not valid YAML: %w", err)
		}
		out["result"] = parsed
	default:
		out["result"] = rendered
	}
	return out, nil
}

func (t *Template) Schema() *task.Schema {
	return &task.Schema{
		Type: TypeTemplate,
		Properties: map[string]task.PropertySpec{
			"template": {Type: "string", Description: "template body, rendered with sprig functions available"},
			"format": {
				Type:    "string",
				Enum:    []any{string(tplengine.FormatText), string(tplengine.FormatJSON), string(tplengine.FormatYAML)},
				Default: string(tplengine.FormatText),
			},
			"variables": {Type: "object", Description: "literal values merged over the render scope"},
		},
		Required: []string{"template"},
	}
}

func (t *Template) OutputSchema() schema.Schema {
	return schema.Schema{
		"type": "object",
		"properties": map[string]any{
			"result": map[string]any{"description": "rendered text, or the parsed document for json/yaml formats"},
			"format": map[string]any{"type": "string"},
		},
		"required": []any{"result", "format"},
	}
}

func (t *Template) DisplayInfo() task.DisplayInfo {
	return task.DisplayInfo{
		Category: task.CategoryData,
		Label:    "Template",
		Icon:     "file-text",
		Tags:     []string{"render", "sprig", "text"},
	}
}
