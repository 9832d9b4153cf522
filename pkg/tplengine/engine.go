package tplengine

import (
	"bytes"
	"fmt"
	"maps"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"gopkg.in/yaml.v3"

	"github.com/meshflow/meshflow/engine/core"
)

// EngineFormat represents the format of the template engine output
type EngineFormat string

const (
	// FormatYAML represents YAML output format
	FormatYAML EngineFormat = "yaml"
	// FormatJSON represents JSON output format
	FormatJSON EngineFormat = "json"
	// FormatText represents plain text output format
	FormatText EngineFormat = "text"
)

// TemplateEngine renders {{ }} templates inside node configurations and
// template task bodies. Rendering uses missingkey=error so a reference to an
// absent value fails loudly instead of producing "<no value>".
type TemplateEngine struct {
	globalValues map[string]any
	format       EngineFormat
}

// ProcessResult contains the result of processing a template
type ProcessResult struct {
	Text string
	YAML any
	JSON any
}

// NewEngine creates a new template engine with the specified format
func NewEngine(format EngineFormat) *TemplateEngine {
	return &TemplateEngine{
		globalValues: make(map[string]any),
		format:       format,
	}
}

// WithFormat returns the engine configured for the specified format
func (e *TemplateEngine) WithFormat(format EngineFormat) *TemplateEngine {
	e.format = format
	return e
}

// AddGlobalValue adds a value available to every render
func (e *TemplateEngine) AddGlobalValue(name string, value any) {
	e.globalValues[name] = value
}

// HasTemplate returns true if the string contains template markers
func HasTemplate(template string) bool {
	return strings.Contains(template, "{{")
}

// RenderString renders a template string against the given context
func (e *TemplateEngine) RenderString(templateStr string, context map[string]any) (string, error) {
	if !HasTemplate(templateStr) {
		return templateStr, nil
	}
	tmpl, err := template.New("inline").
		Option("missingkey=error").
		Funcs(sprig.FuncMap()).
		Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}
	return e.renderTemplate(tmpl, context)
}

func (e *TemplateEngine) renderTemplate(tmpl *template.Template, context map[string]any) (string, error) {
	data := make(map[string]any, len(context)+len(e.globalValues))
	maps.Copy(data, context)
	maps.Copy(data, e.globalValues)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("template execution error: %w", err)
	}
	return buf.String(), nil
}

// ProcessString renders a template string and parses the result according to
// the engine format.
func (e *TemplateEngine) ProcessString(templateStr string, context map[string]any) (*ProcessResult, error) {
	rendered, err := e.RenderString(templateStr, context)
	if err != nil {
		return nil, err
	}
	result := &ProcessResult{Text: rendered}
	switch e.format {
	case FormatYAML:
		var yamlObj any
		if err := yaml.Unmarshal([]byte(rendered), &yamlObj); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		result.YAML = yamlObj
	case FormatJSON:
		jsonObj, err := ParseJSONPrecise(rendered)
		if err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
		result.JSON = jsonObj
	}
	return result, nil
}

// ParseAny walks a value and resolves any templates within it. Strings render
// against the context; maps and slices recurse. A string that is a single
// bare reference keeps the referenced value's type instead of flattening to
// text, so "{{ .nodes.fetch.output.items }}" stays a slice.
func (e *TemplateEngine) ParseAny(value any, data map[string]any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case string:
		return e.parseStringValue(v, data)
	case map[string]any:
		result := make(map[string]any, len(v))
		for k, val := range v {
			parsed, err := e.ParseAny(val, data)
			if err != nil {
				return nil, fmt.Errorf("failed to parse template in map key %s: %w", k, err)
			}
			result[k] = parsed
		}
		return result, nil
	case core.Input:
		parsed, err := e.ParseAny(map[string]any(v), data)
		if err != nil {
			return nil, err
		}
		return core.Input(parsed.(map[string]any)), nil
	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			parsed, err := e.ParseAny(val, data)
			if err != nil {
				return nil, fmt.Errorf("failed to parse template in array index %d: %w", i, err)
			}
			result[i] = parsed
		}
		return result, nil
	default:
		return v, nil
	}
}

// ParseAnyWithFilter behaves like ParseAny but leaves map keys matched by the
// filter untouched. Control-flow tasks use it to defer interpolation of
// per-item values until the item context exists.
func (e *TemplateEngine) ParseAnyWithFilter(
	value any,
	data map[string]any,
	filter func(k string) bool,
) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case string:
		return e.parseStringValue(v, data)
	case map[string]any:
		result := make(map[string]any, len(v))
		for k, val := range v {
			if filter != nil && filter(k) {
				result[k] = val
				continue
			}
			parsed, err := e.ParseAnyWithFilter(val, data, filter)
			if err != nil {
				return nil, fmt.Errorf("failed to parse template in map key %s: %w", k, err)
			}
			result[k] = parsed
		}
		return result, nil
	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			parsed, err := e.ParseAnyWithFilter(val, data, filter)
			if err != nil {
				return nil, fmt.Errorf("failed to parse template in array index %d: %w", i, err)
			}
			result[i] = parsed
		}
		return result, nil
	default:
		return v, nil
	}
}

func (e *TemplateEngine) parseStringValue(v string, data map[string]any) (any, error) {
	if !HasTemplate(v) {
		return v, nil
	}
	if isBareReference(v) {
		if obj, found := lookupReference(v, data); found {
			return normalizeReferenced(obj), nil
		}
	}
	rendered, err := e.RenderString(v, data)
	if err != nil {
		return nil, err
	}
	return coerceRendered(rendered), nil
}

// coerceRendered maps rendered text back onto structured values where the
// text is unambiguous: booleans, JSON documents and numbers round-trip.
func coerceRendered(rendered string) any {
	switch rendered {
	case "true":
		return true
	case "false":
		return false
	}
	trimmed := strings.TrimSpace(rendered)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if jsonObj, err := ParseJSONPrecise(trimmed); err == nil {
			return jsonObj
		}
	}
	return rendered
}

// isBareReference reports whether the whole string is a single {{ .path }}
// reference without pipelines or function calls.
func isBareReference(templateStr string) bool {
	trimmed := strings.TrimSpace(templateStr)
	if !strings.HasPrefix(trimmed, "{{") || !strings.HasSuffix(trimmed, "}}") {
		return false
	}
	if strings.Count(trimmed, "{{") != 1 || strings.Count(trimmed, "}}") != 1 {
		return false
	}
	content := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
	return strings.HasPrefix(content, ".") &&
		!strings.Contains(content, "|") &&
		!strings.Contains(content, " ")
}

// lookupReference traverses the data map along the reference path,
// preserving the original value type.
func lookupReference(templateStr string, data map[string]any) (any, bool) {
	trimmed := strings.TrimSpace(templateStr)
	content := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
	path := strings.TrimPrefix(content, ".")
	var current any = data
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		m, ok := asTraversable(current)
		if !ok {
			return nil, false
		}
		val, exists := m[part]
		if !exists {
			return nil, false
		}
		current = val
	}
	return current, true
}

func asTraversable(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case core.Input:
		return m, true
	case core.Output:
		return m, true
	case *core.Input:
		if m != nil {
			return *m, true
		}
	case *core.Output:
		if m != nil {
			return *m, true
		}
	}
	return nil, false
}

func normalizeReferenced(obj any) any {
	switch val := obj.(type) {
	case core.Input:
		return map[string]any(val)
	case core.Output:
		return map[string]any(val)
	case *core.Output:
		if val != nil {
			return map[string]any(*val)
		}
		return nil
	default:
		return obj
	}
}
