package task

import (
	"github.com/meshflow/meshflow/engine/schema"
)

// -----------------------------------------------------------------------------
// Config schema
// -----------------------------------------------------------------------------

// Schema is the structured description of a task's configuration. It is the
// source both for validation messages and for JSON Schema generation.
type Schema struct {
	Type       string                  `json:"type"`
	Properties map[string]PropertySpec `json:"properties,omitempty"`
	Required   []string                `json:"required,omitempty"`
}

// PropertySpec describes one configuration property.
type PropertySpec struct {
	Type        string        `json:"type"`
	Format      string        `json:"format,omitempty"`
	Description string        `json:"description,omitempty"`
	Default     any           `json:"default,omitempty"`
	Enum        []any         `json:"enum,omitempty"`
	Minimum     *float64      `json:"minimum,omitempty"`
	Maximum     *float64      `json:"maximum,omitempty"`
	MinLength   *int          `json:"minLength,omitempty"`
	MaxLength   *int          `json:"maxLength,omitempty"`
	Items       *PropertySpec `json:"items,omitempty"`
}

// JSONSchema renders the structured schema as a plain JSON Schema document.
func (s *Schema) JSONSchema() schema.Schema {
	if s == nil {
		return nil
	}
	out := schema.Schema{"type": "object"}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, spec := range s.Properties {
			props[name] = spec.jsonSchema()
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		required := make([]any, len(s.Required))
		for i, name := range s.Required {
			required[i] = name
		}
		out["required"] = required
	}
	return out
}

func (p PropertySpec) jsonSchema() map[string]any {
	out := map[string]any{}
	if p.Type != "" {
		out["type"] = p.Type
	}
	if p.Format != "" {
		out["format"] = p.Format
	}
	if p.Description != "" {
		out["description"] = p.Description
	}
	if p.Default != nil {
		out["default"] = p.Default
	}
	if len(p.Enum) > 0 {
		out["enum"] = p.Enum
	}
	if p.Minimum != nil {
		out["minimum"] = *p.Minimum
	}
	if p.Maximum != nil {
		out["maximum"] = *p.Maximum
	}
	if p.MinLength != nil {
		out["minLength"] = *p.MinLength
	}
	if p.MaxLength != nil {
		out["maxLength"] = *p.MaxLength
	}
	if p.Items != nil {
		out["items"] = p.Items.jsonSchema()
	}
	return out
}

// Float is a convenience for building bound pointers in property specs.
func Float(v float64) *float64 { return &v }

// Int is a convenience for building length pointers in property specs.
func Int(v int) *int { return &v }
