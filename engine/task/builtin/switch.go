package builtin

import (
	"context"
	"fmt"
	"regexp"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/schema"
	"github.com/meshflow/meshflow/engine/task"
)

// Case match types.
const (
	MatchExact    = "exact"
	MatchContains = "contains"
	MatchRegex    = "regex"
	MatchRange    = "range"
)

// Switch matches a value against an ordered case list and routes the run
// through the first matching case's output port. First match wins; the
// default case catches everything else, and a value with no match and no
// default is a hard error.
type Switch struct{}

type switchConfig struct {
	SwitchValue any          `json:"switchValue"`
	SwitchField string       `json:"switchField"`
	Cases       []switchCase `json:"cases"`
	DefaultCase string       `json:"defaultCase"`
}

type switchCase struct {
	Value     any      `json:"value"`
	MatchType string   `json:"matchType"`
	Output    string   `json:"output"`
	RangeMin  *float64 `json:"rangeMin"`
	RangeMax  *float64 `json:"rangeMax"`
}

// NewSwitch creates the switch task.
func NewSwitch() *Switch {
	return &Switch{}
}

func (s *Switch) Type() string { return TypeSwitch }

func (s *Switch) Validate(config core.Input) task.ValidationResult {
	cfg, err := decodeConfig[switchConfig](config)
	if err != nil {
		return task.Invalid(err.Error())
	}
	result := task.OK()
	if len(cfg.Cases) == 0 {
		result.AddError("at least one case is required")
	}
	for i, c := range cfg.Cases {
		if c.Output == "" {
			result.AddError(fmt.Sprintf("cases[%d]: output is required", i))
		}
		switch c.MatchType {
		case "", MatchExact, MatchContains:
		case MatchRegex:
			if _, err := regexp.Compile(core.AsString(c.Value)); err != nil {
				result.AddError(fmt.Sprintf("cases[%d]: invalid pattern: %v", i, err))
			}
		case MatchRange:
			if c.RangeMin == nil && c.RangeMax == nil {
				result.AddError(fmt.Sprintf("cases[%d]: range match requires rangeMin or rangeMax", i))
			}
		default:
			result.AddError(fmt.Sprintf("cases[%d]: unknown matchType %q", i, c.MatchType))
		}
	}
	if cfg.DefaultCase == "" {
		result.AddWarning("no defaultCase: unmatched values abort the run")
	}
	return result
}

func (s *Switch) Execute(_ context.Context, in *task.Input) (core.Output, error) {
	cfg, err := decodeConfig[switchConfig](in.Config)
	if err != nil {
		return nil, err
	}
	value := cfg.SwitchValue
	if cfg.SwitchField != "" {
		resolved, found := lookupField(resolveData(in), cfg.SwitchField)
		if !found {
			return nil, fmt.Errorf("switchField %q not found in input data", cfg.SwitchField)
		}
		value = resolved
	}
	for i, c := range cfg.Cases {
		matched, err := matchCase(value, c)
		if err != nil {
			return nil, fmt.Errorf("cases[%d]: %w", i, err)
		}
		if matched {
			return core.Output{"output": c.Output, "matched": true, "value": value}, nil
		}
	}
	if cfg.DefaultCase != "" {
		return core.Output{"output": cfg.DefaultCase, "matched": false, "value": value}, nil
	}
	return nil, fmt.Errorf("no case matched value %v and no defaultCase is set", value)
}

func matchCase(value any, c switchCase) (bool, error) {
	switch c.MatchType {
	case "", MatchExact:
		return looseEqual(value, c.Value), nil
	case MatchContains:
		return containsValue(value, c.Value), nil
	case MatchRegex:
		re, err := regexp.Compile(core.AsString(c.Value))
		if err != nil {
			return false, fmt.Errorf("invalid pattern: %w", err)
		}
		return re.MatchString(core.AsString(value)), nil
	case MatchRange:
		f := core.AsFloat(value)
		if c.RangeMin != nil && f < *c.RangeMin {
			return false, nil
		}
		if c.RangeMax != nil && f > *c.RangeMax {
			return false, nil
		}
		return true, nil
	default:
		return false, fmt.Errorf("unknown matchType %q", c.MatchType)
	}
}

// SelectedPort routes the walk through the matched case's output.
func (s *Switch) SelectedPort(out core.Output) string {
	if port, ok := out["output"].(string); ok {
		return port
	}
	return ""
}

func (s *Switch) Schema() *task.Schema {
	return &task.Schema{
		Type: TypeSwitch,
		Properties: map[string]task.PropertySpec{
			"switchValue": {Description: "literal value to match"},
			"switchField": {Type: "string", Description: "dot path into the input data to match"},
			"cases": {
				Type:        "array",
				Description: "ordered cases; first match wins",
				Items:       &task.PropertySpec{Type: "object"},
			},
			"defaultCase": {Type: "string", Description: "output port when no case matches"},
		},
		Required: []string{"cases"},
	}
}

func (s *Switch) OutputSchema() schema.Schema {
	return schema.Schema{
		"type": "object",
		"properties": map[string]any{
			"output":  map[string]any{"type": "string"},
			"matched": map[string]any{"type": "boolean"},
		},
		"required": []any{"output", "matched"},
	}
}

func (s *Switch) DisplayInfo() task.DisplayInfo {
	return task.DisplayInfo{
		Category: task.CategoryControlFlow,
		Label:    "Switch",
		Icon:     "route",
		Tags:     []string{"branch", "case", "route"},
	}
}
