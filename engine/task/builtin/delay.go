package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/schema"
	"github.com/meshflow/meshflow/engine/task"
)

// maxDelayDuration bounds a single delay node so a typo cannot park a run
// for days.
const maxDelayDuration = time.Hour

// Delay pauses the run for a configured duration and reports the requested
// versus actually elapsed time. The sleep is context-cancellable.
type Delay struct{}

type delayConfig struct {
	Duration any    `json:"duration"`
	Unit     string `json:"unit"`
}

// NewDelay creates the delay task.
func NewDelay() *Delay {
	return &Delay{}
}

func (d *Delay) Type() string { return TypeDelay }

func (d *Delay) Validate(config core.Input) task.ValidationResult {
	cfg, err := decodeConfig[delayConfig](config)
	if err != nil {
		return task.Invalid(err.Error())
	}
	result := task.OK()
	if cfg.Duration == nil {
		result.AddError("duration is required")
		return result
	}
	dur, err := resolveDelayDuration(cfg)
	if err != nil {
		result.AddError(err.Error())
		return result
	}
	if dur > maxDelayDuration {
		result.AddError(fmt.Sprintf("duration exceeds the maximum of %s", maxDelayDuration))
	}
	return result
}

func (d *Delay) Execute(ctx context.Context, in *task.Input) (core.Output, error) {
	cfg, err := decodeConfig[delayConfig](in.Config)
	if err != nil {
		return nil, err
	}
	requested, err := resolveDelayDuration(cfg)
	if err != nil {
		return nil, err
	}
	if requested > maxDelayDuration {
		return nil, fmt.Errorf("duration %s exceeds the maximum of %s", requested, maxDelayDuration)
	}
	start := time.Now()
	timer := time.NewTimer(requested)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, fmt.Errorf("delay canceled after %s: %w", time.Since(start), ctx.Err())
	}
	return core.Output{
		"requestedMs": requested.Milliseconds(),
		"actualMs":    time.Since(start).Milliseconds(),
	}, nil
}

// resolveDelayDuration converts the duration/unit pair. Strings parse as
// human durations and ignore the unit; numbers scale by the unit, which
// defaults to milliseconds.
func resolveDelayDuration(cfg delayConfig) (time.Duration, error) {
	if s, ok := cfg.Duration.(string); ok {
		d, err := core.ParseHumanDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		if d < 0 {
			return 0, fmt.Errorf("duration must not be negative")
		}
		return d, nil
	}
	value := core.AsFloat(cfg.Duration)
	if value < 0 {
		return 0, fmt.Errorf("duration must not be negative")
	}
	var unit time.Duration
	switch cfg.Unit {
	case "", "milliseconds", "ms":
		unit = time.Millisecond
	case "seconds", "s":
		unit = time.Second
	case "minutes", "m":
		unit = time.Minute
	case "hours", "h":
		unit = time.Hour
	default:
		return 0, fmt.Errorf("unknown unit %q", cfg.Unit)
	}
	return time.Duration(value * float64(unit)), nil
}

func (d *Delay) Schema() *task.Schema {
	return &task.Schema{
		Type: TypeDelay,
		Properties: map[string]task.PropertySpec{
			"duration": {Description: "how long to wait, a number scaled by unit or a duration string"},
			"unit": {
				Type:    "string",
				Enum:    []any{"milliseconds", "seconds", "minutes", "hours"},
				Default: "milliseconds",
			},
		},
		Required: []string{"duration"},
	}
}

func (d *Delay) OutputSchema() schema.Schema {
	return schema.Schema{
		"type": "object",
		"properties": map[string]any{
			"requestedMs": map[string]any{"type": "integer"},
			"actualMs":    map[string]any{"type": "integer"},
		},
		"required": []any{"requestedMs", "actualMs"},
	}
}

func (d *Delay) DisplayInfo() task.DisplayInfo {
	return task.DisplayInfo{
		Category: task.CategoryControlFlow,
		Label:    "Delay",
		Icon:     "clock",
		Tags:     []string{"wait", "sleep", "pause"},
	}
}
