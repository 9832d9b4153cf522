package builtin

import (
	"context"
	"fmt"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/schema"
	"github.com/meshflow/meshflow/engine/task"
	"github.com/meshflow/meshflow/pkg/logger"
)

// Log levels accepted by the log task.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Log writes a levelled message through the run's logger. Extra fields attach
// as structured key/value pairs.
type Log struct{}

type logConfig struct {
	Message string         `json:"message"`
	Level   string         `json:"level"`
	Fields  map[string]any `json:"fields"`
}

// NewLog creates the log task.
func NewLog() *Log {
	return &Log{}
}

func (l *Log) Type() string { return TypeLog }

func (l *Log) Validate(config core.Input) task.ValidationResult {
	cfg, err := decodeConfig[logConfig](config)
	if err != nil {
		return task.Invalid(err.Error())
	}
	result := task.OK()
	if cfg.Message == "" {
		result.AddError("'message' is required")
	}
	switch cfg.Level {
	case "", LevelDebug, LevelInfo, LevelWarn, LevelError:
	default:
		result.AddError(fmt.Sprintf("unknown level %q", cfg.Level))
	}
	return result
}

func (l *Log) Execute(ctx context.Context, in *task.Input) (core.Output, error) {
	cfg, err := decodeConfig[logConfig](in.Config)
	if err != nil {
		return nil, err
	}
	if cfg.Message == "" {
		return nil, fmt.Errorf("'message' is required")
	}
	level := cfg.Level
	if level == "" {
		level = LevelInfo
	}
	log := logger.FromContext(ctx).With("node", in.Node.ID)
	keyvals := make([]any, 0, len(cfg.Fields)*2)
	for key, value := range cfg.Fields {
		keyvals = append(keyvals, key, value)
	}
	switch level {
	case LevelDebug:
		log.Debug(cfg.Message, keyvals...)
	case LevelWarn:
		log.Warn(cfg.Message, keyvals...)
	case LevelError:
		log.Error(cfg.Message, keyvals...)
	default:
		log.Info(cfg.Message, keyvals...)
	}
	return core.Output{
		"logged":  true,
		"message": cfg.Message,
		"level":   level,
	}, nil
}

func (l *Log) Schema() *task.Schema {
	return &task.Schema{
		Type: TypeLog,
		Properties: map[string]task.PropertySpec{
			"message": {Type: "string", Description: "text to log"},
			"level": {
				Type:    "string",
				Enum:    []any{LevelDebug, LevelInfo, LevelWarn, LevelError},
				Default: LevelInfo,
			},
			"fields": {Type: "object", Description: "structured fields attached to the entry"},
		},
		Required: []string{"message"},
	}
}

func (l *Log) OutputSchema() schema.Schema {
	return schema.Schema{
		"type": "object",
		"properties": map[string]any{
			"logged":  map[string]any{"type": "boolean"},
			"message": map[string]any{"type": "string"},
			"level":   map[string]any{"type": "string"},
		},
		"required": []any{"logged", "message", "level"},
	}
}

func (l *Log) DisplayInfo() task.DisplayInfo {
	return task.DisplayInfo{
		Category: task.CategoryData,
		Label:    "Log",
		Icon:     "terminal",
		Tags:     []string{"debug", "observe"},
	}
}
