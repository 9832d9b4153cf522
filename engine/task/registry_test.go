package task_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/schema"
	"github.com/meshflow/meshflow/engine/task"
)

type stubTask struct {
	typ    string
	sample core.Output
}

func (s *stubTask) Type() string { return s.typ }

func (s *stubTask) Validate(config core.Input) task.ValidationResult {
	if _, ok := config["value"]; !ok {
		return task.Invalid("value is required")
	}
	return task.OK()
}

func (s *stubTask) Execute(_ context.Context, in *task.Input) (core.Output, error) {
	return core.Output{"value": in.Config["value"]}, nil
}

func (s *stubTask) Schema() *task.Schema {
	return &task.Schema{
		Type: s.typ,
		Properties: map[string]task.PropertySpec{
			"value": {Type: "string", Description: "value to store"},
		},
		Required: []string{"value"},
	}
}

func (s *stubTask) DisplayInfo() task.DisplayInfo {
	return task.DisplayInfo{Category: task.CategoryData, Label: "Stub"}
}

func (s *stubTask) OutputSchema() schema.Schema {
	return schema.Schema{"type": "object", "properties": map[string]any{"value": map[string]any{"type": "string"}}}
}

func (s *stubTask) SampleOutput() core.Output { return s.sample }

func TestRegistry_Register(t *testing.T) {
	t.Run("Should register and retrieve a task", func(t *testing.T) {
		r := task.NewRegistry()
		require.NoError(t, r.Register(&stubTask{typ: "set"}))
		got, err := r.Get("set")
		require.NoError(t, err)
		assert.Equal(t, "set", got.Type())
	})
	t.Run("Should match types case-insensitively", func(t *testing.T) {
		r := task.NewRegistry()
		require.NoError(t, r.Register(&stubTask{typ: "set"}))
		_, err := r.Get("SET")
		assert.NoError(t, err)
		assert.True(t, r.Has(" Set "))
	})
	t.Run("Should reject duplicate registrations", func(t *testing.T) {
		r := task.NewRegistry()
		require.NoError(t, r.Register(&stubTask{typ: "set"}))
		err := r.Register(&stubTask{typ: "set"})
		assert.True(t, errors.Is(err, task.ErrTaskAlreadyRegistered))
	})
	t.Run("Should reject nil and untyped tasks", func(t *testing.T) {
		r := task.NewRegistry()
		assert.ErrorIs(t, r.Register(nil), task.ErrTaskNil)
		assert.ErrorIs(t, r.Register(&stubTask{typ: "  "}), task.ErrTaskTypeEmpty)
	})
	t.Run("Should error on unknown types", func(t *testing.T) {
		r := task.NewRegistry()
		_, err := r.Get("ghost")
		assert.ErrorContains(t, err, "not registered")
	})
	t.Run("Should list registered types sorted", func(t *testing.T) {
		r := task.NewRegistry()
		r.MustRegister(&stubTask{typ: "zeta"}, &stubTask{typ: "alpha"}, &stubTask{typ: "mid"})
		assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.Types())
	})
}

func TestRegistry_Definitions(t *testing.T) {
	t.Run("Should build a catalog entry from the task surface", func(t *testing.T) {
		r := task.NewRegistry()
		sample := core.Output{"value": "example"}
		require.NoError(t, r.Register(&stubTask{typ: "set", sample: sample}))

		def, err := r.Definition("set")
		require.NoError(t, err)
		assert.Equal(t, "set", def.Type)
		assert.Equal(t, task.CategoryData, def.DisplayInfo.Category)
		assert.Equal(t, "object", def.ConfigSchema["type"])
		assert.NotNil(t, def.OutputSchema)
		assert.Equal(t, sample, def.SampleOutput)
	})
	t.Run("Should list definitions for every registered task", func(t *testing.T) {
		r := task.NewRegistry()
		r.MustRegister(&stubTask{typ: "b"}, &stubTask{typ: "a"})
		defs := r.Definitions()
		require.Len(t, defs, 2)
		assert.Equal(t, "a", defs[0].Type)
		assert.Equal(t, "b", defs[1].Type)
	})
}

func TestSchema_JSONSchema(t *testing.T) {
	t.Run("Should render properties, bounds and required", func(t *testing.T) {
		s := &task.Schema{
			Type: "loop",
			Properties: map[string]task.PropertySpec{
				"maxIterations": {
					Type:    "integer",
					Default: 100,
					Minimum: task.Float(1),
					Maximum: task.Float(10000),
				},
				"items": {Type: "array", Items: &task.PropertySpec{Type: "string"}},
			},
			Required: []string{"items"},
		}
		doc := s.JSONSchema()
		assert.Equal(t, "object", doc["type"])
		props := doc["properties"].(map[string]any)
		maxIter := props["maxIterations"].(map[string]any)
		assert.Equal(t, float64(1), maxIter["minimum"])
		assert.Equal(t, 100, maxIter["default"])
		items := props["items"].(map[string]any)
		assert.Equal(t, "string", items["items"].(map[string]any)["type"])
		assert.Equal(t, []any{"items"}, doc["required"])
	})
	t.Run("Should tolerate nil schemas", func(t *testing.T) {
		var s *task.Schema
		assert.Nil(t, s.JSONSchema())
	})
}

func TestValidationResult(t *testing.T) {
	t.Run("Should merge results keeping every problem", func(t *testing.T) {
		a := task.Invalid("first")
		b := task.OK()
		b.AddWarning("minor")
		merged := a.Merge(b)
		assert.False(t, merged.Valid)
		assert.Equal(t, []string{"first"}, merged.Errors)
		assert.Equal(t, []string{"minor"}, merged.Warnings)
	})
	t.Run("Should flip valid when an error is added", func(t *testing.T) {
		r := task.OK()
		r.AddError("broken")
		assert.False(t, r.Valid)
		assert.Len(t, r.Errors, 1)
	})
}

func TestExecutionError(t *testing.T) {
	t.Run("Should carry node, type and cause", func(t *testing.T) {
		cause := errors.New("boom")
		err := task.NewExecutionError("http_request", "fetch", cause)
		assert.ErrorContains(t, err, "task http_request failed at node fetch")
		assert.True(t, errors.Is(err, cause))
	})
}
