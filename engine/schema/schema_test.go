package schema_test

import (
	"context"
	"errors"
	"testing"

	"github.com/meshflow/meshflow/engine/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_Validate(t *testing.T) {
	s := schema.Schema{
		"type": "object",
		"properties": map[string]any{
			"url":     map[string]any{"type": "string"},
			"retries": map[string]any{"type": "integer", "minimum": float64(0)},
		},
		"required": []any{"url"},
	}

	t.Run("Should accept a conforming document", func(t *testing.T) {
		result, err := s.Validate(context.Background(), map[string]any{
			"url":     "https://example.com",
			"retries": 2,
		})
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.True(t, result.Valid)
	})
	t.Run("Should reject a document missing required fields", func(t *testing.T) {
		_, err := s.Validate(context.Background(), map[string]any{"retries": 2})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema validation failed")
	})
	t.Run("Should reject wrong types", func(t *testing.T) {
		_, err := s.Validate(context.Background(), map[string]any{
			"url":     "https://example.com",
			"retries": "lots",
		})
		require.Error(t, err)
	})
	t.Run("Should accept anything when schema is nil", func(t *testing.T) {
		var empty *schema.Schema
		result, err := empty.Validate(context.Background(), map[string]any{"whatever": true})
		require.NoError(t, err)
		assert.Nil(t, result)
	})
}

func TestCollectErrors(t *testing.T) {
	t.Run("Should report dot paths for nested violations", func(t *testing.T) {
		s := schema.Schema{
			"type": "object",
			"properties": map[string]any{
				"user": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"age": map[string]any{"type": "integer"},
					},
				},
			},
		}
		compiled, err := s.Compile()
		require.NoError(t, err)
		result := compiled.Validate(map[string]any{
			"user": map[string]any{"age": "old"},
		})
		require.False(t, result.Valid)

		fieldErrors := schema.CollectErrors(result)
		require.NotEmpty(t, fieldErrors)

		var paths []string
		for _, fe := range fieldErrors {
			paths = append(paths, fe.Field)
		}
		assert.Contains(t, paths, "user.age")
	})
	t.Run("Should return nil for valid results", func(t *testing.T) {
		s := schema.Schema{"type": "object"}
		compiled, err := s.Compile()
		require.NoError(t, err)
		result := compiled.Validate(map[string]any{})
		assert.Nil(t, schema.CollectErrors(result))
	})
}

func TestCompositeValidator(t *testing.T) {
	t.Run("Should aggregate failures from every validator", func(t *testing.T) {
		failA := validatorFunc(func(context.Context) error { return errors.New("first problem") })
		failB := validatorFunc(func(context.Context) error { return errors.New("second problem") })
		pass := validatorFunc(func(context.Context) error { return nil })

		err := schema.NewCompositeValidator(failA, pass, failB).Validate(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "first problem")
		assert.Contains(t, err.Error(), "second problem")
	})
	t.Run("Should pass when all validators pass", func(t *testing.T) {
		pass := validatorFunc(func(context.Context) error { return nil })
		assert.NoError(t, schema.NewCompositeValidator(pass, pass).Validate(context.Background()))
	})
}

func TestStructValidator(t *testing.T) {
	type target struct {
		Name string `validate:"required"`
		Port int    `validate:"min=1,max=65535"`
	}

	t.Run("Should pass for a valid struct", func(t *testing.T) {
		err := schema.NewStructValidator(target{Name: "api", Port: 8080}).Validate(context.Background())
		assert.NoError(t, err)
	})
	t.Run("Should fail for missing required fields", func(t *testing.T) {
		err := schema.NewStructValidator(target{Port: 8080}).Validate(context.Background())
		assert.Error(t, err)
	})
}

type validatorFunc func(ctx context.Context) error

func (f validatorFunc) Validate(ctx context.Context) error { return f(ctx) }
