package builtin_test

import (
	"context"
	"testing"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/task/builtin"
	"github.com/meshflow/meshflow/pkg/tplengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTemplateTask() *builtin.Template {
	return builtin.NewTemplate(tplengine.NewEngine(tplengine.FormatText))
}

func TestTemplate_Execute(t *testing.T) {
	t.Run("Should render payload values into text", func(t *testing.T) {
		tmpl := newTemplateTask()
		in, _ := newInput(core.Input{"template": "Hello {{ .payload.name }}!"})
		in.Payload = core.Output{"name": "Ada"}
		out, err := tmpl.Execute(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "Hello Ada!", out["result"])
		assert.Equal(t, "text", out["format"])
	})

	t.Run("Should expose sprig functions", func(t *testing.T) {
		tmpl := newTemplateTask()
		in, _ := newInput(core.Input{"template": "{{ .payload.name | upper }}"})
		in.Payload = core.Output{"name": "Ada"}
		out, err := tmpl.Execute(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "ADA", out["result"])
	})

	t.Run("Should merge literal variables over the render scope", func(t *testing.T) {
		tmpl := newTemplateTask()
		in, _ := newInput(core.Input{
			"template": "{{ .greeting }}, {{ .payload.name }}",
			"variables": map[string]any{
				"greeting": "Welcome",
			},
		})
		in.Payload = core.Output{"name": "Grace"}
		out, err := tmpl.Execute(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "Welcome, Grace", out["result"])
	})

	t.Run("Should parse the rendered text as JSON when requested", func(t *testing.T) {
		tmpl := newTemplateTask()
		in, _ := newInput(core.Input{
			"template": `{"total": {{ .payload.n }}, "ok": true}`,
			"format":   "json",
		})
		in.Payload = core.Output{"n": 7}
		out, err := tmpl.Execute(context.Background(), in)
		require.NoError(t, err)
		result, ok := out["result"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, int64(7), result["total"])
		assert.Equal(t, true, result["ok"])
		assert.Equal(t, "json", out["format"])
	})

	t.Run("Should parse the rendered text as YAML when requested", func(t *testing.T) {
		tmpl := newTemplateTask()
		in, _ := newInput(core.Input{
			"template": "name: {{ .payload.name }}\nage: 36",
			"format":   "yaml",
		})
		in.Payload = core.Output{"name": "Ada"}
		out, err := tmpl.Execute(context.Background(), in)
		require.NoError(t, err)
		result, ok := out["result"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "Ada", result["name"])
		assert.Equal(t, 36, result["age"])
	})

	t.Run("Should pass text without markers through unchanged", func(t *testing.T) {
		tmpl := newTemplateTask()
		in, _ := newInput(core.Input{"template": "plain text"})
		out, err := tmpl.Execute(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "plain text", out["result"])
	})

	t.Run("Should fail loudly on a reference to an absent value", func(t *testing.T) {
		tmpl := newTemplateTask()
		in, _ := newInput(core.Input{"template": "{{ .payload.missing }}"})
		_, err := tmpl.Execute(context.Background(), in)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "template render failed")
	})

	t.Run("Should error when the rendered text is not valid JSON", func(t *testing.T) {
		tmpl := newTemplateTask()
		in, _ := newInput(core.Input{
			"template": "{{ .payload.name }}",
			"format":   "json",
		})
		in.Payload = core.Output{"name": "not json"}
		_, err := tmpl.Execute(context.Background(), in)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not valid JSON")
	})
}

func TestTemplate_RawConfigKeys(t *testing.T) {
	t.Run("Should keep the template body out of config interpolation", func(t *testing.T) {
		assert.Equal(t, []string{"template"}, newTemplateTask().RawConfigKeys())
	})
}

func TestTemplate_Validate(t *testing.T) {
	t.Run("Should require a template body", func(t *testing.T) {
		result := newTemplateTask().Validate(core.Input{})
		require.False(t, result.Valid)
		assert.Contains(t, result.Errors[0], "template")
	})

	t.Run("Should reject an unknown format", func(t *testing.T) {
		result := newTemplateTask().Validate(core.Input{
			"template": "x",
			"format":   "xml",
		})
		require.False(t, result.Valid)
		assert.Contains(t, result.Errors[0], "xml")
	})
}
