package builtin

import (
	"context"
	"fmt"
	"maps"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/gateway"
	"github.com/meshflow/meshflow/engine/schema"
	"github.com/meshflow/meshflow/engine/task"
)

// gatewayTask is the shared shape of every service task: the interpolated
// node config becomes the tool parameters, the tool result becomes the node
// output. Per-type behavior lives entirely in the spec table.
type gatewayTask struct {
	spec serviceSpec
	gw   gateway.Gateway
}

type serviceSpec struct {
	taskType string
	tool     string
	required []string
	config   map[string]task.PropertySpec
	output   schema.Schema
	sample   core.Output
	display  task.DisplayInfo
}

func newGatewayTask(gw gateway.Gateway, spec serviceSpec) *gatewayTask {
	return &gatewayTask{spec: spec, gw: gw}
}

func (g *gatewayTask) Type() string { return g.spec.taskType }

// ToolName marks the task as gateway-backed; dry runs substitute it with
// sample output instead of calling the tool.
func (g *gatewayTask) ToolName() string { return g.spec.tool }

func (g *gatewayTask) Validate(config core.Input) task.ValidationResult {
	result := task.OK()
	for _, key := range g.spec.required {
		value, ok := config[key]
		if !ok || value == nil || value == "" {
			result.AddError(fmt.Sprintf("'%s' is required", key))
		}
	}
	return result
}

func (g *gatewayTask) Execute(ctx context.Context, in *task.Input) (core.Output, error) {
	if g.gw == nil {
		return nil, fmt.Errorf("%s: no gateway configured for live execution", g.spec.taskType)
	}
	for _, key := range g.spec.required {
		value, ok := in.Config[key]
		if !ok || value == nil || value == "" {
			return nil, fmt.Errorf("%s: '%s' is required", g.spec.taskType, key)
		}
	}
	params := make(map[string]any, len(in.Config))
	maps.Copy(params, in.Config)
	result, err := g.gw.CallTool(ctx, g.spec.tool, params)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", g.spec.tool, err)
	}
	return core.Output(result), nil
}

func (g *gatewayTask) Schema() *task.Schema {
	return &task.Schema{
		Type:       g.spec.taskType,
		Properties: g.spec.config,
		Required:   g.spec.required,
	}
}

func (g *gatewayTask) OutputSchema() schema.Schema {
	return g.spec.output
}

func (g *gatewayTask) SampleOutput() core.Output {
	return g.spec.sample
}

func (g *gatewayTask) DisplayInfo() task.DisplayInfo {
	return g.spec.display
}

// -----------------------------------------------------------------------------
// Catalog
// -----------------------------------------------------------------------------

// NewKVGet creates the kv_get task: reads one key from the platform
// key-value store.
func NewKVGet(gw gateway.Gateway) task.Task {
	return newGatewayTask(gw, serviceSpec{
		taskType: TypeKVGet,
		tool:     gateway.ToolKVGet,
		required: []string{"key"},
		config: map[string]task.PropertySpec{
			"key": {Type: "string", Description: "key to read"},
		},
		output: schema.Schema{
			"type": "object",
			"properties": map[string]any{
				"value": map[string]any{"description": "stored value, null when absent or expired"},
			},
		},
		display: task.DisplayInfo{
			Category: task.CategoryService,
			Label:    "KV Get",
			Icon:     "database",
			Tags:     []string{"storage", "read"},
		},
	})
}

// NewKVSet creates the kv_set task: writes one key with an optional TTL.
func NewKVSet(gw gateway.Gateway) task.Task {
	return newGatewayTask(gw, serviceSpec{
		taskType: TypeKVSet,
		tool:     gateway.ToolKVSet,
		required: []string{"key", "value"},
		config: map[string]task.PropertySpec{
			"key":       {Type: "string", Description: "key to write"},
			"value":     {Description: "value to store"},
			"ttl_hours": {Type: "number", Default: 24, Description: "hours until the entry expires"},
		},
		output: schema.Schema{
			"type": "object",
			"properties": map[string]any{
				"success": map[string]any{"type": "boolean", "default": true},
			},
			"required": []any{"success"},
		},
		sample: core.Output{"success": true},
		display: task.DisplayInfo{
			Category: task.CategoryService,
			Label:    "KV Set",
			Icon:     "database",
			Tags:     []string{"storage", "write"},
		},
	})
}

// NewArtifactGet creates the artifact_get task: reads an artifact's content.
func NewArtifactGet(gw gateway.Gateway) task.Task {
	return newGatewayTask(gw, serviceSpec{
		taskType: TypeArtifactGet,
		tool:     gateway.ToolArtifactsGet,
		required: []string{"key"},
		config: map[string]task.PropertySpec{
			"key": {Type: "string", Description: "artifact key, slash-separated"},
		},
		output: schema.Schema{
			"type": "object",
			"properties": map[string]any{
				"content": map[string]any{"description": "artifact text, null when absent"},
			},
		},
		display: task.DisplayInfo{
			Category: task.CategoryService,
			Label:    "Artifact Get",
			Icon:     "archive",
			Tags:     []string{"blob", "read"},
		},
	})
}

// NewArtifactPut creates the artifact_put task: stores an artifact.
func NewArtifactPut(gw gateway.Gateway) task.Task {
	return newGatewayTask(gw, serviceSpec{
		taskType: TypeArtifactPut,
		tool:     gateway.ToolArtifactsPut,
		required: []string{"key", "content"},
		config: map[string]task.PropertySpec{
			"key":     {Type: "string", Description: "artifact key, slash-separated"},
			"content": {Type: "string", Description: "artifact text"},
		},
		output: schema.Schema{
			"type": "object",
			"properties": map[string]any{
				"success": map[string]any{"type": "boolean", "default": true},
			},
			"required": []any{"success"},
		},
		sample: core.Output{"success": true},
		display: task.DisplayInfo{
			Category: task.CategoryService,
			Label:    "Artifact Put",
			Icon:     "archive",
			Tags:     []string{"blob", "write"},
		},
	})
}

// NewArtifactList creates the artifact_list task: lists artifact keys under a
// prefix.
func NewArtifactList(gw gateway.Gateway) task.Task {
	return newGatewayTask(gw, serviceSpec{
		taskType: TypeArtifactList,
		tool:     gateway.ToolArtifactsList,
		config: map[string]task.PropertySpec{
			"prefix": {Type: "string", Description: "key prefix filter, empty lists everything"},
		},
		output: schema.Schema{
			"type": "object",
			"properties": map[string]any{
				"keys": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string", "description": "artifact key"},
				},
			},
			"required": []any{"keys"},
		},
		display: task.DisplayInfo{
			Category: task.CategoryService,
			Label:    "Artifact List",
			Icon:     "list",
			Tags:     []string{"blob", "browse"},
		},
	})
}

// NewEventPublish creates the event_publish task: sends a custom event to the
// platform bus.
func NewEventPublish(gw gateway.Gateway) task.Task {
	return newGatewayTask(gw, serviceSpec{
		taskType: TypeEventPublish,
		tool:     gateway.ToolEventsSend,
		required: []string{"detailType", "detail"},
		config: map[string]task.PropertySpec{
			"detailType": {Type: "string", Description: "event kind"},
			"detail":     {Type: "object", Description: "event payload"},
			"source":     {Type: "string", Description: "origin tag, defaults to the engine source"},
		},
		output: schema.Schema{
			"type": "object",
			"properties": map[string]any{
				"success": map[string]any{"type": "boolean", "default": true},
			},
			"required": []any{"success"},
		},
		sample: core.Output{"success": true},
		display: task.DisplayInfo{
			Category: task.CategoryService,
			Label:    "Publish Event",
			Icon:     "radio",
			Tags:     []string{"bus", "notify"},
		},
	})
}

// NewHTTPRequest creates the http_request task: performs an HTTP call through
// the gateway.
func NewHTTPRequest(gw gateway.Gateway) task.Task {
	return newGatewayTask(gw, serviceSpec{
		taskType: TypeHTTPRequest,
		tool:     gateway.ToolHTTPRequest,
		required: []string{"url"},
		config: map[string]task.PropertySpec{
			"url": {Type: "string", Description: "request URL"},
			"method": {
				Type:    "string",
				Enum:    []any{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"},
				Default: "GET",
			},
			"headers": {Type: "object", Description: "request headers"},
			"query":   {Type: "object", Description: "query string parameters"},
			"body":    {Description: "request body, JSON-encoded when structured"},
		},
		output: schema.Schema{
			"type": "object",
			"properties": map[string]any{
				"status":  map[string]any{"type": "integer", "default": 200, "minimum": 100, "maximum": 599},
				"headers": map[string]any{"type": "object"},
				"body":    map[string]any{"description": "response body, parsed when JSON"},
			},
			"required": []any{"status"},
		},
		display: task.DisplayInfo{
			Category: task.CategoryService,
			Label:    "HTTP Request",
			Icon:     "globe",
			Tags:     []string{"http", "api"},
		},
	})
}

// NewAgentInvoke creates the agent_invoke task: hands a prompt to a platform
// agent and returns its response.
func NewAgentInvoke(gw gateway.Gateway) task.Task {
	return newGatewayTask(gw, serviceSpec{
		taskType: TypeAgentInvoke,
		tool:     gateway.ToolAgentInvoke,
		required: []string{"prompt"},
		config: map[string]task.PropertySpec{
			"prompt": {Type: "string", Description: "prompt text"},
			"agent":  {Type: "string", Default: "default", Description: "agent name"},
		},
		output: schema.Schema{
			"type": "object",
			"properties": map[string]any{
				"agent":        map[string]any{"type": "string", "description": "agent name"},
				"response":     map[string]any{"type": "string", "description": "agent response text"},
				"finishReason": map[string]any{"type": "string", "enum": []any{"stop", "length", "error"}},
			},
			"required": []any{"agent", "response", "finishReason"},
		},
		display: task.DisplayInfo{
			Category: task.CategoryService,
			Label:    "Invoke Agent",
			Icon:     "bot",
			Tags:     []string{"llm", "ai"},
		},
	})
}
