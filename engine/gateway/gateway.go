package gateway

import (
	"context"
	"errors"
)

// Tool names understood by the platform gateway.
const (
	ToolKVGet         = "kv_get"
	ToolKVSet         = "kv_set"
	ToolArtifactsGet  = "artifacts_get"
	ToolArtifactsPut  = "artifacts_put"
	ToolArtifactsList = "artifacts_list"
	ToolEventsSend    = "events_send"
	ToolHTTPRequest   = "http_request"
	ToolAgentInvoke   = "agent_invoke"
)

// ErrUnknownTool indicates a call to a tool the gateway does not provide.
var ErrUnknownTool = errors.New("unknown gateway tool")

// Gateway is the opaque boundary service tasks call through. The engine does
// not know or care how a tool is implemented.
type Gateway interface {
	CallTool(ctx context.Context, name string, params map[string]any) (map[string]any, error)
}
