// Package builtin provides the task catalog shipped with the engine:
// control-flow tasks that route and schedule, data tasks that reshape
// values flowing between nodes, and service tasks that reach external
// systems through the gateway.
package builtin

import (
	"fmt"

	"github.com/meshflow/meshflow/engine/expr"
	"github.com/meshflow/meshflow/engine/gateway"
	"github.com/meshflow/meshflow/engine/task"
	"github.com/meshflow/meshflow/pkg/tplengine"
)

// Builtin node types.
const (
	TypeTrigger      = "trigger"
	TypeOutput       = "output"
	TypeSet          = "set"
	TypeLog          = "log"
	TypeConditional  = "conditional"
	TypeSwitch       = "switch"
	TypeLoop         = "loop"
	TypeParallel     = "parallel"
	TypeRetry        = "retry"
	TypeDelay        = "delay"
	TypeMap          = "map"
	TypeFilter       = "filter"
	TypeReduce       = "reduce"
	TypeJoin         = "join"
	TypeSplit        = "split"
	TypeMerge        = "merge"
	TypeTransform    = "transform"
	TypeTemplate     = "template"
	TypeValidate     = "validate"
	TypeJSONEncode   = "json_encode"
	TypeJSONDecode   = "json_decode"
	TypeKVGet        = "kv_get"
	TypeKVSet        = "kv_set"
	TypeArtifactGet  = "artifact_get"
	TypeArtifactPut  = "artifact_put"
	TypeArtifactList = "artifact_list"
	TypeEventPublish = "event_publish"
	TypeHTTPRequest  = "http_request"
	TypeAgentInvoke  = "agent_invoke"
)

// Deps bundles the collaborators the catalog is wired with. Evaluator is
// required; Templates defaults to a text engine; Gateway may stay nil when
// every run is a dry run, in which case service tasks fail fast when
// executed live.
type Deps struct {
	Evaluator *expr.Evaluator
	Templates *tplengine.TemplateEngine
	Gateway   gateway.Gateway
}

// Register adds the full builtin catalog to the registry.
func Register(r *task.Registry, deps Deps) error {
	if r == nil {
		return fmt.Errorf("builtin: registry is required")
	}
	if deps.Evaluator == nil {
		return fmt.Errorf("builtin: expression evaluator is required")
	}
	if deps.Templates == nil {
		deps.Templates = tplengine.NewEngine(tplengine.FormatText)
	}
	catalog := []task.Task{
		NewTrigger(),
		NewOutput(),
		NewSet(),
		NewLog(),
		NewConditional(deps.Evaluator),
		NewSwitch(),
		NewLoop(deps.Evaluator),
		NewParallel(),
		NewRetry(deps.Evaluator),
		NewDelay(),
		NewMap(deps.Evaluator),
		NewFilter(deps.Evaluator),
		NewReduce(deps.Evaluator),
		NewJoin(),
		NewSplit(),
		NewMerge(),
		NewTransform(deps.Evaluator),
		NewTemplate(deps.Templates),
		NewValidate(),
		NewJSONEncode(),
		NewJSONDecode(),
		NewKVGet(deps.Gateway),
		NewKVSet(deps.Gateway),
		NewArtifactGet(deps.Gateway),
		NewArtifactPut(deps.Gateway),
		NewArtifactList(deps.Gateway),
		NewEventPublish(deps.Gateway),
		NewHTTPRequest(deps.Gateway),
		NewAgentInvoke(deps.Gateway),
	}
	for _, t := range catalog {
		if err := r.Register(t); err != nil {
			return fmt.Errorf("builtin: %w", err)
		}
	}
	return nil
}

// NewRegistry builds a registry pre-populated with the builtin catalog.
func NewRegistry(deps Deps) (*task.Registry, error) {
	r := task.NewRegistry()
	if err := Register(r, deps); err != nil {
		return nil, err
	}
	return r, nil
}
