package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/robfig/cron/v3"

	"github.com/meshflow/meshflow/engine/schema"
)

// -----------------------------------------------------------------------------
// Document validation
// -----------------------------------------------------------------------------

// Validate checks the structural rules of the document: node identity, edge
// wiring and trigger declarations. It does not consult the task registry;
// use ValidateTypes for that.
func (w *Config) Validate(ctx context.Context) error {
	v := schema.NewCompositeValidator(
		&metaValidator{cfg: w},
		&nodesValidator{cfg: w},
		&edgesValidator{cfg: w},
		&triggersValidator{cfg: w},
	)
	return v.Validate(ctx)
}

// ValidateTypes checks that every node's type is known to the registry.
func (w *Config) ValidateTypes(_ context.Context, known func(string) bool) error {
	if known == nil {
		return nil
	}
	for i := range w.Nodes {
		node := &w.Nodes[i]
		if !known(node.Type) {
			return fmt.Errorf("node %q has unregistered type %q", node.ID, node.Type)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Validators
// -----------------------------------------------------------------------------

type metaValidator struct {
	cfg *Config
}

// Version is optional; when present it must parse as a semantic version so
// document consumers can order revisions.
func (v *metaValidator) Validate(_ context.Context) error {
	if v.cfg.Version == "" {
		return nil
	}
	if _, err := semver.NewVersion(v.cfg.Version); err != nil {
		return fmt.Errorf("workflow %q has invalid version %q: %w", v.cfg.ID, v.cfg.Version, err)
	}
	return nil
}

type nodesValidator struct {
	cfg *Config
}

func (v *nodesValidator) Validate(_ context.Context) error {
	if len(v.cfg.Nodes) == 0 {
		return fmt.Errorf("workflow %q has no nodes", v.cfg.ID)
	}
	seen := make(map[string]bool, len(v.cfg.Nodes))
	for i := range v.cfg.Nodes {
		node := &v.cfg.Nodes[i]
		if node.ID == "" {
			return fmt.Errorf("node at index %d has no id", i)
		}
		if node.Type == "" {
			return fmt.Errorf("node %q has no type", node.ID)
		}
		if seen[node.ID] {
			return fmt.Errorf("duplicate node id %q", node.ID)
		}
		seen[node.ID] = true
	}
	return nil
}

type edgesValidator struct {
	cfg *Config
}

func (v *edgesValidator) Validate(_ context.Context) error {
	for _, raw := range v.cfg.Edges {
		edge := raw.Normalized()
		from := v.cfg.FindNode(edge.From)
		if from == nil {
			return fmt.Errorf("edge references unknown source node %q", edge.From)
		}
		to := v.cfg.FindNode(edge.To)
		if to == nil {
			return fmt.Errorf("edge references unknown target node %q", edge.To)
		}
		if !from.HasOutPort(edge.FromPort) {
			return fmt.Errorf("node %q has no output port %q", edge.From, edge.FromPort)
		}
		if !to.HasInPort(edge.ToPort) {
			return fmt.Errorf("node %q has no input port %q", edge.To, edge.ToPort)
		}
	}
	return nil
}

type triggersValidator struct {
	cfg *Config
}

func (v *triggersValidator) Validate(_ context.Context) error {
	for i := range v.cfg.Triggers {
		trigger := &v.cfg.Triggers[i]
		switch trigger.Type {
		case TriggerManual, TriggerWebhook:
		case TriggerSchedule:
			if err := validateSchedule(trigger); err != nil {
				return fmt.Errorf("trigger %q: %w", trigger.ID, err)
			}
		case TriggerEvent:
			if name, _ := trigger.Config["event"].(string); name == "" {
				return fmt.Errorf("trigger %q: event triggers require an event name", trigger.ID)
			}
		default:
			return fmt.Errorf("trigger %q has unknown type %q", trigger.ID, trigger.Type)
		}
	}
	return nil
}

func validateSchedule(trigger *Trigger) error {
	expr, _ := trigger.Config["cron"].(string)
	if expr == "" {
		return fmt.Errorf("schedule triggers require a cron expression")
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if tz, _ := trigger.Config["timezone"].(string); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("invalid timezone: %w", err)
		}
	}
	return nil
}
