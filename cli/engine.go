package cli

import (
	"context"
	"fmt"

	"github.com/meshflow/meshflow/engine/events"
	"github.com/meshflow/meshflow/engine/executor"
	"github.com/meshflow/meshflow/engine/expr"
	"github.com/meshflow/meshflow/engine/gateway"
	"github.com/meshflow/meshflow/engine/task"
	"github.com/meshflow/meshflow/engine/task/builtin"
	"github.com/meshflow/meshflow/pkg/config"
	"github.com/meshflow/meshflow/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// flagConfigPaths maps CLI flag names to their configuration paths. Changed
// flags become explicit overrides, the highest layer in the precedence
// order.
var flagConfigPaths = map[string]string{
	"host":    "server.host",
	"port":    "server.port",
	"cors":    "server.cors_enabled",
	"timeout": "server.timeout",
}

// overridesFromFlags collects changed flags as configuration overrides.
// Values stay strings; the loader's weakly typed decoding converts them.
func overridesFromFlags(cmd *cobra.Command) map[string]any {
	overrides := make(map[string]any)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if path, ok := flagConfigPaths[f.Name]; ok {
			overrides[path] = f.Value.String()
		}
	})
	return overrides
}

// newRegistry builds the builtin task catalog. A local gateway backs the
// service tasks so kv, artifact and http nodes work in live runs.
func newRegistry(emitter events.Emitter) (*task.Registry, error) {
	eval, err := expr.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression evaluator: %w", err)
	}
	gwOpts := []gateway.LocalOption{}
	if emitter != nil {
		gwOpts = append(gwOpts, gateway.WithEmitter(emitter))
	}
	registry, err := builtin.NewRegistry(builtin.Deps{
		Evaluator: eval,
		Gateway:   gateway.NewLocal(gwOpts...),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build task registry: %w", err)
	}
	return registry, nil
}

// newExecutor wires a registry and executor from the runtime configuration.
func newExecutor(cfg *config.Config, emitter events.Emitter) (*executor.Executor, *task.Registry, error) {
	registry, err := newRegistry(emitter)
	if err != nil {
		return nil, nil, err
	}
	opts := []executor.Option{
		executor.WithMaxNodes(cfg.Runtime.MaxNodes),
		executor.WithHistoryLimit(cfg.Runtime.HistoryLimit),
	}
	if emitter != nil {
		opts = append(opts, executor.WithEmitter(emitter))
	}
	return executor.New(registry, opts...), registry, nil
}

// logEmitter forwards lifecycle events to the process logger, backing the
// --events flag.
type logEmitter struct{}

func (logEmitter) Emit(ctx context.Context, event events.Event) {
	logger.FromContext(ctx).Info("workflow event",
		"kind", string(event.Kind),
		"execution_id", string(event.ExecutionID),
		"detail", event.Detail,
	)
}
