package cli

import (
	"context"
	"fmt"

	"github.com/meshflow/meshflow/engine/events"
	"github.com/meshflow/meshflow/engine/executor"
	"github.com/meshflow/meshflow/engine/task"
	"github.com/meshflow/meshflow/engine/workflow"
	"github.com/meshflow/meshflow/pkg/config"
	"github.com/spf13/cobra"
)

// RunCmd returns the run command
func RunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <workflow-file>",
		Short: "Execute a workflow document",
		Args:  cobra.ExactArgs(1),
		RunE:  handleRunCmd,
	}
	addRunFlags(cmd)
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("input", "", "Trigger payload as inline JSON or @file")
	cmd.Flags().Bool("dry-run", false, "Substitute service calls with generated sample output")
	cmd.Flags().Int64("seed", 0, "Fix the sample generator seed for reproducible dry runs")
	cmd.Flags().Bool("pretty", false, "Indent the result JSON")
	cmd.Flags().Bool("events", false, "Log lifecycle events while the run progresses")
}

func handleRunCmd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(nil)
	if err != nil {
		return err
	}
	input, err := readInput(cmd)
	if err != nil {
		return err
	}
	emitter, err := runEmitter(cmd)
	if err != nil {
		return err
	}
	exec, registry, err := newExecutor(cfg, emitter)
	if err != nil {
		return err
	}
	wf, err := loadWorkflow(cmd.Context(), args[0], registry)
	if err != nil {
		return err
	}
	opts, err := executionOptions(cmd)
	if err != nil {
		return err
	}
	result, err := exec.Execute(cmd.Context(), wf, input, opts...)
	if err != nil {
		return err
	}
	prettyOutput, err := cmd.Flags().GetBool("pretty")
	if err != nil {
		return fmt.Errorf("failed to get pretty flag: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), result, prettyOutput)
}

// loadWorkflow reads a document and runs structural and type validation
// before it is executed.
func loadWorkflow(ctx context.Context, path string, registry *task.Registry) (*workflow.Config, error) {
	wf, err := workflow.Load(path)
	if err != nil {
		return nil, err
	}
	if err := wf.Validate(ctx); err != nil {
		return nil, err
	}
	if registry != nil {
		if err := wf.ValidateTypes(ctx, registry.Has); err != nil {
			return nil, err
		}
	}
	return wf, nil
}

func runEmitter(cmd *cobra.Command) (events.Emitter, error) {
	logEvents, err := cmd.Flags().GetBool("events")
	if err != nil {
		return nil, fmt.Errorf("failed to get events flag: %w", err)
	}
	if logEvents {
		return logEmitter{}, nil
	}
	return events.Noop{}, nil
}

func executionOptions(cmd *cobra.Command) ([]executor.Option, error) {
	var opts []executor.Option
	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return nil, fmt.Errorf("failed to get dry-run flag: %w", err)
	}
	if dryRun {
		opts = append(opts, executor.WithMode(executor.ModeDryRun))
	}
	if cmd.Flags().Changed("seed") {
		seed, err := cmd.Flags().GetInt64("seed")
		if err != nil {
			return nil, fmt.Errorf("failed to get seed flag: %w", err)
		}
		opts = append(opts, executor.WithSampleSeed(seed))
	}
	return opts, nil
}
