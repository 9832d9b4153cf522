package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/executor"
	"github.com/meshflow/meshflow/engine/task"
	"github.com/meshflow/meshflow/pkg/config"
	"github.com/meshflow/meshflow/pkg/logger"
	"github.com/romdo/go-debounce"
	"github.com/spf13/cobra"
)

// Editors fire bursts of write events on save; runs are debounced so each
// save triggers one execution.
const (
	devDebounceWait    = 200 * time.Millisecond
	devDebounceMaxWait = time.Second
)

// DevCmd returns the dev command
func DevCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev <workflow-file>",
		Short: "Execute a workflow and re-run it on every file change",
		Args:  cobra.ExactArgs(1),
		RunE:  handleDevCmd,
	}
	addRunFlags(cmd)
	return cmd
}

func handleDevCmd(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve workflow path: %w", err)
	}
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
	opts, err := executionOptions(cmd)
	if err != nil {
		return err
	}
	prettyOutput, err := cmd.Flags().GetBool("pretty")
	if err != nil {
		return fmt.Errorf("failed to get pretty flag: %w", err)
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	session := &devSession{
		path:     path,
		exec:     exec,
		registry: registry,
		input:    input,
		opts:     opts,
		pretty:   prettyOutput,
		out:      cmd.OutOrStdout(),
	}
	session.runOnce(ctx)
	return session.watch(ctx)
}

// devSession carries everything a watch-and-rerun loop needs between runs.
type devSession struct {
	path     string
	exec     *executor.Executor
	registry *task.Registry
	input    core.Output
	opts     []executor.Option
	pretty   bool
	out      io.Writer
}

// runOnce executes the workflow file once. Failures are logged instead of
// returned so a broken intermediate save keeps the session alive.
func (s *devSession) runOnce(ctx context.Context) {
	log := logger.FromContext(ctx)
	wf, err := loadWorkflow(ctx, s.path, s.registry)
	if err != nil {
		log.Error("workflow load failed", "path", s.path, "error", err)
		return
	}
	result, err := s.exec.Execute(ctx, wf, s.input, s.opts...)
	if err != nil {
		log.Error("workflow execution failed", "workflow_id", wf.ID, "error", err)
		return
	}
	if err := writeJSON(s.out, result, s.pretty); err != nil {
		log.Error("failed to write result", "error", err)
	}
}

// watch blocks until the context is canceled, re-running the workflow
// whenever the file changes.
func (s *devSession) watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()
	// Watch the parent directory: editors that save via rename replace the
	// inode, which silently drops a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(s.path), err)
	}
	rerun := make(chan struct{}, 1)
	debounced, cancel := debounce.NewWithMaxWait(devDebounceWait, devDebounceMaxWait, func() {
		select {
		case rerun <- struct{}{}:
		default:
		}
	})
	defer cancel()
	log := logger.FromContext(ctx)
	log.Info("watching workflow for changes", "path", s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-rerun:
			s.runOnce(ctx)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if s.shouldRerun(event) {
				debounced()
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("file watcher error", "error", watchErr)
		}
	}
}

func (s *devSession) shouldRerun(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	return filepath.Clean(event.Name) == s.path
}
