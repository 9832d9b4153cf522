package builtin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/schema"
	"github.com/meshflow/meshflow/engine/task"
)

// Completion strategies for parallel branches.
const (
	StrategyWaitForAll   = "waitForAll"
	StrategyWaitForCount = "waitForCount"
)

// Branch terminal statuses reported in the parallel output.
const (
	BranchCompleted = "completed"
	BranchFailed    = "failed"
	BranchTimeout   = "timeout"
	BranchCanceled  = "canceled"
)

// Parallel runs named branch sub-graphs concurrently under a maxConcurrency
// admission gate. Every branch executes on an isolated copy of the run
// context; successful branch bags merge back in branch declaration order,
// last writer wins.
type Parallel struct{}

type parallelConfig struct {
	Branches        []parallelBranch `json:"branches"`
	MaxConcurrency  int              `json:"maxConcurrency"`
	Strategy        string           `json:"strategy"`
	CompletionCount int              `json:"completionCount"`
	FailOnError     *bool            `json:"failOnError"`
}

type parallelBranch struct {
	Name    string   `json:"name"`
	Nodes   []string `json:"nodes"`
	Timeout any      `json:"timeout"`
}

// branchOutcome is the bookkeeping record for one branch.
type branchOutcome struct {
	Name     string
	Status   string
	Duration time.Duration
	Output   core.Output
	Vars     map[string]any
	Err      error
}

// NewParallel creates the parallel task.
func NewParallel() *Parallel {
	return &Parallel{}
}

func (p *Parallel) Type() string { return TypeParallel }

func (p *Parallel) Validate(config core.Input) task.ValidationResult {
	cfg, err := decodeConfig[parallelConfig](config)
	if err != nil {
		return task.Invalid(err.Error())
	}
	result := task.OK()
	if len(cfg.Branches) == 0 {
		result.AddError("at least one branch is required")
	}
	seen := make(map[string]bool, len(cfg.Branches))
	for i, br := range cfg.Branches {
		if br.Name == "" {
			result.AddError(fmt.Sprintf("branches[%d]: name is required", i))
			continue
		}
		if seen[br.Name] {
			result.AddError(fmt.Sprintf("branches[%d]: duplicate branch name %q", i, br.Name))
		}
		seen[br.Name] = true
		if br.Timeout != nil {
			if _, err := parseBranchTimeout(br.Timeout); err != nil {
				result.AddError(fmt.Sprintf("branches[%d]: %v", i, err))
			}
		}
	}
	if cfg.MaxConcurrency < 0 {
		result.AddError("maxConcurrency must not be negative")
	}
	switch cfg.Strategy {
	case "", StrategyWaitForAll:
	case StrategyWaitForCount:
		if cfg.CompletionCount <= 0 {
			result.AddError("waitForCount requires a positive completionCount")
		}
	default:
		result.AddError(fmt.Sprintf("unknown strategy %q", cfg.Strategy))
	}
	return result
}

// Subgraphs declares one child node list per branch.
func (p *Parallel) Subgraphs(config core.Input) map[string][]string {
	cfg, err := decodeConfig[parallelConfig](config)
	if err != nil {
		return nil
	}
	out := make(map[string][]string, len(cfg.Branches))
	for _, br := range cfg.Branches {
		out[br.Name] = br.Nodes
	}
	return out
}

func (p *Parallel) Execute(ctx context.Context, in *task.Input) (core.Output, error) {
	cfg, err := decodeConfig[parallelConfig](in.Config)
	if err != nil {
		return nil, err
	}
	if len(cfg.Branches) == 0 {
		return nil, fmt.Errorf("parallel node declares no branches")
	}
	outcomes := p.runBranches(ctx, in, cfg)

	// Merge successful branch bags back in declaration order so conflicting
	// writes resolve deterministically: the last declared branch wins.
	for i := range outcomes {
		if outcomes[i].Status == BranchCompleted {
			in.Context.MergeVariables(outcomes[i].Vars)
		}
	}

	completed, failures := 0, make([]string, 0)
	branches := make([]any, 0, len(outcomes))
	for i := range outcomes {
		o := &outcomes[i]
		entry := map[string]any{
			"name":     o.Name,
			"status":   o.Status,
			"duration": o.Duration.Milliseconds(),
		}
		switch o.Status {
		case BranchCompleted:
			completed++
			entry["result"] = map[string]any(o.Output)
		case BranchFailed, BranchTimeout:
			failures = append(failures, fmt.Sprintf("%s (%s)", o.Name, o.Status))
			if o.Err != nil {
				entry["error"] = o.Err.Error()
			}
		}
		branches = append(branches, entry)
	}

	failOnError := cfg.FailOnError == nil || *cfg.FailOnError
	if failOnError && len(failures) > 0 {
		return nil, fmt.Errorf("parallel branches failed: %s", strings.Join(failures, ", "))
	}
	return core.Output{
		"branches":  branches,
		"completed": completed,
		"failed":    len(failures),
		"strategy":  strategyOrDefault(cfg.Strategy),
	}, nil
}

// runBranches executes every branch under the admission gate and waits for
// them to settle. Under waitForCount the remaining branches are canceled
// once enough have finished.
func (p *Parallel) runBranches(ctx context.Context, in *task.Input, cfg parallelConfig) []branchOutcome {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	gate := len(cfg.Branches)
	if cfg.MaxConcurrency > 0 && cfg.MaxConcurrency < gate {
		gate = cfg.MaxConcurrency
	}
	sem := make(chan struct{}, gate)

	target := int64(len(cfg.Branches))
	if cfg.Strategy == StrategyWaitForCount && cfg.CompletionCount > 0 && int64(cfg.CompletionCount) < target {
		target = int64(cfg.CompletionCount)
	}
	var settled atomic.Int64

	outcomes := make([]branchOutcome, len(cfg.Branches))
	var wg sync.WaitGroup
	for i, br := range cfg.Branches {
		outcomes[i] = branchOutcome{Name: br.Name, Status: BranchCanceled}
		wg.Add(1)
		go func(i int, br parallelBranch) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-runCtx.Done():
				return
			}
			outcomes[i] = p.runBranch(runCtx, in, br)
			if outcomes[i].Status != BranchCanceled && settled.Add(1) >= target {
				cancel()
			}
		}(i, br)
	}
	wg.Wait()
	return outcomes
}

func (p *Parallel) runBranch(ctx context.Context, in *task.Input, br parallelBranch) branchOutcome {
	branchCtx := ctx
	var timeout time.Duration
	if br.Timeout != nil {
		timeout, _ = parseBranchTimeout(br.Timeout)
	}
	var cancel context.CancelFunc
	if timeout > 0 {
		branchCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := in.Context.RunSubgraph(branchCtx, &task.SubgraphRequest{
		Branch:  br.Name,
		Payload: in.Payload,
	})
	outcome := branchOutcome{Name: br.Name, Duration: time.Since(start)}
	switch {
	case err == nil:
		outcome.Status = BranchCompleted
		outcome.Output = res.Output
		outcome.Vars = res.Vars
	case timeout > 0 && branchCtx.Err() != nil && ctx.Err() == nil:
		outcome.Status = BranchTimeout
		outcome.Err = fmt.Errorf("branch %q timed out after %s", br.Name, timeout)
	case ctx.Err() != nil:
		outcome.Status = BranchCanceled
		outcome.Err = err
	default:
		outcome.Status = BranchFailed
		outcome.Err = err
	}
	return outcome
}

// parseBranchTimeout accepts a duration string ("30s") or a bare number of
// milliseconds.
func parseBranchTimeout(v any) (time.Duration, error) {
	switch t := v.(type) {
	case string:
		d, err := core.ParseHumanDuration(t)
		if err != nil {
			return 0, fmt.Errorf("invalid timeout %q: %w", t, err)
		}
		return d, nil
	case int, int64, float64:
		ms := core.AsFloat(t)
		if ms < 0 {
			return 0, errors.New("timeout must not be negative")
		}
		return time.Duration(ms) * time.Millisecond, nil
	default:
		return 0, fmt.Errorf("invalid timeout type %T", v)
	}
}

func strategyOrDefault(s string) string {
	if s == "" {
		return StrategyWaitForAll
	}
	return s
}

func (p *Parallel) Schema() *task.Schema {
	return &task.Schema{
		Type: TypeParallel,
		Properties: map[string]task.PropertySpec{
			"branches": {
				Type:        "array",
				Description: "named branches, each owning a child node list and optional timeout",
				Items:       &task.PropertySpec{Type: "object"},
			},
			"maxConcurrency": {
				Type:        "integer",
				Description: "admission gate; 0 runs every branch at once",
				Default:     0,
			},
			"strategy": {
				Type:    "string",
				Enum:    []any{StrategyWaitForAll, StrategyWaitForCount},
				Default: StrategyWaitForAll,
			},
			"completionCount": {
				Type:        "integer",
				Description: "settled branches required under waitForCount",
			},
			"failOnError": {
				Type:        "boolean",
				Description: "abort when any branch fails or times out",
				Default:     true,
			},
		},
		Required: []string{"branches"},
	}
}

func (p *Parallel) OutputSchema() schema.Schema {
	return schema.Schema{
		"type": "object",
		"properties": map[string]any{
			"branches":  map[string]any{"type": "array"},
			"completed": map[string]any{"type": "integer"},
			"failed":    map[string]any{"type": "integer"},
			"strategy":  map[string]any{"type": "string"},
		},
		"required": []any{"branches", "completed", "failed"},
	}
}

func (p *Parallel) DisplayInfo() task.DisplayInfo {
	return task.DisplayInfo{
		Category: task.CategoryControlFlow,
		Label:    "Parallel",
		Icon:     "columns",
		Tags:     []string{"concurrent", "fan-out", "branches"},
	}
}
