package builtin

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/expr"
	"github.com/meshflow/meshflow/engine/schema"
	"github.com/meshflow/meshflow/engine/task"
)

// Backoff strategies.
const (
	BackoffFixed       = "fixed"
	BackoffLinear      = "linear"
	BackoffExponential = "exponential"
)

const (
	defaultRetryAttempts = 3
	// maxRetryAttempts is the hard ceiling no configuration can raise.
	maxRetryAttempts = 10

	defaultInitialDelay = time.Second
	defaultMaxDelay     = 30 * time.Second
)

// Retry re-runs its body sub-graph (or inline expression) until it succeeds
// or attempts run out, sleeping between attempts per the backoff strategy.
// retryOn is a substring allowlist of error messages; an empty list retries
// on any error.
type Retry struct {
	eval *expr.Evaluator
}

type retryConfig struct {
	BackoffStrategy string   `json:"backoffStrategy"`
	InitialDelay    any      `json:"initialDelay"`
	MaxDelay        any      `json:"maxDelay"`
	MaxAttempts     int      `json:"maxAttempts"`
	RetryOn         []string `json:"retryOn"`
	Nodes           []string `json:"nodes"`
	Expression      string   `json:"expression"`
}

// NewRetry creates the retry task.
func NewRetry(eval *expr.Evaluator) *Retry {
	return &Retry{eval: eval}
}

func (r *Retry) Type() string { return TypeRetry }

func (r *Retry) Validate(config core.Input) task.ValidationResult {
	cfg, err := decodeConfig[retryConfig](config)
	if err != nil {
		return task.Invalid(err.Error())
	}
	result := task.OK()
	switch cfg.BackoffStrategy {
	case "", BackoffFixed, BackoffLinear, BackoffExponential:
	default:
		result.AddError(fmt.Sprintf("unknown backoffStrategy %q", cfg.BackoffStrategy))
	}
	if cfg.MaxAttempts < 0 {
		result.AddError("maxAttempts must not be negative")
	}
	if cfg.MaxAttempts > maxRetryAttempts {
		result.AddError(fmt.Sprintf("maxAttempts exceeds the hard cap of %d", maxRetryAttempts))
	}
	if len(cfg.Nodes) == 0 && cfg.Expression == "" {
		result.AddError("either 'nodes' or 'expression' is required")
	}
	if cfg.Expression != "" {
		if err := r.eval.ValidateExpression(cfg.Expression); err != nil {
			result.AddError(err.Error())
		}
	}
	for _, key := range []string{"initialDelay", "maxDelay"} {
		if raw, ok := config[key]; ok {
			if _, err := parseDelay(raw); err != nil {
				result.AddError(fmt.Sprintf("%s: %v", key, err))
			}
		}
	}
	return result
}

// Subgraphs declares the retried body child nodes.
func (r *Retry) Subgraphs(config core.Input) map[string][]string {
	cfg, err := decodeConfig[retryConfig](config)
	if err != nil || len(cfg.Nodes) == 0 {
		return nil
	}
	return map[string][]string{SubgraphBody: cfg.Nodes}
}

func (r *Retry) Execute(ctx context.Context, in *task.Input) (core.Output, error) {
	cfg, err := decodeConfig[retryConfig](in.Config)
	if err != nil {
		return nil, err
	}
	initial, maxDelay := r.delays(cfg)
	attemptsAllowed := cfg.MaxAttempts
	if attemptsAllowed <= 0 {
		attemptsAllowed = defaultRetryAttempts
	}
	if attemptsAllowed > maxRetryAttempts {
		attemptsAllowed = maxRetryAttempts
	}

	var totalDelay atomic.Int64
	backoff := recordDelays(&totalDelay, newBackoff(cfg.BackoffStrategy, initial, maxDelay))
	// go-retry counts re-attempts, so the budget excludes the first try.
	backoff = retry.WithMaxRetries(uint64(attemptsAllowed-1), backoff)

	attempts := 0
	var out core.Output
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		result, attemptErr := r.attempt(ctx, in, cfg)
		if attemptErr != nil {
			if retryableError(attemptErr, cfg.RetryOn) {
				return retry.RetryableError(attemptErr)
			}
			return attemptErr
		}
		out = result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("retry exhausted after %d attempt(s): %w", attempts, err)
	}
	return core.Output{
		"result":       map[string]any(out),
		"attempts":     attempts,
		"succeeded":    true,
		"totalDelayMs": time.Duration(totalDelay.Load()).Milliseconds(),
	}, nil
}

// attempt runs one try: the body sub-graph when declared, the inline
// expression otherwise. Sub-graph bags merge back only on success, so a
// failed attempt leaves no partial writes behind.
func (r *Retry) attempt(ctx context.Context, in *task.Input, cfg retryConfig) (core.Output, error) {
	if len(cfg.Nodes) > 0 {
		res, err := in.Context.RunSubgraph(ctx, &task.SubgraphRequest{
			Branch:  SubgraphBody,
			Payload: in.Payload,
		})
		if err != nil {
			return nil, err
		}
		in.Context.MergeVariables(res.Vars)
		return res.Output, nil
	}
	value, err := r.eval.EvaluateValue(ctx, cfg.Expression, evalScope(in))
	if err != nil {
		return nil, err
	}
	return core.Output{"value": value}, nil
}

func (r *Retry) delays(cfg retryConfig) (time.Duration, time.Duration) {
	initial := defaultInitialDelay
	if cfg.InitialDelay != nil {
		if d, err := parseDelay(cfg.InitialDelay); err == nil {
			initial = d
		}
	}
	maxDelay := defaultMaxDelay
	if cfg.MaxDelay != nil {
		if d, err := parseDelay(cfg.MaxDelay); err == nil {
			maxDelay = d
		}
	}
	return initial, maxDelay
}

// newBackoff builds the delay sequence for a strategy: fixed yields the
// initial delay forever, linear multiplies it by the attempt number, and
// exponential doubles it per attempt. Every strategy is capped at maxDelay.
func newBackoff(strategy string, initial, maxDelay time.Duration) retry.Backoff {
	var b retry.Backoff
	switch strategy {
	case BackoffFixed:
		b = retry.NewConstant(initial)
	case BackoffLinear:
		b = linearBackoff(initial)
	default:
		b = retry.NewExponential(initial)
	}
	if maxDelay > 0 {
		b = retry.WithCappedDuration(maxDelay, b)
	}
	return b
}

// linearBackoff yields initial, 2*initial, 3*initial, ...
func linearBackoff(initial time.Duration) retry.Backoff {
	var attempt int64
	return retry.BackoffFunc(func() (time.Duration, bool) {
		n := atomic.AddInt64(&attempt, 1)
		return time.Duration(n) * initial, false
	})
}

// recordDelays sums the slept durations so the task can report them.
func recordDelays(total *atomic.Int64, next retry.Backoff) retry.Backoff {
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := next.Next()
		if !stop {
			total.Add(int64(d))
		}
		return d, stop
	})
}

// retryableError matches an error against the allowlist. An empty list
// retries on anything.
func retryableError(err error, allowlist []string) bool {
	if len(allowlist) == 0 {
		return true
	}
	msg := err.Error()
	for _, fragment := range allowlist {
		if fragment != "" && strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// parseDelay accepts a duration string ("500ms") or a bare number of
// milliseconds.
func parseDelay(v any) (time.Duration, error) {
	switch t := v.(type) {
	case string:
		d, err := core.ParseHumanDuration(t)
		if err != nil {
			return 0, fmt.Errorf("invalid delay %q: %w", t, err)
		}
		if d < 0 {
			return 0, fmt.Errorf("delay must not be negative")
		}
		return d, nil
	case int, int64, float64:
		ms := core.AsFloat(t)
		if ms < 0 {
			return 0, fmt.Errorf("delay must not be negative")
		}
		return time.Duration(ms) * time.Millisecond, nil
	default:
		return 0, fmt.Errorf("invalid delay type %T", v)
	}
}

func (r *Retry) Schema() *task.Schema {
	return &task.Schema{
		Type: TypeRetry,
		Properties: map[string]task.PropertySpec{
			"backoffStrategy": {
				Type:    "string",
				Enum:    []any{BackoffFixed, BackoffLinear, BackoffExponential},
				Default: BackoffExponential,
			},
			"initialDelay": {Description: "first delay, duration string or milliseconds", Default: "1s"},
			"maxDelay":     {Description: "delay ceiling, duration string or milliseconds", Default: "30s"},
			"maxAttempts": {
				Type:    "integer",
				Default: defaultRetryAttempts,
				Maximum: task.Float(maxRetryAttempts),
			},
			"retryOn": {
				Type:        "array",
				Description: "error message substrings worth retrying; empty retries everything",
				Items:       &task.PropertySpec{Type: "string"},
			},
			"nodes": {
				Type:        "array",
				Description: "child node ids forming the retried body",
				Items:       &task.PropertySpec{Type: "string"},
			},
			"expression": {Type: "string", Description: "inline expression retried when no body is declared"},
		},
	}
}

func (r *Retry) OutputSchema() schema.Schema {
	return schema.Schema{
		"type": "object",
		"properties": map[string]any{
			"result":       map[string]any{"type": "object"},
			"attempts":     map[string]any{"type": "integer"},
			"succeeded":    map[string]any{"type": "boolean"},
			"totalDelayMs": map[string]any{"type": "integer"},
		},
		"required": []any{"attempts", "succeeded"},
	}
}

func (r *Retry) DisplayInfo() task.DisplayInfo {
	return task.DisplayInfo{
		Category: task.CategoryControlFlow,
		Label:    "Retry",
		Icon:     "refresh-cw",
		Tags:     []string{"backoff", "resilience"},
	}
}
