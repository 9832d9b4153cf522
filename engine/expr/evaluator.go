package expr

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
	"google.golang.org/protobuf/types/known/structpb"
)

// -----------------------------------------------------------------------------
// Evaluator
// -----------------------------------------------------------------------------

const (
	defaultCostLimit = 1000
	defaultCacheSize = 256
)

// Variables available to workflow expressions. Every evaluation site
// populates the subset that makes sense for it; referencing an unpopulated
// variable is an evaluation error.
var expressionVariables = []string{
	"input",
	"trigger",
	"context",
	"nodes",
	"item",
	"index",
	"acc",
	"vars",
	"env",
	"output",
	"payload",
	"headers",
	"query",
}

// Evaluator compiles and runs CEL expressions in a sandboxed environment.
// There is no arbitrary code execution path: expressions are parsed to an
// AST, type-checked against the declared variables and executed with a cost
// limit. Compiled programs are cached per expression text.
type Evaluator struct {
	env          *cel.Env
	costLimit    uint64
	cacheSize    int
	programCache *ristretto.Cache[string, cel.Program]
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCostLimit overrides the evaluation cost budget.
func WithCostLimit(limit uint64) Option {
	return func(e *Evaluator) {
		e.costLimit = limit
	}
}

// WithCacheSize overrides the compiled-program cache capacity.
func WithCacheSize(size int) Option {
	return func(e *Evaluator) {
		e.cacheSize = size
	}
}

// NewEvaluator creates an expression evaluator.
func NewEvaluator(opts ...Option) (*Evaluator, error) {
	evaluator := &Evaluator{
		costLimit: defaultCostLimit,
		cacheSize: defaultCacheSize,
	}
	for _, opt := range opts {
		opt(evaluator)
	}
	// Workflow data is JSON, so int and double mix freely in comparisons.
	envOpts := make([]cel.EnvOption, 0, len(expressionVariables)+1)
	envOpts = append(envOpts, cel.CrossTypeNumericComparisons(true))
	for _, name := range expressionVariables {
		envOpts = append(envOpts, cel.Variable(name, cel.DynType))
	}
	env, err := cel.NewEnv(envOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create expression environment: %w", err)
	}
	evaluator.env = env
	cache, err := ristretto.NewCache(&ristretto.Config[string, cel.Program]{
		NumCounters: int64(evaluator.cacheSize) * 10,
		MaxCost:     int64(evaluator.cacheSize),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create program cache: %w", err)
	}
	evaluator.programCache = cache
	return evaluator, nil
}

// ValidateExpression checks that an expression parses and type-checks
// without running it.
func (e *Evaluator) ValidateExpression(expression string) error {
	if strings.TrimSpace(expression) == "" {
		return fmt.Errorf("invalid expression: empty")
	}
	if _, issues := e.env.Compile(expression); issues != nil && issues.Err() != nil {
		return fmt.Errorf("invalid expression: compilation failed: %w", issues.Err())
	}
	return nil
}

// Evaluate runs a boolean expression against the given data. Non-boolean
// results are an error so conditions can never silently coerce.
func (e *Evaluator) Evaluate(ctx context.Context, expression string, data map[string]any) (bool, error) {
	val, err := e.eval(ctx, expression, data)
	if err != nil {
		return false, err
	}
	boolVal, ok := val.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return a boolean, got %v", val.Type())
	}
	return boolVal, nil
}

// EvaluateValue runs an expression and converts the result to a JSON-native
// Go value (map, slice, string, float64, bool or nil).
func (e *Evaluator) EvaluateValue(ctx context.Context, expression string, data map[string]any) (any, error) {
	val, err := e.eval(ctx, expression, data)
	if err != nil {
		return nil, err
	}
	pbVal, err := val.ConvertToNative(reflect.TypeOf(&structpb.Value{}))
	if err != nil {
		return nil, fmt.Errorf("failed to convert expression result: %w", err)
	}
	return pbVal.(*structpb.Value).AsInterface(), nil
}

func (e *Evaluator) eval(ctx context.Context, expression string, data map[string]any) (ref.Val, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("expression evaluation canceled: %w", err)
	}
	program, err := e.program(expression)
	if err != nil {
		return nil, err
	}
	out, _, err := program.ContextEval(ctx, data)
	if err != nil {
		if strings.Contains(err.Error(), "cost limit") {
			return nil, fmt.Errorf("expression exceeded cost limit of %d: %w", e.costLimit, err)
		}
		return nil, fmt.Errorf("expression evaluation failed: %w", err)
	}
	return out, nil
}

func (e *Evaluator) program(expression string) (cel.Program, error) {
	if cached, ok := e.programCache.Get(expression); ok {
		return cached, nil
	}
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("expression compilation failed: %w", issues.Err())
	}
	program, err := e.env.Program(ast,
		cel.CostLimit(e.costLimit),
		cel.InterruptCheckFrequency(100),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build expression program: %w", err)
	}
	e.programCache.Set(expression, program, 1)
	return program, nil
}
