package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kaptinlin/jsonschema"
)

// -----------------------------------------------------------------------------
// Schema
// -----------------------------------------------------------------------------

type Schema map[string]any
type Result = jsonschema.EvaluationResult

// compiledSchemaCache memoizes compiled schemas keyed by their JSON encoding.
// Task schemas are static per process, so the cache is never evicted.
var compiledSchemaCache sync.Map

func (s *Schema) String() string {
	bytes, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(bytes)
}

func (s *Schema) Compile() (*jsonschema.Schema, error) {
	if s == nil || *s == nil {
		return nil, nil
	}
	start := time.Now()
	bytes, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	key := string(bytes)
	if cached, ok := compiledSchemaCache.Load(key); ok {
		recordSchemaCompile(context.Background(), time.Since(start), true)
		return cached.(*jsonschema.Schema), nil
	}
	compiler := jsonschema.NewCompiler()
	compiled, err := compiler.Compile(bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	compiledSchemaCache.Store(key, compiled)
	recordSchemaCompile(context.Background(), time.Since(start), false)
	return compiled, nil
}

// Validate evaluates value against the schema. A nil schema accepts
// everything. On failure the returned error flattens every violation.
func (s *Schema) Validate(ctx context.Context, value any) (*Result, error) {
	compiled, err := s.Compile()
	if err != nil {
		return nil, err
	}
	if compiled == nil {
		return nil, nil
	}
	start := time.Now()
	result := compiled.Validate(value)
	recordSchemaValidation(ctx, time.Since(start), result.Valid)
	if result.Valid {
		return result, nil
	}
	fieldErrors := CollectErrors(result)
	messages := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		messages = append(messages, fe.String())
	}
	return nil, fmt.Errorf("schema validation failed: %s", strings.Join(messages, "; "))
}

// -----------------------------------------------------------------------------
// Error extraction
// -----------------------------------------------------------------------------

// FieldError pinpoints a single schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CollectErrors walks an evaluation result and returns one entry per
// violation, with instance locations rendered as dot paths.
func CollectErrors(result *Result) []FieldError {
	if result == nil || result.Valid {
		return nil
	}
	list := result.ToList()
	if list == nil {
		return nil
	}
	var out []FieldError
	collectListErrors(list, &out)
	return out
}

func collectListErrors(list *jsonschema.List, out *[]FieldError) {
	if list == nil {
		return
	}
	if !list.Valid {
		for _, msg := range list.Errors {
			*out = append(*out, FieldError{
				Field:   pointerToDotPath(list.InstanceLocation),
				Message: msg,
			})
		}
	}
	for i := range list.Details {
		collectListErrors(&list.Details[i], out)
	}
}

// pointerToDotPath converts a JSON pointer ("/user/name") to the engine's
// dot-path convention ("user.name").
func pointerToDotPath(pointer string) string {
	trimmed := strings.TrimPrefix(pointer, "/")
	if trimmed == "" {
		return ""
	}
	return strings.ReplaceAll(trimmed, "/", ".")
}
