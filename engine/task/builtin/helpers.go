package builtin

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/task"
)

// -----------------------------------------------------------------------------
// Evaluation scope
// -----------------------------------------------------------------------------

// evalScope assembles the namespace expressions and dot paths resolve
// against. Loop items surface as top-level "item"/"index" so expressions
// read naturally inside iteration bodies.
func evalScope(in *task.Input) map[string]any {
	vars := in.Context.Variables()
	scope := map[string]any{
		"input":   map[string]any(in.Config),
		"payload": in.Payload.AsMap(),
		"trigger": in.Context.TriggerPayload().AsMap(),
		"vars":    vars,
	}
	if in.Config == nil {
		scope["input"] = map[string]any{}
	}
	if item, ok := vars["item"]; ok {
		scope["item"] = item
	}
	if index, ok := vars["index"]; ok {
		scope["index"] = index
	}
	return scope
}

// itemScope extends the base scope with one element under iteration.
func itemScope(in *task.Input, item any, index int) map[string]any {
	scope := evalScope(in)
	scope["item"] = item
	scope["index"] = index
	return scope
}

// -----------------------------------------------------------------------------
// Input resolution
// -----------------------------------------------------------------------------

// resolveData picks the working value for a data task, in order: an explicit
// "data" literal, a "dataPath" dot path resolved against the evaluation
// scope, the inbound payload, and finally the previous-result convention
// key.
func resolveData(in *task.Input) any {
	if v, ok := in.Config["data"]; ok {
		return v
	}
	if path, _ := in.Config["dataPath"].(string); path != "" {
		return core.ResolvePathDefault(evalScope(in), path, nil)
	}
	if len(in.Payload) > 0 {
		return map[string]any(in.Payload)
	}
	if prev, ok := in.Context.Variables()["previousResult"]; ok {
		return prev
	}
	return nil
}

// resolveItems picks the array a collection task iterates, in order: an
// explicit "items" literal, an "itemsPath" dot path, an array carried by the
// inbound payload, and finally the previous-result convention key.
func resolveItems(in *task.Input) ([]any, error) {
	if raw, ok := in.Config["items"]; ok {
		arr, ok := toArray(raw)
		if !ok {
			return nil, fmt.Errorf("config 'items' must be an array, got %T", raw)
		}
		return arr, nil
	}
	if path, _ := in.Config["itemsPath"].(string); path != "" {
		value, err := core.ResolvePath(evalScope(in), path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve itemsPath: %w", err)
		}
		arr, ok := toArray(value)
		if !ok {
			return nil, fmt.Errorf("itemsPath %q does not address an array", path)
		}
		return arr, nil
	}
	if arr, ok := arrayFromValue(map[string]any(in.Payload)); ok {
		return arr, nil
	}
	if prev, ok := in.Context.Variables()["previousResult"]; ok {
		if arr, ok := arrayFromValue(prev); ok {
			return arr, nil
		}
	}
	return nil, fmt.Errorf("no input items: declare 'items' or 'itemsPath', or feed an array through the inbound payload")
}

// arrayFromValue digs an array out of a value: the value itself, a
// conventional "items"/"result" key, or a map's single array member.
func arrayFromValue(v any) ([]any, bool) {
	if arr, ok := toArray(v); ok {
		return arr, true
	}
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for _, key := range []string{"items", "result"} {
		if arr, ok := toArray(m[key]); ok {
			return arr, true
		}
	}
	if len(m) == 1 {
		for _, member := range m {
			if arr, ok := toArray(member); ok {
				return arr, true
			}
		}
	}
	return nil, false
}

// toArray accepts the array shapes YAML and JSON decoding produce.
func toArray(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// lookupField resolves a dot path inside a document. An empty field selects
// the document itself. The boolean reports presence, which "exists" checks
// rely on to distinguish absent from null.
func lookupField(doc any, field string) (any, bool) {
	if field == "" {
		return doc, true
	}
	value, err := core.ResolvePath(doc, field)
	if err != nil {
		return nil, false
	}
	return value, true
}

// -----------------------------------------------------------------------------
// Config decoding
// -----------------------------------------------------------------------------

// decodeConfig maps a raw node config onto a typed task config struct.
func decodeConfig[T any](config core.Input) (T, error) {
	cfg, err := core.FromMapDefault[T](map[string]any(config))
	if err != nil {
		var zero T
		return zero, fmt.Errorf("invalid task config: %w", err)
	}
	return cfg, nil
}

// -----------------------------------------------------------------------------
// Comparison
// -----------------------------------------------------------------------------

// Condition operators shared by the conditional and filter tasks.
const (
	OpEquals      = "equals"
	OpNotEquals   = "notEquals"
	OpGreaterThan = "greaterThan"
	OpLessThan    = "lessThan"
	OpContains    = "contains"
	OpExists      = "exists"
	OpStartsWith  = "startsWith"
	OpEndsWith    = "endsWith"
)

func knownOperator(op string) bool {
	switch op {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan,
		OpContains, OpExists, OpStartsWith, OpEndsWith:
		return true
	default:
		return false
	}
}

// compareValues applies one condition operator. The exists operator is
// handled by callers since it depends on field presence, not value.
func compareValues(operator string, actual, expected any) (bool, error) {
	switch operator {
	case OpEquals:
		return looseEqual(actual, expected), nil
	case OpNotEquals:
		return !looseEqual(actual, expected), nil
	case OpGreaterThan:
		return ordered(actual, expected) > 0, nil
	case OpLessThan:
		return ordered(actual, expected) < 0, nil
	case OpContains:
		return containsValue(actual, expected), nil
	case OpStartsWith:
		return strings.HasPrefix(core.AsString(actual), core.AsString(expected)), nil
	case OpEndsWith:
		return strings.HasSuffix(core.AsString(actual), core.AsString(expected)), nil
	default:
		return false, fmt.Errorf("unknown operator %q", operator)
	}
}

// looseEqual compares the way documents do: numbers by value regardless of
// width, scalars by natural equality, composites structurally.
func looseEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if isNumeric(a) && isNumeric(b) {
		return core.AsFloat(a) == core.AsFloat(b)
	}
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return as == bs
	}
	ab, aIsBool := a.(bool)
	bb, bIsBool := b.(bool)
	if aIsBool && bIsBool {
		return ab == bb
	}
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aj) == string(bj)
}

// ordered compares two values, numerically when both sides are numbers and
// lexicographically otherwise. Returns -1, 0 or 1.
func ordered(a, b any) int {
	if isNumeric(a) && isNumeric(b) {
		af, bf := core.AsFloat(a), core.AsFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(core.AsString(a), core.AsString(b))
}

func containsValue(actual, expected any) bool {
	switch t := actual.(type) {
	case string:
		return strings.Contains(t, core.AsString(expected))
	case []any:
		for _, member := range t {
			if looseEqual(member, expected) {
				return true
			}
		}
		return false
	case map[string]any:
		_, ok := t[core.AsString(expected)]
		return ok
	default:
		return strings.Contains(core.AsString(actual), core.AsString(expected))
	}
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return true
	default:
		return false
	}
}
