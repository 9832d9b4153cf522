package core

import (
	"fmt"

	"github.com/mohae/deepcopy"
)

// deepCopyMap returns a deep copy of the provided map[string]any.
func deepCopyMap(m map[string]any) (map[string]any, error) {
	copied, ok := deepcopy.Copy(m).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("failed to copy map")
	}
	return copied, nil
}

// DeepCopy creates a deep copy of the supplied value, preserving the concrete
// Input/Output map types instead of devolving into a plain map. Nil maps copy
// to nil. It backs context snapshot isolation for parallel branches and loop
// items, so copies must never alias the source.
func DeepCopy[T any](v T) (T, error) {
	var zero T
	switch src := any(v).(type) {
	case Input:
		if src == nil {
			return zero, nil
		}
		copied, err := deepCopyMap(src)
		if err != nil {
			return zero, fmt.Errorf("failed to copy Input: %w", err)
		}
		return any(Input(copied)).(T), nil
	case Output:
		if src == nil {
			return zero, nil
		}
		copied, err := deepCopyMap(src)
		if err != nil {
			return zero, fmt.Errorf("failed to copy Output: %w", err)
		}
		return any(Output(copied)).(T), nil
	case map[string]any:
		if src == nil {
			return zero, nil
		}
		copied, err := deepCopyMap(src)
		if err != nil {
			return zero, err
		}
		return any(copied).(T), nil
	default:
		copied, ok := deepcopy.Copy(v).(T)
		if !ok {
			return zero, fmt.Errorf("failed to cast copied value to %T", zero)
		}
		return copied, nil
	}
}
