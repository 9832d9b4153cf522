package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// -----------------------------------------------------------------------------
// Dot-path resolution
// -----------------------------------------------------------------------------

// ResolvePath resolves a gjson dot path ("user.address.city", "items.0.id")
// against any JSON-serializable document. It returns an error when the path
// does not exist so callers can distinguish "absent" from "present but null".
func ResolvePath(doc any, path string) (any, error) {
	if path == "" {
		return doc, nil
	}
	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document to JSON: %w", err)
	}
	result := gjson.GetBytes(jsonBytes, path)
	if !result.Exists() {
		return nil, fmt.Errorf("path %q not found", path)
	}
	return result.Value(), nil
}

// ResolvePathDefault resolves path against doc and returns fallback when the
// path is absent or the document cannot be serialized.
func ResolvePathDefault(doc any, path string, fallback any) any {
	value, err := ResolvePath(doc, path)
	if err != nil {
		return fallback
	}
	return value
}

// SetPath assigns value at a dot path inside m, creating intermediate maps as
// needed. Path segments that collide with non-map values are replaced. There
// is no writer counterpart to gjson in use here, so mutation stays on plain
// maps.
func SetPath(m map[string]any, path string, value any) error {
	if m == nil {
		return fmt.Errorf("cannot set path on nil map")
	}
	if path == "" {
		return fmt.Errorf("cannot set empty path")
	}
	segments := strings.Split(path, ".")
	current := m
	for i, segment := range segments {
		if segment == "" {
			return fmt.Errorf("path %q has an empty segment", path)
		}
		if i == len(segments)-1 {
			current[segment] = value
			return nil
		}
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[segment] = next
		}
		current = next
	}
	return nil
}
