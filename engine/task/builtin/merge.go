package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"dario.cat/mergo"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/schema"
	"github.com/meshflow/meshflow/engine/task"
)

// Merge strategies.
const (
	MergeShallow = "shallow"
	MergeDeep    = "deep"
	MergeConcat  = "concat"
	MergeUnion   = "union"
)

// Conflict policies for object strategies.
const (
	ConflictFirst = "first"
	ConflictLast  = "last"
	ConflictError = "error"
)

// Merge combines several sources into one value. Object strategies
// (shallow, deep) resolve key collisions per the conflict policy; array
// strategies (concat, union) flatten sources into one array, union
// de-duplicating by JSON identity.
type Merge struct{}

type mergeConfig struct {
	Sources     []any    `json:"sources"`
	SourcePaths []string `json:"sourcePaths"`
	Strategy    string   `json:"strategy"`
	Conflict    string   `json:"conflict"`
}

// NewMerge creates the merge task.
func NewMerge() *Merge {
	return &Merge{}
}

func (m *Merge) Type() string { return TypeMerge }

func (m *Merge) Validate(config core.Input) task.ValidationResult {
	cfg, err := decodeConfig[mergeConfig](config)
	if err != nil {
		return task.Invalid(err.Error())
	}
	result := task.OK()
	if len(cfg.Sources) == 0 && len(cfg.SourcePaths) == 0 {
		result.AddError("either 'sources' or 'sourcePaths' is required")
	}
	switch cfg.Strategy {
	case "", MergeShallow, MergeDeep, MergeConcat, MergeUnion:
	default:
		result.AddError(fmt.Sprintf("unknown strategy %q", cfg.Strategy))
	}
	switch cfg.Conflict {
	case "", ConflictFirst, ConflictLast, ConflictError:
	default:
		result.AddError(fmt.Sprintf("unknown conflict policy %q", cfg.Conflict))
	}
	return result
}

func (m *Merge) Execute(_ context.Context, in *task.Input) (core.Output, error) {
	cfg, err := decodeConfig[mergeConfig](in.Config)
	if err != nil {
		return nil, err
	}
	sources, err := m.resolveSources(in, cfg)
	if err != nil {
		return nil, err
	}
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = MergeShallow
	}
	conflict := cfg.Conflict
	if conflict == "" {
		conflict = ConflictLast
	}
	switch strategy {
	case MergeShallow:
		merged, err := m.shallow(sources, conflict)
		if err != nil {
			return nil, err
		}
		return core.Output{"result": merged, "strategy": strategy}, nil
	case MergeDeep:
		merged, err := m.deep(sources, conflict)
		if err != nil {
			return nil, err
		}
		return core.Output{"result": merged, "strategy": strategy}, nil
	case MergeConcat:
		items, err := m.concat(sources)
		if err != nil {
			return nil, err
		}
		return core.Output{"items": items, "count": len(items), "strategy": strategy}, nil
	case MergeUnion:
		items, err := m.concat(sources)
		if err != nil {
			return nil, err
		}
		items = dedupeByIdentity(items)
		return core.Output{"items": items, "count": len(items), "strategy": strategy}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}
}

func (m *Merge) resolveSources(in *task.Input, cfg mergeConfig) ([]any, error) {
	if len(cfg.Sources) > 0 {
		return cfg.Sources, nil
	}
	scope := evalScope(in)
	sources := make([]any, 0, len(cfg.SourcePaths))
	for _, path := range cfg.SourcePaths {
		value, err := core.ResolvePath(scope, path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve source %q: %w", path, err)
		}
		sources = append(sources, value)
	}
	return sources, nil
}

func (m *Merge) shallow(sources []any, conflict string) (map[string]any, error) {
	merged := make(map[string]any)
	for i, source := range sources {
		obj, ok := source.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("sources[%d] is not an object (%T)", i, source)
		}
		for key, value := range obj {
			if _, exists := merged[key]; exists {
				switch conflict {
				case ConflictFirst:
					continue
				case ConflictError:
					return nil, fmt.Errorf("merge conflict on key %q", key)
				}
			}
			merged[key] = value
		}
	}
	return merged, nil
}

func (m *Merge) deep(sources []any, conflict string) (map[string]any, error) {
	merged := make(map[string]any)
	for i, source := range sources {
		obj, ok := source.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("sources[%d] is not an object (%T)", i, source)
		}
		if conflict == ConflictError {
			if path, collides := deepCollision(merged, obj, ""); collides {
				return nil, fmt.Errorf("merge conflict on key %q", path)
			}
		}
		copied, err := core.DeepCopy(obj)
		if err != nil {
			return nil, fmt.Errorf("failed to copy sources[%d]: %w", i, err)
		}
		opts := []func(*mergo.Config){}
		if conflict != ConflictFirst {
			opts = append(opts, mergo.WithOverride)
		}
		if err := mergo.Merge(&merged, copied, opts...); err != nil {
			return nil, fmt.Errorf("deep merge failed at sources[%d]: %w", i, err)
		}
	}
	return merged, nil
}

// deepCollision reports the first key where both maps carry a value that
// cannot coexist: two plain objects recurse, anything else collides.
func deepCollision(dst, src map[string]any, prefix string) (string, bool) {
	for key, srcVal := range src {
		dstVal, exists := dst[key]
		if !exists {
			continue
		}
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		dstMap, dstIsMap := dstVal.(map[string]any)
		srcMap, srcIsMap := srcVal.(map[string]any)
		if dstIsMap && srcIsMap {
			if nested, collides := deepCollision(dstMap, srcMap, path); collides {
				return nested, true
			}
			continue
		}
		return path, true
	}
	return "", false
}

func (m *Merge) concat(sources []any) ([]any, error) {
	var items []any
	for i, source := range sources {
		arr, ok := toArray(source)
		if !ok {
			return nil, fmt.Errorf("sources[%d] is not an array (%T)", i, source)
		}
		items = append(items, arr...)
	}
	return items, nil
}

// dedupeByIdentity removes duplicates using the JSON encoding as identity,
// keeping first occurrences in order.
func dedupeByIdentity(items []any) []any {
	seen := make(map[string]bool, len(items))
	out := make([]any, 0, len(items))
	for _, item := range items {
		encoded, err := json.Marshal(item)
		if err != nil {
			out = append(out, item)
			continue
		}
		key := string(encoded)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

func (m *Merge) Schema() *task.Schema {
	return &task.Schema{
		Type: TypeMerge,
		Properties: map[string]task.PropertySpec{
			"sources":     {Type: "array", Description: "values to combine, objects or arrays per strategy"},
			"sourcePaths": {Type: "array", Description: "dot paths addressing the values to combine", Items: &task.PropertySpec{Type: "string"}},
			"strategy": {
				Type:    "string",
				Enum:    []any{MergeShallow, MergeDeep, MergeConcat, MergeUnion},
				Default: MergeShallow,
			},
			"conflict": {
				Type:    "string",
				Enum:    []any{ConflictFirst, ConflictLast, ConflictError},
				Default: ConflictLast,
			},
		},
	}
}

func (m *Merge) OutputSchema() schema.Schema {
	return schema.Schema{
		"type": "object",
		"properties": map[string]any{
			"result":   map[string]any{"type": "object"},
			"items":    map[string]any{"type": "array"},
			"count":    map[string]any{"type": "integer"},
			"strategy": map[string]any{"type": "string"},
		},
		"required": []any{"strategy"},
	}
}

func (m *Merge) DisplayInfo() task.DisplayInfo {
	return task.DisplayInfo{
		Category: task.CategoryData,
		Label:    "Merge",
		Icon:     "git-merge",
		Tags:     []string{"combine", "union", "objects"},
	}
}
