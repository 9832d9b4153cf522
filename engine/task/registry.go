package task

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrTaskNil indicates a nil task registration attempt.
	ErrTaskNil = errors.New("task must not be nil")
	// ErrTaskTypeEmpty indicates a task registration with an empty type.
	ErrTaskTypeEmpty = errors.New("task type must not be empty")
	// ErrTaskAlreadyRegistered indicates a duplicate task registration.
	ErrTaskAlreadyRegistered = errors.New("task already registered")
)

// Registry stores task implementations keyed by node type. It is safe for
// concurrent use; registration normally happens once at startup.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

// NewRegistry creates an empty task registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]Task)}
}

func canonicalType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// Register adds a task to the registry, guarding against duplicates.
func (r *Registry) Register(t Task) error {
	if t == nil {
		return ErrTaskNil
	}
	key := canonicalType(t.Type())
	if key == "" {
		return ErrTaskTypeEmpty
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[key]; exists {
		return fmt.Errorf("%w: %s", ErrTaskAlreadyRegistered, key)
	}
	r.tasks[key] = t
	return nil
}

// MustRegister registers a set of tasks and panics on failure. It is meant
// for wiring the builtin catalog at startup, where a duplicate is a bug.
func (r *Registry) MustRegister(tasks ...Task) {
	for _, t := range tasks {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Get retrieves the task registered for a node type.
func (r *Registry) Get(nodeType string) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[canonicalType(nodeType)]
	if !ok {
		return nil, fmt.Errorf("task type %s is not registered", nodeType)
	}
	return t, nil
}

// Has reports whether a node type is registered.
func (r *Registry) Has(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tasks[canonicalType(nodeType)]
	return ok
}

// Types returns all registered node types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tasks))
	for t := range r.tasks {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Definition builds the catalog entry for one node type.
func (r *Registry) Definition(nodeType string) (*Definition, error) {
	t, err := r.Get(nodeType)
	if err != nil {
		return nil, err
	}
	return buildDefinition(t), nil
}

// Definitions builds catalog entries for every registered task, sorted by
// type.
func (r *Registry) Definitions() []*Definition {
	types := r.Types()
	out := make([]*Definition, 0, len(types))
	for _, typ := range types {
		t, err := r.Get(typ)
		if err != nil {
			continue
		}
		out = append(out, buildDefinition(t))
	}
	return out
}

func buildDefinition(t Task) *Definition {
	def := &Definition{
		Type:         t.Type(),
		DisplayInfo:  t.DisplayInfo(),
		ConfigSchema: t.Schema().JSONSchema(),
	}
	if p, ok := t.(OutputSchemaProvider); ok {
		def.OutputSchema = p.OutputSchema()
	}
	if p, ok := t.(SampleOutputProvider); ok {
		def.SampleOutput = p.SampleOutput()
	}
	return def
}
