package events

import (
	"context"
	"sync"
)

// Emitter receives execution events. Emit is fire-and-forget: implementations
// must not block the run on slow sinks and must swallow their own errors.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// -----------------------------------------------------------------------------
// Noop
// -----------------------------------------------------------------------------

// Noop discards every event. The orchestrator falls back to it when no
// emitter is configured.
type Noop struct{}

func (Noop) Emit(context.Context, Event) {}

// -----------------------------------------------------------------------------
// Memory
// -----------------------------------------------------------------------------

// Memory records events in order. It is the test double for asserting on the
// emission protocol.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// NewMemory creates an empty in-memory emitter.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Emit(_ context.Context, event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

// Events returns a snapshot of everything emitted so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Kinds returns the emitted kinds in order, a convenience for tests.
func (m *Memory) Kinds() []Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Kind, len(m.events))
	for i, e := range m.events {
		out[i] = e.Kind
	}
	return out
}

// ByKind returns every recorded event of one kind, in emission order.
func (m *Memory) ByKind(kind Kind) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears the recorded events.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}
