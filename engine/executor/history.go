package executor

import (
	"sync"
	"time"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/task"
)

// DefaultHistoryLimit caps the in-memory execution history when no explicit
// limit is configured.
const DefaultHistoryLimit = 100

// Record is one finished run in the execution history. Errors carries the
// run's error log, including failures a continue-on-error construct
// swallowed without aborting.
type Record struct {
	ID            core.ID           `json:"id"`
	WorkflowID    string            `json:"workflowId"`
	Status        core.StatusType   `json:"status"`
	StartedAt     time.Time         `json:"startedAt"`
	Duration      time.Duration     `json:"duration"`
	Result        core.Output       `json:"result,omitempty"`
	Error         string            `json:"error,omitempty"`
	Errors        []task.ErrorEntry `json:"errors,omitempty"`
	NodesExecuted int               `json:"nodesExecuted"`
}

// History is a capped, ordered log of finished runs. The oldest record is
// dropped once the cap is reached. Safe for concurrent use.
type History struct {
	mu      sync.RWMutex
	limit   int
	records []Record
}

// NewHistory creates a history holding at most limit records; non-positive
// limits fall back to DefaultHistoryLimit.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// Append adds a record, evicting the oldest entries over the cap.
func (h *History) Append(record Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, record)
	if overflow := len(h.records) - h.limit; overflow > 0 {
		h.records = append([]Record{}, h.records[overflow:]...)
	}
}

// Records returns a snapshot of the history in chronological order.
func (h *History) Records() []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Record, len(h.records))
	copy(out, h.records)
	return out
}

// Len reports how many records are held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}
