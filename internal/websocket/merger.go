package websocket

import (
	"sync"

	"github.com/cleanflow/api/internal/model"
)

// Merger is the observer-side view of job state. Deltas are keyed by jobId
// and fenced by updatedAt, so duplicates and reordered deliveries are
// harmless.
type Merger struct {
	mu   sync.Mutex
	jobs map[string]model.JobDelta
}

func NewMerger() *Merger {
	return &Merger{jobs: make(map[string]model.JobDelta)}
}

// Merge applies d and reports whether it replaced the held state
func (m *Merger) Merge(d model.JobDelta) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	var held *model.JobDelta
	if cur, ok := m.jobs[d.JobID]; ok {
		held = &cur
	}
	if !d.Supersedes(held) {
		return false
	}
	m.jobs[d.JobID] = d
	return true
}

// Get returns the held state for a job
func (m *Merger) Get(jobID string) (model.JobDelta, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.jobs[jobID]
	return d, ok
}
