package progress

import (
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/genqueue/internal/jobstate"
)

// Registry receives task lifecycle notifications from the job queue.
// The queue only ever calls these four methods.
type Registry interface {
	// AddTaskToQueue records that a task is waiting for the execution slot
	AddTaskToQueue(id TaskID)

	// StartTask records that a task acquired the slot and began running
	StartTask(id TaskID)

	// RecordResults stores the results a task produced
	RecordResults(id TaskID, results any)

	// FinishTask records that a task left the slot, whatever the outcome
	FinishTask(id TaskID)
}

// Status is a task's progress as seen by a poller.
type Status struct {
	ID        TaskID  `json:"id"`
	Queued    bool    `json:"queued"`
	Position  int     `json:"queue_position,omitempty"`
	Active    bool    `json:"active"`
	Completed bool    `json:"completed"`
	Progress  float64 `json:"progress"`
	ETA       float64 `json:"eta_seconds,omitempty"`
	Results   any     `json:"results,omitempty"`
}

// MemoryRegistry is an in-memory Registry. Finished tasks are remembered in a
// bounded most-recent list; nothing survives a restart.
type MemoryRegistry struct {
	mu       sync.RWMutex
	pending  map[TaskID]uint64
	seq      uint64
	current  TaskID
	finished []TaskID
	results  map[TaskID]any
	limit    int
	logger   *slog.Logger
}

// NewMemoryRegistry creates a registry that remembers up to recent finished tasks.
func NewMemoryRegistry(recent int, logger *slog.Logger) *MemoryRegistry {
	if recent <= 0 {
		recent = 1
		logger.Warn("invalid recent task limit specified, using default",
			"default_limit", recent)
	}

	return &MemoryRegistry{
		pending:  make(map[TaskID]uint64),
		finished: make([]TaskID, 0, recent),
		results:  make(map[TaskID]any),
		limit:    recent,
		logger:   logger.With("component", "progress_registry"),
	}
}

// AddTaskToQueue implements Registry.
func (r *MemoryRegistry) AddTaskToQueue(id TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forget(id)
	r.seq++
	r.pending[id] = r.seq
	r.logger.Debug("task queued", "task_id", id, "pending_count", len(r.pending))
}

// StartTask implements Registry.
func (r *MemoryRegistry) StartTask(id TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forget(id)
	r.current = id
	delete(r.pending, id)
	r.logger.Debug("task started", "task_id", id)
}

// RecordResults implements Registry.
func (r *MemoryRegistry) RecordResults(id TaskID, results any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[id] = results
}

// FinishTask implements Registry.
func (r *MemoryRegistry) FinishTask(id TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == id {
		r.current = ""
	}
	delete(r.pending, id)

	// a reused id keeps only its latest run
	r.removeFinished(id)
	if len(r.finished) >= r.limit {
		evicted := r.finished[0]
		r.finished = r.finished[1:]
		delete(r.results, evicted)
	}
	r.finished = append(r.finished, id)
	r.logger.Debug("task finished", "task_id", id)
}

// Progress reports the status of id. state is the shared job state, used to
// estimate completion of the active task.
func (r *MemoryRegistry) Progress(id TaskID, state jobstate.Snapshot, now time.Time) Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := Status{ID: id}

	if queuedAt, ok := r.pending[id]; ok {
		status.Queued = true
		status.Position = 1
		for other, at := range r.pending {
			if other != id && at < queuedAt {
				status.Position++
			}
		}
		return status
	}

	if r.current == id && !id.IsZero() {
		status.Active = true
		status.Progress, status.ETA = Estimate(state, now)
		return status
	}

	for _, done := range r.finished {
		if done == id {
			status.Completed = true
			status.Progress = 1
			status.Results = r.results[id]
			return status
		}
	}

	return status
}

// forget drops a previous run of id so a resubmitted task starts clean.
// Callers hold the write lock.
func (r *MemoryRegistry) forget(id TaskID) {
	if r.removeFinished(id) {
		delete(r.results, id)
	}
}

func (r *MemoryRegistry) removeFinished(id TaskID) bool {
	for i, done := range r.finished {
		if done == id {
			r.finished = append(r.finished[:i], r.finished[i+1:]...)
			return true
		}
	}
	return false
}

// Estimate computes completion in [0, 1] and the remaining seconds for the job
// described by state. Without any progress the ETA is zero.
func Estimate(state jobstate.Snapshot, now time.Time) (float64, float64) {
	var progress float64
	if state.JobCount > 0 {
		progress += float64(state.JobNo) / float64(state.JobCount)
		if state.SamplingSteps > 0 {
			progress += 1 / float64(state.JobCount) *
				float64(state.SamplingStep) / float64(state.SamplingSteps)
		}
	}
	if progress > 1 {
		progress = 1
	}

	if progress <= 0 || state.StartedAt.IsZero() {
		return progress, 0
	}

	elapsed := now.Sub(state.StartedAt).Seconds()
	predicted := elapsed / progress
	eta := predicted - elapsed
	if eta < 0 {
		eta = 0
	}
	return progress, eta
}
