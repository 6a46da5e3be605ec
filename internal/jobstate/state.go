package jobstate

import (
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time copy of a JobContext, suitable for JSON responses.
type Snapshot struct {
	Job           string    `json:"job"`
	JobNo         int64     `json:"job_no"`
	JobCount      int64     `json:"job_count"`
	SamplingStep  int64     `json:"sampling_step"`
	SamplingSteps int64     `json:"sampling_steps"`
	Skipped       bool      `json:"skipped"`
	Interrupted   bool      `json:"interrupted"`
	Paused        bool      `json:"paused"`
	Active        bool      `json:"active"`
	StartedAt     time.Time `json:"started_at,omitempty"`
}

// JobContext is the process-wide state of the running job. Fields are atomics so
// that readers never block the job; a reader may observe a mix of old and new
// values while the job is transitioning.
type JobContext struct {
	job           atomic.Value // string
	jobNo         atomic.Int64
	jobCount      atomic.Int64
	samplingStep  atomic.Int64
	samplingSteps atomic.Int64
	skipped       atomic.Bool
	interrupted   atomic.Bool
	paused        atomic.Bool
	active        atomic.Bool
	startedAt     atomic.Int64
	token         atomic.Pointer[CancelToken]

	now func() time.Time
}

// New creates an idle JobContext.
func New() *JobContext {
	s := &JobContext{now: time.Now}
	s.job.Store("")
	return s
}

// Begin marks the start of a job. All flags and counters are cleared and token
// becomes the job's cancellation token.
func (s *JobContext) Begin(job string, token *CancelToken) {
	// The token is published before the flags are cleared, so an Interrupt that
	// races with Begin always reaches the token.
	s.token.Store(token)
	s.Reset()
	if token.IsCancelled() {
		s.interrupted.Store(true)
	}

	s.job.Store(job)
	s.jobNo.Store(0)
	s.samplingStep.Store(0)
	s.samplingSteps.Store(0)
	s.startedAt.Store(s.now().UnixNano())
	s.active.Store(true)
}

// End marks the end of the current job and releases its token.
func (s *JobContext) End() {
	s.active.Store(false)
	s.ClearJob()
	if token := s.token.Swap(nil); token != nil {
		token.release()
	}
}

// Reset clears the transient flags and the outstanding job count.
func (s *JobContext) Reset() {
	s.skipped.Store(false)
	s.interrupted.Store(false)
	s.paused.Store(false)
	s.jobCount.Store(0)
}

// ClearJob forgets the job name and the outstanding job count.
func (s *JobContext) ClearJob() {
	s.job.Store("")
	s.jobCount.Store(0)
}

// Interrupt asks the running job to stop and cancels its token.
func (s *JobContext) Interrupt() {
	s.interrupted.Store(true)
	s.token.Load().RequestCancel()
}

// InterruptRunning interrupts the running job, if there is one. It reports
// whether a job was interrupted; while idle it leaves the flags untouched.
func (s *JobContext) InterruptRunning() bool {
	token := s.token.Load()
	if token == nil {
		return false
	}
	s.interrupted.Store(true)
	token.RequestCancel()
	return true
}

// Skip asks the running job to abandon its current unit of work.
func (s *JobContext) Skip() {
	s.skipped.Store(true)
}

// ClearSkip acknowledges a skip request.
func (s *JobContext) ClearSkip() {
	s.skipped.Store(false)
}

// Pause asks the running job to wait before its next step.
func (s *JobContext) Pause() {
	s.paused.Store(true)
}

// Resume lifts a pause.
func (s *JobContext) Resume() {
	s.paused.Store(false)
}

// SetJobCount sets how many units of work the job will produce.
func (s *JobContext) SetJobCount(n int) {
	s.jobCount.Store(int64(n))
}

// NextJob records that a unit of work completed and resets the step counter.
func (s *JobContext) NextJob() {
	s.jobNo.Add(1)
	s.samplingStep.Store(0)
}

// SetSamplingSteps sets the number of steps in the current unit of work.
func (s *JobContext) SetSamplingSteps(n int) {
	s.samplingSteps.Store(int64(n))
}

// SetSamplingStep records progress within the current unit of work.
func (s *JobContext) SetSamplingStep(n int) {
	s.samplingStep.Store(int64(n))
}

// Skipped reports whether a skip was requested.
func (s *JobContext) Skipped() bool { return s.skipped.Load() }

// Interrupted reports whether an interrupt was requested.
func (s *JobContext) Interrupted() bool { return s.interrupted.Load() }

// Paused reports whether the job is paused.
func (s *JobContext) Paused() bool { return s.paused.Load() }

// Token returns the running job's cancellation token, or nil when idle.
func (s *JobContext) Token() *CancelToken {
	return s.token.Load()
}

// Snapshot copies the current state.
func (s *JobContext) Snapshot() Snapshot {
	job, _ := s.job.Load().(string)
	snap := Snapshot{
		Job:           job,
		JobNo:         s.jobNo.Load(),
		JobCount:      s.jobCount.Load(),
		SamplingStep:  s.samplingStep.Load(),
		SamplingSteps: s.samplingSteps.Load(),
		Skipped:       s.skipped.Load(),
		Interrupted:   s.interrupted.Load(),
		Paused:        s.paused.Load(),
		Active:        s.active.Load(),
	}
	if started := s.startedAt.Load(); started != 0 {
		snap.StartedAt = time.Unix(0, started)
	}
	return snap
}
