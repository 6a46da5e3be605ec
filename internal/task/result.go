package task

import (
	"context"
	"time"

	"github.com/phrazzld/genqueue/internal/jobstate"
	"github.com/phrazzld/genqueue/internal/progress"
)

// Result is one update produced by a job: the output slots followed by an
// HTML status string that is always present.
type Result struct {
	Outputs []any  `json:"outputs"`
	Status  string `json:"status"`
}

// Value wraps plain output values into a Result with an empty status.
func Value(outputs ...any) *Result {
	return &Result{Outputs: outputs}
}

// fallback builds a result from the declared extra outputs, or the minimal
// [nil, ""] outputs when none were declared.
func fallback(extraOutputs []any, status string) Result {
	outputs := []any{nil, ""}
	if extraOutputs != nil {
		outputs = make([]any, len(extraOutputs))
		copy(outputs, extraOutputs)
	}
	return Result{Outputs: outputs, Status: status}
}

// JobStatus is the lifecycle state of a Job
type JobStatus string

// Possible job status values
const (
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is one guarded invocation of a function. It is handed to the function so
// that it can poll for cancellation and report progress.
type Job struct {
	// ID correlates the job with the progress registry; zero when untracked
	ID progress.TaskID

	// Name is shown to progress pollers while the job runs
	Name string

	// Args describe the call for diagnostics only
	Args []any

	// StartedAt is when the job acquired the execution slot
	StartedAt time.Time

	// State is the shared job state
	State *jobstate.JobContext

	// Token is the job's cancellation token
	Token *jobstate.CancelToken

	status  JobStatus
	results []Result
}

// Cancelled reports whether the job was asked to stop.
func (j *Job) Cancelled() bool {
	return j.Token.IsCancelled()
}

// Status returns the job's lifecycle state.
func (j *Job) Status() JobStatus {
	return j.status
}

// Results returns the results delivered so far.
func (j *Job) Results() []Result {
	return j.results
}

// Emit delivers one result to the consumer. It returns ErrInterrupted once the
// job was cancelled and ErrStreamClosed once the consumer stopped reading; the
// function should return promptly after either.
type Emit func(Result) error

// SingleFunc produces exactly one result. A nil result with a nil error is a
// malformed result.
type SingleFunc func(ctx context.Context, job *Job) (*Result, error)

// StreamFunc produces results incrementally through emit.
type StreamFunc func(ctx context.Context, job *Job, emit Emit) error

type funcKind int

const (
	kindSingle funcKind = iota + 1
	kindStream
)

// Func is a job function tagged with how it produces results. Build one with
// Single or Stream.
type Func struct {
	kind   funcKind
	single SingleFunc
	stream StreamFunc
}

// Single declares a function that returns one result.
func Single(fn SingleFunc) Func {
	return Func{kind: kindSingle, single: fn}
}

// Stream declares a function that emits results incrementally.
func Stream(fn StreamFunc) Func {
	return Func{kind: kindStream, stream: fn}
}

// IsZero reports whether f was not built with Single or Stream.
func (f Func) IsZero() bool {
	return f.kind == 0
}
