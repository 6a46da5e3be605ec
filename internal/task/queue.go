package task

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/phrazzld/genqueue/internal/events"
	"github.com/phrazzld/genqueue/internal/jobstate"
	"github.com/phrazzld/genqueue/internal/progress"
	"github.com/phrazzld/genqueue/internal/stats"
)

// QueueConfig holds configuration for the job queue
type QueueConfig struct {
	// Stream configures the result stream wrapper
	Stream StreamConfig

	// CollectStats appends timing and memory stats to every result
	CollectStats bool
}

// DefaultQueueConfig returns a QueueConfig with reasonable defaults
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Stream:       DefaultStreamConfig(),
		CollectStats: true,
	}
}

// Queue runs jobs one at a time on the shared compute resource. Any number of
// goroutines may submit; bodies never overlap.
type Queue struct {
	slot     *Slot
	streamer *Streamer
	registry progress.Registry
	state    *jobstate.JobContext
	config   QueueConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewQueue creates a Queue. registry and memory may be nil.
func NewQueue(
	config QueueConfig,
	state *jobstate.JobContext,
	registry progress.Registry,
	memory MemorySampler,
	logger *slog.Logger,
) *Queue {
	if registry == nil {
		registry = noopRegistry{}
	}

	return &Queue{
		slot:     NewSlot(),
		streamer: NewStreamer(config.Stream, state, memory, logger),
		registry: registry,
		state:    state,
		config:   config,
		logger:   logger.With("component", "job_queue"),
		now:      time.Now,
	}
}

// SubmitOption customizes a single submission
type SubmitOption func(*submitOptions)

type submitOptions struct {
	taskID       progress.TaskID
	name         string
	args         []any
	extraOutputs []any
}

// WithTaskID correlates the job with the progress registry.
func WithTaskID(id progress.TaskID) SubmitOption {
	return func(o *submitOptions) { o.taskID = id }
}

// WithName sets the job name shown to progress pollers.
func WithName(name string) SubmitOption {
	return func(o *submitOptions) { o.name = name }
}

// WithArgs records the call's arguments for failure logs.
func WithArgs(args ...any) SubmitOption {
	return func(o *submitOptions) { o.args = args }
}

// WithExtraOutputs declares the job's output slots. The values fill the outputs
// of the fallback result produced on failure.
func WithExtraOutputs(outputs ...any) SubmitOption {
	return func(o *submitOptions) {
		if outputs == nil {
			outputs = []any{}
		}
		o.extraOutputs = outputs
	}
}

// Submit returns the result stream of fn run as a serialized job. The job starts
// when the caller begins ranging over the stream and holds the execution slot
// until the stream ends, whether it completes, fails, panics or the caller stops
// early. The stream always yields at least one result to a caller that keeps
// reading, and never propagates fn's failures.
func (q *Queue) Submit(ctx context.Context, fn Func, opts ...SubmitOption) iter.Seq[Result] {
	o := submitOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	return func(yield func(Result) bool) {
		logger := q.logger.With("task_id", o.taskID, "job", o.name)
		tracked := !o.taskID.IsZero()

		if tracked {
			q.registry.AddTaskToQueue(o.taskID)
		}

		logger.Debug("waiting for execution slot")
		waitStart := q.now()
		if err := q.slot.Acquire(ctx); err != nil {
			logger.Info("gave up waiting for execution slot", "error", err)
			if tracked {
				q.registry.FinishTask(o.taskID)
			}

			// The job never ran, so the footer reports the wait and no memory figures
			footer := stats.NewFormatter(nil, q.now).Format(q.config.CollectStats, waitStart, false)
			yield(fallback(o.extraOutputs, ErrorBanner(describe(err))+footer))
			return
		}
		defer q.slot.Release()

		token, jobCtx := jobstate.NewCancelToken(ctx)
		job := &Job{
			ID:        o.taskID,
			Name:      o.name,
			Args:      o.args,
			StartedAt: q.now(),
			State:     q.state,
			Token:     token,
		}

		q.state.Begin(o.name, token)
		defer q.state.End()

		if tracked {
			q.registry.StartTask(o.taskID)
			defer q.registry.FinishTask(o.taskID)
		}
		logger.Info("job started")

		streamOpts := StreamOptions{
			ExtraOutputs: o.extraOutputs,
			CollectStats: q.config.CollectStats,
		}
		for r := range q.streamer.Stream(jobCtx, job, fn, streamOpts) {
			if !yield(r) {
				break
			}
		}

		if tracked && len(job.results) > 0 {
			q.registry.RecordResults(o.taskID, job.Results())
		}

		logger.Info("job finished",
			"status", job.Status(),
			"results", len(job.results),
			"duration", q.now().Sub(job.StartedAt))
	}
}

// SubmitAsync runs Submit on its own goroutine and pushes every result to the
// returned channel as an events.EventResult record, followed by a final
// events.EventDone record that completes the channel. To stop the job, interrupt
// the shared job state; abandoning the channel does not stop it.
func (q *Queue) SubmitAsync(ctx context.Context, fn Func, opts ...SubmitOption) *events.Channel {
	ch := events.NewChannel()

	go func() {
		for r := range q.Submit(ctx, fn, opts...) {
			if err := ch.Push(events.EventResult, r, false); err != nil {
				q.logger.Error("failed to push result", "error", err)
			}
		}
		if err := ch.Push(events.EventDone, nil, true); err != nil {
			q.logger.Error("failed to complete result channel", "error", err)
		}
	}()

	return ch
}

// Do runs fn while holding the execution slot, without streaming, stats or
// progress tracking. A panic in fn is returned as *PanicError.
func (q *Queue) Do(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if err := q.slot.Acquire(ctx); err != nil {
		return err
	}
	defer q.slot.Release()

	defer func() {
		if v := recover(); v != nil {
			panicErr := newPanicError(v)
			q.logger.Error("queued call panicked", "error", panicErr, "stack", panicErr.Stack)
			err = panicErr
		}
	}()

	return fn(ctx)
}

// Busy reports whether a job currently holds the execution slot.
func (q *Queue) Busy() bool {
	return q.slot.Held()
}

// noopRegistry is used when no progress registry is configured
type noopRegistry struct{}

func (noopRegistry) AddTaskToQueue(progress.TaskID)     {}
func (noopRegistry) StartTask(progress.TaskID)          {}
func (noopRegistry) RecordResults(progress.TaskID, any) {}
func (noopRegistry) FinishTask(progress.TaskID)         {}
