package task

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/phrazzld/genqueue/internal/jobstate"
	"github.com/phrazzld/genqueue/internal/redact"
	"github.com/phrazzld/genqueue/internal/sampler"
	"github.com/phrazzld/genqueue/internal/stats"
)

// MemorySampler is the process-wide memory sampler used for stats footers.
type MemorySampler interface {
	sampler.Reader
	Monitor()
	Stop()
	Disabled() bool
}

// StreamConfig holds diagnostics settings for the result stream wrapper
type StreamConfig struct {
	// Profile enables a CPU profile around every call
	Profile bool

	// ProfileTopN is how many functions the profile report lists
	ProfileTopN int

	// MemorySampling enables peak memory figures in stats footers
	MemorySampling bool

	// ArgLogLimit caps the rendered call arguments in failure logs
	ArgLogLimit int
}

// DefaultStreamConfig returns a StreamConfig with reasonable defaults
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Profile:        false,
		ProfileTopN:    15,
		MemorySampling: true,
		ArgLogLimit:    redact.DefaultArgLimit,
	}
}

// StreamOptions describe one call to Stream
type StreamOptions struct {
	// ExtraOutputs are the output slots of the fallback result. When set, every
	// result must have exactly this many outputs.
	ExtraOutputs []any

	// CollectStats appends the stats footer to every result's status
	CollectStats bool
}

// Streamer turns a job function into a stream of results, appending stats to
// every result and converting any failure into one fallback result.
type Streamer struct {
	cfg     StreamConfig
	state   *jobstate.JobContext
	sampler MemorySampler
	logger  *slog.Logger
	now     func() time.Time
}

// NewStreamer creates a Streamer. memory may be nil when no sampler exists.
func NewStreamer(
	cfg StreamConfig,
	state *jobstate.JobContext,
	memory MemorySampler,
	logger *slog.Logger,
) *Streamer {
	if cfg.ProfileTopN <= 0 {
		cfg.ProfileTopN = 15
	}
	if cfg.ArgLogLimit <= 0 {
		cfg.ArgLogLimit = redact.DefaultArgLimit
	}

	return &Streamer{
		cfg:     cfg,
		state:   state,
		sampler: memory,
		logger:  logger.With("component", "result_stream"),
		now:     time.Now,
	}
}

// Stream runs fn for job and yields its results. The stream always yields at
// least one result unless the consumer stops early, and never panics on behalf
// of fn. When the stream ends the job state's transient flags are reset.
func (s *Streamer) Stream(ctx context.Context, job *Job, fn Func, opts StreamOptions) iter.Seq[Result] {
	return func(yield func(Result) bool) {
		runMemory := opts.CollectStats && s.cfg.MemorySampling &&
			s.sampler != nil && !s.sampler.Disabled()
		if runMemory {
			s.sampler.Monitor()
			defer s.sampler.Stop()
		}
		defer s.state.Reset()

		var reader sampler.Reader
		if s.sampler != nil {
			reader = s.sampler
		}
		formatter := stats.NewFormatter(reader, s.now)
		start := s.now()
		job.status = JobRunning

		var prof *cpuProfiler
		if s.cfg.Profile {
			prof = startCPUProfiler(s.cfg.ProfileTopN, s.logger)
			defer prof.stop()
		}

		c := &collector{
			yield: yield,
			open:  true,
			job:   job,
			suffix: func() string {
				return formatter.Format(opts.CollectStats, start, runMemory)
			},
		}

		err := s.invoke(ctx, job, fn, opts, c)
		prof.stop()

		if err == nil && c.delivered == 0 && c.open {
			err = ErrNoResult
		}
		// the job's context ends when its token is cancelled or the submitter goes away
		if err != nil && errors.Is(err, context.Canceled) && (job.Cancelled() || ctx.Err() != nil) {
			err = ErrInterrupted
		}

		switch {
		case err == nil:
			job.status = JobSucceeded

		case !c.open:
			job.status = JobFailed
			s.logger.Debug("consumer stopped reading results",
				"task_id", job.ID,
				"delivered", c.delivered)

		case errors.Is(err, ErrNoResult):
			job.status = JobFailed
			s.logger.Warn(noResultMessage, "task_id", job.ID, "job", job.Name)
			c.deliver(fallback(opts.ExtraOutputs, ErrorBanner(noResultMessage)))

		default:
			job.status = JobFailed
			s.logFailure(job, err)
			s.state.ClearJob()
			c.deliver(fallback(opts.ExtraOutputs, ErrorBanner(describe(err))))
		}
	}
}

// invoke calls fn, converting panics raised by fn into *PanicError. Panics raised
// by the consumer while a result is being yielded are propagated unchanged.
func (s *Streamer) invoke(ctx context.Context, job *Job, fn Func, opts StreamOptions, c *collector) (err error) {
	defer func() {
		if v := recover(); v != nil {
			if c.yielding {
				panic(v)
			}
			err = newPanicError(v)
		}
	}()

	switch fn.kind {
	case kindSingle:
		r, err := fn.single(ctx, job)
		if err != nil {
			return err
		}
		if r == nil {
			return ErrNoResult
		}
		if err := checkArity(*r, opts.ExtraOutputs); err != nil {
			return err
		}
		c.deliver(*r)
		return nil

	case kindStream:
		var emitErr error
		emit := func(r Result) error {
			if !c.open {
				return ErrStreamClosed
			}
			if job.Cancelled() {
				emitErr = ErrInterrupted
				return ErrInterrupted
			}
			if err := checkArity(r, opts.ExtraOutputs); err != nil {
				emitErr = err
				return err
			}
			if !c.deliver(r) {
				return ErrStreamClosed
			}
			return nil
		}

		err := fn.stream(ctx, job, emit)
		if err == nil {
			err = emitErr
		}
		return err

	default:
		return errors.New("function was not declared with Single or Stream")
	}
}

func (s *Streamer) logFailure(job *Job, err error) {
	attrs := []any{
		"error", describe(err),
		"task_id", job.ID,
		"job", job.Name,
		"args", redact.Args(job.Args, s.cfg.ArgLogLimit),
	}

	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		attrs = append(attrs, "stack", panicErr.Stack)
	}

	if errors.Is(err, ErrInterrupted) {
		s.logger.Info("job interrupted", attrs...)
		return
	}
	s.logger.Error("job failed", attrs...)
}

// collector forwards results to the consumer and tracks whether it is still
// reading.
type collector struct {
	yield     func(Result) bool
	open      bool
	yielding  bool
	delivered int
	job       *Job
	suffix    func() string
}

func (c *collector) deliver(r Result) bool {
	if !c.open {
		return false
	}

	r.Status += c.suffix()
	c.job.results = append(c.job.results, r)
	c.delivered++

	c.yielding = true
	c.open = c.yield(r)
	c.yielding = false
	return c.open
}

func checkArity(r Result, extraOutputs []any) error {
	if extraOutputs != nil && len(r.Outputs) != len(extraOutputs) {
		return fmt.Errorf("%w: got %d outputs, want %d",
			ErrArityMismatch, len(r.Outputs), len(extraOutputs))
	}
	return nil
}
