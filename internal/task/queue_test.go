package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/genqueue/internal/events"
	"github.com/phrazzld/genqueue/internal/jobstate"
	"github.com/phrazzld/genqueue/internal/progress"
	"github.com/phrazzld/genqueue/internal/sampler"
)

const timeFooter = "<div class='performance'><p class='time'>Time taken: 0.00s</p></div>"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestQueue builds a queue with a frozen clock so stats footers are stable
func newTestQueue(t *testing.T, registry progress.Registry, memory MemorySampler) (*Queue, *jobstate.JobContext) {
	t.Helper()

	state := jobstate.New()
	q := NewQueue(DefaultQueueConfig(), state, registry, memory, testLogger())

	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return fixed }
	q.streamer.now = q.now
	return q, state
}

func collect(seq func(func(Result) bool)) []Result {
	var out []Result
	for r := range seq {
		out = append(out, r)
	}
	return out
}

func TestQueue_SingleValue(t *testing.T) {
	q, state := newTestQueue(t, nil, nil)

	results := collect(q.Submit(context.Background(), Single(func(ctx context.Context, job *Job) (*Result, error) {
		assert.True(t, state.Snapshot().Active, "job state should be active while running")
		assert.Equal(t, "answer", state.Snapshot().Job)
		return Value(42), nil
	}), WithName("answer")))

	require.Len(t, results, 1)
	assert.Equal(t, []any{42}, results[0].Outputs)
	assert.Equal(t, timeFooter, results[0].Status)
	assert.False(t, q.Busy())
	assert.False(t, state.Snapshot().Active)
	assert.Empty(t, state.Snapshot().Job)
}

func TestQueue_FailureBecomesBanner(t *testing.T) {
	q, state := newTestQueue(t, nil, nil)

	results := collect(q.Submit(context.Background(), Single(func(ctx context.Context, job *Job) (*Result, error) {
		job.State.SetJobCount(4)
		return nil, NewError("ValueError", "bad <input>")
	})))

	require.Len(t, results, 1)
	assert.Equal(t, []any{nil, ""}, results[0].Outputs)
	assert.Equal(t,
		"<div class='error'>ValueError: bad &lt;input&gt;</div>"+timeFooter,
		results[0].Status)
	assert.Zero(t, state.Snapshot().JobCount, "job count is cleared after a failure")
}

func TestQueue_FailureUsesExtraOutputs(t *testing.T) {
	q, _ := newTestQueue(t, nil, nil)

	results := collect(q.Submit(context.Background(),
		Single(func(ctx context.Context, job *Job) (*Result, error) {
			return nil, errors.New("boom")
		}),
		WithExtraOutputs([]string{}, "{}", "")))

	require.Len(t, results, 1)
	assert.Equal(t, []any{[]string{}, "{}", ""}, results[0].Outputs)
	assert.Equal(t, "<div class='error'>Error: boom</div>"+timeFooter, results[0].Status)
}

func TestQueue_NilResult(t *testing.T) {
	q, _ := newTestQueue(t, nil, nil)

	results := collect(q.Submit(context.Background(), Single(func(ctx context.Context, job *Job) (*Result, error) {
		return nil, nil
	})))

	require.Len(t, results, 1)
	assert.Equal(t, []any{nil, ""}, results[0].Outputs)
	assert.Equal(t,
		"<div class='error'>No result returned from function</div>"+timeFooter,
		results[0].Status)
}

func TestQueue_PanicIsContained(t *testing.T) {
	q, _ := newTestQueue(t, nil, nil)

	var results []Result
	assert.NotPanics(t, func() {
		results = collect(q.Submit(context.Background(), Single(func(ctx context.Context, job *Job) (*Result, error) {
			panic("kaboom")
		})))
	})

	require.Len(t, results, 1)
	assert.Equal(t, "<div class='error'>PanicError: panic: kaboom</div>"+timeFooter, results[0].Status)
	assert.False(t, q.Busy())
}

func TestQueue_StreamResults(t *testing.T) {
	q, _ := newTestQueue(t, nil, nil)

	results := collect(q.Submit(context.Background(), Stream(func(ctx context.Context, job *Job, emit Emit) error {
		for i := range 3 {
			if err := emit(Result{Outputs: []any{i}, Status: "step"}); err != nil {
				return err
			}
		}
		return nil
	})))

	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, []any{i}, r.Outputs)
		assert.Equal(t, "step"+timeFooter, r.Status)
	}
}

func TestQueue_StreamFailsMidway(t *testing.T) {
	q, _ := newTestQueue(t, nil, nil)

	results := collect(q.Submit(context.Background(), Stream(func(ctx context.Context, job *Job, emit Emit) error {
		if err := emit(Result{Outputs: []any{"partial", ""}}); err != nil {
			return err
		}
		return NewError("RuntimeError", "out of memory")
	})))

	require.Len(t, results, 2)
	assert.Equal(t, []any{"partial", ""}, results[0].Outputs)
	assert.Equal(t, "<div class='error'>RuntimeError: out of memory</div>"+timeFooter, results[1].Status)
}

func TestQueue_EmptyStream(t *testing.T) {
	q, _ := newTestQueue(t, nil, nil)

	results := collect(q.Submit(context.Background(), Stream(func(ctx context.Context, job *Job, emit Emit) error {
		return nil
	})))

	require.Len(t, results, 1)
	assert.Equal(t,
		"<div class='error'>No result returned from function</div>"+timeFooter,
		results[0].Status)
}

func TestQueue_ArityMismatch(t *testing.T) {
	q, _ := newTestQueue(t, nil, nil)

	results := collect(q.Submit(context.Background(),
		Single(func(ctx context.Context, job *Job) (*Result, error) {
			return Value("only one"), nil
		}),
		WithExtraOutputs(nil, "")))

	require.Len(t, results, 1)
	assert.Equal(t, []any{nil, ""}, results[0].Outputs)
	assert.Contains(t, results[0].Status, ErrArityMismatch.Error())
}

func TestQueue_UndeclaredFunc(t *testing.T) {
	q, _ := newTestQueue(t, nil, nil)

	results := collect(q.Submit(context.Background(), Func{}))

	require.Len(t, results, 1)
	assert.Contains(t, results[0].Status, "function was not declared with Single or Stream")
}

func TestQueue_InterruptViaEmit(t *testing.T) {
	q, state := newTestQueue(t, nil, nil)

	results := collect(q.Submit(context.Background(), Stream(func(ctx context.Context, job *Job, emit Emit) error {
		if err := emit(Result{Outputs: []any{"first", ""}}); err != nil {
			return err
		}
		job.State.Interrupt()
		return emit(Result{Outputs: []any{"second", ""}})
	})))

	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].Outputs[0])
	assert.Equal(t, "<div class='error'>Interrupted: job interrupted</div>"+timeFooter, results[1].Status)
	assert.False(t, state.Interrupted(), "flags are reset when the job ends")
}

func TestQueue_InterruptViaContext(t *testing.T) {
	q, state := newTestQueue(t, nil, nil)
	started := make(chan struct{})

	go func() {
		<-started
		state.Interrupt()
	}()

	results := collect(q.Submit(context.Background(), Single(func(ctx context.Context, job *Job) (*Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})))

	require.Len(t, results, 1)
	assert.Equal(t, "<div class='error'>Interrupted: job interrupted</div>"+timeFooter, results[0].Status)
}

func TestQueue_EarlyBreakReleasesSlot(t *testing.T) {
	registry := progress.NewMockRegistry()
	q, _ := newTestQueue(t, registry, nil)
	id := progress.TaskID("early")

	var emitErr error
	for r := range q.Submit(context.Background(), Stream(func(ctx context.Context, job *Job, emit Emit) error {
		for i := range 5 {
			if emitErr = emit(Result{Outputs: []any{i}}); emitErr != nil {
				return emitErr
			}
		}
		return nil
	}), WithTaskID(id)) {
		assert.Equal(t, []any{0}, r.Outputs)
		break
	}

	assert.ErrorIs(t, emitErr, ErrStreamClosed)
	assert.False(t, q.Busy())
	assert.Equal(t,
		[]string{"AddTaskToQueue", "StartTask", "RecordResults", "FinishTask"},
		registry.Methods())
}

func TestQueue_ConsumerPanicPropagates(t *testing.T) {
	registry := progress.NewMockRegistry()
	q, state := newTestQueue(t, registry, nil)

	assert.PanicsWithValue(t, "consumer failed", func() {
		for range q.Submit(context.Background(), Single(func(ctx context.Context, job *Job) (*Result, error) {
			return Value(1), nil
		}), WithTaskID("p")) {
			panic("consumer failed")
		}
	})

	assert.False(t, q.Busy(), "slot is released when the consumer panics")
	assert.False(t, state.Snapshot().Active)
	methods := registry.Methods()
	require.NotEmpty(t, methods)
	assert.Equal(t, "FinishTask", methods[len(methods)-1])
}

func TestQueue_RegistryCallOrder(t *testing.T) {
	registry := progress.NewMockRegistry()
	q, _ := newTestQueue(t, registry, nil)
	id := progress.TaskID("abc")

	results := collect(q.Submit(context.Background(), Single(func(ctx context.Context, job *Job) (*Result, error) {
		assert.Equal(t, id, job.ID)
		return Value("done"), nil
	}), WithTaskID(id)))
	require.Len(t, results, 1)

	calls := registry.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, []string{"AddTaskToQueue", "StartTask", "RecordResults", "FinishTask"}, registry.Methods())
	for _, c := range calls {
		assert.Equal(t, id, c.ID)
	}
	assert.Equal(t, results, calls[2].Results)
}

func TestQueue_UntrackedSkipsRegistry(t *testing.T) {
	registry := progress.NewMockRegistry()
	q, _ := newTestQueue(t, registry, nil)

	collect(q.Submit(context.Background(), Single(func(ctx context.Context, job *Job) (*Result, error) {
		return Value(1), nil
	})))

	assert.Empty(t, registry.Calls())
}

func TestQueue_SerializesJobs(t *testing.T) {
	q, _ := newTestQueue(t, nil, nil)

	var running, maxRunning atomic.Int32
	fn := Single(func(ctx context.Context, job *Job) (*Result, error) {
		n := running.Add(1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
		return Value(n), nil
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results := collect(q.Submit(context.Background(), fn))
			assert.Len(t, results, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxRunning.Load())
	assert.False(t, q.Busy())
}

func TestQueue_NextJobStartsAfterPreviousFinished(t *testing.T) {
	registry := progress.NewMockRegistry()
	q, state := newTestQueue(t, registry, nil)

	var mu sync.Mutex
	var violations []string
	registry.OnCall = func(call progress.RegistryCall) {
		if call.Method != "StartTask" {
			return
		}
		// a fresh job must see a fully reset state apart from Begin's own fields
		snap := state.Snapshot()
		if snap.Skipped || snap.Interrupted || snap.JobCount != 0 {
			mu.Lock()
			violations = append(violations, string(call.ID))
			mu.Unlock()
		}
	}

	fn := Single(func(ctx context.Context, job *Job) (*Result, error) {
		job.State.SetJobCount(3)
		job.State.Skip()
		return Value(job.ID), nil
	})

	var wg sync.WaitGroup
	for _, id := range []progress.TaskID{"a", "b", "c"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collect(q.Submit(context.Background(), fn, WithTaskID(id)))
		}()
	}
	wg.Wait()

	assert.Empty(t, violations)

	// every StartTask after the first must follow a FinishTask
	var last string
	for _, c := range registry.Calls() {
		switch c.Method {
		case "StartTask":
			if last != "" {
				assert.Equal(t, "FinishTask", last)
			}
			last = c.Method
		case "FinishTask":
			last = c.Method
		}
	}
}

func TestQueue_CancelWhileWaiting(t *testing.T) {
	registry := progress.NewMockRegistry()
	q, _ := newTestQueue(t, registry, nil)

	release := make(chan struct{})
	holding := make(chan struct{})
	go func() {
		collect(q.Submit(context.Background(), Single(func(ctx context.Context, job *Job) (*Result, error) {
			close(holding)
			<-release
			return Value(1), nil
		})))
	}()
	<-holding

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := collect(q.Submit(ctx, Single(func(ctx context.Context, job *Job) (*Result, error) {
		t.Error("function must not run when the wait was cancelled")
		return nil, nil
	}), WithTaskID("waiting")))
	close(release)

	require.Len(t, results, 1)
	assert.Equal(t, "<div class='error'>Error: context canceled</div>"+timeFooter, results[0].Status,
		"a cancelled wait carries the same stats footer as other failures")
	assert.Equal(t, []string{"AddTaskToQueue", "FinishTask"}, registry.Methods())
}

type fakeMemory struct {
	mu       sync.Mutex
	monitors int
	stops    int
}

func (f *fakeMemory) Monitor() { f.mu.Lock(); f.monitors++; f.mu.Unlock() }
func (f *fakeMemory) Stop()    { f.mu.Lock(); f.stops++; f.mu.Unlock() }

func (f *fakeMemory) Disabled() bool { return false }

func (f *fakeMemory) Read() sampler.Reading {
	return sampler.Reading{
		sampler.ActivePeak:   3 * 1024 * 1024,
		sampler.ReservedPeak: 5*1024*1024 - 1,
		sampler.SystemPeak:   512 * 1024 * 1024,
		sampler.Total:        1024 * 1024 * 1024,
	}
}

func TestQueue_MemoryFooter(t *testing.T) {
	memory := &fakeMemory{}
	q, _ := newTestQueue(t, nil, memory)

	results := collect(q.Submit(context.Background(), Single(func(ctx context.Context, job *Job) (*Result, error) {
		return Value(1), nil
	})))

	require.Len(t, results, 1)
	assert.Equal(t,
		"<div class='performance'><p class='time'>Time taken: 0.00s</p>"+
			" | <p class='vram'>GPU active 3 MB reserved 5 MB | System peak 512 MB total 1024 MB (50.00%)</p></div>",
		results[0].Status)
	assert.Equal(t, 1, memory.monitors)
	assert.Equal(t, 1, memory.stops)
}

func TestQueue_NoStatsWhenDisabled(t *testing.T) {
	memory := &fakeMemory{}
	state := jobstate.New()
	cfg := DefaultQueueConfig()
	cfg.CollectStats = false
	q := NewQueue(cfg, state, nil, memory, testLogger())

	results := collect(q.Submit(context.Background(), Single(func(ctx context.Context, job *Job) (*Result, error) {
		return Value(1), nil
	})))

	require.Len(t, results, 1)
	assert.Empty(t, results[0].Status)
	assert.Zero(t, memory.monitors, "sampler is not started when stats are off")
}

func TestQueue_SubmitAsync(t *testing.T) {
	q, _ := newTestQueue(t, nil, nil)

	ch := q.SubmitAsync(context.Background(), Stream(func(ctx context.Context, job *Job, emit Emit) error {
		for i := range 2 {
			if err := emit(Result{Outputs: []any{i}}); err != nil {
				return err
			}
		}
		return nil
	}))

	doneCalled := make(chan struct{})
	ch.OnDone(func() { close(doneCalled) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var records []events.Record
	for rec := range ch.All(ctx) {
		records = append(records, rec)
	}

	require.Len(t, records, 3)
	assert.Equal(t, events.EventResult, records[0].Event)
	assert.Equal(t, []any{0}, records[0].Payload.(Result).Outputs)
	assert.Equal(t, []any{1}, records[1].Payload.(Result).Outputs)
	assert.Equal(t, events.EventDone, records[2].Event)

	select {
	case <-doneCalled:
	case <-ctx.Done():
		t.Fatal("done listener was not called")
	}
}

func TestQueue_Do(t *testing.T) {
	q, _ := newTestQueue(t, nil, nil)

	err := q.Do(context.Background(), func(ctx context.Context) error {
		assert.True(t, q.Busy())
		return nil
	})
	require.NoError(t, err)
	assert.False(t, q.Busy())

	sentinel := errors.New("load failed")
	err = q.Do(context.Background(), func(ctx context.Context) error { return sentinel })
	assert.ErrorIs(t, err, sentinel)

	err = q.Do(context.Background(), func(ctx context.Context) error { panic("bad weights") })
	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "bad weights", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
	assert.False(t, q.Busy())
}
