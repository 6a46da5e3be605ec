package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/phrazzld/genqueue/internal/api/shared"
	"github.com/phrazzld/genqueue/internal/events"
	"github.com/phrazzld/genqueue/internal/generation"
	"github.com/phrazzld/genqueue/internal/platform/logger"
	"github.com/phrazzld/genqueue/internal/progress"
	"github.com/phrazzld/genqueue/internal/task"
)

// Event names on a job stream
const (
	EventAccepted = "accepted"
	EventResult   = events.EventResult
	EventDone     = events.EventDone
)

// JobSubmitter submits jobs to the serialized queue.
type JobSubmitter interface {
	SubmitAsync(ctx context.Context, fn task.Func, opts ...task.SubmitOption) *events.Channel
}

// JobHandler handles generation job requests
type JobHandler struct {
	queue     JobSubmitter
	generator generation.Generator
	maxSteps  int
	logger    *slog.Logger
}

// NewJobHandler creates a new JobHandler. Requests asking for more than
// maxSteps sampling steps are rejected before they are queued.
func NewJobHandler(
	queue JobSubmitter,
	generator generation.Generator,
	maxSteps int,
	logger *slog.Logger,
) *JobHandler {
	return &JobHandler{
		queue:     queue,
		generator: generator,
		maxSteps:  maxSteps,
		logger:    logger.With("component", "job_handler"),
	}
}

// CreateJob handles POST /api/jobs requests. The job is queued behind any
// running job and its results are streamed back as server-sent events: one
// accepted event, a result event per image (or one error result), and a final
// done event. Disconnecting cancels the job. Requests are refused with 503 while
// a generator that reports its load state is still loading.
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateJobRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		err = fmt.Errorf("%w: %w", ErrMalformedBody, err)
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	if req.BatchCount == 0 {
		req.BatchCount = 1
	}

	if err := h.validate(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	if l, ok := h.generator.(interface{ Loaded() bool }); ok && !l.Loaded() {
		err := generation.ErrNotLoaded
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	taskID := progress.TaskID(uuid.NewString())
	if req.TaskID != "" {
		id, err := parseTaskID(req.TaskID)
		if err != nil {
			shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
			return
		}
		taskID = id
	}

	stream, err := shared.NewEventStream(w)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Streaming is not supported", err)
		return
	}
	log = log.With("task_id", taskID)

	if err := stream.Send(EventAccepted, JobAccepted{TaskID: taskID.Wire()}); err != nil {
		log.Debug("client went away before the job was queued", "error", err)
		return
	}

	ch := h.queue.SubmitAsync(r.Context(), h.generate(req.Request),
		task.WithTaskID(taskID),
		task.WithName("txt2img"),
		task.WithArgs(req.Prompt, req.NegativePrompt, req.Steps, req.BatchCount, req.Seed),
		task.WithExtraOutputs(nil, ""),
	)

	results := 0
	for rec := range ch.All(r.Context()) {
		if rec.Event == events.EventDone {
			break
		}
		results++
		if err := stream.Send(EventResult, rec.Payload); err != nil {
			log.Debug("failed to stream result", "error", err)
			return
		}
	}

	if r.Context().Err() != nil {
		log.Info("client disconnected, job cancelled")
		return
	}

	if err := stream.Send(EventDone, JobDone{TaskID: taskID.Wire(), Results: results}); err != nil {
		log.Debug("failed to send done event", "error", err)
	}
}

func (h *JobHandler) validate(req CreateJobRequest) error {
	if err := shared.ValidateRequest(req); err != nil {
		return err
	}
	if h.maxSteps > 0 && req.Steps > h.maxSteps {
		return fmt.Errorf("%w: steps %d exceeds the maximum of %d",
			generation.ErrInvalidRequest, req.Steps, h.maxSteps)
	}
	return nil
}

// generate adapts the generator to a streaming job: every image becomes a
// result of the image and its infotext.
func (h *JobHandler) generate(req generation.Request) task.Func {
	return task.Stream(func(ctx context.Context, job *task.Job, emit task.Emit) error {
		return h.generator.Generate(ctx, req, job.State, func(img generation.Image) error {
			return emit(task.Result{Outputs: []any{img, img.Infotext()}})
		})
	})
}
