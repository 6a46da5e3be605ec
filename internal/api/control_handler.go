package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/genqueue/internal/api/shared"
	"github.com/phrazzld/genqueue/internal/jobstate"
	"github.com/phrazzld/genqueue/internal/progress"
)

// ProgressReader answers progress queries for task ids.
type ProgressReader interface {
	Progress(id progress.TaskID, state jobstate.Snapshot, now time.Time) progress.Status
}

// ControlHandler exposes the shared job state: progress polling, the state
// snapshot and the interrupt, skip, pause and resume controls.
type ControlHandler struct {
	state    *jobstate.JobContext
	progress ProgressReader
	logger   *slog.Logger
	now      func() time.Time
}

// NewControlHandler creates a new ControlHandler
func NewControlHandler(state *jobstate.JobContext, progress ProgressReader, logger *slog.Logger) *ControlHandler {
	return &ControlHandler{
		state:    state,
		progress: progress,
		logger:   logger.With("component", "control_handler"),
		now:      time.Now,
	}
}

// GetProgress handles GET /api/progress/{id}. Unknown ids are not an error;
// they report as neither queued, active nor completed.
func (h *ControlHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	id, err := parseTaskID(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	status := h.progress.Progress(id, h.state.Snapshot(), h.now())
	shared.RespondWithJSON(w, r, http.StatusOK, ProgressResponse{
		Status: status,
		TaskID: id.Wire(),
	})
}

// GetState handles GET /api/state
func (h *ControlHandler) GetState(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.state.Snapshot())
}

// Interrupt handles POST /api/interrupt. While no job is running the request
// is acknowledged and ignored.
func (h *ControlHandler) Interrupt(w http.ResponseWriter, r *http.Request) {
	h.control(w, "interrupt", func() {
		if !h.state.InterruptRunning() {
			h.logger.Debug("interrupt ignored, no running job")
		}
	})
}

// Skip handles POST /api/skip
func (h *ControlHandler) Skip(w http.ResponseWriter, r *http.Request) {
	h.control(w, "skip", h.state.Skip)
}

// Pause handles POST /api/pause
func (h *ControlHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.control(w, "pause", h.state.Pause)
}

// Resume handles POST /api/resume
func (h *ControlHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.control(w, "resume", h.state.Resume)
}

func (h *ControlHandler) control(w http.ResponseWriter, action string, apply func()) {
	apply()
	h.logger.Info("job control requested",
		"action", action,
		"job", h.state.Snapshot().Job)
	shared.RespondNoContent(w)
}
