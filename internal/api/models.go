package api

import (
	"fmt"

	"github.com/phrazzld/genqueue/internal/generation"
	"github.com/phrazzld/genqueue/internal/progress"
)

// CreateJobRequest is the body of POST /api/jobs. TaskID is optional; it may be
// a bare id or the task(<id>) form, and one is assigned when it is missing.
type CreateJobRequest struct {
	TaskID string `json:"task_id,omitempty" validate:"omitempty,max=128"`

	generation.Request
}

// Validate checks the request fields, wrapping failures in
// generation.ErrInvalidRequest.
func (r CreateJobRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", generation.ErrInvalidRequest, err)
	}
	return nil
}

// JobAccepted is the data of the first event on a job stream.
type JobAccepted struct {
	TaskID string `json:"task_id"`
}

// JobDone is the data of the final event on a job stream.
type JobDone struct {
	TaskID  string `json:"task_id"`
	Results int    `json:"results"`
}

// ProgressResponse is returned by GET /api/progress/{id}.
type ProgressResponse struct {
	progress.Status

	// TaskID is the id in the task(<id>) wire form
	TaskID string `json:"task_id"`
}
