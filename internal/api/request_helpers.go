package api

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/phrazzld/genqueue/internal/progress"
)

var validate = validator.New()

// maxTaskIDLength bounds task ids taken from paths and bodies
const maxTaskIDLength = 128

// parseTaskID accepts a bare id or the task(<id>) wire form.
func parseTaskID(raw string) (progress.TaskID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxTaskIDLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidTaskID, raw)
	}

	if id, ok := progress.ParseTaskID(raw); ok {
		return id, nil
	}
	if strings.HasPrefix(raw, "task(") || strings.ContainsAny(raw, "()") {
		return "", fmt.Errorf("%w: %q", ErrInvalidTaskID, raw)
	}
	return progress.TaskID(raw), nil
}
