package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/phrazzld/genqueue/internal/generation"
)

// Errors raised while reading requests
var (
	// ErrInvalidTaskID is returned when a task ID path or body value is malformed
	ErrInvalidTaskID = errors.New("invalid task id")

	// ErrMalformedBody is returned when a request body is not valid JSON
	ErrMalformedBody = errors.New("malformed request body")
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrMalformedBody),
		errors.Is(err, ErrInvalidTaskID),
		errors.Is(err, generation.ErrInvalidRequest):
		return http.StatusBadRequest

	case errors.Is(err, generation.ErrNotLoaded):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, ErrMalformedBody):
		return "Invalid request format"

	case errors.Is(err, ErrInvalidTaskID):
		return "Invalid task id"

	case errors.Is(err, generation.ErrInvalidRequest):
		return SanitizeValidationError(err)

	case errors.Is(err, generation.ErrNotLoaded):
		return "Model is still loading"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns the first failed field of a validation error
// into a user-friendly message.
func SanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		fe := validationErrs[0]
		return fmt.Sprintf("Invalid %s: %s", fieldName(fe.Field()), getValidationTagMessage(fe.Tag()))
	}

	// limit checks done outside the validator carry their own message
	if msg, ok := strings.CutPrefix(err.Error(), generation.ErrInvalidRequest.Error()+": "); ok &&
		!strings.Contains(msg, "Field validation") {
		return "Validation error: " + msg
	}

	return "Validation error"
}

// fieldName converts a Go field name into its snake_case JSON name
func fieldName(goName string) string {
	var b strings.Builder
	for i, r := range goName {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min", "gte":
		return "too small"
	case "max", "lte":
		return "too large"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
