package task

import (
	"errors"
	"fmt"
	"html"
	"reflect"
	"runtime"
	"unicode"
)

// Common errors produced while running a job
var (
	// ErrNoResult is returned when a function produced no result at all
	ErrNoResult = errors.New("no result returned from function")

	// ErrInterrupted is returned by Emit once the job's token was cancelled
	ErrInterrupted = errors.New("job interrupted")

	// ErrStreamClosed is returned by Emit once the consumer stopped reading
	ErrStreamClosed = errors.New("result stream closed by consumer")

	// ErrArityMismatch is returned when a result does not match the declared outputs
	ErrArityMismatch = errors.New("result does not match declared outputs")
)

// noResultMessage is shown in the banner of a job that produced nothing
const noResultMessage = "No result returned from function"

// Error is a failure with an explicit display name, such as "ValueError".
type Error struct {
	Kind    string
	Message string
}

// NewError creates an Error with the given display name and message.
func NewError(kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string { return e.Message }

// Name returns the error's display name.
func (e *Error) Name() string { return e.Kind }

// PanicError is a recovered panic from a job function.
type PanicError struct {
	// Value is the original value passed to panic().
	Value any

	// Stack is the goroutine stack trace at the point of panic.
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func newPanicError(v any) *PanicError {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return &PanicError{Value: v, Stack: string(buf[:n])}
}

// ErrorName returns the display name of err: the Name of the first error in the
// chain that has one, else the exported dynamic type name of err, else "Error".
func ErrorName(err error) string {
	var named interface{ Name() string }
	if errors.As(err, &named) && named.Name() != "" {
		return named.Name()
	}

	if errors.Is(err, ErrInterrupted) {
		return "Interrupted"
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" || !unicode.IsUpper([]rune(t.Name())[0]) {
		return "Error"
	}
	return t.Name()
}

// ErrorBanner renders message as the HTML error banner placed in a result's
// status slot.
func ErrorBanner(message string) string {
	return "<div class='error'>" + html.EscapeString(message) + "</div>"
}

// describe renders err as "<Name>: <message>" for banners.
func describe(err error) string {
	return ErrorName(err) + ": " + err.Error()
}
