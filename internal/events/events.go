package events

import (
	"errors"
	"time"
)

// Common errors returned by the Channel
var (
	// ErrChannelDone is returned when a record is pushed after the channel completed
	ErrChannelDone = errors.New("event channel is done")

	// ErrDrained is returned by Next once the channel is done and its backlog is empty
	ErrDrained = errors.New("event channel is drained")
)

// Event names pushed by job producers
const (
	// EventResult carries one result produced by a running job
	EventResult = "result"

	// EventDone marks the end of a job's result stream
	EventDone = "done"
)

// Record is a single (event, payload) pair. Records are never modified after
// they are pushed.
type Record struct {
	// Event is the record's event name
	Event string `json:"event"`

	// Payload is the event-specific data, possibly nil
	Payload any `json:"payload,omitempty"`

	// PushedAt is the time the record was accepted by the channel
	PushedAt time.Time `json:"pushed_at"`
}

// Listener is invoked once when a channel transitions to done.
type Listener func()
