package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrStreamingUnsupported is returned when the response writer cannot flush
var ErrStreamingUnsupported = errors.New("streaming not supported by response writer")

// EventStream writes server-sent events. It is not safe for concurrent use.
type EventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewEventStream prepares w for server-sent events and sends the response
// headers. Nothing is written if w cannot flush.
func NewEventStream(w http.ResponseWriter) (*EventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &EventStream{w: w, flusher: flusher}, nil
}

// Send writes one event with data encoded as JSON and flushes it.
func (s *EventStream) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return fmt.Errorf("failed to write %s event: %w", event, err)
	}
	s.flusher.Flush()
	return nil
}
