package shared

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nonFlusher hides the recorder's Flush method
type nonFlusher struct {
	http.ResponseWriter
}

func TestEventStream(t *testing.T) {
	w := httptest.NewRecorder()

	stream, err := NewEventStream(w)
	require.NoError(t, err)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.True(t, w.Flushed)

	require.NoError(t, stream.Send("result", map[string]any{"status": "ok"}))
	require.NoError(t, stream.Send("done", nil))

	assert.Equal(t,
		"event: result\ndata: {\"status\":\"ok\"}\n\nevent: done\ndata: null\n\n",
		w.Body.String())
}

func TestEventStream_EncodingError(t *testing.T) {
	stream, err := NewEventStream(httptest.NewRecorder())
	require.NoError(t, err)

	err = stream.Send("result", make(chan int))
	assert.ErrorContains(t, err, "failed to encode result event")
}

func TestEventStream_RequiresFlusher(t *testing.T) {
	w := httptest.NewRecorder()

	_, err := NewEventStream(nonFlusher{w})
	assert.ErrorIs(t, err, ErrStreamingUnsupported)
	assert.Empty(t, w.Header().Get("Content-Type"))
}
