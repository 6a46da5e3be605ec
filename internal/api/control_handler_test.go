package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/genqueue/internal/api/shared"
	"github.com/phrazzld/genqueue/internal/jobstate"
	"github.com/phrazzld/genqueue/internal/progress"
)

func doRequest(env *testEnv, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestGetProgress(t *testing.T) {
	env := newTestEnv(t)
	env.registry.AddTaskToQueue("first")
	env.registry.AddTaskToQueue("second")

	tests := []struct {
		name     string
		path     string
		expected ProgressResponse
	}{
		{
			name: "queued task by wire id",
			path: "/api/progress/task(second)",
			expected: ProgressResponse{
				Status: progress.Status{ID: "second", Queued: true, Position: 2},
				TaskID: "task(second)",
			},
		},
		{
			name: "queued task by bare id",
			path: "/api/progress/first",
			expected: ProgressResponse{
				Status: progress.Status{ID: "first", Queued: true, Position: 1},
				TaskID: "task(first)",
			},
		},
		{
			name: "unknown task",
			path: "/api/progress/nope",
			expected: ProgressResponse{
				Status: progress.Status{ID: "nope"},
				TaskID: "task(nope)",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(env, http.MethodGet, tc.path)
			require.Equal(t, http.StatusOK, w.Code)

			var got ProgressResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestGetProgress_InvalidID(t *testing.T) {
	env := newTestEnv(t)

	w := doRequest(env, http.MethodGet, "/api/progress/task(x")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var response shared.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "Invalid task id", response.Error)
}

func TestGetState(t *testing.T) {
	env := newTestEnv(t)
	token, _ := jobstate.NewCancelToken(t.Context())
	env.state.Begin("txt2img", token)
	env.state.SetJobCount(4)
	defer env.state.End()

	w := doRequest(env, http.MethodGet, "/api/state")
	require.Equal(t, http.StatusOK, w.Code)

	var snap jobstate.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "txt2img", snap.Job)
	assert.Equal(t, int64(4), snap.JobCount)
	assert.True(t, snap.Active)
}

func TestControls(t *testing.T) {
	env := newTestEnv(t)
	token, _ := jobstate.NewCancelToken(t.Context())
	env.state.Begin("txt2img", token)
	defer env.state.End()

	w := doRequest(env, http.MethodPost, "/api/skip")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, env.state.Skipped())

	w = doRequest(env, http.MethodPost, "/api/pause")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, env.state.Paused())

	w = doRequest(env, http.MethodPost, "/api/resume")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, env.state.Paused())

	w = doRequest(env, http.MethodPost, "/api/interrupt")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, env.state.Interrupted())
	assert.True(t, token.IsCancelled())
}

func TestInterruptWhileIdle(t *testing.T) {
	env := newTestEnv(t)

	w := doRequest(env, http.MethodPost, "/api/interrupt")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(env, http.MethodGet, "/api/state")
	require.Equal(t, http.StatusOK, w.Code)

	var snap jobstate.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.False(t, snap.Interrupted, "an idle interrupt leaves no stale flag")
}
