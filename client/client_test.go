package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmanager "github.com/MapColonies/job-manager"
	"github.com/MapColonies/job-manager/api"
	"github.com/MapColonies/job-manager/backoff"
	"github.com/MapColonies/job-manager/client"
)

func newTestClient(t *testing.T, handler http.Handler) *client.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return client.New(srv.URL,
		client.WithRetry(backoff.NewConstant(time.Millisecond), 3))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestCreateJob(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/jobs", r.URL.Path)

		var req api.CreateJobRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bluemarble", req.ResourceID)

		writeJSON(w, http.StatusCreated, api.CreateJobResponse{ID: "j1", TaskIDs: []string{"t1"}})
	}))

	resp, err := c.CreateJob(context.Background(), api.CreateJobRequest{
		ResourceID: "bluemarble",
		Version:    "1.0",
		Type:       "ingestion",
		Parameters: json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "j1", resp.ID)
	assert.Equal(t, []string{"t1"}, resp.TaskIDs)
}

func TestGetJob_QueryFlags(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jobs/j1", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("shouldReturnTasks"))
		assert.Equal(t, "true", r.URL.Query().Get("shouldReturnAvailableActions"))
		writeJSON(w, http.StatusOK, map[string]any{"id": "j1", "status": "In-Progress"})
	}))

	j, err := c.GetJob(context.Background(), "j1", client.GetJobOptions{
		WithTasks:            true,
		WithAvailableActions: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "j1", j.ID)
	assert.Equal(t, jobmanager.StatusInProgress, j.Status)
}

func TestSentinelRecovery(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"job not found", http.StatusNotFound, jobmanager.ErrJobNotFound},
		{"no pending tasks", http.StatusNotFound, jobmanager.ErrNoPendingTasks},
		{"active job exists", http.StatusConflict, jobmanager.ErrActiveJobExists},
		{"duplicate task", http.StatusConflict, jobmanager.ErrDuplicateTask},
		{"job has tasks", http.StatusUnprocessableEntity, jobmanager.ErrJobHasTasks},
		{"not resettable", http.StatusBadRequest, jobmanager.ErrJobNotResettable},
		{"not abortable", http.StatusBadRequest, jobmanager.ErrJobNotAbortable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, map[string]string{"message": tc.want.Error()})
			}))

			_, err := c.GetJob(context.Background(), "j1", client.GetJobOptions{})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestClaimTask_Empty(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tasks/claim/ingestion/tiling", r.URL.Path)
		writeJSON(w, http.StatusNotFound,
			map[string]string{"message": jobmanager.ErrNoPendingTasks.Error()})
	}))

	_, err := c.ClaimTask(context.Background(), "ingestion", "tiling")
	assert.ErrorIs(t, err, jobmanager.ErrNoPendingTasks)
}

func TestRetry_IdempotentOn5xx(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "db down"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": "j1", "status": "Pending"})
	}))

	j, err := c.GetJob(context.Background(), "j1", client.GetJobOptions{})
	require.NoError(t, err)
	assert.Equal(t, "j1", j.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetry_PostIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "db down"})
	}))

	_, err := c.CreateJob(context.Background(), api.CreateJobRequest{
		ResourceID: "x", Version: "1", Type: "t", Parameters: json.RawMessage(`{}`),
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetry_NoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusNotFound, map[string]string{"message": jobmanager.ErrJobNotFound.Error()})
	}))

	_, err := c.GetJob(context.Background(), "j1", client.GetJobOptions{})
	assert.ErrorIs(t, err, jobmanager.ErrJobNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestReleaseInactiveTasks(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tasks/releaseInactive", r.URL.Path)

		var req api.ReleaseInactiveRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"t1", "t2"}, req.TaskIDs)

		writeJSON(w, http.StatusOK, []string{"t1"})
	}))

	released, err := c.ReleaseInactiveTasks(context.Background(),
		api.ReleaseInactiveRequest{TaskIDs: []string{"t1", "t2"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, released)
}
