package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opspulse/opspulse/internal/schedule"
	"github.com/opspulse/opspulse/internal/store"
	"github.com/opspulse/opspulse/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(runs store.RunStore) *APIServer {
	return NewAPIServer("0", nil, runs, nil, schedule.Table())
}

func TestHandleTasks(t *testing.T) {
	s := testServer(store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	rec := httptest.NewRecorder()
	s.handleTasks()(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []taskInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 6)

	names := make(map[string]taskInfo)
	for _, info := range resp.Data {
		names[info.Name] = info
	}
	assert.Equal(t, "every 15 minutes", names["process_batch_ai_requests"].Cadence)
	assert.Equal(t, "processing", names["process_batch_ai_requests"].Queue)
	assert.False(t, names["process_batch_ai_requests"].NextFire.IsZero())
}

func TestHandleRuns(t *testing.T) {
	mem := store.NewMemoryStore()
	now := time.Now()
	require.NoError(t, mem.Append(context.Background(), types.TaskRun{
		ID: "r1", TaskName: "cleanup_cache", Queue: types.QueueMaintenance,
		StartedAt: now, FinishedAt: now.Add(time.Second),
		Status: types.RunStatusSuccess, Message: "completed",
	}))
	s := testServer(mem)

	req := httptest.NewRequest(http.MethodGet, "/runs?task=cleanup_cache", nil)
	rec := httptest.NewRecorder()
	s.handleRuns()(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data []types.TaskRun `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "cleanup_cache", resp.Data[0].TaskName)
}

func TestHandleRunsTimeWindow(t *testing.T) {
	mem := store.NewMemoryStore()
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"ai_health_check", "cleanup_cache", "ai_health_check"} {
		started := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, mem.Append(context.Background(), types.TaskRun{
			ID: name + started.Format(time.RFC3339), TaskName: name, Queue: types.QueueMonitoring,
			StartedAt: started, FinishedAt: started.Add(time.Second),
			Status: types.RunStatusSuccess, Message: "completed",
		}))
	}
	s := testServer(mem)

	url := "/runs?since=" + base.Add(30*time.Minute).Format(time.RFC3339) +
		"&until=" + base.Add(90*time.Minute).Format(time.RFC3339)
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	s.handleRuns()(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data []types.TaskRun `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "cleanup_cache", resp.Data[0].TaskName)
}

func TestHandleRunsRejectsBadSince(t *testing.T) {
	s := testServer(store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/runs?since=yesterday", nil)
	rec := httptest.NewRecorder()
	s.handleRuns()(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRunsRejectsBadUntil(t *testing.T) {
	s := testServer(store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/runs?until=tomorrow", nil)
	rec := httptest.NewRecorder()
	s.handleRuns()(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealthUnavailable(t *testing.T) {
	s := testServer(store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth()(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := testServer(store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/tasks", nil)
	rec := httptest.NewRecorder()
	s.handleTasks()(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
