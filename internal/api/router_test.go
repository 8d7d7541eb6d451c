package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-manager/internal/api/handlers"
	"task-manager/internal/models"
	"task-manager/internal/service"
	"task-manager/internal/store/memory"
	"task-manager/internal/store/types"
	"task-manager/pkg/logger"
)

// brokenStore 所有写入与统计都失败
type brokenStore struct {
	*memory.Store
}

var errBroken = errors.New("database disk image is malformed")

func (brokenStore) InsertTask(ctx context.Context, agentID int, node, module, command string) (int, error) {
	return 0, errBroken
}

func (brokenStore) CountByStatus(ctx context.Context) (map[models.TaskStatus]int, error) {
	return nil, errBroken
}

func newTestLogger() *logger.Logger {
	return logger.NewLogger(logger.Options{Console: io.Discard})
}

func newTestRouter(t *testing.T, store types.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	lg := newTestLogger()
	taskService := service.NewTaskService(store, lg.GetLogger("task-service"))
	statusService := service.NewStatusService(store, lg.GetLogger("status-service"))

	return NewRouter(
		handlers.NewTaskHandler(taskService, lg),
		handlers.NewStatusHandler(statusService, lg),
		lg,
	)
}

func perform(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAnalyzeEndpoint(t *testing.T) {
	router := newTestRouter(t, memory.NewStore())

	t.Run("creates upgrade task", func(t *testing.T) {
		w := perform(router, http.MethodPost, "/api/v1/tasks/analyze",
			`{"module":"upgrade_module","command":"upgrade","node":"worker-1","agent":42}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"error":0,"data":"Success","agent":42,"task_id":1}`, w.Body.String())
		assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	})

	t.Run("business error in body", func(t *testing.T) {
		w := perform(router, http.MethodPost, "/api/v1/tasks/analyze",
			`{"module":"foo","command":"bar","node":"n","agent":1}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"error":2,"data":"Invalid module","agent":1,"task_id":-1}`, w.Body.String())
	})

	t.Run("silent reject", func(t *testing.T) {
		w := perform(router, http.MethodPost, "/api/v1/tasks/analyze",
			`{"module":"upgrade_module","command":"upgrade","agent":42}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":1,"data":"Invalid message","agent":-1,"task_id":-1}`, w.Body.String())
	})

	t.Run("malformed body", func(t *testing.T) {
		w := perform(router, http.MethodPost, "/api/v1/tasks/analyze", `{"module":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAnalyzeEndpointDatabaseError(t *testing.T) {
	router := newTestRouter(t, brokenStore{memory.NewStore()})

	w := perform(router, http.MethodPost, "/api/v1/tasks/analyze",
		`{"module":"upgrade_module","command":"upgrade","node":"n","agent":3}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":8,"data":"Database error","agent":-1,"task_id":-1}`, w.Body.String())

	w = perform(router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMessageEndpoint(t *testing.T) {
	router := newTestRouter(t, memory.NewStore())

	w := perform(router, http.MethodPost, "/api/v1/tasks/message",
		`{"origin":{"name":"master","module":"upgrade_module"},"command":"upgrade","parameters":{"agents":[1,2]}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"error":0,"message":"Success","data":[
		{"error":0,"data":"Success","agent":1,"task_id":1},
		{"error":0,"data":"Success","agent":2,"task_id":2}]}`, w.Body.String())

	w = perform(router, http.MethodPost, "/api/v1/tasks/message", `{"command":"upgrade"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":1,"data":[],"message":"Invalid message"}`, w.Body.String())
}

func TestTaskQueryEndpoints(t *testing.T) {
	router := newTestRouter(t, memory.NewStore())

	for _, body := range []string{
		`{"module":"upgrade_module","command":"upgrade","node":"n","agent":1}`,
		`{"module":"upgrade_module","command":"upgrade","node":"n","agent":2}`,
		`{"module":"upgrade_module","command":"upgrade_update_status","node":"n","agent":2,"status":"in_progress"}`,
	} {
		w := perform(router, http.MethodPost, "/api/v1/tasks/analyze", body)
		require.Equal(t, http.StatusOK, w.Code)
	}

	var list struct {
		Count int `json:"count"`
		Tasks []struct {
			ID     int    `json:"task_id"`
			Agent  int    `json:"agent"`
			Status string `json:"status"`
		} `json:"tasks"`
	}

	w := perform(router, http.MethodGet, "/api/v1/tasks", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)

	w = perform(router, http.MethodGet, "/api/v1/tasks?status=in_progress", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Tasks, 1)
	assert.Equal(t, 2, list.Tasks[0].Agent)

	w = perform(router, http.MethodGet, "/api/v1/tasks?agent=1&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Tasks, 1)
	assert.Equal(t, "pending", list.Tasks[0].Status)

	assert.Equal(t, http.StatusBadRequest, perform(router, http.MethodGet, "/api/v1/tasks?agent=abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, perform(router, http.MethodGet, "/api/v1/tasks?limit=-1", "").Code)

	w = perform(router, http.MethodGet, "/api/v1/tasks?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid status"}`, w.Body.String())

	w = perform(router, http.MethodGet, "/api/v1/tasks/2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"in_progress"`)

	assert.Equal(t, http.StatusNotFound, perform(router, http.MethodGet, "/api/v1/tasks/99", "").Code)
	assert.Equal(t, http.StatusBadRequest, perform(router, http.MethodGet, "/api/v1/tasks/abc", "").Code)
}

func TestStatusEndpoints(t *testing.T) {
	router := newTestRouter(t, memory.NewStore())

	w := perform(router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	perform(router, http.MethodPost, "/api/v1/tasks/analyze",
		`{"module":"upgrade_module","command":"upgrade","node":"n","agent":1}`)

	w = perform(router, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status struct {
		TotalTasks int            `json:"total_tasks"`
		Tasks      map[string]int `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 1, status.TotalTasks)
	assert.Equal(t, 1, status.Tasks["pending"])

	w = perform(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `taskmgr_analyses_total{code="0",module="upgrade_module"}`)
	assert.Contains(t, w.Body.String(), `taskmgr_tasks_by_status{status="pending"} 1`)
}
