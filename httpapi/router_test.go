package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Skryldev/imageflow/httpapi"
	"github.com/Skryldev/imageflow/queue"
	"github.com/Skryldev/imageflow/queue/memqueue"
	"github.com/Skryldev/imageflow/registry"
)

type fakeRegistry struct {
	active []registry.WorkerRecord
}

func (f *fakeRegistry) Register(context.Context, string, map[string]string) error { return nil }
func (f *fakeRegistry) Heartbeat(context.Context, string) (bool, error)            { return true, nil }
func (f *fakeRegistry) Unregister(context.Context, string) error                   { return nil }
func (f *fakeRegistry) ActiveWorkers(context.Context) ([]registry.WorkerRecord, error) {
	return f.active, nil
}
func (f *fakeRegistry) DeadWorkers(context.Context) ([]registry.WorkerRecord, error) { return nil, nil }
func (f *fakeRegistry) CleanupDeadWorkers(context.Context) (int, error)              { return 0, nil }
func (f *fakeRegistry) WorkerInfo(context.Context, string) (*registry.WorkerInfo, error) {
	return nil, nil
}
func (f *fakeRegistry) Stats(context.Context) (registry.Stats, error) {
	return registry.Stats{TotalRegistered: len(f.active), Active: len(f.active)}, nil
}
func (f *fakeRegistry) Clear(context.Context) error { return nil }

var _ registry.Registry = (*fakeRegistry)(nil)

func newTestAPI(t *testing.T) (*gin.Engine, queue.Queue) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	q := memqueue.New(memqueue.Config{MaxRetries: 3})
	reg := &fakeRegistry{active: []registry.WorkerRecord{{WorkerID: "worker-1", LastHeartbeat: time.Now(), Status: "active"}}}
	api := httpapi.New(httpapi.Config{}, q, reg, nil, nil)
	return api.Router(), q
}

func TestHandleProcess_AcceptsStringFilters(t *testing.T) {
	router, q := newTestAPI(t)

	body := `{"image_path":"cat.jpg","filters":["grayscale","blur"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/process/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	taskID, _ := resp["task_id"].(string)
	if taskID == "" {
		t.Fatalf("expected non-empty task_id in %+v", resp)
	}

	task, err := q.GetTask(context.Background(), taskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task == nil || len(task.Filters) != 2 {
		t.Fatalf("task = %+v", task)
	}
}

func TestHandleProcess_DefaultOutputNameEmbedsRealTaskID(t *testing.T) {
	router, q := newTestAPI(t)

	body := `{"image_path":"cat.jpg"}`
	req := httptest.NewRequest(http.MethodPost, "/api/process/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	taskID, _ := resp["task_id"].(string)
	outputName, _ := resp["output_name"].(string)
	if taskID == "" || outputName != taskID+".jpg" {
		t.Fatalf("output_name = %q, want %q (task_id %q)", outputName, taskID+".jpg", taskID)
	}

	task, err := q.GetTask(context.Background(), taskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task == nil || !strings.HasSuffix(task.OutputPath, taskID+".jpg") {
		t.Fatalf("task.OutputPath = %q, want suffix %q", task.OutputPath, taskID+".jpg")
	}
}

func TestHandleProcess_RejectsMissingImagePath(t *testing.T) {
	router, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/process/", bytes.NewBufferString(`{"filters":["blur"]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body = %s", w.Code, w.Body.String())
	}
}

func TestHandleTaskStatus_NotFound(t *testing.T) {
	router, _ := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/api/task/nonexistent/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestHandleTaskStatus_ReportsStatus(t *testing.T) {
	router, q := newTestAPI(t)
	id, err := q.AddTask(context.Background(), "/a.jpg", "/b.jpg", nil)
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/task/"+id+"/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != string(queue.StatusPending) {
		t.Fatalf("status field = %v, want pending", resp["status"])
	}
}

func TestHandleWorkers_ReportsActiveCountAndQueueDepth(t *testing.T) {
	router, q := newTestAPI(t)
	if _, err := q.AddTask(context.Background(), "/a.jpg", "/b.jpg", nil); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/workers/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["active_workers"].(float64) != 1 {
		t.Fatalf("active_workers = %v, want 1", resp["active_workers"])
	}
	q2, ok := resp["queue"].(map[string]any)
	if !ok || q2["pending"].(float64) != 1 {
		t.Fatalf("queue.pending = %+v, want 1", resp["queue"])
	}
}

func TestHandleHealth_ReportsHealthyWithoutPinger(t *testing.T) {
	router, _ := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestHandleHealth_ReportsUnhealthyWhenPingerFails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	q := memqueue.New(memqueue.Config{})
	reg := &fakeRegistry{}
	api := httpapi.New(httpapi.Config{}, q, reg, nil, func(context.Context) error {
		return context.DeadlineExceeded
	})
	router := api.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/health/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestHandleDeadLetterRetry_UnknownTask(t *testing.T) {
	router, _ := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/deadletter/nonexistent/retry/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleDebug_ReportsQueueAndRegistryStats(t *testing.T) {
	router, _ := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/api/debug/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := resp["queue"].(map[string]any); !ok {
		t.Fatalf("missing queue stats in %+v", resp)
	}
	if _, ok := resp["registry"].(map[string]any); !ok {
		t.Fatalf("missing registry stats in %+v", resp)
	}
}
