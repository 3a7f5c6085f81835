// Package httpapi implements the HTTP façade's wire contract (spec.md §6):
// submission, task status, worker/queue introspection, health, and debug
// endpoints, plus the dead-letter operator surface SPEC_FULL.md §9 adds.
// Routing follows jorgemgr94-go-learning/cmd/rest-api/main.go's
// gin.Default() + route-group style.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Skryldev/imageflow/applog"
	"github.com/Skryldev/imageflow/filters"
	"github.com/Skryldev/imageflow/pipeline/factory"
	"github.com/Skryldev/imageflow/queue"
	"github.com/Skryldev/imageflow/registry"
)

// Config controls path composition for the submission endpoint.
type Config struct {
	// AppRoot is the prefix input_path/output_path are composed under
	// ("/app/{image_path}" in spec.md §6).
	AppRoot string
	// OutputSubdir is appended under AppRoot for generated output paths
	// ("/app/output/{...}" in spec.md §6).
	OutputSubdir string
}

// API holds the dependencies every handler needs.
type API struct {
	cfg Config
	q   queue.Queue
	r   registry.Registry
	log applog.Logger

	// pinger reports broker connectivity for /api/health/. It is supplied by
	// the caller of New (cmd/apiserver passes a Redis PING).
	pinger func(ctx context.Context) error
}

// New constructs an API. pinger may be nil, in which case health checks
// always report "connected".
func New(cfg Config, q queue.Queue, r registry.Registry, log applog.Logger, pinger func(ctx context.Context) error) *API {
	if cfg.AppRoot == "" {
		cfg.AppRoot = "/app"
	}
	if cfg.OutputSubdir == "" {
		cfg.OutputSubdir = "output"
	}
	return &API{cfg: cfg, q: q, r: r, log: log, pinger: pinger}
}

// Router builds the gin.Engine with every route registered.
func (a *API) Router() *gin.Engine {
	router := gin.Default()
	api := router.Group("/api")
	{
		api.POST("/process/", a.handleProcess)
		api.GET("/task/:id/", a.handleTaskStatus)
		api.GET("/workers/", a.handleWorkers)
		api.GET("/health/", a.handleHealth)
		api.GET("/debug/", a.handleDebug)
		api.GET("/deadletter/", a.handleDeadLetterList)
		api.POST("/deadletter/:id/retry/", a.handleDeadLetterRetry)
	}
	return router
}

// ── POST /api/process/ ───────────────────────────────────────────────────────

type processRequest struct {
	Filters    []rawFilter `json:"filters"`
	ImagePath  string      `json:"image_path" binding:"required"`
	OutputName string      `json:"output_name"`
}

// rawFilter accepts either a bare string ("blur") or a full descriptor
// object, per spec.md §9's open question (normalized at the façade
// boundary).
type rawFilter struct {
	asString string
	asDesc   filters.Descriptor
	isString bool
}

func (r *rawFilter) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.asString, r.isString = s, true
		return nil
	}
	return json.Unmarshal(data, &r.asDesc)
}

func (a *API) handleProcess(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	descs := make([]filters.Descriptor, 0, len(req.Filters))
	for _, f := range req.Filters {
		if f.isString {
			descs = append(descs, filters.NormalizeName(f.asString))
		} else {
			descs = append(descs, f.asDesc)
		}
	}

	// Invalid descriptors are rejected here and never enqueued.
	fac := factory.New()
	for i, d := range descs {
		if _, err := fac.CreateFromConfig(d); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("filter %d: %v", i, err)})
			return
		}
	}

	inputPath := filepath.Join(a.cfg.AppRoot, req.ImagePath)

	// Mint the id ourselves so the default output filename can embed the
	// same id AddTask durably records — spec.md §6 requires output_path to
	// end with "{task_id}.jpg" when output_name is omitted.
	id := queue.NewTaskID(time.Now())

	outputName := req.OutputName
	if outputName == "" {
		outputName = id + ".jpg"
	}
	outputPath := filepath.Join(a.cfg.AppRoot, a.cfg.OutputSubdir, outputName)

	if err := a.q.AddTaskWithID(c.Request.Context(), id, inputPath, outputPath, descs); err != nil {
		if a.log != nil {
			a.log.Error("httpapi.add_task_error", "error", err.Error())
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": err.Error()})
		return
	}
	if a.log != nil {
		a.log.Info("httpapi.task_submitted", "task_id", id, "input_path", inputPath)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"task_id":      id,
		"output_name":  outputName,
		"check_status": fmt.Sprintf("/api/task/%s/", id),
	})
}

// ── GET /api/task/{id}/ ───────────────────────────────────────────────────────

func (a *API) handleTaskStatus(c *gin.Context) {
	id := c.Param("id")
	task, err := a.q.GetTask(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	resp := gin.H{
		"task_id": task.ID,
		"status":  task.Status,
	}
	if task.Status == queue.StatusCompleted {
		resp["output_path"] = task.OutputPath
	}
	if task.Result != nil {
		resp["duration"] = task.Result.DurationMS
	}
	if task.WorkerID != "" {
		resp["worker_id"] = task.WorkerID
	}
	c.JSON(http.StatusOK, resp)
}

// ── GET /api/workers/ ─────────────────────────────────────────────────────────

// handleWorkers reads R and Q. Corrected from
// original_source/django_api/image_api/views.py's workers_status, which
// queries a stale "task_queue" key instead of the real pending list —
// Queue.Stats() always reports the authoritative pending count.
func (a *API) handleWorkers(c *gin.Context) {
	ctx := c.Request.Context()
	active, err := a.r.ActiveWorkers(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	stats, err := a.q.Stats(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	workers := make([]gin.H, 0, len(active))
	for _, w := range active {
		workers = append(workers, gin.H{
			"worker_id":      w.WorkerID,
			"last_heartbeat": w.LastHeartbeat,
			"status":         w.Status,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"active_workers": len(active),
		"workers":        workers,
		"queue":          gin.H{"pending": stats.Pending},
	})
}

// ── GET /api/health/ ──────────────────────────────────────────────────────────

func (a *API) handleHealth(c *gin.Context) {
	if a.pinger != nil {
		if err := a.pinger(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "redis": "disconnected"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "redis": "connected"})
}

// ── GET /api/debug/ ───────────────────────────────────────────────────────────

// handleDebug dumps queue list lengths, registry stats, and at most 20
// dead-letter task ids — never the full keyspace, per SPEC_FULL.md §9's
// note on original_source's debug_redis view.
func (a *API) handleDebug(c *gin.Context) {
	ctx := c.Request.Context()
	stats, err := a.q.Stats(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	regStats, err := a.r.Stats(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	deadIDs, err := a.q.DeadLetterIDs(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	sample := deadIDs
	const maxSample = 20
	if len(sample) > maxSample {
		sample = sample[:maxSample]
	}

	c.JSON(http.StatusOK, gin.H{
		"queue":               stats,
		"registry":            regStats,
		"dead_letter_sample":  sample,
	})
}

// ── Dead-letter operator surface (SPEC_FULL.md §9) ───────────────────────────

func (a *API) handleDeadLetterList(c *gin.Context) {
	tasks, err := a.q.DeadLetterTasks(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (a *API) handleDeadLetterRetry(c *gin.Context) {
	id := c.Param("id")
	if err := a.q.RetryDeadLetter(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "task_id": id})
}
