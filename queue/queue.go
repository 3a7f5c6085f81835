// Package queue defines the task queue contract (Q in SPEC_FULL.md §2): an
// at-least-once, at-most-one-concurrent-execution handoff between
// submitters and workers, with bounded retries and a dead-letter sink.
// Modeled on original_source/workers/redis_task_queue_v2.py.
package queue

import (
	"context"
	"time"

	"github.com/Skryldev/imageflow/filters"
)

// Status is one of the five points in a task's lifecycle (spec.md §3).
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDead       Status = "dead"
)

// TaskResult is the worker-reported outcome of a successful run.
type TaskResult struct {
	DurationMS int64             `json:"duration_ms"`
	Steps      []StepResult      `json:"steps,omitempty"`
}

// StepResult is a trimmed-down per-filter record suitable for embedding in a
// task's result payload.
type StepResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Task is the persisted record for one unit of work, a one-to-one mapping
// of spec.md §3's task record.
type Task struct {
	ID         string               `json:"task_id"`
	InputPath  string               `json:"input_path"`
	OutputPath string               `json:"output_path"`
	Filters    []filters.Descriptor `json:"filters"`

	Status Status `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`

	WorkerID string `json:"worker_id,omitempty"`

	RetryCount int         `json:"retry_count"`
	LastError  string      `json:"last_error,omitempty"`
	Result     *TaskResult `json:"result,omitempty"`
}

// Stats is the queue's read-only view, per spec.md §4.Q.
type Stats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	DeadLetter int `json:"dead_letter"`
	MaxRetries int `json:"max_retries"`
}

// Queue is the broker-backed task queue contract. Implementations must
// preserve invariants Q1–Q4 from spec.md §3.
type Queue interface {
	// AddTask mints a task id, writes the record with status=pending, and
	// pushes to the tail of pending. Submission order is preserved.
	AddTask(ctx context.Context, inputPath, outputPath string, descs []filters.Descriptor) (string, error)

	// AddTaskWithID is AddTask but the caller supplies the id (minted via
	// NewTaskID) instead of letting the queue mint one — for callers that
	// must know the id before the record is durably written.
	AddTaskWithID(ctx context.Context, id, inputPath, outputPath string, descs []filters.Descriptor) error

	// Claim atomically moves the oldest id (the head of pending) into
	// processing, blocking up to timeout. Returns (nil, nil) on timeout.
	Claim(ctx context.Context, workerID string, timeout time.Duration) (*Task, error)

	// MarkCompleted removes id from processing and records completion.
	// Idempotent: a second call for the same id is a no-op.
	MarkCompleted(ctx context.Context, id string, result *TaskResult) error

	// MarkFailed removes id from processing, increments retry_count, and
	// either re-enqueues at the tail of pending or routes to dead_letter.
	MarkFailed(ctx context.Context, id string, cause error, shouldRetry bool) error

	// RecoverStuckTasks scans processing for tasks whose started_at exceeds
	// the configured processing_timeout and fails them for retry.
	RecoverStuckTasks(ctx context.Context) (int, error)

	// RetryDeadLetter removes one occurrence from dead_letter and re-enqueues
	// it at the tail of pending with retry_count reset to 0.
	RetryDeadLetter(ctx context.Context, id string) error

	// DeadLetterIDs returns the ids currently parked in dead_letter.
	DeadLetterIDs(ctx context.Context) ([]string, error)

	// DeadLetterTasks returns the full records for dead-lettered tasks
	// (supplemented operator surface, SPEC_FULL.md §9).
	DeadLetterTasks(ctx context.Context) ([]Task, error)

	// GetTask loads a task record by id.
	GetTask(ctx context.Context, id string) (*Task, error)

	// Stats returns the read-only queue view.
	Stats(ctx context.Context) (Stats, error)

	// Clear empties all five lists and task hashes. Test/operator use only.
	Clear(ctx context.Context) error
}
