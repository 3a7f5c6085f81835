// Package registry defines the worker registry contract (R in
// SPEC_FULL.md §2): a heartbeat map used for liveness classification and
// stuck-worker cleanup. Modeled on
// original_source/workers/worker_registry.py. The registry never creates
// queue entries and never reads task state (spec.md §4.R).
package registry

import (
	"context"
	"time"
)

// WorkerRecord is the persisted per-worker record, with open-ended metadata
// (original_source's register_worker accepts arbitrary keys beyond
// hostname/pid — SPEC_FULL.md §9).
type WorkerRecord struct {
	WorkerID      string            `json:"worker_id"`
	RegisteredAt  time.Time         `json:"registered_at"`
	LastHeartbeat time.Time         `json:"last_heartbeat"`
	Status        string            `json:"status"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// WorkerInfo augments a WorkerRecord with derived liveness fields, per
// spec.md §4.R's worker_info().
type WorkerInfo struct {
	WorkerRecord
	TimeSinceHeartbeat time.Duration `json:"time_since_heartbeat"`
	IsAlive            bool          `json:"is_alive"`
}

// Stats is the registry's read-only view.
type Stats struct {
	TotalRegistered   int `json:"total_registered"`
	Active            int `json:"active"`
	Dead              int `json:"dead"`
	HeartbeatTimeoutS int `json:"heartbeat_timeout_seconds"`
}

// Registry is the broker-backed worker registry contract. A worker is
// alive iff now−last_heartbeat < heartbeat_timeout (R1); the registry never
// garbage-collects live entries.
type Registry interface {
	// Register writes the worker's record with status=active.
	Register(ctx context.Context, workerID string, metadata map[string]string) error

	// Heartbeat updates only last_heartbeat, reporting whether the record
	// existed.
	Heartbeat(ctx context.Context, workerID string) (bool, error)

	// Unregister deletes the worker's record.
	Unregister(ctx context.Context, workerID string) error

	// ActiveWorkers and DeadWorkers partition the registered universe by R1.
	ActiveWorkers(ctx context.Context) ([]WorkerRecord, error)
	DeadWorkers(ctx context.Context) ([]WorkerRecord, error)

	// CleanupDeadWorkers deletes records violating R1, returning the count
	// removed.
	CleanupDeadWorkers(ctx context.Context) (int, error)

	// WorkerInfo returns the full record augmented with derived liveness
	// fields.
	WorkerInfo(ctx context.Context, workerID string) (*WorkerInfo, error)

	// Stats returns the read-only registry view.
	Stats(ctx context.Context) (Stats, error)

	// Clear deletes all worker records. Test/operator use only.
	Clear(ctx context.Context) error
}
