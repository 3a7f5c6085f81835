// Package worker implements the worker loop (W in SPEC_FULL.md §2): three
// concurrent activities — claim, heartbeat, and recovery sweep — sharing
// only the broker client, per spec.md §4.W/§5. Lifecycle management
// (Start/Stop via sync.Once + WaitGroup + a shutdown channel) follows the
// teacher's core.Processor.Start/Stop.
package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Skryldev/imageflow/applog"
	apperrors "github.com/Skryldev/imageflow/errors"
	"github.com/Skryldev/imageflow/imageio"
	"github.com/Skryldev/imageflow/metrics"
	"github.com/Skryldev/imageflow/pipeline/factory"
	"github.com/Skryldev/imageflow/queue"
	"github.com/Skryldev/imageflow/registry"
)

// Config configures one worker's timers and identity.
type Config struct {
	WorkerID string // default: "worker-{8 hex}" (spec.md §6)

	ClaimTimeout      time.Duration // default 5s
	HeartbeatInterval time.Duration // default 10s
	RecoveryInterval  time.Duration // default processing_timeout/3

	// Sweep, when false, disables this worker's recovery-sweep goroutine.
	// spec.md §4.W allows a single elected sweeper; Loop's caller decides
	// which worker(s) sweep.
	Sweep bool

	BackoffInitial time.Duration // default 1s
	BackoffMax     time.Duration // default 30s
}

// DefaultConfig fills in spec.md's defaults, minting a worker id if none is
// given.
func DefaultConfig() Config {
	return Config{
		WorkerID:          fmt.Sprintf("worker-%s", uuid.New().String()[:8]),
		ClaimTimeout:      5 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		RecoveryInterval:  100 * time.Second,
		Sweep:             true,
		BackoffInitial:    1 * time.Second,
		BackoffMax:        30 * time.Second,
	}
}

// Loop ties Q, R, and the filter factory together into one worker process.
type Loop struct {
	cfg Config
	q   queue.Queue
	r   registry.Registry
	fac *factory.Factory
	log applog.Logger
	m   *metrics.Collector

	wg       sync.WaitGroup
	once     sync.Once
	shutdown chan struct{}

	processedCount int64
	errorCount     int64
}

// New constructs a Loop. fac may be nil, in which case a fresh
// factory.New() is used. m may be nil, in which case no collectors are
// recorded.
func New(cfg Config, q queue.Queue, r registry.Registry, fac *factory.Factory, log applog.Logger, m *metrics.Collector) *Loop {
	if cfg.WorkerID == "" {
		cfg.WorkerID = DefaultConfig().WorkerID
	}
	if fac == nil {
		fac = factory.New()
	}
	return &Loop{cfg: cfg, q: q, r: r, fac: fac, log: log, m: m, shutdown: make(chan struct{})}
}

// Start registers the worker and launches the claim loop, heartbeat
// ticker, and (if configured) recovery sweep as independent goroutines.
func (l *Loop) Start(ctx context.Context) error {
	meta := map[string]string{"pid": fmt.Sprintf("%d", os.Getpid())}
	if host, err := os.Hostname(); err == nil {
		meta["hostname"] = host
	}
	if err := l.r.Register(ctx, l.cfg.WorkerID, meta); err != nil {
		return fmt.Errorf("worker: register %s: %w", l.cfg.WorkerID, err)
	}
	if l.m != nil {
		l.m.WorkersActive.Inc()
	}

	l.once.Do(func() {
		l.wg.Add(1)
		go l.claimLoop(ctx)

		l.wg.Add(1)
		go l.heartbeatTicker(ctx)

		if l.cfg.Sweep {
			l.wg.Add(1)
			go l.recoverySweep(ctx)
		}
	})
	return nil
}

// Stop signals all three goroutines, waits for the in-flight task (if any)
// to finish, and unregisters the worker — spec.md §4.W's shutdown sequence.
func (l *Loop) Stop() {
	close(l.shutdown)
	l.wg.Wait()
	_ = l.r.Unregister(context.Background(), l.cfg.WorkerID)
	if l.m != nil {
		l.m.WorkersActive.Dec()
	}
}

func (l *Loop) claimLoop(ctx context.Context) {
	defer l.wg.Done()
	backoff := l.cfg.BackoffInitial

	for {
		select {
		case <-l.shutdown:
			return
		case <-ctx.Done():
			return
		default:
		}

		task, err := l.q.Claim(ctx, l.cfg.WorkerID, l.cfg.ClaimTimeout)
		if err != nil {
			if l.log != nil {
				l.log.Error("worker.claim_error", "worker_id", l.cfg.WorkerID, "error", err.Error())
			}
			select {
			case <-time.After(backoff):
			case <-l.shutdown:
				return
			}
			backoff *= 2
			if backoff > l.cfg.BackoffMax {
				backoff = l.cfg.BackoffMax
			}
			continue
		}
		backoff = l.cfg.BackoffInitial

		if task == nil {
			continue // claim timed out, no work available
		}
		if l.m != nil {
			l.m.TasksClaimed.Inc()
		}

		l.execute(ctx, task)
	}
}

// execute runs one task's pipeline end to end, mapping any failure onto
// mark_failed per spec.md §4.W/§7.
func (l *Loop) execute(ctx context.Context, task *queue.Task) {
	start := time.Now()

	img, err := imageio.Load(task.InputPath)
	if err != nil {
		l.fail(ctx, task.ID, fmt.Errorf("load %s: %w", task.InputPath, err))
		return
	}

	pipe, err := l.fac.CreatePipeline(task.Filters, factory.CreatePipelineOptions{StopOnError: true})
	if err != nil {
		// An invalid descriptor should never have been enqueued (spec.md
		// §7: InvalidDescriptor is surfaced synchronously at submission);
		// reaching this from a claimed task is itself an IoFailure-shaped
		// bug, handled the same way as any other pipeline failure.
		l.fail(ctx, task.ID, err)
		return
	}

	result, stats, err := pipe.Apply(img, "")
	if err != nil {
		l.fail(ctx, task.ID, err)
		return
	}
	if result == nil {
		l.fail(ctx, task.ID, apperrors.New(apperrors.CategoryPipelineTotalFailure, "worker.execute",
			fmt.Errorf("every filter step failed for task %s", task.ID)))
		return
	}

	if err := imageio.Save(task.OutputPath, result); err != nil {
		l.fail(ctx, task.ID, fmt.Errorf("save %s: %w", task.OutputPath, err))
		return
	}

	steps := make([]queue.StepResult, len(stats.PerStep))
	if l.m != nil {
		obs := make([]metrics.StepObservation, len(stats.PerStep))
		for i, s := range stats.PerStep {
			obs[i] = metrics.StepObservation{Name: s.Name, Seconds: s.Time.Seconds(), Failed: s.Status != "success"}
		}
		l.m.ObserveSteps(obs)
	}
	for i, s := range stats.PerStep {
		steps[i] = queue.StepResult{Name: s.Name, Status: s.Status, Error: s.Error}
	}

	if err := l.q.MarkCompleted(ctx, task.ID, &queue.TaskResult{
		DurationMS: time.Since(start).Milliseconds(),
		Steps:      steps,
	}); err != nil && l.log != nil {
		l.log.Error("worker.mark_completed_error", "task_id", task.ID, "error", err.Error())
	}

	atomic.AddInt64(&l.processedCount, 1)
	if l.m != nil {
		l.m.TasksCompleted.Inc()
	}
	if l.log != nil {
		l.log.Info("worker.task_completed", "task_id", task.ID, "worker_id", l.cfg.WorkerID)
	}
}

func (l *Loop) fail(ctx context.Context, id string, cause error) {
	atomic.AddInt64(&l.errorCount, 1)
	if l.log != nil {
		l.log.Warn("worker.task_failed", "task_id", id, "worker_id", l.cfg.WorkerID, "error", cause.Error())
	}
	if l.m != nil {
		l.m.TasksFailed.Inc()
	}
	if err := l.q.MarkFailed(ctx, id, cause, true); err != nil && l.log != nil {
		l.log.Error("worker.mark_failed_error", "task_id", id, "error", err.Error())
	}
	if l.m != nil {
		if task, err := l.q.GetTask(ctx, id); err == nil && task != nil && task.Status == queue.StatusDead {
			l.m.TasksDeadLetter.Inc()
		}
	}
}

func (l *Loop) heartbeatTicker(ctx context.Context) {
	defer l.wg.Done()
	t := time.NewTicker(l.cfg.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-l.shutdown:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := l.r.Heartbeat(ctx, l.cfg.WorkerID); err != nil && l.log != nil {
				l.log.Warn("worker.heartbeat_error", "worker_id", l.cfg.WorkerID, "error", err.Error())
			}
		}
	}
}

func (l *Loop) recoverySweep(ctx context.Context) {
	defer l.wg.Done()
	t := time.NewTicker(l.cfg.RecoveryInterval)
	defer t.Stop()
	for {
		select {
		case <-l.shutdown:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := l.q.RecoverStuckTasks(ctx)
			if err != nil && l.log != nil {
				l.log.Warn("worker.recovery_sweep_error", "error", err.Error())
				continue
			}
			if n > 0 && l.log != nil {
				l.log.Info("worker.recovery_sweep", "recovered", n)
			}
		}
	}
}

// ProcessedCount and ErrorCount report this loop's lifetime counters,
// mirroring the teacher's Processor.ProcessedCount()/ErrorCount().
func (l *Loop) ProcessedCount() int64 { return atomic.LoadInt64(&l.processedCount) }
func (l *Loop) ErrorCount() int64     { return atomic.LoadInt64(&l.errorCount) }

// WorkerID returns the loop's identity.
func (l *Loop) WorkerID() string { return l.cfg.WorkerID }
