// Package memqueue is an in-process Queue implementation with no broker
// dependency. It exists for exercising queue.Queue's contract in tests
// (httpapi, worker) without a live Redis; production workers use
// queue/redisqueue. Translated line-for-line from
// original_source/workers/redis_task_queue_v2.py's list/hash semantics onto
// a mutex-guarded container/list, per DESIGN.md's stdlib-only justification.
package memqueue

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Skryldev/imageflow/filters"
	"github.com/Skryldev/imageflow/queue"
)

// Config mirrors redisqueue.Config without the Redis connection details.
type Config struct {
	MaxRetries        int
	ProcessingTimeout time.Duration
}

// Queue is a mutex-protected, in-memory implementation of queue.Queue.
type Queue struct {
	mu sync.Mutex

	cfg Config

	pending    *list.List // element type: string (task id)
	processing *list.List
	completed  *list.List
	failed     *list.List
	deadLetter *list.List

	tasks map[string]*queue.Task

	claimWake chan struct{} // closed+replaced to wake blocked Claim calls
}

var _ queue.Queue = (*Queue)(nil)

// New constructs an empty memqueue.Queue.
func New(cfg Config) *Queue {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 300 * time.Second
	}
	return &Queue{
		cfg:        cfg,
		pending:    list.New(),
		processing: list.New(),
		completed:  list.New(),
		failed:     list.New(),
		deadLetter: list.New(),
		tasks:      make(map[string]*queue.Task),
		claimWake:  make(chan struct{}),
	}
}

func (q *Queue) AddTask(ctx context.Context, inputPath, outputPath string, descs []filters.Descriptor) (string, error) {
	id := queue.NewTaskID(time.Now())
	if err := q.AddTaskWithID(ctx, id, inputPath, outputPath, descs); err != nil {
		return "", err
	}
	return id, nil
}

// AddTaskWithID is AddTask but the caller supplies the id (minted via
// queue.NewTaskID) instead of letting the queue mint one — for callers that
// must know the task's id before the record is durably written, e.g.
// httpapi deriving a default output filename from the task id.
func (q *Queue) AddTaskWithID(_ context.Context, id, inputPath, outputPath string, descs []filters.Descriptor) error {
	t := &queue.Task{
		ID:         id,
		InputPath:  inputPath,
		OutputPath: outputPath,
		Filters:    descs,
		Status:     queue.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	q.mu.Lock()
	q.tasks[id] = t
	q.pending.PushBack(id)
	q.wakeLocked()
	q.mu.Unlock()
	return nil
}

func (q *Queue) Claim(ctx context.Context, workerID string, timeout time.Duration) (*queue.Task, error) {
	deadline := time.Now().Add(timeout)
	for {
		q.mu.Lock()
		if e := q.pending.Front(); e != nil {
			id := q.pending.Remove(e).(string)
			q.processing.PushBack(id)
			now := time.Now().UTC()
			t := q.tasks[id]
			t.Status = queue.StatusProcessing
			t.WorkerID = workerID
			t.StartedAt = &now
			cp := *t
			q.mu.Unlock()
			return &cp, nil
		}
		wake := q.claimWake
		q.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(remaining):
			return nil, nil
		case <-wake:
		}
	}
}

func (q *Queue) wakeLocked() {
	close(q.claimWake)
	q.claimWake = make(chan struct{})
}

func (q *Queue) MarkCompleted(_ context.Context, id string, result *queue.TaskResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !removeFirst(q.processing, id) {
		return nil // idempotent no-op
	}
	t, ok := q.tasks[id]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	t.Status = queue.StatusCompleted
	t.CompletedAt = &now
	t.Result = result
	q.completed.PushBack(id)
	return nil
}

func (q *Queue) MarkFailed(_ context.Context, id string, cause error, shouldRetry bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !removeFirst(q.processing, id) {
		return nil
	}
	t, ok := q.tasks[id]
	if !ok {
		return nil
	}
	t.RetryCount++
	now := time.Now().UTC()
	t.FailedAt = &now
	if cause != nil {
		t.LastError = cause.Error()
	}

	if shouldRetry && t.RetryCount < q.cfg.MaxRetries {
		t.Status = queue.StatusFailed
		q.pending.PushBack(id)
		q.wakeLocked()
	} else {
		t.Status = queue.StatusDead
		q.deadLetter.PushBack(id)
	}
	return nil
}

func (q *Queue) RecoverStuckTasks(ctx context.Context) (int, error) {
	q.mu.Lock()
	ids := make([]string, 0, q.processing.Len())
	for e := q.processing.Front(); e != nil; e = e.Next() {
		ids = append(ids, e.Value.(string))
	}
	now := time.Now()
	var stuck []string
	for _, id := range ids {
		t, ok := q.tasks[id]
		if !ok {
			removeFirst(q.processing, id)
			continue
		}
		if t.StartedAt != nil && now.Sub(*t.StartedAt) > q.cfg.ProcessingTimeout {
			stuck = append(stuck, id)
		}
	}
	q.mu.Unlock()

	for _, id := range stuck {
		if err := q.MarkFailed(ctx, id, fmt.Errorf("timeout: task exceeded processing_timeout of %s", q.cfg.ProcessingTimeout), true); err != nil {
			return 0, err
		}
	}
	return len(stuck), nil
}

func (q *Queue) RetryDeadLetter(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !removeFirst(q.deadLetter, id) {
		return fmt.Errorf("memqueue: task %s not found in dead_letter", id)
	}
	t, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("memqueue: task %s has no record", id)
	}
	t.RetryCount = 0
	t.Status = queue.StatusPending
	q.pending.PushBack(id)
	q.wakeLocked()
	return nil
}

func (q *Queue) DeadLetterIDs(_ context.Context) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]string, 0, q.deadLetter.Len())
	for e := q.deadLetter.Front(); e != nil; e = e.Next() {
		ids = append(ids, e.Value.(string))
	}
	return ids, nil
}

func (q *Queue) DeadLetterTasks(ctx context.Context) ([]queue.Task, error) {
	ids, _ := q.DeadLetterIDs(ctx)
	q.mu.Lock()
	defer q.mu.Unlock()
	tasks := make([]queue.Task, 0, len(ids))
	for _, id := range ids {
		if t, ok := q.tasks[id]; ok {
			tasks = append(tasks, *t)
		}
	}
	return tasks, nil
}

func (q *Queue) GetTask(_ context.Context, id string) (*queue.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (q *Queue) Stats(_ context.Context) (queue.Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return queue.Stats{
		Pending:    q.pending.Len(),
		Processing: q.processing.Len(),
		Completed:  q.completed.Len(),
		Failed:     q.failed.Len(),
		DeadLetter: q.deadLetter.Len(),
		MaxRetries: q.cfg.MaxRetries,
	}, nil
}

func (q *Queue) Clear(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending.Init()
	q.processing.Init()
	q.completed.Init()
	q.failed.Init()
	q.deadLetter.Init()
	q.tasks = make(map[string]*queue.Task)
	return nil
}

// removeFirst removes the first element equal to id, reporting whether it
// was found — the single-occurrence LREM semantics spec.md's mark_completed
// and mark_failed rely on.
func removeFirst(l *list.List, id string) bool {
	for e := l.Front(); e != nil; e = e.Next() {
		if e.Value.(string) == id {
			l.Remove(e)
			return true
		}
	}
	return false
}
