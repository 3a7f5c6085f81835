// Package redisqueue is the production Queue implementation, backed by
// Redis's atomic list operations (BLMove for the pending→processing
// handoff), hash storage for task records, and SCAN for safe key
// enumeration. Grounded on original_source/workers/redis_task_queue_v2.py;
// the broker client is github.com/redis/go-redis/v9 (named in
// SPEC_FULL.md §5 — no in-pack repo carries go-redis source, only a
// manifest naming it).
package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Skryldev/imageflow/applog"
	"github.com/Skryldev/imageflow/filters"
	"github.com/Skryldev/imageflow/queue"
)

// Config configures one queue namespace.
type Config struct {
	QueueName         string
	MaxRetries        int
	ProcessingTimeout time.Duration
}

// Queue implements queue.Queue against a Redis broker.
type Queue struct {
	client *redis.Client
	cfg    Config
	log    applog.Logger
}

var _ queue.Queue = (*Queue)(nil)

// New wraps an existing *redis.Client. Callers own the client's lifecycle
// (Close it when the process exits).
func New(client *redis.Client, cfg Config, log applog.Logger) *Queue {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 300 * time.Second
	}
	return &Queue{client: client, cfg: cfg, log: log}
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
func (q *Queue) AddTaskWithID(ctx context.Context, id, inputPath, outputPath string, descs []filters.Descriptor) error {
	t := &queue.Task{
		ID:         id,
		InputPath:  inputPath,
		OutputPath: outputPath,
		Filters:    descs,
		Status:     queue.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	h, err := toHash(t)
	if err != nil {
		return fmt.Errorf("redisqueue: encode task %s: %w", id, err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, taskKey(q.cfg.QueueName, id), h)
	pipe.RPush(ctx, pendingKey(q.cfg.QueueName), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return q.wrapBroker("add_task", err)
	}
	return nil
}

func (q *Queue) Claim(ctx context.Context, workerID string, timeout time.Duration) (*queue.Task, error) {
	id, err := q.client.BLMove(ctx,
		pendingKey(q.cfg.QueueName), processingKey(q.cfg.QueueName),
		"LEFT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil // no task available within timeout
	}
	if err != nil {
		return nil, q.wrapBroker("claim", err)
	}

	now := time.Now().UTC()
	// These three field writes are pipelined but not atomic with the move
	// above — an observer may briefly see status=pending while id already
	// sits in processing. §5 tolerates this window by construction.
	pipe := q.client.Pipeline()
	pipe.HSet(ctx, taskKey(q.cfg.QueueName, id), map[string]interface{}{
		"status":     string(queue.StatusProcessing),
		"worker_id":  workerID,
		"started_at": now.Format(time.RFC3339Nano),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, q.wrapBroker("claim.update", err)
	}

	return q.GetTask(ctx, id)
}

func (q *Queue) MarkCompleted(ctx context.Context, id string, result *queue.TaskResult) error {
	removed, err := q.client.LRem(ctx, processingKey(q.cfg.QueueName), 1, id).Result()
	if err != nil {
		return q.wrapBroker("mark_completed", err)
	}
	if removed == 0 {
		return nil // already completed/failed for this id — idempotent no-op
	}

	now := time.Now().UTC()
	fields := map[string]interface{}{
		"status":       string(queue.StatusCompleted),
		"completed_at": now.Format(time.RFC3339Nano),
	}
	if result != nil {
		h, err := toHash(&queue.Task{Result: result})
		if err != nil {
			return fmt.Errorf("redisqueue: encode result for %s: %w", id, err)
		}
		fields["result"] = h["result"]
	}

	pipe := q.client.Pipeline()
	pipe.HSet(ctx, taskKey(q.cfg.QueueName, id), fields)
	pipe.RPush(ctx, completedKey(q.cfg.QueueName), id)
	_, err = pipe.Exec(ctx)
	return q.wrapBroker("mark_completed", err)
}

func (q *Queue) MarkFailed(ctx context.Context, id string, cause error, shouldRetry bool) error {
	removed, err := q.client.LRem(ctx, processingKey(q.cfg.QueueName), 1, id).Result()
	if err != nil {
		return q.wrapBroker("mark_failed", err)
	}
	if removed == 0 {
		return nil // already absorbed by a prior mark_completed/mark_failed
	}

	task, err := q.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return nil // orphan: hash already gone, nothing left to update
	}

	retryCount := task.RetryCount + 1
	now := time.Now().UTC()
	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}

	fields := map[string]interface{}{
		"retry_count": fmt.Sprintf("%d", retryCount),
		"last_error":  errMsg,
		"failed_at":   now.Format(time.RFC3339Nano),
	}

	pipe := q.client.Pipeline()
	if shouldRetry && retryCount < q.cfg.MaxRetries {
		fields["status"] = string(queue.StatusFailed)
		pipe.HSet(ctx, taskKey(q.cfg.QueueName, id), fields)
		pipe.RPush(ctx, pendingKey(q.cfg.QueueName), id)
	} else {
		fields["status"] = string(queue.StatusDead)
		pipe.HSet(ctx, taskKey(q.cfg.QueueName, id), fields)
		pipe.RPush(ctx, deadLetterKey(q.cfg.QueueName), id)
	}
	_, err = pipe.Exec(ctx)
	return q.wrapBroker("mark_failed", err)
}

func (q *Queue) RecoverStuckTasks(ctx context.Context) (int, error) {
	ids, err := q.client.LRange(ctx, processingKey(q.cfg.QueueName), 0, -1).Result()
	if err != nil {
		return 0, q.wrapBroker("recover_stuck_tasks", err)
	}

	count := 0
	now := time.Now()
	for _, id := range ids {
		task, err := q.GetTask(ctx, id)
		if err != nil {
			return count, err
		}
		if task == nil {
			// Orphan: id in processing but hash absent. Remove and ignore.
			q.client.LRem(ctx, processingKey(q.cfg.QueueName), 1, id)
			continue
		}
		if task.StartedAt == nil {
			continue
		}
		if now.Sub(*task.StartedAt) > q.cfg.ProcessingTimeout {
			if err := q.MarkFailed(ctx, id, fmt.Errorf("timeout: task exceeded processing_timeout of %s", q.cfg.ProcessingTimeout), true); err != nil {
				return count, err
			}
			count++
			if q.log != nil {
				q.log.Warn("queue.recover_stuck_task", "task_id", id)
			}
		}
	}
	return count, nil
}

func (q *Queue) RetryDeadLetter(ctx context.Context, id string) error {
	removed, err := q.client.LRem(ctx, deadLetterKey(q.cfg.QueueName), 1, id).Result()
	if err != nil {
		return q.wrapBroker("retry_dead_letter", err)
	}
	if removed == 0 {
		return fmt.Errorf("redisqueue: task %s not found in dead_letter", id)
	}

	pipe := q.client.Pipeline()
	pipe.HSet(ctx, taskKey(q.cfg.QueueName, id), map[string]interface{}{
		"retry_count": "0",
		"status":      string(queue.StatusPending),
	})
	pipe.RPush(ctx, pendingKey(q.cfg.QueueName), id)
	_, err = pipe.Exec(ctx)
	return q.wrapBroker("retry_dead_letter", err)
}

func (q *Queue) DeadLetterIDs(ctx context.Context) ([]string, error) {
	ids, err := q.client.LRange(ctx, deadLetterKey(q.cfg.QueueName), 0, -1).Result()
	if err != nil {
		return nil, q.wrapBroker("dead_letter_ids", err)
	}
	return ids, nil
}

func (q *Queue) DeadLetterTasks(ctx context.Context) ([]queue.Task, error) {
	ids, err := q.DeadLetterIDs(ctx)
	if err != nil {
		return nil, err
	}
	tasks := make([]queue.Task, 0, len(ids))
	for _, id := range ids {
		t, err := q.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if t != nil {
			tasks = append(tasks, *t)
		}
	}
	return tasks, nil
}

func (q *Queue) GetTask(ctx context.Context, id string) (*queue.Task, error) {
	m, err := q.client.HGetAll(ctx, taskKey(q.cfg.QueueName, id)).Result()
	if err != nil {
		return nil, q.wrapBroker("get_task", err)
	}
	t, ok, err := fromHash(m)
	if err != nil {
		return nil, fmt.Errorf("redisqueue: decode task %s: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	return t, nil
}

func (q *Queue) Stats(ctx context.Context) (queue.Stats, error) {
	pipe := q.client.Pipeline()
	pendingC := pipe.LLen(ctx, pendingKey(q.cfg.QueueName))
	processingC := pipe.LLen(ctx, processingKey(q.cfg.QueueName))
	completedC := pipe.LLen(ctx, completedKey(q.cfg.QueueName))
	failedC := pipe.LLen(ctx, failedKey(q.cfg.QueueName))
	deadC := pipe.LLen(ctx, deadLetterKey(q.cfg.QueueName))
	if _, err := pipe.Exec(ctx); err != nil {
		return queue.Stats{}, q.wrapBroker("stats", err)
	}
	return queue.Stats{
		Pending:    int(pendingC.Val()),
		Processing: int(processingC.Val()),
		Completed:  int(completedC.Val()),
		Failed:     int(failedC.Val()),
		DeadLetter: int(deadC.Val()),
		MaxRetries: q.cfg.MaxRetries,
	}, nil
}

func (q *Queue) Clear(ctx context.Context) error {
	keys := []string{
		pendingKey(q.cfg.QueueName), processingKey(q.cfg.QueueName),
		completedKey(q.cfg.QueueName), failedKey(q.cfg.QueueName),
		deadLetterKey(q.cfg.QueueName),
	}

	var cursor uint64
	for {
		var batch []string
		var err error
		batch, cursor, err = q.client.Scan(ctx, cursor, taskKeyPattern(q.cfg.QueueName), 100).Result()
		if err != nil {
			return q.wrapBroker("clear.scan", err)
		}
		keys = append(keys, batch...)
		if cursor == 0 {
			break
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return q.wrapBroker("clear", q.client.Del(ctx, keys...).Err())
}

func (q *Queue) wrapBroker(op string, err error) error {
	if err == nil {
		return nil
	}
	if q.log != nil {
		q.log.Error("queue.broker_error", "op", op, "error", err.Error())
	}
	return fmt.Errorf("redisqueue: %s: %w", op, err)
}
