package redisqueue

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/Skryldev/imageflow/queue"
)

// toHash flattens a Task into Redis hash fields (spec.md §3's task record).
func toHash(t *queue.Task) (map[string]interface{}, error) {
	descJSON, err := json.Marshal(t.Filters)
	if err != nil {
		return nil, err
	}

	h := map[string]interface{}{
		"task_id":     t.ID,
		"input_path":  t.InputPath,
		"output_path": t.OutputPath,
		"filters":     string(descJSON),
		"status":      string(t.Status),
		"created_at":  t.CreatedAt.UTC().Format(time.RFC3339Nano),
		"retry_count": strconv.Itoa(t.RetryCount),
	}
	if t.StartedAt != nil {
		h["started_at"] = t.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if t.CompletedAt != nil {
		h["completed_at"] = t.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	if t.FailedAt != nil {
		h["failed_at"] = t.FailedAt.UTC().Format(time.RFC3339Nano)
	}
	if t.WorkerID != "" {
		h["worker_id"] = t.WorkerID
	}
	if t.LastError != "" {
		h["last_error"] = t.LastError
	}
	if t.Result != nil {
		resJSON, err := json.Marshal(t.Result)
		if err != nil {
			return nil, err
		}
		h["result"] = string(resJSON)
	}
	return h, nil
}

// fromHash reconstructs a Task from HGetAll output. Returns false if the
// hash is empty (the key does not exist).
func fromHash(m map[string]string) (*queue.Task, bool, error) {
	if len(m) == 0 {
		return nil, false, nil
	}
	t := &queue.Task{
		ID:         m["task_id"],
		InputPath:  m["input_path"],
		OutputPath: m["output_path"],
		Status:     queue.Status(m["status"]),
		WorkerID:   m["worker_id"],
		LastError:  m["last_error"],
	}
	if m["filters"] != "" {
		if err := json.Unmarshal([]byte(m["filters"]), &t.Filters); err != nil {
			return nil, false, err
		}
	}
	if rc, ok := m["retry_count"]; ok && rc != "" {
		n, err := strconv.Atoi(rc)
		if err != nil {
			return nil, false, err
		}
		t.RetryCount = n
	}
	if v, ok := m["created_at"]; ok && v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, false, err
		}
		t.CreatedAt = ts
	}
	if ts, ok := parseOptionalTime(m, "started_at"); ok {
		t.StartedAt = ts
	}
	if ts, ok := parseOptionalTime(m, "completed_at"); ok {
		t.CompletedAt = ts
	}
	if ts, ok := parseOptionalTime(m, "failed_at"); ok {
		t.FailedAt = ts
	}
	if r, ok := m["result"]; ok && r != "" {
		var res queue.TaskResult
		if err := json.Unmarshal([]byte(r), &res); err != nil {
			return nil, false, err
		}
		t.Result = &res
	}
	return t, true, nil
}

func parseOptionalTime(m map[string]string, field string) (*time.Time, bool) {
	v, ok := m[field]
	if !ok || v == "" {
		return nil, false
	}
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, false
	}
	return &ts, true
}
