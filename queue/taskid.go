package queue

import (
	"fmt"
	"sync/atomic"
	"time"
)

// idSeq disambiguates task ids minted within the same millisecond. A
// monotone millisecond stamp alone (as original_source's add_task uses:
// f"task-{int(time.time()*1000)}") can collide under concurrent AddTask
// calls; the counter makes ids globally unique within a process without
// changing their sortable, timestamp-prefixed shape.
var idSeq uint64

// NewTaskID mints "task-{millis}-{seq}", monotone and unique within this
// process. Multiple processes sharing one queue should rely on the id's
// prefix for rough ordering only; the broker's list order is authoritative
// for FIFO semantics, not the id itself.
func NewTaskID(now time.Time) string {
	seq := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("task-%d-%d", now.UnixMilli(), seq)
}
