package redisregistry_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Skryldev/imageflow/registry/redisregistry"
)

func newTestRegistry(t *testing.T, cfg redisregistry.Config) (*redisregistry.Registry, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return redisregistry.New(client, cfg, nil), mr
}

func TestRegister_ThenWorkerInfo(t *testing.T) {
	r, _ := newTestRegistry(t, redisregistry.Config{})
	ctx := context.Background()

	if err := r.Register(ctx, "worker-1", map[string]string{"hostname": "box-a"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	info, err := r.WorkerInfo(ctx, "worker-1")
	if err != nil {
		t.Fatalf("WorkerInfo: %v", err)
	}
	if info == nil {
		t.Fatal("expected a worker info record")
	}
	if !info.IsAlive {
		t.Fatal("freshly registered worker should be alive")
	}
	if info.Metadata["hostname"] != "box-a" {
		t.Fatalf("Metadata = %+v, want hostname=box-a", info.Metadata)
	}
}

func TestHeartbeat_UnknownWorkerReturnsFalse(t *testing.T) {
	r, _ := newTestRegistry(t, redisregistry.Config{})
	existed, err := r.Heartbeat(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if existed {
		t.Fatal("expected Heartbeat on an unregistered worker to report false")
	}
}

func TestActiveAndDeadWorkers_Partition(t *testing.T) {
	r, mr := newTestRegistry(t, redisregistry.Config{HeartbeatTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	if err := r.Register(ctx, "alive", nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(ctx, "stale", nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	mr.FastForward(50 * time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	if _, err := r.Heartbeat(ctx, "alive"); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	active, err := r.ActiveWorkers(ctx)
	if err != nil {
		t.Fatalf("ActiveWorkers: %v", err)
	}
	dead, err := r.DeadWorkers(ctx)
	if err != nil {
		t.Fatalf("DeadWorkers: %v", err)
	}

	if len(active) != 1 || active[0].WorkerID != "alive" {
		t.Fatalf("ActiveWorkers = %+v, want [alive]", active)
	}
	if len(dead) != 1 || dead[0].WorkerID != "stale" {
		t.Fatalf("DeadWorkers = %+v, want [stale]", dead)
	}
}

func TestCleanupDeadWorkers_RemovesStaleRecords(t *testing.T) {
	r, mr := newTestRegistry(t, redisregistry.Config{HeartbeatTimeout: 20 * time.Millisecond})
	ctx := context.Background()
	if err := r.Register(ctx, "stale", nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	mr.FastForward(50 * time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	n, err := r.CleanupDeadWorkers(ctx)
	if err != nil {
		t.Fatalf("CleanupDeadWorkers: %v", err)
	}
	if n != 1 {
		t.Fatalf("CleanupDeadWorkers removed %d, want 1", n)
	}

	info, err := r.WorkerInfo(ctx, "stale")
	if err != nil {
		t.Fatalf("WorkerInfo: %v", err)
	}
	if info != nil {
		t.Fatal("expected worker record to be gone after cleanup")
	}
}

func TestStats_CountsActiveAndDead(t *testing.T) {
	r, _ := newTestRegistry(t, redisregistry.Config{HeartbeatTimeout: time.Minute})
	ctx := context.Background()
	if err := r.Register(ctx, "w1", nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(ctx, "w2", nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	stats, err := r.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalRegistered != 2 || stats.Active != 2 || stats.Dead != 0 {
		t.Fatalf("Stats = %+v", stats)
	}
}

func TestUnregister_RemovesRecord(t *testing.T) {
	r, _ := newTestRegistry(t, redisregistry.Config{})
	ctx := context.Background()
	if err := r.Register(ctx, "w1", nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Unregister(ctx, "w1"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	info, err := r.WorkerInfo(ctx, "w1")
	if err != nil {
		t.Fatalf("WorkerInfo: %v", err)
	}
	if info != nil {
		t.Fatal("expected nil WorkerInfo after Unregister")
	}
}

func TestClear_RemovesAllWorkers(t *testing.T) {
	r, _ := newTestRegistry(t, redisregistry.Config{})
	ctx := context.Background()
	if err := r.Register(ctx, "w1", nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(ctx, "w2", nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	all, err := r.ActiveWorkers(ctx)
	if err != nil {
		t.Fatalf("ActiveWorkers: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("ActiveWorkers after Clear = %+v, want empty", all)
	}
}
