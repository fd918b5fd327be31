package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"murmur/internal/logging"
	"murmur/internal/queue"
	"murmur/internal/testsupport"
	"murmur/internal/workflow"
)

func markProcessingWithHeartbeat(t *testing.T, store *queue.Store, task *queue.Task, beat time.Time) {
	t.Helper()
	task.Status = queue.StatusProcessing
	task.LastHeartbeat = &beat
	if err := store.Update(context.Background(), task); err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func TestHeartbeatMonitorReclaimsStale(t *testing.T) {
	cfg := workflowConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	task := testsupport.NewTask(t, store, "/media/stale.mkv", "fp-stale")
	markProcessingWithHeartbeat(t, store, task, time.Now().UTC().Add(-2*time.Hour))

	monitor := workflow.NewHeartbeatMonitor(store, logging.NewNop(), time.Second, time.Minute)
	if err := monitor.ReclaimStale(context.Background(), logging.NewNop()); err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}

	reclaimed, err := store.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reclaimed.Status != queue.StatusPending {
		t.Fatalf("status = %s, want pending", reclaimed.Status)
	}
	if reclaimed.LastHeartbeat != nil {
		t.Fatal("heartbeat should be cleared on reclaim")
	}
}

func TestHeartbeatMonitorDisabledByZeroTimeout(t *testing.T) {
	cfg := workflowConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	task := testsupport.NewTask(t, store, "/media/stale.mkv", "fp-stale-off")
	markProcessingWithHeartbeat(t, store, task, time.Now().UTC().Add(-2*time.Hour))

	monitor := workflow.NewHeartbeatMonitor(store, logging.NewNop(), time.Second, 0)
	if err := monitor.ReclaimStale(context.Background(), logging.NewNop()); err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}

	untouched, err := store.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if untouched.Status != queue.StatusProcessing {
		t.Fatalf("status = %s, want processing", untouched.Status)
	}
}

func TestHeartbeatLoopUpdatesTimestamps(t *testing.T) {
	cfg := workflowConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	task := testsupport.NewTask(t, store, "/media/live.mkv", "fp-live")
	before := time.Now().UTC().Add(-time.Minute)
	markProcessingWithHeartbeat(t, store, task, before)

	monitor := workflow.NewHeartbeatMonitor(store, logging.NewNop(), 20*time.Millisecond, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go monitor.StartLoop(ctx, &wg, task.ID)

	deadline := time.After(10 * time.Second)
	for {
		select {
		case <-deadline:
			cancel()
			wg.Wait()
			t.Fatal("heartbeat never advanced")
		default:
		}
		current, err := store.GetByID(context.Background(), task.ID)
		if err != nil {
			cancel()
			wg.Wait()
			t.Fatalf("GetByID: %v", err)
		}
		if current.LastHeartbeat != nil && current.LastHeartbeat.After(before) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	wg.Wait()
}
