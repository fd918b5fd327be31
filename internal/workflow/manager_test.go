package workflow_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/notifications"
	"murmur/internal/queue"
	"murmur/internal/services"
	"murmur/internal/stage"
	"murmur/internal/testsupport"
	"murmur/internal/workflow"
)

type stubStage struct {
	mu          sync.Mutex
	prepareHook func(*queue.Task)
	executeHook func(context.Context, *queue.Task) error
	prepareErr  error
	health      stage.Health
	logger      *slog.Logger
	executions  int
}

func newStubStage() *stubStage {
	return &stubStage{health: stage.Healthy("transcription")}
}

func (s *stubStage) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

func (s *stubStage) Prepare(_ context.Context, task *queue.Task) error {
	if s.prepareHook != nil {
		s.prepareHook(task)
	}
	return s.prepareErr
}

func (s *stubStage) Execute(ctx context.Context, task *queue.Task) error {
	s.mu.Lock()
	s.executions++
	s.mu.Unlock()
	if s.executeHook != nil {
		return s.executeHook(ctx, task)
	}
	task.OutputPath = task.SourcePath + ".srt"
	task.SetProgressComplete("transcribing", "2 subtitles written")
	return nil
}

func (s *stubStage) HealthCheck(context.Context) stage.Health {
	return s.health
}

func (s *stubStage) executionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executions
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	last   map[notifications.Event]notifications.Payload
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{last: make(map[notifications.Event]notifications.Payload)}
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.last[event] = payload
	return nil
}

func (r *recordingNotifier) count(event notifications.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, e := range r.events {
		if e == event {
			total++
		}
	}
	return total
}

func (r *recordingNotifier) payload(event notifications.Event) notifications.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last[event]
}

func workflowConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 0
	cfg.Workflow.ErrorRetryInterval = 0
	cfg.Workflow.HeartbeatInterval = 1
	cfg.Workflow.HeartbeatTimeout = 120
	return cfg
}

func waitForStatus(t *testing.T, store *queue.Store, id int64, want queue.Status) *queue.Task {
	t.Helper()
	deadline := time.After(30 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for status %s", want)
		default:
		}
		task, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if task.Status == want {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestManagerProcessesTasks(t *testing.T) {
	cfg := workflowConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handler := newStubStage()
	notifier := newRecordingNotifier()
	mgr := workflow.NewManagerWithNotifier(cfg, store, handler, logging.NewNop(), notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	task := testsupport.NewTask(t, store, "/media/show.mkv", "fp-success")
	done := waitForStatus(t, store, task.ID, queue.StatusCompleted)

	if done.ProgressStage != "completed" || done.ProgressPercent != 100 {
		t.Fatalf("progress not finalized: stage=%q percent=%v", done.ProgressStage, done.ProgressPercent)
	}
	if done.ProgressMessage != "2 subtitles written" {
		t.Fatalf("stage progress message lost: %q", done.ProgressMessage)
	}
	if done.LastHeartbeat != nil {
		t.Fatal("heartbeat should be cleared on completion")
	}
	if done.OutputPath == "" {
		t.Fatal("output path not persisted")
	}

	deadline := time.After(10 * time.Second)
	for notifier.count(notifications.EventBatchCompleted) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected batch completion notification")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	if notifier.count(notifications.EventTaskStarted) != 1 {
		t.Fatalf("expected one task start push, got %d", notifier.count(notifications.EventTaskStarted))
	}
	if notifier.count(notifications.EventTaskCompleted) != 1 {
		t.Fatalf("expected one task completion push, got %d", notifier.count(notifications.EventTaskCompleted))
	}
	batch := notifier.payload(notifications.EventBatchCompleted)
	if batch["completed"] != 1 || batch["failed"] != 0 || batch["total"] != 1 {
		t.Fatalf("unexpected batch payload: %v", batch)
	}
}

func TestManagerRejectsSecondStart(t *testing.T) {
	cfg := workflowConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManagerWithNotifier(cfg, store, newStubStage(), logging.NewNop(), newRecordingNotifier())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	if err := mgr.Start(ctx); err == nil || err.Error() != "workflow already running" {
		t.Fatalf("second Start = %v, want workflow already running", err)
	}
}

func TestManagerStageFailureMapsToFailed(t *testing.T) {
	cfg := workflowConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handler := newStubStage()
	handler.executeHook = func(context.Context, *queue.Task) error {
		return services.Wrap(services.ErrExternalTool, "transcription", "extract", "ffmpeg exited with status 1", nil)
	}
	notifier := newRecordingNotifier()
	mgr := workflow.NewManagerWithNotifier(cfg, store, handler, logging.NewNop(), notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	task := testsupport.NewTask(t, store, "/media/broken.mkv", "fp-failed")
	failed := waitForStatus(t, store, task.ID, queue.StatusFailed)

	if failed.ErrorMessage == "" {
		t.Fatal("expected error message on failed task")
	}
	if failed.NeedsReview {
		t.Fatal("tool failures should not flag review")
	}
	if failed.ProgressStage != "failed" {
		t.Fatalf("progress stage = %q, want failed", failed.ProgressStage)
	}

	deadline := time.After(10 * time.Second)
	for notifier.count(notifications.EventTaskFailed) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected task failure push")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	batchDeadline := time.After(10 * time.Second)
	for notifier.count(notifications.EventBatchCompleted) == 0 {
		select {
		case <-batchDeadline:
			t.Fatal("expected batch completion after failure drained the queue")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	batch := notifier.payload(notifications.EventBatchCompleted)
	if batch["failed"] != 1 || batch["completed"] != 0 {
		t.Fatalf("unexpected batch payload: %v", batch)
	}
}

func TestManagerValidationFailureFlagsReview(t *testing.T) {
	cfg := workflowConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handler := newStubStage()
	handler.prepareErr = services.Wrap(services.ErrValidation, "transcription", "prepare", "Source file is missing or unreadable", nil)
	mgr := workflow.NewManagerWithNotifier(cfg, store, handler, logging.NewNop(), newRecordingNotifier())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	task := testsupport.NewTask(t, store, "/media/missing.mkv", "fp-review")
	failed := waitForStatus(t, store, task.ID, queue.StatusFailed)

	if !failed.NeedsReview {
		t.Fatal("validation failures should flag review")
	}
	if failed.ReviewReason == "" {
		t.Fatal("expected review reason")
	}
	if handler.executionCount() != 0 {
		t.Fatal("Execute should not run after Prepare fails")
	}
}

func TestManagerShutdownCancelsInFlightTask(t *testing.T) {
	cfg := workflowConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handler := newStubStage()
	started := make(chan struct{})
	var startedOnce sync.Once
	handler.executeHook = func(ctx context.Context, _ *queue.Task) error {
		startedOnce.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	}
	notifier := newRecordingNotifier()
	mgr := workflow.NewManagerWithNotifier(cfg, store, handler, logging.NewNop(), notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	task := testsupport.NewTask(t, store, "/media/slow.mkv", "fp-cancel")
	select {
	case <-started:
	case <-time.After(30 * time.Second):
		t.Fatal("stage never started")
	}

	mgr.Stop()

	cancelled, err := store.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if cancelled.Status != queue.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}
	if cancelled.ProgressMessage != queue.DaemonStopReason {
		t.Fatalf("progress message = %q, want %q", cancelled.ProgressMessage, queue.DaemonStopReason)
	}
	if notifier.count(notifications.EventTaskFailed) != 0 {
		t.Fatal("shutdown must not publish a failure push")
	}
}

func TestManagerStatusIncludesStageHealth(t *testing.T) {
	cfg := workflowConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handler := newStubStage()
	handler.health = stage.Unhealthy("transcription", "ffmpeg not found in PATH")
	mgr := workflow.NewManagerWithNotifier(cfg, store, handler, logging.NewNop(), newRecordingNotifier())

	status := mgr.Status(context.Background())
	if status.Running {
		t.Fatal("manager should not report running before Start")
	}
	health, ok := status.StageHealth["transcription"]
	if !ok {
		t.Fatal("expected transcription stage health entry")
	}
	if health.Ready {
		t.Fatalf("expected not ready health, got %+v", health)
	}
	if health.Detail != "ffmpeg not found in PATH" {
		t.Fatalf("unexpected detail %q", health.Detail)
	}
}

func TestManagerRequiresConfiguredStage(t *testing.T) {
	cfg := workflowConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManagerWithNotifier(cfg, store, nil, logging.NewNop(), newRecordingNotifier())

	if err := mgr.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail without a stage handler")
	}
}
