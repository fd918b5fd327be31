package daemon_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"murmur/internal/daemon"
	"murmur/internal/logging"
	"murmur/internal/queue"
	"murmur/internal/stage"
	"murmur/internal/testsupport"
	"murmur/internal/workflow"
)

type noopStage struct{}

func (noopStage) Prepare(context.Context, *queue.Task) error { return nil }
func (noopStage) Execute(context.Context, *queue.Task) error { return nil }
func (noopStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("noop")
}

func newTestDaemon(t *testing.T) (*daemon.Daemon, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManagerWithNotifier(cfg, store, noopStage{}, logging.NewNop(), nil)
	d, err := daemon.New(cfg, store, logging.NewNop(), mgr, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d, store
}

func TestDaemonStartStop(t *testing.T) {
	d, _ := newTestDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !d.Running() {
		t.Fatal("expected daemon to report running")
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Running() {
		t.Fatal("expected daemon to be stopped")
	}

	// Stop again is a no-op.
	d.Stop()
}

func TestDaemonWritesAndRemovesPIDFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManagerWithNotifier(cfg, store, noopStage{}, logging.NewNop(), nil)
	d, err := daemon.New(cfg, store, logging.NewNop(), mgr, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	defer d.Close()

	pidPath := daemon.PIDFilePath(cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	pid, err := daemon.ReadPIDFile(pidPath)
	if err != nil {
		t.Fatalf("ReadPIDFile: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("pid file holds %d, want %d", pid, os.Getpid())
	}
	if !daemon.ProcessAlive(pid) {
		t.Fatal("expected own process to be alive")
	}

	d.Stop()
	if _, err := os.Stat(pidPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected pid file removed, stat err = %v", err)
	}
}

func TestDaemonLockExcludesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)

	first, err := daemon.New(cfg, store, logging.NewNop(), workflow.NewManagerWithNotifier(cfg, store, noopStage{}, logging.NewNop(), nil), nil)
	if err != nil {
		t.Fatalf("daemon.New first: %v", err)
	}
	defer first.Close()
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start first: %v", err)
	}

	second, err := daemon.New(cfg, store, logging.NewNop(), workflow.NewManagerWithNotifier(cfg, store, noopStage{}, logging.NewNop(), nil), nil)
	if err != nil {
		t.Fatalf("daemon.New second: %v", err)
	}
	defer second.Close()

	err = second.Start(context.Background())
	if !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	first.Stop()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("second start after release: %v", err)
	}
	second.Stop()
}

func TestReadPIDFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "murmur.pid")
	if err := os.WriteFile(path, []byte("not-a-pid\n"), 0o644); err != nil {
		t.Fatalf("write pid file: %v", err)
	}
	if _, err := daemon.ReadPIDFile(path); err == nil {
		t.Fatal("expected parse error")
	}

	if _, err := daemon.ReadPIDFile(filepath.Join(t.TempDir(), "missing.pid")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestProcessAlive(t *testing.T) {
	if !daemon.ProcessAlive(os.Getpid()) {
		t.Fatal("expected current process to be alive")
	}
	if daemon.ProcessAlive(0) {
		t.Fatal("expected pid 0 to be rejected")
	}
	if daemon.ProcessAlive(-5) {
		t.Fatal("expected negative pid to be rejected")
	}
}
