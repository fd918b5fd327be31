package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"murmur/internal/daemon"
)

func TestCLIDaemonRunAndShutdown(t *testing.T) {
	env := setupCLITestEnv(t)

	// The shared test config points the API at an unbindable port; the
	// daemon needs one it can actually listen on.
	env.cfg.Paths.APIBind = "127.0.0.1:0"
	configPath := filepath.Join(env.baseDir, "daemon-config.toml")
	writeTestConfig(t, configPath, env.cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--config", configPath, "daemon", "run"})
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Execute()
	}()

	pidPath := daemon.PIDFilePath(env.cfg)
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := daemon.ReadPIDFile(pidPath); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("daemon did not write pid file; stderr: %s", stderr.String())
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("daemon run: %v (stderr: %s)", err, stderr.String())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon run did not exit after cancel")
	}

	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatalf("pid file should be removed on shutdown, stat err: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(env.cfg.Paths.LogDir, "murmur.log")); err != nil {
		t.Fatalf("expected murmur.log pointer: %v", err)
	}
}

func TestEnsureCurrentLogPointer(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "murmur-1.log")
	if err := os.WriteFile(first, []byte("one\n"), 0o644); err != nil {
		t.Fatalf("write first log: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("ensureCurrentLogPointer: %v", err)
	}
	current := filepath.Join(dir, "murmur.log")
	data, err := os.ReadFile(current)
	if err != nil || string(data) != "one\n" {
		t.Fatalf("pointer should resolve to first log, got %q (%v)", data, err)
	}

	second := filepath.Join(dir, "murmur-2.log")
	if err := os.WriteFile(second, []byte("two\n"), 0o644); err != nil {
		t.Fatalf("write second log: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("repoint: %v", err)
	}
	data, err = os.ReadFile(current)
	if err != nil || string(data) != "two\n" {
		t.Fatalf("pointer should follow the newest log, got %q (%v)", data, err)
	}
}
