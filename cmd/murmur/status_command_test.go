package main

import (
	"strings"
	"testing"

	"murmur/internal/queue"
)

func TestCLIStatusDaemonDown(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Daemon ==")
	requireContains(t, out, "stopped")
	requireContains(t, out, "== Checks ==")
	requireContains(t, out, "== Queue ==")
	requireContains(t, out, "Pending")
	if strings.Contains(out, ansiReset) {
		t.Fatalf("buffered output should not be colorized: %q", out)
	}
}

func TestParseQueueStats(t *testing.T) {
	if got := parseQueueStats(nil); got != nil {
		t.Fatalf("nil stats should stay nil, got %v", got)
	}
	got := parseQueueStats(map[string]int{"pending": 2, "bogus": 9})
	if got[queue.StatusPending] != 2 {
		t.Fatalf("expected pending count, got %v", got)
	}
	if len(got) != 1 {
		t.Fatalf("unknown statuses should be dropped, got %v", got)
	}
}
