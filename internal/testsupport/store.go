package testsupport

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"murmur/internal/config"
	"murmur/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewTask creates a whole-file task for tests using the provided store.
func NewTask(t testing.TB, store *queue.Store, sourcePath, fingerprint string) *queue.Task {
	t.Helper()

	title := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	task, err := store.NewTask(context.Background(), sourcePath, title, "whisper-cpu", fingerprint)
	if err != nil {
		t.Fatalf("store.NewTask: %v", err)
	}
	return task
}
