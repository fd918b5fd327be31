package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"murmur/internal/config"
	"murmur/internal/notifications"
	"murmur/internal/queue"
	"murmur/internal/stage"
)

// Manager coordinates queue processing through the transcription stage.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	handler  stage.Handler
	logger   *slog.Logger
	notifier notifications.Service

	pollInterval time.Duration
	errorRetry   time.Duration
	heartbeat    *HeartbeatMonitor

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	lastTask *queue.Task

	batchActive    bool
	batchStart     time.Time
	batchCompleted int
	batchFailed    int
	batchCancelled int
}

// loggerAware lets the manager hand stage handlers a task-scoped logger
// before each run.
type loggerAware interface {
	SetLogger(*slog.Logger)
}

// NewManager constructs a workflow manager with the ntfy notifier from cfg.
func NewManager(cfg *config.Config, store *queue.Store, handler stage.Handler, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, handler, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a workflow manager with a custom notifier
// (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store *queue.Store, handler stage.Handler, logger *slog.Logger, notifier notifications.Service) *Manager {
	return &Manager{
		cfg:          cfg,
		store:        store,
		handler:      handler,
		logger:       logger,
		notifier:     notifier,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		errorRetry:   time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
	}
}
