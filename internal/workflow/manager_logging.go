package workflow

import (
	"context"
	"log/slog"

	"murmur/internal/logging"
	"murmur/internal/queue"
	"murmur/internal/services"
)

const stageName = "transcription"

func (m *Manager) loopLogger() *slog.Logger {
	if m.logger == nil {
		return logging.NewNop()
	}
	return logging.NewComponentLogger(m.logger, "workflow-runner")
}

func (m *Manager) taskLogger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = m.logger
	}
	if base == nil {
		base = logging.NewNop()
	}
	return logging.WithContext(ctx, base)
}

func withTaskContext(ctx context.Context, task *queue.Task, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if task != nil {
		ctx = services.WithTaskID(ctx, task.ID)
		if task.Provider != "" {
			ctx = services.WithProvider(ctx, task.Provider)
		}
	}
	ctx = services.WithStage(ctx, stageName)
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}
