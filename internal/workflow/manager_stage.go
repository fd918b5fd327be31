package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"murmur/internal/logging"
	"murmur/internal/notifications"
	"murmur/internal/queue"
	"murmur/internal/services"
)

func (m *Manager) processTask(ctx context.Context, loopLogger *slog.Logger, task *queue.Task) error {
	requestID := uuid.NewString()
	taskCtx := withTaskContext(ctx, task, requestID)
	logger := m.taskLogger(taskCtx, loopLogger)
	if aware, ok := m.handler.(loggerAware); ok {
		aware.SetLogger(logger)
	}

	if err := m.transitionToProcessing(taskCtx, task); err != nil {
		logger.Error("failed to transition task to processing", logging.Error(err))
		m.setLastError(err)
		return err
	}

	return m.executeStage(taskCtx, logger, task)
}

func (m *Manager) executeStage(ctx context.Context, logger *slog.Logger, task *queue.Task) error {
	stageStart := time.Now()
	logger.Info("stage started",
		logging.String("task", task.DisplayName()),
		logging.String("source_file", strings.TrimSpace(task.SourcePath)),
	)

	if err := m.handler.Prepare(ctx, task); err != nil {
		m.handleStageFailure(ctx, task, err)
		m.setLastError(err)
		return err
	}
	if err := m.store.Update(ctx, task); err != nil {
		wrapped := fmt.Errorf("persist stage preparation: %w", err)
		logger.Error("failed to persist stage preparation", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	execErr := m.executeWithHeartbeat(ctx, task)
	if execErr != nil {
		if services.FailureStatus(execErr) == queue.StatusCancelled {
			m.markTaskCancelled(ctx, logger, task)
			return execErr
		}
		m.handleStageFailure(ctx, task, execErr)
		m.setLastError(execErr)
		return execErr
	}

	task.Status = queue.StatusCompleted
	task.LastHeartbeat = nil
	task.ProgressStage = "completed"
	if task.ProgressPercent < 100 {
		task.ProgressPercent = 100
	}
	if strings.TrimSpace(task.ProgressMessage) == "" {
		task.ProgressMessage = "subtitles ready"
	}
	if err := m.store.Update(ctx, task); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		logger.Error("failed to persist stage result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	logger.Info("stage completed",
		logging.String("task", task.DisplayName()),
		logging.String("output", strings.TrimSpace(task.OutputPath)),
		logging.Bool("needs_review", task.NeedsReview),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	m.recordOutcome(queue.StatusCompleted)
	m.setLastTask(task)
	m.publish(ctx, logger, notifications.EventTaskCompleted, notifications.Payload{
		"title":  task.DisplayName(),
		"output": task.OutputPath,
	})
	m.checkBatchCompletion(ctx, logger)
	return nil
}

// executeWithHeartbeat runs the stage handler while a heartbeat goroutine
// keeps the task's liveness timestamp fresh.
func (m *Manager) executeWithHeartbeat(ctx context.Context, task *queue.Task) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, task.ID)

	execErr := m.handler.Execute(ctx, task)
	hbCancel()
	hbWG.Wait()
	return execErr
}

func (m *Manager) transitionToProcessing(ctx context.Context, task *queue.Task) error {
	now := time.Now().UTC()
	task.Status = queue.StatusProcessing
	task.InitProgress("starting", "transcription starting")
	task.LastHeartbeat = &now
	if err := m.store.Update(ctx, task); err != nil {
		return fmt.Errorf("persist processing transition: %w", err)
	}
	m.setLastTask(task)
	m.noteBatchStarted()
	m.publish(ctx, m.logger, notifications.EventTaskStarted, notifications.Payload{
		"title": task.DisplayName(),
	})
	return nil
}

// markTaskCancelled records shutdown as a terminal cancelled status instead of
// leaving the task stranded in processing.
func (m *Manager) markTaskCancelled(ctx context.Context, logger *slog.Logger, task *queue.Task) {
	task.SetCancelled(queue.DaemonStopReason)

	// The run context is already cancelled; a detached context lets the
	// terminal status reach the store before shutdown finishes.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := m.store.Update(persistCtx, task); err != nil {
		logger.Error("failed to persist cancelled task", logging.Error(err))
		return
	}

	logger.Info("task cancelled by shutdown", logging.String("task", task.DisplayName()))
	m.recordOutcome(queue.StatusCancelled)
	m.setLastTask(task)
}
