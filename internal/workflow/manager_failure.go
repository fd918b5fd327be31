package workflow

import (
	"context"
	"errors"
	"strings"

	"murmur/internal/logging"
	"murmur/internal/notifications"
	"murmur/internal/queue"
	"murmur/internal/services"
)

func (m *Manager) handleStageFailure(ctx context.Context, task *queue.Task, stageErr error) {
	logger := m.taskLogger(ctx, m.logger)

	message := failureMessage(stageErr)
	task.SetFailed(message)
	if services.NeedsReview(stageErr) {
		task.NeedsReview = true
		if strings.TrimSpace(task.ReviewReason) == "" {
			task.ReviewReason = message
		}
	}

	logger.Error("stage failed",
		logging.String("task", task.DisplayName()),
		logging.String("error_message", message),
		logging.Bool("needs_review", task.NeedsReview),
		logging.Alert("stage_failure"),
		logging.Error(stageErr),
	)

	if err := m.store.Update(ctx, task); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not update stage failure")
		} else {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
	}

	m.recordOutcome(queue.StatusFailed)
	m.setLastTask(task)
	m.publish(ctx, logger, notifications.EventTaskFailed, notifications.Payload{
		"title": task.DisplayName(),
		"error": stageErr,
	})
	m.checkBatchCompletion(ctx, logger)
}

func failureMessage(stageErr error) string {
	if stageErr == nil {
		return "transcription failed without error detail"
	}
	message := strings.TrimSpace(stageErr.Error())
	if message == "" {
		return "transcription failed"
	}
	return message
}
