package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"murmur/internal/logging"
	"murmur/internal/notifications"
	"murmur/internal/queue"
)

func (m *Manager) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, notification skipped", logging.String("event", string(event)))
		} else {
			logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
		}
	}
}

// noteBatchStarted opens a batch window on the first task picked up after the
// queue was idle. Counters reset so the completion push reports this batch
// only, not lifetime stats.
func (m *Manager) noteBatchStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.batchActive {
		return
	}
	m.batchActive = true
	m.batchStart = time.Now()
	m.batchCompleted, m.batchFailed, m.batchCancelled = 0, 0, 0
}

func (m *Manager) recordOutcome(status queue.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.batchActive {
		return
	}
	switch status {
	case queue.StatusCompleted:
		m.batchCompleted++
	case queue.StatusFailed:
		m.batchFailed++
	case queue.StatusCancelled:
		m.batchCancelled++
	}
}

func (m *Manager) checkBatchCompletion(ctx context.Context, logger *slog.Logger) {
	stats, err := m.store.Stats(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not check batch completion")
		} else {
			logger.Warn("queue stats unavailable for batch completion; notification skipped", logging.Error(err))
		}
		return
	}
	if stats[queue.StatusPending]+stats[queue.StatusProcessing] > 0 {
		return
	}

	m.mu.Lock()
	if !m.batchActive {
		m.mu.Unlock()
		return
	}
	completed, failed, cancelled := m.batchCompleted, m.batchFailed, m.batchCancelled
	start := m.batchStart
	m.batchActive = false
	m.batchStart = time.Time{}
	m.batchCompleted, m.batchFailed, m.batchCancelled = 0, 0, 0
	m.mu.Unlock()

	duration := time.Duration(0)
	if !start.IsZero() {
		duration = time.Since(start)
	}
	total := completed + failed + cancelled
	logger.Info("batch complete",
		logging.Int("completed", completed),
		logging.Int("failed", failed),
		logging.Int("cancelled", cancelled),
		logging.Int("total", total),
		logging.Duration("batch_duration", duration),
	)
	m.publish(ctx, logger, notifications.EventBatchCompleted, notifications.Payload{
		"completed": completed,
		"failed":    failed,
		"cancelled": cancelled,
		"total":     total,
		"duration":  duration,
	})
}
