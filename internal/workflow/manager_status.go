package workflow

import (
	"context"

	"murmur/internal/logging"
	"murmur/internal/queue"
	"murmur/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	LastError   string
	LastTask    *queue.Task
	QueueStats  map[queue.Status]int
	StageHealth map[string]stage.Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastTask := m.lastTask
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.loopLogger().Warn("failed to read queue stats", logging.Error(err))
	}

	health := make(map[string]stage.Health, 1)
	if m.handler != nil {
		report := m.handler.HealthCheck(ctx)
		name := report.Name
		if name == "" {
			name = stageName
		}
		health[name] = report
	}

	summary := StatusSummary{Running: running, QueueStats: stats, StageHealth: health}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastTask != nil {
		cp := *lastTask
		summary.LastTask = &cp
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastTask(task *queue.Task) {
	m.mu.Lock()
	if task != nil {
		cp := *task
		m.lastTask = &cp
	} else {
		m.lastTask = nil
	}
	m.mu.Unlock()
}
