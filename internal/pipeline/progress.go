package pipeline

import "sync"

// progressReporter funnels every stage's updates into one monotone 0-100
// sequence. Runner hooks fire from worker goroutines, so updates are
// serialized here.
type progressReporter struct {
	mu      sync.Mutex
	hooks   Hooks
	percent float64
	message string
}

func newProgressReporter(hooks Hooks) *progressReporter {
	return &progressReporter{hooks: hooks}
}

// report emits percent clamped to never decrease. An update below the high
// water mark keeps the old percent but still refreshes the message.
func (r *progressReporter) report(percent float64, message string) {
	r.mu.Lock()
	if percent < r.percent {
		percent = r.percent
	}
	if percent > 100 {
		percent = 100
	}
	r.percent = percent
	if message != "" {
		r.message = message
	}
	message = r.message
	emit := r.hooks.Progress
	r.mu.Unlock()

	if emit != nil {
		emit(percent, message)
	}
}

// status re-emits the current percent with a new message.
func (r *progressReporter) status(message string) {
	r.mu.Lock()
	percent := r.percent
	r.message = message
	emit := r.hooks.Progress
	r.mu.Unlock()

	if emit != nil {
		emit(percent, message)
	}
}
