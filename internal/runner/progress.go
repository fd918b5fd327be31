package runner

import "sync"

// progressTracker folds per-job percents into one weighted aggregate.
// Per-job percents are clamped to [0, 100] and never move backwards,
// so with fixed weights the aggregate is monotone too.
type progressTracker struct {
	mu          sync.Mutex
	weights     []float64
	percents    []float64
	totalWeight float64
}

func newProgressTracker(jobs []Job) *progressTracker {
	tracker := &progressTracker{
		weights:  make([]float64, len(jobs)),
		percents: make([]float64, len(jobs)),
	}
	for i, job := range jobs {
		if w := job.Weight(); w > 0 {
			tracker.weights[i] = w
		}
	}
	for _, w := range tracker.weights {
		tracker.totalWeight += w
	}
	if tracker.totalWeight == 0 {
		for i := range tracker.weights {
			tracker.weights[i] = 1
		}
		tracker.totalWeight = float64(len(tracker.weights))
	}
	return tracker
}

// update records a job's own percent and returns the new aggregate.
func (t *progressTracker) update(index int, percent float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent > t.percents[index] {
		t.percents[index] = percent
	}
	return t.aggregateLocked()
}

// complete pins a job at 100 percent.
func (t *progressTracker) complete(index int) float64 {
	return t.update(index, 100)
}

func (t *progressTracker) aggregateLocked() float64 {
	if t.totalWeight == 0 {
		return 0
	}
	var sum float64
	for i, percent := range t.percents {
		sum += percent * t.weights[i]
	}
	return sum / t.totalWeight
}
