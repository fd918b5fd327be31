// Package runner executes batches of jobs with bounded concurrency.
// Jobs are generic: audio extraction, chunk transcription, and any
// other subprocess-shaped work share the same contract. A failing job
// never aborts its siblings; cancellation is a distinct terminal
// outcome, not a failure.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"murmur/internal/logging"
	"murmur/internal/services"
)

// Status is the terminal outcome of one job.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Job is one unit of batch work.
type Job interface {
	ID() string
	Description() string
	// Weight scales this job's share of aggregate progress. Zero is
	// allowed; when every job reports zero, weights fall back to equal.
	Weight() float64
	Run(ctx context.Context, jc JobContext) (Result, error)
}

// Result is what a job reports about its own run. Status may be left
// empty on a nil error; the runner records the job as succeeded.
type Result struct {
	Status     Status
	OutputPath string
	Message    string
}

// JobOutcome pairs a job with its resolved result.
type JobOutcome struct {
	JobID       string
	Description string
	Result      Result
	Err         error
	Duration    time.Duration
}

// Summary aggregates a finished batch. Succeeded+Failed+Cancelled
// always equals Total.
type Summary struct {
	BatchID   string
	Total     int
	Succeeded int
	Failed    int
	Cancelled int
	Results   []JobOutcome
}

// Line is one streamed log line attributed to a job.
type Line struct {
	JobID string
	Text  string
}

// Hooks receive batch feedback as it happens. All fields are optional.
type Hooks struct {
	// Status receives a short description of the most recently
	// started job.
	Status func(string)
	// Progress receives the aggregate percent after every per-job
	// update. It never decreases within a batch.
	Progress func(float64)
	// Log receives each job log line as it arrives, never buffered.
	Log func(Line)
	// Alert fires once, on the first failing job.
	Alert func(string)
}

func (h Hooks) status(msg string) {
	if h.Status != nil {
		h.Status(msg)
	}
}

func (h Hooks) progress(percent float64) {
	if h.Progress != nil {
		h.Progress(percent)
	}
}

func (h Hooks) log(line Line) {
	if h.Log != nil {
		h.Log(line)
	}
}

// JobContext carries the per-job feedback sinks back into the runner.
type JobContext struct {
	reportProgress func(float64)
	reportLog      func(string)
}

// Progress reports this job's own completion percent (0-100).
func (jc JobContext) Progress(percent float64) {
	if jc.reportProgress != nil {
		jc.reportProgress(percent)
	}
}

// Log streams one line of job output.
func (jc JobContext) Log(text string) {
	if jc.reportLog != nil {
		jc.reportLog(text)
	}
}

// Runner executes job batches.
type Runner struct {
	concurrency int
	logger      *slog.Logger
}

// Option customizes a Runner.
type Option func(*Runner)

// WithConcurrency bounds how many jobs run at once (defaults to 1).
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logging.NewComponentLogger(logger, "runner")
		}
	}
}

// New constructs a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{concurrency: 1, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the batch and blocks until every started job resolves.
// Jobs that never start because of cancellation resolve as Cancelled.
// The summary is always complete; the returned error is the context
// error when cancellation interrupted the batch.
func (r *Runner) Run(ctx context.Context, jobs []Job, hooks Hooks) (Summary, error) {
	batchID := uuid.NewString()
	summary := Summary{BatchID: batchID, Total: len(jobs)}
	if len(jobs) == 0 {
		return summary, nil
	}
	for i, job := range jobs {
		if job == nil {
			return summary, fmt.Errorf("%w: job %d is nil", services.ErrValidation, i)
		}
	}

	workers := r.concurrency
	if workers > len(jobs) {
		workers = len(jobs)
	}
	r.logger.Info("batch started",
		logging.String("batch_id", batchID),
		logging.Int("jobs", len(jobs)),
		logging.Int("concurrency", workers))

	tracker := newProgressTracker(jobs)
	outcomes := make([]JobOutcome, len(jobs))
	var alertOnce sync.Once

	type task struct {
		index int
		job   Job
	}
	taskCh := make(chan task)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskCh {
				outcomes[t.index] = r.runJob(ctx, t.index, t.job, tracker, hooks, &alertOnce)
			}
		}()
	}
	for i, job := range jobs {
		taskCh <- task{index: i, job: job}
	}
	close(taskCh)
	wg.Wait()

	for _, outcome := range outcomes {
		switch outcome.Result.Status {
		case StatusSucceeded:
			summary.Succeeded++
		case StatusCancelled:
			summary.Cancelled++
		default:
			summary.Failed++
		}
	}
	summary.Results = outcomes

	r.logger.Info("batch finished",
		logging.String("batch_id", batchID),
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("failed", summary.Failed),
		logging.Int("cancelled", summary.Cancelled))
	return summary, ctx.Err()
}

func (r *Runner) runJob(ctx context.Context, index int, job Job, tracker *progressTracker, hooks Hooks, alertOnce *sync.Once) JobOutcome {
	outcome := JobOutcome{JobID: job.ID(), Description: job.Description()}
	if ctx.Err() != nil {
		outcome.Result = Result{Status: StatusCancelled, Message: "cancelled before start"}
		outcome.Err = ctx.Err()
		return outcome
	}

	hooks.status(job.Description())
	r.logger.Info("job started",
		logging.String("job_id", job.ID()),
		logging.String("description", job.Description()))

	jc := JobContext{
		reportProgress: func(percent float64) {
			hooks.progress(tracker.update(index, percent))
		},
		reportLog: func(text string) {
			hooks.log(Line{JobID: job.ID(), Text: text})
		},
	}

	started := time.Now()
	result, err := r.safeRun(ctx, job, jc)
	outcome.Duration = time.Since(started)

	switch {
	case err == nil:
		if result.Status == "" {
			result.Status = StatusSucceeded
		}
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		result.Status = StatusCancelled
		if result.Message == "" {
			result.Message = "cancelled"
		}
	default:
		result.Status = StatusFailed
		if result.Message == "" {
			result.Message = err.Error()
		}
	}
	outcome.Result = result
	outcome.Err = err

	switch result.Status {
	case StatusSucceeded:
		hooks.progress(tracker.complete(index))
		r.logger.Info("job succeeded",
			logging.String("job_id", job.ID()),
			logging.Duration("duration", outcome.Duration))
	case StatusCancelled:
		r.logger.Info("job cancelled", logging.String("job_id", job.ID()))
	default:
		alertOnce.Do(func() {
			if hooks.Alert != nil {
				hooks.Alert(fmt.Sprintf("%s failed: %s", job.Description(), result.Message))
			}
		})
		r.logger.Error("job failed",
			logging.String("job_id", job.ID()),
			logging.Error(err),
			logging.Duration("duration", outcome.Duration))
	}
	return outcome
}

// safeRun converts a job panic into a failed result so one bad job
// cannot take down the batch.
func (r *Runner) safeRun(ctx context.Context, job Job, jc JobContext) (result Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("job panicked",
				logging.String("job_id", job.ID()),
				logging.Any("panic", rec),
				logging.String("stack", string(debug.Stack())))
			result = Result{}
			err = fmt.Errorf("job %s panicked: %v", job.ID(), rec)
		}
	}()
	return job.Run(ctx, jc)
}
