package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"murmur/internal/services"
)

type stubJob struct {
	id     string
	weight float64
	run    func(ctx context.Context, jc JobContext) (Result, error)
}

func (j *stubJob) ID() string          { return j.id }
func (j *stubJob) Description() string { return "job " + j.id }
func (j *stubJob) Weight() float64     { return j.weight }

func (j *stubJob) Run(ctx context.Context, jc JobContext) (Result, error) {
	if j.run == nil {
		return Result{Status: StatusSucceeded}, nil
	}
	return j.run(ctx, jc)
}

type hookRecorder struct {
	mu       sync.Mutex
	statuses []string
	progress []float64
	lines    []Line
	alerts   []string
}

func (h *hookRecorder) hooks() Hooks {
	return Hooks{
		Status: func(s string) {
			h.mu.Lock()
			h.statuses = append(h.statuses, s)
			h.mu.Unlock()
		},
		Progress: func(p float64) {
			h.mu.Lock()
			h.progress = append(h.progress, p)
			h.mu.Unlock()
		},
		Log: func(line Line) {
			h.mu.Lock()
			h.lines = append(h.lines, line)
			h.mu.Unlock()
		},
		Alert: func(msg string) {
			h.mu.Lock()
			h.alerts = append(h.alerts, msg)
			h.mu.Unlock()
		},
	}
}

func TestRunAllSucceed(t *testing.T) {
	jobs := []Job{
		&stubJob{id: "a", run: func(context.Context, JobContext) (Result, error) {
			return Result{Status: StatusSucceeded, OutputPath: "/out/a.srt"}, nil
		}},
		&stubJob{id: "b"},
		&stubJob{id: "c"},
	}
	summary, err := New(WithConcurrency(2)).Run(context.Background(), jobs, Hooks{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Total != 3 || summary.Succeeded != 3 || summary.Failed != 0 || summary.Cancelled != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.BatchID == "" {
		t.Error("missing batch id")
	}
	if summary.Results[0].JobID != "a" || summary.Results[0].Result.OutputPath != "/out/a.srt" {
		t.Errorf("results not in input order: %+v", summary.Results[0])
	}
}

func TestRunFailureIsolation(t *testing.T) {
	boom := errors.New("chunk upload rejected")
	jobs := []Job{
		&stubJob{id: "a"},
		&stubJob{id: "b", run: func(context.Context, JobContext) (Result, error) {
			return Result{}, boom
		}},
		&stubJob{id: "c"},
	}
	rec := &hookRecorder{}
	summary, err := New().Run(context.Background(), jobs, rec.hooks())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Succeeded != 2 || summary.Failed != 1 || summary.Cancelled != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if !errors.Is(summary.Results[1].Err, boom) {
		t.Errorf("outcome err = %v", summary.Results[1].Err)
	}
	if len(rec.alerts) != 1 || !strings.Contains(rec.alerts[0], "job b") {
		t.Errorf("alerts = %v, want one for job b", rec.alerts)
	}
}

func TestRunAlertFiresOnce(t *testing.T) {
	fail := func(context.Context, JobContext) (Result, error) {
		return Result{}, errors.New("nope")
	}
	jobs := []Job{
		&stubJob{id: "a", run: fail},
		&stubJob{id: "b", run: fail},
		&stubJob{id: "c", run: fail},
	}
	rec := &hookRecorder{}
	summary, err := New().Run(context.Background(), jobs, rec.hooks())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 3 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(rec.alerts) != 1 {
		t.Errorf("alerts = %d, want exactly 1", len(rec.alerts))
	}
}

func TestRunPanicBecomesFailure(t *testing.T) {
	jobs := []Job{
		&stubJob{id: "a"},
		&stubJob{id: "b", run: func(context.Context, JobContext) (Result, error) {
			panic("index out of range")
		}},
	}
	summary, err := New().Run(context.Background(), jobs, Hooks{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Succeeded != 1 || summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	outcome := summary.Results[1]
	if outcome.Result.Status != StatusFailed || !strings.Contains(outcome.Result.Message, "panicked") {
		t.Errorf("panic outcome = %+v", outcome)
	}
}

func TestRunSelfReportedFailure(t *testing.T) {
	jobs := []Job{
		&stubJob{id: "a", run: func(context.Context, JobContext) (Result, error) {
			return Result{Status: StatusFailed, Message: "validation found overlapping cues"}, nil
		}},
	}
	rec := &hookRecorder{}
	summary, err := New().Run(context.Background(), jobs, rec.hooks())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(rec.alerts) != 1 {
		t.Errorf("self-reported failures must alert too: %v", rec.alerts)
	}
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	jobs := []Job{
		&stubJob{id: "a", run: func(ctx context.Context, _ JobContext) (Result, error) {
			close(started)
			<-ctx.Done()
			return Result{}, ctx.Err()
		}},
		&stubJob{id: "b"},
		&stubJob{id: "c"},
	}
	go func() {
		<-started
		cancel()
	}()

	summary, err := New().Run(ctx, jobs, Hooks{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}
	if summary.Cancelled != 3 || summary.Succeeded != 0 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if got := summary.Succeeded + summary.Failed + summary.Cancelled; got != summary.Total {
		t.Errorf("outcome counts = %d, total = %d", got, summary.Total)
	}
	if summary.Results[1].Result.Message != "cancelled before start" {
		t.Errorf("pending job outcome = %+v", summary.Results[1])
	}
}

func TestRunWeightedProgress(t *testing.T) {
	jobs := []Job{
		&stubJob{id: "a", weight: 3, run: func(_ context.Context, jc JobContext) (Result, error) {
			jc.Progress(50)
			return Result{}, nil
		}},
		&stubJob{id: "b", weight: 1, run: func(_ context.Context, jc JobContext) (Result, error) {
			jc.Progress(60)
			return Result{}, nil
		}},
	}
	rec := &hookRecorder{}
	if _, err := New().Run(context.Background(), jobs, rec.hooks()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []float64{37.5, 75, 90, 100}
	if len(rec.progress) != len(want) {
		t.Fatalf("progress = %v, want %v", rec.progress, want)
	}
	for i, p := range want {
		if rec.progress[i] != p {
			t.Fatalf("progress[%d] = %v, want %v (full: %v)", i, rec.progress[i], p, rec.progress)
		}
	}
}

func TestRunEqualWeightFallback(t *testing.T) {
	report := func(_ context.Context, jc JobContext) (Result, error) {
		jc.Progress(100)
		return Result{}, nil
	}
	jobs := []Job{
		&stubJob{id: "a", run: report},
		&stubJob{id: "b", run: report},
	}
	rec := &hookRecorder{}
	if _, err := New().Run(context.Background(), jobs, rec.hooks()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.progress[0] != 50 {
		t.Errorf("first aggregate = %v, want 50 (equal weights)", rec.progress[0])
	}
	if final := rec.progress[len(rec.progress)-1]; final != 100 {
		t.Errorf("final aggregate = %v, want 100", final)
	}
}

func TestRunProgressNeverDecreases(t *testing.T) {
	jobs := []Job{
		&stubJob{id: "a", run: func(_ context.Context, jc JobContext) (Result, error) {
			jc.Progress(80)
			jc.Progress(30)
			jc.Progress(90)
			return Result{}, nil
		}},
	}
	rec := &hookRecorder{}
	if _, err := New().Run(context.Background(), jobs, rec.hooks()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := 1; i < len(rec.progress); i++ {
		if rec.progress[i] < rec.progress[i-1] {
			t.Fatalf("progress went backwards: %v", rec.progress)
		}
	}
	if rec.progress[1] != 80 {
		t.Errorf("stale report must not lower the percent: %v", rec.progress)
	}
}

func TestRunStreamsLogLines(t *testing.T) {
	jobs := []Job{
		&stubJob{id: "a", run: func(_ context.Context, jc JobContext) (Result, error) {
			jc.Log("opening input")
			jc.Log("size= 1024kB time=00:00:10.00")
			return Result{}, nil
		}},
	}
	rec := &hookRecorder{}
	if _, err := New().Run(context.Background(), jobs, rec.hooks()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.lines) != 2 {
		t.Fatalf("lines = %v", rec.lines)
	}
	if rec.lines[0].JobID != "a" || rec.lines[1].Text != "size= 1024kB time=00:00:10.00" {
		t.Errorf("lines = %v", rec.lines)
	}
}

func TestRunConcurrencyBound(t *testing.T) {
	var active, peak atomic.Int32
	count := func(_ context.Context, _ JobContext) (Result, error) {
		now := active.Add(1)
		defer active.Add(-1)
		for {
			old := peak.Load()
			if now <= old || peak.CompareAndSwap(old, now) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return Result{}, nil
	}
	jobs := []Job{
		&stubJob{id: "a", run: count},
		&stubJob{id: "b", run: count},
		&stubJob{id: "c", run: count},
		&stubJob{id: "d", run: count},
	}
	if _, err := New(WithConcurrency(2)).Run(context.Background(), jobs, Hooks{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestRunEmptyBatch(t *testing.T) {
	summary, err := New().Run(context.Background(), nil, Hooks{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Total != 0 || len(summary.Results) != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRunNilJob(t *testing.T) {
	_, err := New().Run(context.Background(), []Job{nil}, Hooks{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
