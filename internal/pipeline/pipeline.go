package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"murmur/internal/asr"
	"murmur/internal/audio"
	"murmur/internal/cache"
	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/optimizer"
	"murmur/internal/retry"
	"murmur/internal/runner"
	"murmur/internal/services"
	"murmur/internal/subtitle"
)

// Progress milestones on the single 0-100 scale a request reports against.
// Extraction owns the first band, window transcription the middle, and
// merge, optimize, and render the remainder.
const (
	extractDoneAt    = 15.0
	transcribeDoneAt = 85.0

	defaultChunkSeconds   = 600.0
	defaultOverlapSeconds = 10.0
)

// Options control how a single request is transcribed. The zero value gets
// sensible defaults; OptionsFromConfig fills it from the daemon config.
type Options struct {
	// Language hints the recognizer; empty or "auto" means detect.
	Language string
	// AudioTrack is the absolute stream index to extract; negative picks
	// the first audio stream.
	AudioTrack int

	EnableChunking bool
	ChunkSeconds   float64
	OverlapSeconds float64
	// Parallelism bounds concurrent window transcriptions.
	Parallelism int

	EnableCache        bool
	EnableOptimization bool
	OptimizationPrompt string
}

// OptionsFromConfig derives request options from the daemon configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		Language:           cfg.Transcription.Language,
		AudioTrack:         cfg.Transcription.AudioTrack,
		EnableChunking:     cfg.Transcription.ChunkingEnabled,
		ChunkSeconds:       float64(cfg.Transcription.ChunkSeconds),
		OverlapSeconds:     float64(cfg.Transcription.OverlapSeconds),
		Parallelism:        cfg.Transcription.ChunkParallelism,
		EnableCache:        cfg.Cache.Enabled,
		EnableOptimization: cfg.Optimizer.Enabled,
		OptimizationPrompt: cfg.Optimizer.Prompt,
	}
}

func (o Options) withDefaults() Options {
	if o.ChunkSeconds <= 0 {
		o.ChunkSeconds = defaultChunkSeconds
	}
	if o.OverlapSeconds <= 0 {
		o.OverlapSeconds = defaultOverlapSeconds
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 1
	}
	return o
}

// Hooks receive live feedback while a request runs. Both fields are optional.
type Hooks struct {
	// Progress receives the aggregate percent and a short human message.
	// Percent never decreases within one request.
	Progress func(percent float64, message string)
	// Log receives job output lines attributed to their window.
	Log func(line string)
}

// Request describes one subtitle generation call.
type Request struct {
	Source string
	// Title is an optional display name used in logs and messages.
	Title string
	// ClipStart and ClipEnd bound a sub-range of the source in seconds.
	// Both nil transcribes the whole file. Clip subtitle times are
	// relative to the clip start, not the source.
	ClipStart *float64
	ClipEnd   *float64

	Provider   asr.Provider
	OutputPath string
	// WorkDir roots the per-request scratch directory; empty falls back
	// to the configured staging dir.
	WorkDir string

	Options Options
	Hooks   Hooks
}

// Result summarizes a completed request.
type Result struct {
	OutputPath   string
	Provider     string
	Language     string
	SegmentCount int
	Windows      int
	// MediaSeconds is the probed duration of the whole source.
	MediaSeconds float64
	// RangeSeconds is the transcribed span: the clip length, or the whole
	// media duration.
	RangeSeconds float64
	CacheHit     bool
	Optimized    bool
	// Issues lists subtitle validation findings. They are logged, never
	// fatal.
	Issues  []string
	Elapsed time.Duration
}

// Pipeline generates subtitles. It is safe for concurrent use; per-request
// state lives in the request.
type Pipeline struct {
	cfg    *config.Config
	cache  *cache.Store
	opt    *optimizer.Client
	policy retry.Policy
	logger *slog.Logger
}

// Option adjusts pipeline construction.
type Option func(*Pipeline)

// WithCache installs the transcript cache. Without one, every request
// transcribes from scratch.
func WithCache(store *cache.Store) Option {
	return func(p *Pipeline) { p.cache = store }
}

// WithOptimizer installs the text optimizer client.
func WithOptimizer(client *optimizer.Client) Option {
	return func(p *Pipeline) { p.opt = client }
}

// WithRetryPolicy overrides the per-window retry policy derived from config.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(p *Pipeline) { p.policy = policy }
}

// WithLogger routes pipeline logs.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logging.NewComponentLogger(logger, "pipeline")
		}
	}
}

// New builds a pipeline over the given configuration.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		policy: policyFromConfig(cfg),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func policyFromConfig(cfg *config.Config) retry.Policy {
	policy := retry.DefaultPolicy()
	if cfg == nil {
		return policy
	}
	if cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.BaseDelayMS > 0 {
		policy.BaseDelay = time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond
	}
	if cfg.Retry.MaxDelayMS > 0 {
		policy.MaxDelay = time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond
	}
	return policy
}

// Generate runs the full subtitle chain for one request.
func (p *Pipeline) Generate(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	if err := p.validateRequest(&req); err != nil {
		return nil, err
	}
	opts := req.Options.withDefaults()
	prog := newProgressReporter(req.Hooks)
	lg := logging.WithContext(ctx, p.logger)

	prog.report(0, "probing source")
	info, err := audio.Probe(ctx, p.cfg.FFprobeBinary(), req.Source)
	if err != nil {
		return nil, err
	}
	track, err := audio.SelectAudioTrack(info, opts.AudioTrack)
	if err != nil {
		return nil, err
	}
	media := info.DurationSeconds()
	rng, err := resolveRange(media, req.ClipStart, req.ClipEnd)
	if err != nil {
		return nil, err
	}
	if rng.clamped {
		lg.Warn("clip end beyond media duration; clamping",
			logging.Float64("clip_end", *req.ClipEnd),
			logging.Float64("media_seconds", media),
		)
	}
	lg.Info("source probed",
		logging.String("source", req.Source),
		logging.Float64("media_seconds", media),
		logging.Int("audio_streams", info.AudioStreamCount()),
		logging.Int("track", track),
		logging.Bool("clip", rng.clip),
	)

	result := &Result{
		OutputPath:   req.OutputPath,
		Provider:     req.Provider.Name(),
		MediaSeconds: media,
		RangeSeconds: rng.seconds,
	}

	transcript, hit, err := p.obtainTranscript(ctx, req, opts, track, rng, prog, result)
	if err != nil {
		return nil, err
	}
	result.CacheHit = hit

	if opts.EnableOptimization && p.opt != nil && len(transcript.Segments) > 0 {
		prog.report(88, "optimizing subtitle text")
		optimized, optErr := p.opt.Optimize(ctx, transcript, opts.OptimizationPrompt)
		switch {
		case optErr == nil:
			transcript = optimized
			result.Optimized = true
		case errors.Is(optErr, context.Canceled) || errors.Is(optErr, context.DeadlineExceeded):
			return nil, optErr
		default:
			// Optimization failure never fails the task; the raw
			// transcript still renders.
			lg.Warn("subtitle optimization failed; using raw transcript",
				logging.Error(optErr),
				logging.Int("segments", len(transcript.Segments)),
			)
		}
	}

	if len(transcript.Segments) == 0 {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "render",
			fmt.Sprintf("No speech was recognized in %s; check the audio track selection", filepath.Base(req.Source)), nil)
	}

	prog.report(92, "rendering subtitles")
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "render",
			fmt.Sprintf("Cannot create output directory for %s", req.OutputPath), err)
	}
	if err := subtitle.WriteSRT(req.OutputPath, transcript); err != nil {
		return nil, err
	}
	result.Issues = subtitle.ValidateSRT(req.OutputPath, rng.seconds)
	if len(result.Issues) > 0 {
		lg.Warn("subtitle validation issues",
			logging.String("output", req.OutputPath),
			logging.String("issues", strings.Join(result.Issues, "; ")),
		)
	}

	result.Language = transcript.Language
	result.SegmentCount = len(transcript.Segments)
	result.Elapsed = time.Since(started)
	prog.report(100, "subtitles written")
	lg.Info("subtitles written",
		logging.String("output", req.OutputPath),
		logging.Int("segments", result.SegmentCount),
		logging.String("language", result.Language),
		logging.Bool("cache_hit", result.CacheHit),
		logging.Bool("optimized", result.Optimized),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

func (p *Pipeline) validateRequest(req *Request) error {
	if p == nil || p.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "pipeline", "generate", "Pipeline is not configured", nil)
	}
	if strings.TrimSpace(req.Source) == "" {
		return services.Wrap(services.ErrValidation, "pipeline", "generate", "Source path is required", nil)
	}
	if _, err := os.Stat(req.Source); err != nil {
		return services.Wrap(services.ErrValidation, "pipeline", "generate",
			fmt.Sprintf("Source file %s is missing or unreadable", req.Source), err)
	}
	if req.Provider == nil {
		return services.Wrap(services.ErrConfiguration, "pipeline", "generate", "No transcription provider supplied", nil)
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		return services.Wrap(services.ErrValidation, "pipeline", "generate", "Output path is required", nil)
	}
	if strings.TrimSpace(req.WorkDir) == "" {
		req.WorkDir = p.cfg.Paths.StagingDir
	}
	return nil
}

// mediaRange is the span of the source a request covers.
type mediaRange struct {
	clip bool
	// start in seconds into the source; negative means the beginning.
	start   float64
	seconds float64
	clamped bool
}

func resolveRange(mediaSeconds float64, clipStart, clipEnd *float64) (mediaRange, error) {
	if mediaSeconds <= 0 {
		return mediaRange{}, services.Wrap(services.ErrValidation, "pipeline", "probe",
			"Source reports no duration; cannot plan transcription", nil)
	}
	if clipStart == nil && clipEnd == nil {
		return mediaRange{start: -1, seconds: mediaSeconds}, nil
	}
	if clipStart == nil || clipEnd == nil {
		return mediaRange{}, services.Wrap(services.ErrValidation, "pipeline", "clip",
			"Clip requests need both a start and an end time", nil)
	}
	start, end := *clipStart, *clipEnd
	if start < 0 || end <= start {
		return mediaRange{}, services.Wrap(services.ErrValidation, "pipeline", "clip",
			fmt.Sprintf("Clip range %.3f-%.3f is not a positive span", start, end), nil)
	}
	if start >= mediaSeconds {
		return mediaRange{}, services.Wrap(services.ErrValidation, "pipeline", "clip",
			fmt.Sprintf("Clip starts at %.3fs but the media ends at %.3fs", start, mediaSeconds), nil)
	}
	rng := mediaRange{clip: true, start: start, seconds: end - start}
	if end > mediaSeconds {
		rng.seconds = mediaSeconds - start
		rng.clamped = true
	}
	return rng, nil
}

// obtainTranscript returns the merged, pre-optimization transcript for the
// request, from cache when possible.
func (p *Pipeline) obtainTranscript(ctx context.Context, req Request, opts Options, track int, rng mediaRange, prog *progressReporter, result *Result) (*subtitle.Transcript, bool, error) {
	lg := logging.WithContext(ctx, p.logger)
	if !opts.EnableCache || p.cache == nil {
		transcript, err := p.transcribeRange(ctx, req, opts, track, rng, prog, result)
		return transcript, false, err
	}

	key, err := transcriptCacheKey(req, opts, rng)
	if err != nil {
		lg.Warn("cache key unavailable; transcribing uncached", logging.Error(err))
		transcript, err := p.transcribeRange(ctx, req, opts, track, rng, prog, result)
		return transcript, false, err
	}

	data, _, hit, err := p.cache.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, cache.Meta, error) {
		transcript, err := p.transcribeRange(ctx, req, opts, track, rng, prog, result)
		if err != nil {
			return nil, cache.Meta{}, err
		}
		payload, err := json.Marshal(transcript)
		if err != nil {
			return nil, cache.Meta{}, fmt.Errorf("encode transcript: %w", err)
		}
		return payload, cache.Meta{
			Provider: req.Provider.Kind().String(),
			Model:    req.Provider.Name(),
			Language: transcript.Language,
			Segments: len(transcript.Segments),
		}, nil
	})
	if err != nil {
		return nil, false, err
	}

	var transcript subtitle.Transcript
	if err := json.Unmarshal(data, &transcript); err != nil {
		if !hit {
			return nil, false, services.Wrap(services.ErrParse, "pipeline", "cache",
				"Computed transcript failed to round-trip", err)
		}
		// The sidecar passed its size check but the payload no longer
		// decodes; drop it and recognize again.
		lg.Warn("dropping undecodable cached transcript",
			logging.Error(fmt.Errorf("%w: %w", services.ErrCorrupt, err)),
		)
		if removeErr := p.cache.Remove(key); removeErr != nil {
			lg.Warn("failed to remove corrupt cache entry", logging.Error(removeErr))
		}
		fresh, err := p.transcribeRange(ctx, req, opts, track, rng, prog, result)
		return fresh, false, err
	}
	if hit {
		prog.report(transcribeDoneAt, "transcript loaded from cache")
		lg.Info("transcript cache hit",
			logging.String("source", req.Source),
			logging.Int("segments", len(transcript.Segments)),
		)
	}
	return &transcript, hit, nil
}

// transcriptCacheKey identifies a merged transcript: any change to the
// source file, provider, model, language hint, clip range, or window
// geometry produces a different key.
func transcriptCacheKey(req Request, opts Options, rng mediaRange) (string, error) {
	fingerprint, err := cache.Fingerprint(req.Source)
	if err != nil {
		return "", err
	}
	language := strings.ToLower(strings.TrimSpace(opts.Language))
	if language == "auto" {
		language = ""
	}
	clipPart := "full"
	if rng.clip {
		clipPart = fmt.Sprintf("clip:%.3f+%.3f", rng.start, rng.seconds)
	}
	chunkPart := "whole"
	if opts.EnableChunking {
		chunkPart = fmt.Sprintf("windows:%gx%g", opts.ChunkSeconds, opts.OverlapSeconds)
	}
	return cache.Key("transcript", fingerprint, req.Provider.Name(), "lang:"+language, clipPart, chunkPart), nil
}

// transcribeRange extracts the requested audio range and recognizes it
// window by window.
func (p *Pipeline) transcribeRange(ctx context.Context, req Request, opts Options, track int, rng mediaRange, prog *progressReporter, result *Result) (*subtitle.Transcript, error) {
	lg := logging.WithContext(ctx, p.logger)
	if err := os.MkdirAll(req.WorkDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "scratch dir",
			fmt.Sprintf("Cannot create staging directory %s", req.WorkDir), err)
	}
	workDir, err := os.MkdirTemp(req.WorkDir, "murmur-*")
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "scratch dir",
			fmt.Sprintf("Cannot create scratch directory under %s", req.WorkDir), err)
	}
	defer os.RemoveAll(workDir)

	prog.report(1, "extracting audio")
	audioPath := filepath.Join(workDir, "audio.wav")
	extractDuration := 0.0
	if rng.clip {
		extractDuration = rng.seconds
	}
	err = audio.Extract(ctx, audio.ExtractSpec{
		FFmpeg:          p.cfg.FFmpegBinary(),
		Source:          req.Source,
		TrackIndex:      track,
		Start:           rng.start,
		Duration:        extractDuration,
		Dest:            audioPath,
		ExpectedSeconds: rng.seconds,
		OnProgress: func(percent float64) {
			prog.report(percent/100*extractDoneAt, "extracting audio")
		},
	})
	if err != nil {
		return nil, err
	}

	var windows []audio.Window
	if opts.EnableChunking {
		windows, err = audio.PlanWindows(rng.seconds, opts.ChunkSeconds, opts.OverlapSeconds)
		if err != nil {
			return nil, err
		}
	} else {
		windows = []audio.Window{{Index: 0, Start: 0, End: rng.seconds}}
	}
	result.Windows = len(windows)
	lg.Info("audio extracted",
		logging.Float64("seconds", rng.seconds),
		logging.Int("windows", len(windows)),
		logging.Int("parallelism", opts.Parallelism),
	)

	jobs := make([]runner.Job, len(windows))
	chunks := make([]*windowJob, len(windows))
	for i, window := range windows {
		job := &windowJob{
			ffmpeg:     p.cfg.FFmpegBinary(),
			audioPath:  audioPath,
			workDir:    workDir,
			window:     window,
			total:      len(windows),
			provider:   req.Provider,
			language:   opts.Language,
			policy:     p.policy,
			reuseWhole: len(windows) == 1,
		}
		chunks[i] = job
		jobs[i] = job
	}

	transcribeMessage := "transcribing audio"
	if len(windows) > 1 {
		transcribeMessage = fmt.Sprintf("transcribing %d windows", len(windows))
	}
	prog.report(extractDoneAt, transcribeMessage)

	batch := runner.New(runner.WithConcurrency(opts.Parallelism), runner.WithLogger(p.logger))
	summary, runErr := batch.Run(ctx, jobs, runner.Hooks{
		Progress: func(percent float64) {
			prog.report(extractDoneAt+percent/100*(transcribeDoneAt-extractDoneAt), transcribeMessage)
		},
		Status: func(description string) {
			prog.status(description)
		},
		Log: func(line runner.Line) {
			if req.Hooks.Log != nil {
				req.Hooks.Log(fmt.Sprintf("%s: %s", line.JobID, line.Text))
			}
		},
	})
	if runErr != nil {
		return nil, runErr
	}
	if summary.Succeeded != summary.Total {
		return nil, firstWindowFailure(summary)
	}

	chunkTranscripts := make([]subtitle.ChunkTranscript, len(chunks))
	language := ""
	for i, job := range chunks {
		chunkTranscripts[i] = subtitle.ChunkTranscript{
			Index:       job.window.Index,
			WindowStart: job.window.Start,
			WindowEnd:   job.window.End,
			Segments:    job.transcript.Segments,
		}
		if language == "" && job.transcript.Language != "" {
			language = job.transcript.Language
		}
	}

	prog.report(transcribeDoneAt, "merging windows")
	merged, err := subtitle.Merge(chunkTranscripts, opts.OverlapSeconds)
	if err != nil {
		return nil, err
	}
	merged.Language = language
	return merged, nil
}

// firstWindowFailure surfaces the error that sank the batch. Any failed
// window fails the whole request; no partial subtitle is ever written.
func firstWindowFailure(summary runner.Summary) error {
	for _, outcome := range summary.Results {
		if outcome.Result.Status == runner.StatusSucceeded {
			continue
		}
		if outcome.Err != nil {
			return fmt.Errorf("%s: %w", outcome.Description, outcome.Err)
		}
		message := outcome.Result.Message
		if message == "" {
			message = string(outcome.Result.Status)
		}
		return fmt.Errorf("%w: %s: %s", services.ErrTransient, outcome.Description, message)
	}
	return fmt.Errorf("%w: window batch finished incomplete", services.ErrTransient)
}
