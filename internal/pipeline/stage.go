package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"murmur/internal/asr"
	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/queue"
	"murmur/internal/services"
	"murmur/internal/stage"
	"murmur/internal/textutil"
)

const progressStageTranscribing = "transcribing"

// StageHandler runs the pipeline for queue tasks on behalf of the workflow
// manager.
type StageHandler struct {
	cfg      *config.Config
	store    *queue.Store
	registry *asr.Registry
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewStageHandler wires the pipeline into the workflow stage contract.
func NewStageHandler(cfg *config.Config, store *queue.Store, registry *asr.Registry, pipeline *Pipeline, logger *slog.Logger) *StageHandler {
	return &StageHandler{
		cfg:      cfg,
		store:    store,
		registry: registry,
		pipeline: pipeline,
		logger:   logging.NewComponentLogger(logger, "transcription-stage"),
	}
}

// SetLogger lets the workflow manager route stage logs into the task-scoped
// logger.
func (h *StageHandler) SetLogger(logger *slog.Logger) {
	if h == nil || logger == nil {
		return
	}
	h.logger = logging.NewComponentLogger(logger, "transcription-stage")
}

// Prepare validates the task before it is marked processing: the source must
// exist, the provider must build, and clip bounds must make sense. Failures
// here flag the task for review rather than burning provider calls.
func (h *StageHandler) Prepare(ctx context.Context, task *queue.Task) error {
	if h == nil || h.cfg == nil || h.pipeline == nil || h.store == nil {
		return services.Wrap(services.ErrConfiguration, "transcription", "prepare", "Transcription stage is not configured", nil)
	}
	if task == nil {
		return services.Wrap(services.ErrValidation, "transcription", "prepare", "Queue task is nil", nil)
	}
	if _, err := os.Stat(task.SourcePath); err != nil {
		return services.Wrap(services.ErrValidation, "transcription", "prepare",
			fmt.Sprintf("Source file %s is missing or unreadable", task.SourcePath), err)
	}
	kind, err := asr.ParseKind(task.Provider)
	if err != nil {
		return err
	}
	if _, err := h.registry.Get(kind); err != nil {
		return err
	}
	if _, _, _, err := stage.ClipWindow(task); err != nil {
		return err
	}

	task.ProgressStage = progressStageTranscribing
	task.ProgressPercent = 0
	task.ProgressMessage = "preparing transcription"
	if err := h.store.UpdateProgress(ctx, task); err != nil {
		return services.Wrap(services.ErrTransient, "transcription", "prepare", "Failed to persist progress", err)
	}
	return nil
}

// Execute generates subtitles for the task, mapping pipeline hooks onto
// queue progress updates and the log stream.
func (h *StageHandler) Execute(ctx context.Context, task *queue.Task) error {
	stageStart := time.Now()
	if h == nil || h.cfg == nil || h.pipeline == nil || h.store == nil {
		return services.Wrap(services.ErrConfiguration, "transcription", "execute", "Transcription stage is not configured", nil)
	}
	if task == nil {
		return services.Wrap(services.ErrValidation, "transcription", "execute", "Queue task is nil", nil)
	}
	lg := logging.WithContext(ctx, h.logger)

	kind, err := asr.ParseKind(task.Provider)
	if err != nil {
		return err
	}
	provider, err := h.registry.Get(kind)
	if err != nil {
		return err
	}

	var clipStart, clipEnd *float64
	if start, end, ok, err := stage.ClipWindow(task); err != nil {
		return err
	} else if ok {
		clipStart, clipEnd = &start, &end
	}

	outputPath := h.outputPath(task)
	sampler := logging.NewProgressSampler(0)
	hooks := Hooks{
		Progress: func(percent float64, message string) {
			task.ProgressStage = progressStageTranscribing
			task.ProgressPercent = percent
			task.ProgressMessage = message
			if !sampler.ShouldLog(percent, progressStageTranscribing, message) && percent < 100 {
				return
			}
			if err := h.store.UpdateProgress(ctx, task); err != nil {
				lg.Warn("failed to persist progress", logging.Error(err))
			}
			lg.Info("transcription progress",
				logging.Float64("percent", percent),
				logging.String("message", message),
			)
		},
		Log: func(line string) {
			lg.Info(line)
		},
	}

	result, err := h.pipeline.Generate(ctx, Request{
		Source:     task.SourcePath,
		Title:      task.Title,
		ClipStart:  clipStart,
		ClipEnd:    clipEnd,
		Provider:   provider,
		OutputPath: outputPath,
		WorkDir:    h.cfg.Paths.StagingDir,
		Options:    OptionsFromConfig(h.cfg),
		Hooks:      hooks,
	})
	if err != nil {
		return err
	}

	task.OutputPath = result.OutputPath
	task.ProgressPercent = 100
	task.ProgressMessage = fmt.Sprintf("%d subtitles written", result.SegmentCount)
	task.ErrorMessage = ""
	if len(result.Issues) > 0 {
		task.NeedsReview = true
		if task.ReviewReason == "" {
			task.ReviewReason = "subtitle validation: " + strings.Join(result.Issues, "; ")
		}
		lg.Warn("subtitles need review",
			logging.Int64(logging.FieldTaskID, task.ID),
			logging.String("issues", strings.Join(result.Issues, "; ")),
			logging.Alert("review"),
		)
	}
	if err := h.store.UpdateProgress(ctx, task); err != nil {
		return services.Wrap(services.ErrTransient, "transcription", "execute", "Failed to persist progress", err)
	}

	lg.Info("transcription stage complete",
		logging.Int64(logging.FieldTaskID, task.ID),
		logging.String("output", result.OutputPath),
		logging.Int("segments", result.SegmentCount),
		logging.Int("windows", result.Windows),
		logging.Bool("cache_hit", result.CacheHit),
		logging.Bool("optimized", result.Optimized),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	return nil
}

// HealthCheck verifies the tools and the configured provider are usable.
func (h *StageHandler) HealthCheck(ctx context.Context) stage.Health {
	const name = "transcription"
	if h == nil || h.cfg == nil || h.pipeline == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	for _, binary := range []string{h.cfg.FFmpegBinary(), h.cfg.FFprobeBinary()} {
		if _, err := exec.LookPath(binary); err != nil {
			return stage.Unhealthy(name, fmt.Sprintf("%s not found in PATH", binary))
		}
	}
	kind, err := asr.ParseKind(h.cfg.Transcription.Provider)
	if err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	provider, err := h.registry.Get(kind)
	if err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := provider.HealthCheck(checkCtx); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("provider %s: %v", provider.Name(), err))
	}
	return stage.Healthy(name)
}

// outputPath places the subtitle next to the configured output dir, named
// after the source with the clip name folded in for clip tasks.
func (h *StageHandler) outputPath(task *queue.Task) string {
	base := strings.TrimSuffix(task.SourceName, filepath.Ext(task.SourceName))
	if base == "" {
		base = fmt.Sprintf("task-%d", task.ID)
	}
	if task.Kind == queue.KindClipRange {
		clip := textutil.SanitizeToken(task.ClipName)
		if clip == "unknown" && task.ClipStart != nil && task.ClipEnd != nil {
			clip = fmt.Sprintf("clip-%d-%d", int(*task.ClipStart), int(*task.ClipEnd))
		}
		base = base + "." + clip
	}
	return filepath.Join(h.cfg.Paths.OutputDir, base+".srt")
}
