package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"murmur/internal/asr"
	"murmur/internal/audio"
	"murmur/internal/retry"
	"murmur/internal/runner"
	"murmur/internal/subtitle"
)

// windowJob recognizes one planned window of the extracted audio. Multi
// window requests slice their window out of the full-range WAV first; a
// single-window request reads it directly.
type windowJob struct {
	ffmpeg     string
	audioPath  string
	workDir    string
	window     audio.Window
	total      int
	provider   asr.Provider
	language   string
	policy     retry.Policy
	reuseWhole bool

	// transcript is set on success and collected after the batch.
	transcript *subtitle.Transcript
}

func (j *windowJob) ID() string {
	return fmt.Sprintf("window-%03d", j.window.Index+1)
}

func (j *windowJob) Description() string {
	return fmt.Sprintf("window %d/%d (%s-%s)",
		j.window.Index+1, j.total, formatClock(j.window.Start), formatClock(j.window.End))
}

// Weight scales progress by window length, so the short tail window does
// not distort the aggregate.
func (j *windowJob) Weight() float64 {
	return j.window.Duration()
}

func (j *windowJob) Run(ctx context.Context, jc runner.JobContext) (runner.Result, error) {
	wav := j.audioPath
	if !j.reuseWhole {
		wav = filepath.Join(j.workDir, fmt.Sprintf("window-%03d.wav", j.window.Index+1))
		err := audio.Extract(ctx, audio.ExtractSpec{
			FFmpeg:   j.ffmpeg,
			Source:   j.audioPath,
			Start:    j.window.Start,
			Duration: j.window.Duration(),
			Dest:     wav,
		})
		if err != nil {
			return runner.Result{}, fmt.Errorf("slice window: %w", err)
		}
		// Window WAVs are deleted as soon as they are recognized so
		// concurrent windows bound scratch usage, not the whole batch.
		defer os.Remove(wav)
		jc.Progress(5)
	}

	transcript, err := retry.DoValue(ctx, j.policy, "transcribe "+j.ID(), func(ctx context.Context) (*subtitle.Transcript, error) {
		return j.provider.Transcribe(ctx, asr.Request{
			AudioPath: wav,
			Language:  j.language,
			Offset:    j.window.Start,
		})
	})
	if err != nil {
		return runner.Result{}, err
	}
	j.transcript = transcript
	jc.Log(fmt.Sprintf("%d segments recognized", len(transcript.Segments)))
	return runner.Result{
		Status:  runner.StatusSucceeded,
		Message: fmt.Sprintf("%d segments", len(transcript.Segments)),
	}, nil
}

// formatClock renders seconds as HH:MM:SS for window descriptions.
func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds + 0.5)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
