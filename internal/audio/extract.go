package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"murmur/internal/execx"
	"murmur/internal/services"
)

// ExtractSpec describes one ffmpeg audio extraction producing a 16 kHz mono
// PCM WAV file ready for speech recognition.
type ExtractSpec struct {
	FFmpeg     string
	Source     string
	TrackIndex int
	// Start in seconds; negative extracts from the beginning.
	Start float64
	// Duration in seconds; non-positive extracts through the end.
	Duration float64
	Dest     string
	// ExpectedSeconds scales progress updates; zero disables percent
	// reporting (lines still flow to OnLine).
	ExpectedSeconds float64
	OnProgress      func(percent float64)
	OnLine          func(line string)
}

// Extract runs the ffmpeg conversion spec describes, streaming progress as
// it advances. The destination directory is created if missing.
func Extract(ctx context.Context, spec ExtractSpec) error {
	if strings.TrimSpace(spec.Source) == "" {
		return fmt.Errorf("%w: extract: source path required", services.ErrValidation)
	}
	if strings.TrimSpace(spec.Dest) == "" {
		return fmt.Errorf("%w: extract: destination path required", services.ErrValidation)
	}
	if spec.TrackIndex < 0 {
		return fmt.Errorf("%w: extract: invalid audio track index %d", services.ErrValidation, spec.TrackIndex)
	}
	if err := os.MkdirAll(filepath.Dir(spec.Dest), 0o755); err != nil {
		return fmt.Errorf("extract: ensure destination dir: %w", err)
	}

	parser := progressParser{total: spec.ExpectedSeconds, onUpdate: spec.OnProgress}
	_, err := execx.Run(ctx, execx.Command{
		Binary: firstNonEmpty(spec.FFmpeg, "ffmpeg"),
		Args:   buildExtractArgs(spec),
		OnLine: func(stream execx.Stream, line string) {
			if stream == execx.Stdout {
				parser.consume(line)
			}
			if spec.OnLine != nil && strings.TrimSpace(line) != "" {
				spec.OnLine(line)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("ffmpeg extract: %w", err)
	}
	if info, statErr := os.Stat(spec.Dest); statErr != nil || info.Size() == 0 {
		return fmt.Errorf("%w: ffmpeg completed but produced no audio at %s", services.ErrExternalTool, spec.Dest)
	}
	parser.finish()
	return nil
}

func buildExtractArgs(spec ExtractSpec) []string {
	args := []string{
		"-y",
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
	}
	if spec.Start > 0 {
		args = append(args, "-ss", formatSeconds(spec.Start))
	}
	if spec.Duration > 0 {
		args = append(args, "-t", formatSeconds(spec.Duration))
	}
	args = append(args,
		"-i", spec.Source,
		"-map", fmt.Sprintf("0:%d", spec.TrackIndex),
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		"-progress", "pipe:1",
		"-nostats",
		spec.Dest,
	)
	return args
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// progressParser folds ffmpeg -progress key=value lines into monotonic
// percent updates against a known duration.
type progressParser struct {
	total    float64
	onUpdate func(percent float64)
	last     float64
}

func (p *progressParser) consume(line string) {
	if p.onUpdate == nil {
		return
	}
	seconds, end, ok := ParseProgressLine(line)
	if !ok {
		return
	}
	if end {
		p.report(100)
		return
	}
	if p.total <= 0 {
		return
	}
	percent := seconds / p.total * 100
	if percent > 100 {
		percent = 100
	}
	p.report(percent)
}

func (p *progressParser) finish() {
	if p.onUpdate != nil {
		p.report(100)
	}
}

func (p *progressParser) report(percent float64) {
	if percent <= p.last {
		return
	}
	p.last = percent
	p.onUpdate(percent)
}

// ParseProgressLine interprets one line of ffmpeg -progress output. It
// returns the media timestamp reached so far, whether the line marks the end
// of the run, and whether the line carried progress information at all.
// out_time_ms values are microseconds despite the name.
func ParseProgressLine(line string) (seconds float64, end bool, ok bool) {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "out_time_ms="):
		value := strings.TrimPrefix(line, "out_time_ms=")
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil || parsed < 0 {
			return 0, false, false
		}
		return parsed / 1e6, false, true
	case strings.HasPrefix(line, "out_time="):
		parsed, err := parseClock(strings.TrimPrefix(line, "out_time="))
		if err != nil {
			return 0, false, false
		}
		return parsed, false, true
	case strings.HasPrefix(line, "progress="):
		return 0, strings.TrimPrefix(line, "progress=") == "end", true
	}
	return 0, false, false
}

// parseClock parses ffmpeg's HH:MM:SS.micro clock format into seconds.
func parseClock(value string) (float64, error) {
	value = strings.TrimSpace(value)
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid clock %q", value)
	}
	hours, errH := strconv.Atoi(parts[0])
	minutes, errM := strconv.Atoi(parts[1])
	secs, errS := strconv.ParseFloat(parts[2], 64)
	if errH != nil || errM != nil || errS != nil || secs < 0 {
		return 0, fmt.Errorf("invalid clock %q", value)
	}
	return float64(hours*3600+minutes*60) + secs, nil
}
