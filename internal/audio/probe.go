package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"murmur/internal/services"
)

// Info represents the parsed output from an ffprobe inspection.
type Info struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Duration   string `json:"duration"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Tags       Tags   `json:"tags"`
}

// Tags carries the stream metadata fields the pipeline cares about.
type Tags struct {
	Language string `json:"language"`
	Title    string `json:"title"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// Probe executes ffprobe against the provided path and decodes the JSON
// response.
func Probe(ctx context.Context, binary string, path string) (Info, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Info{}, fmt.Errorf("%w: probe: empty path", services.ErrValidation)
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return Info{}, fmt.Errorf("%w: %s: %v", services.ErrLaunch, binary, err)
		}
		return Info{}, fmt.Errorf("%w: ffprobe inspect: %v: %s", services.ErrExternalTool, err, strings.TrimSpace(string(output)))
	}

	var info Info
	if err := json.Unmarshal(output, &info); err != nil {
		return Info{}, fmt.Errorf("%w: ffprobe parse: %v", services.ErrExternalTool, err)
	}
	return info, nil
}

// DurationSeconds returns the container duration in seconds, or 0 when
// unavailable. Stream durations fill in when the container reports none.
func (i Info) DurationSeconds() float64 {
	if d := parseFloat(i.Format.Duration); d > 0 {
		return d
	}
	var best float64
	for _, stream := range i.Streams {
		if d := parseFloat(stream.Duration); d > best {
			best = d
		}
	}
	return best
}

// AudioStreamCount returns the number of audio streams discovered.
func (i Info) AudioStreamCount() int {
	count := 0
	for _, stream := range i.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			count++
		}
	}
	return count
}

// AudioStreams returns the audio streams in container order.
func (i Info) AudioStreams() []Stream {
	out := make([]Stream, 0, len(i.Streams))
	for _, stream := range i.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			out = append(out, stream)
		}
	}
	return out
}

// SelectAudioTrack resolves the absolute stream index to extract. A negative
// requested index picks the first audio stream; otherwise the requested index
// must name an audio stream in the container.
func SelectAudioTrack(info Info, requested int) (int, error) {
	audio := info.AudioStreams()
	if len(audio) == 0 {
		return 0, fmt.Errorf("%w: source has no audio stream", services.ErrValidation)
	}
	if requested < 0 {
		return audio[0].Index, nil
	}
	for _, stream := range audio {
		if stream.Index == requested {
			return stream.Index, nil
		}
	}
	return 0, fmt.Errorf("%w: stream %d is not an audio stream", services.ErrValidation, requested)
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return 0
}
