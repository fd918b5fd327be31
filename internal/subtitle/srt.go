package subtitle

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"murmur/internal/fileutil"
	"murmur/internal/services"
)

// FormatTimestamp renders seconds in the SubRip HH:MM:SS,mmm form.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	msTotal := int(seconds*1000 + 0.5)
	hours := msTotal / 3_600_000
	msTotal %= 3_600_000
	minutes := msTotal / 60_000
	msTotal %= 60_000
	secs := msTotal / 1_000
	millis := msTotal % 1_000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// ParseTimestamp reads a SubRip timestamp into seconds. Periods are accepted
// in place of the standard comma before the milliseconds.
func ParseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}

// RenderSRT produces the SubRip document for a transcript. Cues are numbered
// from 1 in segment order.
func RenderSRT(t *Transcript) string {
	if t == nil || len(t.Segments) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, seg := range t.Segments {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("%d\n", i+1))
		sb.WriteString(fmt.Sprintf("%s --> %s\n", FormatTimestamp(seg.Start), FormatTimestamp(seg.End)))
		sb.WriteString(strings.TrimSpace(seg.Text))
		sb.WriteString("\n")
	}
	return sb.String()
}

// WriteSRT renders the transcript and writes it atomically so a crash never
// leaves a truncated subtitle file behind.
func WriteSRT(path string, t *Transcript) error {
	if t == nil || len(t.Segments) == 0 {
		return fmt.Errorf("%w: refusing to write empty subtitle file", services.ErrValidation)
	}
	if err := fileutil.WriteFileAtomic(path, []byte(RenderSRT(t)), 0o644); err != nil {
		return fmt.Errorf("write srt: %w", err)
	}
	return nil
}

// ParseSRT reads a SubRip document back into a transcript. Malformed cue
// blocks are skipped the way most players treat them.
func ParseSRT(data []byte) (*Transcript, error) {
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	content = strings.TrimSpace(content)
	transcript := &Transcript{}
	if content == "" {
		return transcript, nil
	}

	blocks := strings.Split(content, "\n\n")
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		if len(lines) < 3 {
			continue
		}

		var index int
		if _, err := fmt.Sscanf(lines[0], "%d", &index); err != nil {
			continue
		}
		if !strings.Contains(lines[1], "-->") {
			continue
		}
		parts := strings.Split(lines[1], "-->")
		if len(parts) != 2 {
			continue
		}
		start, err := ParseTimestamp(parts[0])
		if err != nil {
			continue
		}
		end, err := ParseTimestamp(parts[1])
		if err != nil {
			continue
		}

		transcript.Segments = append(transcript.Segments, Segment{
			Start: start,
			End:   end,
			Text:  strings.Join(lines[2:], "\n"),
		})
	}
	return transcript, nil
}

// ReadSRTFile parses the SubRip file at path.
func ReadSRTFile(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	return ParseSRT(data)
}

// timestamps may legitimately end early (credits, silence) but must never
// exceed the media duration by more than this.
const srtOverrunToleranceSeconds = 2.0

// ValidateSRT checks a rendered SubRip file for structural issues. The
// returned slice is empty when validation passes. mediaSeconds of 0 skips
// the duration alignment check.
func ValidateSRT(path string, mediaSeconds float64) []string {
	var issues []string

	transcript, err := ReadSRTFile(path)
	if err != nil {
		return append(issues, fmt.Sprintf("read_error: %v", err))
	}
	if len(transcript.Segments) == 0 {
		return append(issues, "empty_subtitle_file")
	}

	var last float64
	ordered := true
	for i, seg := range transcript.Segments {
		if seg.End < seg.Start {
			issues = append(issues, fmt.Sprintf("negative_cue_duration: cue %d", i+1))
		}
		if i > 0 && seg.Start < transcript.Segments[i-1].End {
			ordered = false
		}
		if seg.End > last {
			last = seg.End
		}
	}
	if !ordered {
		issues = append(issues, "overlapping_cues")
	}
	if last == 0 {
		issues = append(issues, "no_valid_timestamps")
	}
	if mediaSeconds > 0 && last > mediaSeconds+srtOverrunToleranceSeconds {
		issues = append(issues, fmt.Sprintf("timestamps_exceed_duration: last=%.1fs media=%.1fs", last, mediaSeconds))
	}

	return issues
}
