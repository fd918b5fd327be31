package audio

import (
	"fmt"

	"murmur/internal/services"
)

// Window is one planned transcription slice of the audio track, in seconds
// from the start of the extracted range. Consecutive windows overlap by the
// configured overlap so the merger can stitch segments without seam loss.
type Window struct {
	Index int
	Start float64
	End   float64
}

// Duration returns the window length in seconds.
func (w Window) Duration() float64 {
	return w.End - w.Start
}

// PlanWindows splits a track of totalSeconds into overlapping windows of
// chunkSeconds stepped by chunkSeconds-overlapSeconds. The final window ends
// exactly at totalSeconds. A track no longer than one chunk yields a single
// whole-track window.
func PlanWindows(totalSeconds, chunkSeconds, overlapSeconds float64) ([]Window, error) {
	if totalSeconds <= 0 {
		return nil, fmt.Errorf("%w: audio duration must be positive, got %.3f", services.ErrValidation, totalSeconds)
	}
	if chunkSeconds <= 0 {
		return nil, fmt.Errorf("%w: chunk length must be positive, got %.3f", services.ErrConfiguration, chunkSeconds)
	}
	if overlapSeconds < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %.3f", services.ErrConfiguration, overlapSeconds)
	}
	if overlapSeconds >= chunkSeconds {
		return nil, fmt.Errorf("%w: overlap %.3f must be smaller than chunk length %.3f", services.ErrConfiguration, overlapSeconds, chunkSeconds)
	}

	step := chunkSeconds - overlapSeconds
	var windows []Window
	for start := 0.0; ; start += step {
		end := start + chunkSeconds
		if end >= totalSeconds {
			windows = append(windows, Window{Index: len(windows), Start: start, End: totalSeconds})
			break
		}
		windows = append(windows, Window{Index: len(windows), Start: start, End: end})
	}
	return windows, nil
}
