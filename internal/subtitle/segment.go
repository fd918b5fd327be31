package subtitle

import "strings"

// Segment is one timed span of recognized speech. Times are seconds from the
// start of the source media, not the chunk the recognizer saw.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is an ordered collection of segments for one piece of media.
type Transcript struct {
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments"`
}

// Duration returns the end time of the last segment, or 0 when empty.
func (t *Transcript) Duration() float64 {
	if t == nil || len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[len(t.Segments)-1].End
}

// Text joins all segment text with single spaces.
func (t *Transcript) Text() string {
	if t == nil {
		return ""
	}
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if trimmed := strings.TrimSpace(seg.Text); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, " ")
}

// Shift offsets every segment by the given number of seconds. Recognizers
// use it to convert chunk-relative times into absolute source times.
func (t *Transcript) Shift(offset float64) {
	if t == nil || offset == 0 {
		return
	}
	for i := range t.Segments {
		t.Segments[i].Start += offset
		t.Segments[i].End += offset
	}
}

// ChunkTranscript pairs one chunk's recognized segments with the window the
// chunk covered. Segment times are absolute to the source.
type ChunkTranscript struct {
	Index       int
	WindowStart float64
	WindowEnd   float64
	Segments    []Segment
}
