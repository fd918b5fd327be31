package subtitle

import (
	"fmt"
	"math"
	"sort"

	"murmur/internal/services"
	"murmur/internal/textutil"
)

const (
	// Residual duplicates across a chunk boundary must agree on text at
	// least this closely.
	dedupSimilarityThreshold = 0.8
	// Recognizers time the same speech slightly differently between
	// passes; starts within this window still count as the same cue.
	dedupTimeToleranceSeconds = 2.5
	// How many already-kept segments to examine for boundary duplicates.
	dedupLookback = 4
)

// Merge stitches overlapping chunk transcripts into one ordered transcript.
// Each overlap is owned by its midpoint: the earlier chunk keeps segments
// starting before it, the later chunk keeps segments starting at or after
// it. Duplicates that survive the split collapse to the earlier copy. The
// result is strictly ordered with no overlapping cue ranges.
func Merge(chunks []ChunkTranscript, overlapSeconds float64) (*Transcript, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: merge: no chunk transcripts", services.ErrValidation)
	}
	if overlapSeconds < 0 {
		return nil, fmt.Errorf("%w: merge: overlap must not be negative", services.ErrConfiguration)
	}

	ordered := append([]ChunkTranscript(nil), chunks...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })
	for i := 1; i < len(ordered); i++ {
		if ordered[i].WindowStart > ordered[i-1].WindowEnd {
			return nil, fmt.Errorf("%w: merge: chunk %d window starts after chunk %d ends",
				services.ErrValidation, ordered[i].Index, ordered[i-1].Index)
		}
	}

	type owned struct {
		seg   Segment
		chunk int
	}
	var merged []owned

	isDuplicate := func(seg Segment, chunk int) bool {
		for i := len(merged) - 1; i >= 0 && i >= len(merged)-dedupLookback; i-- {
			prev := merged[i]
			if prev.chunk == chunk {
				continue
			}
			closeInTime := math.Abs(seg.Start-prev.seg.Start) <= dedupTimeToleranceSeconds || seg.Start < prev.seg.End
			if closeInTime && textutil.SimilarText(prev.seg.Text, seg.Text, dedupSimilarityThreshold) {
				return true
			}
		}
		return false
	}

	for ci, chunk := range ordered {
		lower := math.Inf(-1)
		if ci > 0 {
			lower = (ordered[ci-1].WindowEnd + chunk.WindowStart) / 2
		}
		upper := math.Inf(1)
		if ci < len(ordered)-1 {
			upper = (chunk.WindowEnd + ordered[ci+1].WindowStart) / 2
		}

		segments := append([]Segment(nil), chunk.Segments...)
		sort.SliceStable(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })

		for _, seg := range segments {
			if seg.Start < lower || seg.Start >= upper {
				continue
			}
			if isDuplicate(seg, ci) {
				continue
			}
			merged = append(merged, owned{seg: seg, chunk: ci})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].seg.Start != merged[j].seg.Start {
			return merged[i].seg.Start < merged[j].seg.Start
		}
		return merged[i].chunk < merged[j].chunk
	})

	out := &Transcript{Segments: make([]Segment, 0, len(merged))}
	for _, m := range merged {
		seg := m.seg
		if n := len(out.Segments); n > 0 {
			prev := out.Segments[n-1]
			// Rounding collisions nudge the later cue forward so ranges
			// never overlap.
			if seg.Start < prev.End {
				seg.Start = prev.End
				if seg.End < seg.Start {
					seg.End = seg.Start
				}
			}
		}
		out.Segments = append(out.Segments, seg)
	}
	return out, nil
}
