package subtitle

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"murmur/internal/services"
)

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		want    string
	}{
		{"zero", 0, "00:00:00,000"},
		{"milliseconds only", 0.042, "00:00:00,042"},
		{"seconds and millis", 3.5, "00:00:03,500"},
		{"just under a minute", 59.999, "00:00:59,999"},
		{"hours minutes seconds", 3661.042, "01:01:01,042"},
		{"rounds half up", 1.9995, "00:00:02,000"},
		{"negative clamps to zero", -5, "00:00:00,000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatTimestamp(tt.seconds); got != tt.want {
				t.Errorf("FormatTimestamp(%v) = %q, want %q", tt.seconds, got, tt.want)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    float64
		wantErr bool
	}{
		{"standard comma", "01:01:01,042", 3661.042, false},
		{"period separator", "00:00:03.500", 3.5, false},
		{"surrounding space", "  00:10:00,000 ", 600, false},
		{"empty", "", 0, true},
		{"no millis part", "00:00:03", 0, true},
		{"missing components", "3,500", 0, true},
		{"non numeric", "aa:bb:cc,ddd", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseTimestamp(%q) expected error, got %v", tt.value, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimestamp(%q) error: %v", tt.value, err)
			}
			if math.Abs(got-tt.want) > 0.0005 {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	for _, seconds := range []float64{0, 0.001, 1.5, 59.999, 600, 3599.25, 7322.042} {
		got, err := ParseTimestamp(FormatTimestamp(seconds))
		if err != nil {
			t.Fatalf("round trip %v: %v", seconds, err)
		}
		if math.Abs(got-seconds) > 0.001 {
			t.Errorf("round trip %v = %v", seconds, got)
		}
	}
}

func TestRenderSRT(t *testing.T) {
	transcript := &Transcript{Segments: []Segment{
		{Start: 0, End: 2.5, Text: "Hello there."},
		{Start: 2.5, End: 4, Text: "  General Kenobi.  "},
	}}

	want := "1\n" +
		"00:00:00,000 --> 00:00:02,500\n" +
		"Hello there.\n" +
		"\n" +
		"2\n" +
		"00:00:02,500 --> 00:00:04,000\n" +
		"General Kenobi.\n"
	if got := RenderSRT(transcript); got != want {
		t.Errorf("RenderSRT mismatch:\ngot:\n%q\nwant:\n%q", got, want)
	}

	if got := RenderSRT(nil); got != "" {
		t.Errorf("RenderSRT(nil) = %q, want empty", got)
	}
	if got := RenderSRT(&Transcript{}); got != "" {
		t.Errorf("RenderSRT(empty) = %q, want empty", got)
	}
}

func TestParseSRTRoundTrip(t *testing.T) {
	original := &Transcript{Segments: []Segment{
		{Start: 1.25, End: 3.75, Text: "First line spoken here."},
		{Start: 4, End: 6.5, Text: "Second line follows\nacross two rows."},
		{Start: 90.042, End: 94.01, Text: "Much later in the track."},
	}}

	parsed, err := ParseSRT([]byte(RenderSRT(original)))
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	if len(parsed.Segments) != len(original.Segments) {
		t.Fatalf("parsed %d segments, want %d", len(parsed.Segments), len(original.Segments))
	}
	for i, seg := range parsed.Segments {
		want := original.Segments[i]
		if seg.Text != want.Text {
			t.Errorf("segment %d text = %q, want %q", i, seg.Text, want.Text)
		}
		if math.Abs(seg.Start-want.Start) > 0.001 || math.Abs(seg.End-want.End) > 0.001 {
			t.Errorf("segment %d timing = [%v, %v], want [%v, %v]", i, seg.Start, seg.End, want.Start, want.End)
		}
	}
}

func TestParseSRTSkipsMalformedBlocks(t *testing.T) {
	doc := strings.Join([]string{
		"1",
		"00:00:01,000 --> 00:00:02,000",
		"A valid cue.",
		"",
		"not-a-number",
		"00:00:03,000 --> 00:00:04,000",
		"Bad index, skipped.",
		"",
		"3",
		"no timing line here",
		"Also skipped.",
		"",
		"4",
		"00:00:99,xx --> 00:00:05,000",
		"Bad timestamp, skipped.",
		"",
		"5",
		"00:00:06,000 --> 00:00:08,000",
		"A second valid cue.",
	}, "\r\n")

	parsed, err := ParseSRT([]byte(doc))
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	if len(parsed.Segments) != 2 {
		t.Fatalf("parsed %d segments, want 2: %+v", len(parsed.Segments), parsed.Segments)
	}
	if parsed.Segments[0].Text != "A valid cue." || parsed.Segments[1].Text != "A second valid cue." {
		t.Errorf("unexpected surviving cues: %+v", parsed.Segments)
	}
}

func TestParseSRTEmptyDocument(t *testing.T) {
	parsed, err := ParseSRT([]byte("  \n \r\n "))
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	if len(parsed.Segments) != 0 {
		t.Errorf("expected no segments, got %+v", parsed.Segments)
	}
}

func TestWriteSRT(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.srt")
	transcript := &Transcript{Segments: []Segment{
		{Start: 0, End: 2, Text: "Written to disk."},
	}}

	if err := WriteSRT(path, transcript); err != nil {
		t.Fatalf("WriteSRT: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp file left behind: %v", err)
	}

	back, err := ReadSRTFile(path)
	if err != nil {
		t.Fatalf("ReadSRTFile: %v", err)
	}
	if len(back.Segments) != 1 || back.Segments[0].Text != "Written to disk." {
		t.Errorf("unexpected readback: %+v", back.Segments)
	}
}

func TestWriteSRTRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.srt")
	err := WriteSRT(path, &Transcript{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
		t.Errorf("empty transcript still produced a file")
	}
}

func hasIssue(issues []string, prefix string) bool {
	for _, issue := range issues {
		if strings.HasPrefix(issue, prefix) {
			return true
		}
	}
	return false
}

func writeRawSRT(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "check.srt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestValidateSRT(t *testing.T) {
	clean := "1\n00:00:01,000 --> 00:00:03,000\nFine.\n\n2\n00:00:03,500 --> 00:00:05,000\nAlso fine.\n"

	t.Run("clean file passes", func(t *testing.T) {
		if issues := ValidateSRT(writeRawSRT(t, clean), 10); len(issues) != 0 {
			t.Errorf("unexpected issues: %v", issues)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		issues := ValidateSRT(filepath.Join(t.TempDir(), "nope.srt"), 10)
		if !hasIssue(issues, "read_error") {
			t.Errorf("expected read_error, got %v", issues)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		issues := ValidateSRT(writeRawSRT(t, ""), 10)
		if !hasIssue(issues, "empty_subtitle_file") {
			t.Errorf("expected empty_subtitle_file, got %v", issues)
		}
	})

	t.Run("negative cue duration", func(t *testing.T) {
		doc := "1\n00:00:05,000 --> 00:00:03,000\nBackwards.\n"
		issues := ValidateSRT(writeRawSRT(t, doc), 10)
		if !hasIssue(issues, "negative_cue_duration") {
			t.Errorf("expected negative_cue_duration, got %v", issues)
		}
	})

	t.Run("overlapping cues", func(t *testing.T) {
		doc := "1\n00:00:01,000 --> 00:00:04,000\nFirst.\n\n2\n00:00:03,000 --> 00:00:05,000\nOverlaps.\n"
		issues := ValidateSRT(writeRawSRT(t, doc), 10)
		if !hasIssue(issues, "overlapping_cues") {
			t.Errorf("expected overlapping_cues, got %v", issues)
		}
	})

	t.Run("exceeds media duration", func(t *testing.T) {
		doc := "1\n00:01:00,000 --> 00:01:30,000\nWay past the end.\n"
		issues := ValidateSRT(writeRawSRT(t, doc), 60)
		if !hasIssue(issues, "timestamps_exceed_duration") {
			t.Errorf("expected timestamps_exceed_duration, got %v", issues)
		}
	})

	t.Run("small overrun tolerated", func(t *testing.T) {
		doc := "1\n00:00:58,000 --> 00:01:01,500\nSlightly past.\n"
		if issues := ValidateSRT(writeRawSRT(t, doc), 60); len(issues) != 0 {
			t.Errorf("unexpected issues: %v", issues)
		}
	})

	t.Run("ending early is fine", func(t *testing.T) {
		if issues := ValidateSRT(writeRawSRT(t, clean), 3600); len(issues) != 0 {
			t.Errorf("unexpected issues: %v", issues)
		}
	})

	t.Run("zero media skips duration check", func(t *testing.T) {
		doc := "1\n00:10:00,000 --> 00:10:05,000\nNo duration known.\n"
		if issues := ValidateSRT(writeRawSRT(t, doc), 0); len(issues) != 0 {
			t.Errorf("unexpected issues: %v", issues)
		}
	})
}
