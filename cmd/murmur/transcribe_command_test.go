package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"murmur/internal/pipeline"
)

func TestResolveTranscribeOutput(t *testing.T) {
	if got := resolveTranscribeOutput("/tmp/custom.srt", "/media/talk.mkv", nil, nil); got != "/tmp/custom.srt" {
		t.Fatalf("explicit output should win, got %q", got)
	}
	if got := resolveTranscribeOutput("", "/media/talk.mkv", nil, nil); got != "/media/talk.srt" {
		t.Fatalf("default output: %q", got)
	}
	start, end := 5.5, 90.0
	if got := resolveTranscribeOutput("", "/media/talk.mkv", &start, &end); got != "/media/talk.clip-5-90.srt" {
		t.Fatalf("clip output: %q", got)
	}
}

func TestPrintTranscribeResult(t *testing.T) {
	var buf bytes.Buffer
	printTranscribeResult(&buf, &pipeline.Result{
		OutputPath:   "/out/talk.srt",
		Provider:     "openai",
		Language:     "en",
		SegmentCount: 12,
		Windows:      2,
		RangeSeconds: 600.5,
		CacheHit:     true,
		Issues:       []string{"segment 3 overlaps segment 4"},
		Elapsed:      3200 * time.Millisecond,
	})
	out := buf.String()
	requireContains(t, out, "Subtitles written to /out/talk.srt")
	requireContains(t, out, "12 segments, 2 windows, 600.5s of audio in 3.2s")
	requireContains(t, out, "provider openai, language en, from cache")
	requireContains(t, out, "warning: segment 3 overlaps segment 4")
}

func TestCLITranscribeSourceErrors(t *testing.T) {
	env := setupCLITestEnv(t)

	missing := filepath.Join(env.baseDir, "missing.mkv")
	_, _, err := runCLI(t, []string{"transcribe", missing}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "missing or unreadable") {
		t.Fatalf("expected missing source error, got %v", err)
	}

	dir := filepath.Join(env.baseDir, "media")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	_, _, err = runCLI(t, []string{"transcribe", dir}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "is a directory") {
		t.Fatalf("expected directory error, got %v", err)
	}

	source := newMediaFile(t, dir, "talk.mkv")
	_, _, err = runCLI(t, []string{"transcribe", source, "--clip-start", "5"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "clip ranges require both") {
		t.Fatalf("expected clip pairing error, got %v", err)
	}

	_, _, err = runCLI(t, []string{"transcribe", source, "--provider", "bogus"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("expected provider parse error, got %v", err)
	}
}
