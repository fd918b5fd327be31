// Package whispercli transcribes audio with a local whisper.cpp binary.
// It covers the whisper-cpu and whisper-gpu provider kinds; the only
// difference between them is that the cpu kind forces GPU offload off.
package whispercli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"murmur/internal/asr"
	"murmur/internal/execx"
	"murmur/internal/services"
	"murmur/internal/subtitle"
)

const defaultBinary = "whisper-cli"

// Config describes how to invoke the whisper.cpp CLI.
type Config struct {
	// Binary is the whisper.cpp executable name or path.
	Binary string
	// ModelPath points at a ggml model file, or a directory that is
	// scanned for one.
	ModelPath string
	// Threads caps the tool's thread count when positive.
	Threads int
}

// Provider shells out to whisper.cpp and parses its JSON output.
type Provider struct {
	kind asr.Kind
	cfg  Config
}

// New validates the configuration for a local provider kind.
func New(kind asr.Kind, cfg Config) (*Provider, error) {
	if !kind.Local() {
		return nil, fmt.Errorf("%w: whispercli does not serve %q providers", services.ErrValidation, kind)
	}
	cfg.Binary = strings.TrimSpace(cfg.Binary)
	if cfg.Binary == "" {
		cfg.Binary = defaultBinary
	}
	cfg.ModelPath = strings.TrimSpace(cfg.ModelPath)
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("%w: whisper model path required", services.ErrConfiguration)
	}
	return &Provider{kind: kind, cfg: cfg}, nil
}

func (p *Provider) Kind() asr.Kind { return p.kind }

func (p *Provider) Name() string {
	return fmt.Sprintf("%s/%s", p.kind, filepath.Base(p.cfg.ModelPath))
}

// Transcribe runs the binary against one audio window and shifts the
// resulting segment times by req.Offset. Non-zero exits are final:
// whisper failures on the same input repeat deterministically.
func (p *Provider) Transcribe(ctx context.Context, req asr.Request) (*subtitle.Transcript, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return nil, fmt.Errorf("%w: audio path required", services.ErrValidation)
	}
	model, err := p.resolveModel()
	if err != nil {
		return nil, err
	}

	outBase := strings.TrimSuffix(req.AudioPath, filepath.Ext(req.AudioPath))
	if _, err := execx.Run(ctx, execx.Command{
		Binary: p.cfg.Binary,
		Args:   p.buildArgs(model, req, outBase),
	}); err != nil {
		return nil, fmt.Errorf("whisper transcribe: %w", err)
	}

	jsonPath := outBase + ".json"
	payload, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("%w: whisper produced no output for %s: %v",
			services.ErrExternalTool, filepath.Base(req.AudioPath), err)
	}
	_ = os.Remove(jsonPath)
	return parseOutput(payload, req.Offset)
}

// HealthCheck confirms the binary is on PATH and a model resolves.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if _, err := exec.LookPath(p.cfg.Binary); err != nil {
		return fmt.Errorf("%w: whisper binary %q not found: %v", services.ErrConfiguration, p.cfg.Binary, err)
	}
	_, err := p.resolveModel()
	return err
}

func (p *Provider) buildArgs(model string, req asr.Request, outBase string) []string {
	args := []string{
		"-m", model,
		"-f", req.AudioPath,
		"-oj",
		"-of", outBase,
	}
	if lang := normalizeLanguage(req.Language); lang != "" {
		args = append(args, "-l", lang)
	}
	if p.kind == asr.KindWhisperCPU {
		args = append(args, "-ng")
	}
	if p.cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(p.cfg.Threads))
	}
	return args
}

// resolveModel accepts a model file directly, or picks the first model
// (sorted by name) from a model directory.
func (p *Provider) resolveModel() (string, error) {
	info, err := os.Stat(p.cfg.ModelPath)
	if err != nil {
		return "", fmt.Errorf("%w: whisper model %s: %v", services.ErrConfiguration, p.cfg.ModelPath, err)
	}
	if !info.IsDir() {
		return p.cfg.ModelPath, nil
	}

	entries, err := os.ReadDir(p.cfg.ModelPath)
	if err != nil {
		return "", fmt.Errorf("%w: scan model directory %s: %v", services.ErrConfiguration, p.cfg.ModelPath, err)
	}
	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".bin", ".gguf":
			candidates = append(candidates, entry.Name())
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: no whisper model (.bin or .gguf) in %s", services.ErrConfiguration, p.cfg.ModelPath)
	}
	sort.Strings(candidates)
	return filepath.Join(p.cfg.ModelPath, candidates[0]), nil
}

// whisperPayload mirrors the whisper.cpp -oj output. Offsets are
// milliseconds from the start of the input file.
type whisperPayload struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func parseOutput(payload []byte, offset float64) (*subtitle.Transcript, error) {
	var doc whisperPayload
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode whisper output: %v", services.ErrParse, err)
	}

	// An empty transcription block is a silent window, not a failure.
	transcript := &subtitle.Transcript{Language: strings.TrimSpace(doc.Result.Language)}
	for _, entry := range doc.Transcription {
		text := strings.TrimSpace(entry.Text)
		if text == "" {
			continue
		}
		start := float64(entry.Offsets.From) / 1000.0
		end := float64(entry.Offsets.To) / 1000.0
		if start < 0 {
			start = 0
		}
		if end < start {
			end = start
		}
		transcript.Segments = append(transcript.Segments, subtitle.Segment{
			Start: start + offset,
			End:   end + offset,
			Text:  text,
		})
	}
	return transcript, nil
}

func normalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "auto" {
		return ""
	}
	return lang
}
