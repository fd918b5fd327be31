package asr

import (
	"context"
	"fmt"
	"strings"

	"murmur/internal/services"
	"murmur/internal/subtitle"
)

// Kind identifies a recognizer implementation.
type Kind string

const (
	KindOpenAI     Kind = "openai"
	KindGroq       Kind = "groq"
	KindWhisperCPU Kind = "whisper-cpu"
	KindWhisperGPU Kind = "whisper-gpu"
)

// Kinds lists every supported provider kind.
func Kinds() []Kind {
	return []Kind{KindOpenAI, KindGroq, KindWhisperCPU, KindWhisperGPU}
}

// ParseKind validates a configured provider name.
func ParseKind(value string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(value)))
	switch kind {
	case KindOpenAI, KindGroq, KindWhisperCPU, KindWhisperGPU:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: unknown provider kind %q", services.ErrConfiguration, value)
	}
}

func (k Kind) String() string { return string(k) }

// Remote reports whether the kind talks to a hosted HTTP service.
func (k Kind) Remote() bool { return k == KindOpenAI || k == KindGroq }

// Local reports whether the kind shells out to whisper-cpp.
func (k Kind) Local() bool { return k == KindWhisperCPU || k == KindWhisperGPU }

// Request describes one transcription call.
type Request struct {
	// AudioPath is a mono 16kHz WAV prepared by the extraction step.
	AudioPath string
	// Language is a hint for the recognizer; empty or "auto" means detect.
	Language string
	// Offset shifts returned segment times so transcripts stay absolute
	// to the source media even when the audio is a window of it.
	Offset float64
}

// Provider is one configured recognizer.
type Provider interface {
	Kind() Kind
	Name() string
	Transcribe(ctx context.Context, req Request) (*subtitle.Transcript, error)
	HealthCheck(ctx context.Context) error
}
