package asr

import (
	"context"
	"errors"
	"testing"

	"murmur/internal/services"
	"murmur/internal/subtitle"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		value   string
		want    Kind
		wantErr bool
	}{
		{"openai", KindOpenAI, false},
		{"groq", KindGroq, false},
		{"whisper-cpu", KindWhisperCPU, false},
		{"whisper-gpu", KindWhisperGPU, false},
		{"  OpenAI  ", KindOpenAI, false},
		{"WHISPER-GPU", KindWhisperGPU, false},
		{"", "", true},
		{"whisperx", "", true},
		{"azure", "", true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.value)
		if tt.wantErr {
			if !errors.Is(err, services.ErrConfiguration) {
				t.Errorf("ParseKind(%q) error = %v, want configuration error", tt.value, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseKind(%q) = %v, %v; want %v", tt.value, got, err, tt.want)
		}
	}
}

func TestKindClassification(t *testing.T) {
	for _, kind := range []Kind{KindOpenAI, KindGroq} {
		if !kind.Remote() || kind.Local() {
			t.Errorf("%s should be remote only", kind)
		}
	}
	for _, kind := range []Kind{KindWhisperCPU, KindWhisperGPU} {
		if !kind.Local() || kind.Remote() {
			t.Errorf("%s should be local only", kind)
		}
	}
}

type stubProvider struct{ kind Kind }

func (p *stubProvider) Kind() Kind   { return p.kind }
func (p *stubProvider) Name() string { return string(p.kind) }
func (p *stubProvider) Transcribe(context.Context, Request) (*subtitle.Transcript, error) {
	return &subtitle.Transcript{}, nil
}
func (p *stubProvider) HealthCheck(context.Context) error { return nil }

func TestRegistryGet(t *testing.T) {
	registry := NewRegistry()
	builds := 0
	registry.Register(KindOpenAI, func() (Provider, error) {
		builds++
		return &stubProvider{kind: KindOpenAI}, nil
	})

	first, err := registry.Get(KindOpenAI)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := registry.Get(KindOpenAI)
	if err != nil {
		t.Fatalf("Get again: %v", err)
	}
	if first != second || builds != 1 {
		t.Errorf("provider not reused: builds=%d", builds)
	}
}

func TestRegistryUnconfiguredKind(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Get(KindGroq)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRegistryBuilderFailure(t *testing.T) {
	registry := NewRegistry()
	wantErr := errors.New("no api key")
	registry.Register(KindGroq, func() (Provider, error) { return nil, wantErr })

	_, err := registry.Get(KindGroq)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected builder error, got %v", err)
	}
	// A failed build is not cached; the next Get tries again.
	registry.Register(KindGroq, func() (Provider, error) { return &stubProvider{kind: KindGroq}, nil })
	if _, err := registry.Get(KindGroq); err != nil {
		t.Fatalf("Get after reregister: %v", err)
	}
}

func TestRegistryRegistered(t *testing.T) {
	registry := NewRegistry()
	registry.Register(KindWhisperCPU, func() (Provider, error) { return &stubProvider{kind: KindWhisperCPU}, nil })
	registry.Register(KindGroq, func() (Provider, error) { return &stubProvider{kind: KindGroq}, nil })

	kinds := registry.Registered()
	if len(kinds) != 2 || kinds[0] != KindGroq || kinds[1] != KindWhisperCPU {
		t.Errorf("Registered() = %v, want sorted [groq whisper-cpu]", kinds)
	}
}
