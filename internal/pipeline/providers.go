package pipeline

import (
	"murmur/internal/asr"
	"murmur/internal/asr/openaistt"
	"murmur/internal/asr/whispercli"
	"murmur/internal/config"
)

// NewProviderRegistry wires every supported provider kind to a builder that
// reads its settings from cfg. Builders run lazily, so a missing API key or
// model only surfaces when that kind is actually requested.
func NewProviderRegistry(cfg *config.Config) *asr.Registry {
	registry := asr.NewRegistry()
	if cfg == nil {
		return registry
	}

	for _, kind := range []asr.Kind{asr.KindOpenAI, asr.KindGroq} {
		registry.Register(kind, func() (asr.Provider, error) {
			remote := cfg.RemoteProviderConfig(kind.String())
			return openaistt.New(kind, openaistt.Config{
				APIKey:         remote.APIKey,
				BaseURL:        remote.BaseURL,
				Model:          remote.Model,
				TimeoutSeconds: remote.TimeoutSeconds,
			})
		})
	}

	for _, kind := range []asr.Kind{asr.KindWhisperCPU, asr.KindWhisperGPU} {
		registry.Register(kind, func() (asr.Provider, error) {
			return whispercli.New(kind, whispercli.Config{
				Binary:    cfg.WhisperBinary(),
				ModelPath: cfg.Providers.Whisper.Model,
				Threads:   cfg.Providers.Whisper.Threads,
			})
		})
	}

	return registry
}
