package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTranscription()
	if err := c.normalizeProviders(); err != nil {
		return err
	}
	c.normalizeRetry()
	c.normalizeOptimizer()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) != "" {
		if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
			return fmt.Errorf("paths.output_dir: %w", err)
		}
	} else {
		c.Paths.OutputDir = ""
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Provider = strings.ToLower(strings.TrimSpace(c.Transcription.Provider))
	if c.Transcription.Provider == "" {
		c.Transcription.Provider = defaultProvider
	}
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))
	if c.Transcription.Language == "auto" {
		c.Transcription.Language = ""
	}
	if c.Transcription.ChunkSeconds <= 0 {
		c.Transcription.ChunkSeconds = defaultChunkSeconds
	}
	if c.Transcription.OverlapSeconds < 0 {
		c.Transcription.OverlapSeconds = defaultOverlapSeconds
	}
	if c.Transcription.ChunkParallelism <= 0 {
		c.Transcription.ChunkParallelism = defaultChunkParallelism
	}
}

func (c *Config) normalizeProviders() error {
	if c.Providers.OpenAI.APIKey == "" {
		if value, ok := os.LookupEnv("MURMUR_OPENAI_API_KEY"); ok {
			c.Providers.OpenAI.APIKey = value
		}
	}
	if c.Providers.Groq.APIKey == "" {
		if value, ok := os.LookupEnv("MURMUR_GROQ_API_KEY"); ok {
			c.Providers.Groq.APIKey = value
		}
	}
	if strings.TrimSpace(c.Providers.OpenAI.BaseURL) == "" {
		c.Providers.OpenAI.BaseURL = defaultOpenAIBaseURL
	}
	if strings.TrimSpace(c.Providers.Groq.BaseURL) == "" {
		c.Providers.Groq.BaseURL = defaultGroqBaseURL
	}
	if c.Providers.OpenAI.TimeoutSeconds <= 0 {
		c.Providers.OpenAI.TimeoutSeconds = defaultRemoteTimeout
	}
	if c.Providers.Groq.TimeoutSeconds <= 0 {
		c.Providers.Groq.TimeoutSeconds = defaultRemoteTimeout
	}
	if strings.TrimSpace(c.Providers.Whisper.Binary) == "" {
		c.Providers.Whisper.Binary = defaultWhisperBinary
	}
	if strings.TrimSpace(c.Providers.Whisper.Model) != "" {
		expanded, err := expandPath(c.Providers.Whisper.Model)
		if err != nil {
			return fmt.Errorf("providers.whisper.model: %w", err)
		}
		c.Providers.Whisper.Model = expanded
	}
	return nil
}

func (c *Config) normalizeRetry() {
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = defaultRetryMaxAttempts
	}
	if c.Retry.BaseDelayMS <= 0 {
		c.Retry.BaseDelayMS = defaultRetryBaseDelayMS
	}
	if c.Retry.MaxDelayMS <= 0 {
		c.Retry.MaxDelayMS = defaultRetryMaxDelayMS
	}
}

func (c *Config) normalizeOptimizer() {
	if c.Optimizer.APIKey == "" {
		if value, ok := os.LookupEnv("MURMUR_OPTIMIZER_API_KEY"); ok {
			c.Optimizer.APIKey = value
		}
	}
	c.Optimizer.BaseURL = strings.TrimSpace(c.Optimizer.BaseURL)
	if c.Optimizer.BaseURL == "" {
		c.Optimizer.BaseURL = defaultOptimizerBaseURL
	}
	c.Optimizer.Model = strings.TrimSpace(c.Optimizer.Model)
	if c.Optimizer.Model == "" {
		c.Optimizer.Model = defaultOptimizerModel
	}
	if c.Optimizer.TimeoutSeconds <= 0 {
		c.Optimizer.TimeoutSeconds = defaultOptimizerTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
}
