package config

import (
	"errors"
	"fmt"
	"strings"
)

var providerKinds = map[string]bool{
	"openai":      true,
	"groq":        true,
	"whisper-cpu": true,
	"whisper-gpu": true,
}

// Validate ensures the configuration is usable. Provider credentials are not
// checked here: only the selected provider needs them, and the registry and
// preflight report those gaps with more context.
func (c *Config) Validate() error {
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateOptimizer(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateTranscription() error {
	if !providerKinds[c.Transcription.Provider] {
		return fmt.Errorf("transcription.provider must be one of openai, groq, whisper-cpu, whisper-gpu (got %q)", c.Transcription.Provider)
	}
	if c.Transcription.ChunkSeconds <= 0 {
		return errors.New("transcription.chunk_seconds must be positive")
	}
	if c.Transcription.OverlapSeconds < 0 {
		return errors.New("transcription.overlap_seconds must not be negative")
	}
	if c.Transcription.OverlapSeconds >= c.Transcription.ChunkSeconds {
		return errors.New("transcription.overlap_seconds must be less than transcription.chunk_seconds")
	}
	if c.Transcription.AudioTrack < 0 {
		return errors.New("transcription.audio_track must not be negative")
	}
	if c.Transcription.ChunkParallelism <= 0 {
		return errors.New("transcription.chunk_parallelism must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateCache() error {
	if !c.Cache.Enabled {
		return nil
	}
	if c.Cache.TTLDays <= 0 {
		return errors.New("cache.ttl_days must be positive when cache.enabled is true")
	}
	if c.Cache.MaxGiB <= 0 {
		return errors.New("cache.max_gib must be positive when cache.enabled is true")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be at least 1")
	}
	if c.Retry.BaseDelayMS <= 0 {
		return errors.New("retry.base_delay_ms must be positive")
	}
	if c.Retry.MaxDelayMS < c.Retry.BaseDelayMS {
		return errors.New("retry.max_delay_ms must be at least retry.base_delay_ms")
	}
	return nil
}

func (c *Config) validateOptimizer() error {
	if !c.Optimizer.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Optimizer.APIKey) == "" {
		return errors.New("optimizer.api_key must be set when optimizer.enabled is true")
	}
	if strings.TrimSpace(c.Optimizer.Model) == "" {
		return errors.New("optimizer.model must be set when optimizer.enabled is true")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
