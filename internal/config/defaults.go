package config

const (
	defaultStagingDir = "~/.local/share/murmur/staging"
	defaultLogDir     = "~/.local/share/murmur/logs"
	defaultCacheDir   = "~/.local/share/murmur/cache/transcripts"
	defaultAPIBind    = "127.0.0.1:7733"

	defaultProvider         = "whisper-cpu"
	defaultChunkSeconds     = 600
	defaultOverlapSeconds   = 10
	defaultChunkParallelism = 3

	defaultOpenAIBaseURL  = "https://api.openai.com/v1"
	defaultOpenAIModel    = "whisper-1"
	defaultGroqBaseURL    = "https://api.groq.com/openai/v1"
	defaultGroqModel      = "whisper-large-v3"
	defaultRemoteTimeout  = 600
	defaultWhisperBinary  = "whisper-cli"
	defaultWhisperModel   = "~/.local/share/murmur/models/ggml-large-v3.bin"
	defaultWhisperThreads = 0

	defaultCacheTTLDays = 7
	defaultCacheMaxGiB  = 10

	defaultRetryMaxAttempts = 3
	defaultRetryBaseDelayMS = 500
	defaultRetryMaxDelayMS  = 10000

	defaultOptimizerBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultOptimizerModel          = "google/gemini-3-flash-preview"
	defaultOptimizerTitle          = "Murmur Subtitle Cleanup"
	defaultOptimizerTimeoutSeconds = 120

	defaultNotifyRequestTimeout = 10

	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 30
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120

	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			CacheDir:   defaultCacheDir,
			APIBind:    defaultAPIBind,
		},
		Transcription: Transcription{
			Provider:         defaultProvider,
			ChunkingEnabled:  true,
			ChunkSeconds:     defaultChunkSeconds,
			OverlapSeconds:   defaultOverlapSeconds,
			ChunkParallelism: defaultChunkParallelism,
		},
		Providers: Providers{
			OpenAI: RemoteProvider{
				BaseURL:        defaultOpenAIBaseURL,
				Model:          defaultOpenAIModel,
				TimeoutSeconds: defaultRemoteTimeout,
			},
			Groq: RemoteProvider{
				BaseURL:        defaultGroqBaseURL,
				Model:          defaultGroqModel,
				TimeoutSeconds: defaultRemoteTimeout,
			},
			Whisper: WhisperCLI{
				Binary:  defaultWhisperBinary,
				Model:   defaultWhisperModel,
				Threads: defaultWhisperThreads,
			},
		},
		Cache: Cache{
			Enabled: true,
			TTLDays: defaultCacheTTLDays,
			MaxGiB:  defaultCacheMaxGiB,
		},
		Retry: Retry{
			MaxAttempts: defaultRetryMaxAttempts,
			BaseDelayMS: defaultRetryBaseDelayMS,
			MaxDelayMS:  defaultRetryMaxDelayMS,
		},
		Optimizer: Optimizer{
			BaseURL:        defaultOptimizerBaseURL,
			Model:          defaultOptimizerModel,
			Title:          defaultOptimizerTitle,
			TimeoutSeconds: defaultOptimizerTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
