package config

const (
	defaultConfigPath                = "~/.config/vidlens/config.toml"
	defaultStateDir                  = "~/.local/share/vidlens"
	defaultWorkDir                   = "~/.local/share/vidlens/work"
	defaultThumbnailDir              = "~/.local/share/vidlens/thumbnails"
	defaultLogDir                    = "~/.local/share/vidlens/logs"
	defaultQueueDB                   = "~/.local/share/vidlens/queue.db"
	defaultMotionThreshold           = 1000
	defaultBlurKernel                = 21
	defaultPixelThreshold            = 25
	defaultBinaryValue               = 255
	defaultDecoder                   = "ffmpeg"
	defaultThumbnailWidth            = 320
	defaultThumbnailQuality          = 85
	defaultWhisperModel              = "base"
	defaultWhisperDevice             = "cpu"
	defaultSampleRate                = 16000
	defaultClassifierStrategy        = "placeholder"
	defaultLLMBaseURL                = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel                  = "google/gemini-2.5-flash"
	defaultLLMReferer                = "https://github.com/vidlens/vidlens"
	defaultLLMTitle                  = "vidlens content classifier"
	defaultLLMTimeoutSeconds         = 60
	defaultWorkflowWorkers           = 1
	defaultQueuePollInterval         = 5
	defaultWorkflowHeartbeatInterval = 15
	defaultWorkflowHeartbeatTimeout  = 120
	defaultDispatchStream            = "VIDEOS"
	defaultDispatchSubject           = "videos.analyze"
	defaultDispatchDurable           = "vidlens"
	defaultNotifyRequestTimeout      = 10
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:     defaultStateDir,
			WorkDir:      defaultWorkDir,
			ThumbnailDir: defaultThumbnailDir,
			LogDir:       defaultLogDir,
			QueueDB:      defaultQueueDB,
		},
		Motion: Motion{
			Threshold:        defaultMotionThreshold,
			BlurKernel:       defaultBlurKernel,
			PixelThreshold:   defaultPixelThreshold,
			BinaryValue:      defaultBinaryValue,
			Decoder:          defaultDecoder,
			ThumbnailWidth:   defaultThumbnailWidth,
			ThumbnailQuality: defaultThumbnailQuality,
		},
		Transcription: Transcription{
			Enabled:    true,
			Model:      defaultWhisperModel,
			ModelDir:   defaultModelDir(),
			Device:     defaultWhisperDevice,
			SampleRate: defaultSampleRate,
		},
		Classifier: Classifier{
			Strategy: defaultClassifierStrategy,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Analysis: Analysis{
			Motion:     true,
			Transcript: true,
		},
		Workflow: Workflow{
			Workers:           defaultWorkflowWorkers,
			QueuePollInterval: defaultQueuePollInterval,
			HeartbeatInterval: defaultWorkflowHeartbeatInterval,
			HeartbeatTimeout:  defaultWorkflowHeartbeatTimeout,
		},
		Dispatch: Dispatch{
			Stream:  defaultDispatchStream,
			Subject: defaultDispatchSubject,
			Durable: defaultDispatchDurable,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completed:      true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
