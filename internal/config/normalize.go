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
	c.normalizeMotion()
	if err := c.normalizeTranscription(); err != nil {
		return err
	}
	c.normalizeClassifier()
	c.normalizeLLM()
	c.normalizeWorkflow()
	c.normalizeDispatch()
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.ThumbnailDir, err = expandPath(c.Paths.ThumbnailDir); err != nil {
		return fmt.Errorf("paths.thumbnail_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.QueueDB, err = expandPath(c.Paths.QueueDB); err != nil {
		return fmt.Errorf("paths.queue_db: %w", err)
	}
	return nil
}

func (c *Config) normalizeMotion() {
	if c.Motion.BinaryValue <= 0 {
		c.Motion.BinaryValue = defaultBinaryValue
	}
	c.Motion.Decoder = strings.ToLower(strings.TrimSpace(c.Motion.Decoder))
	if c.Motion.Decoder == "" {
		c.Motion.Decoder = defaultDecoder
	}
	if c.Motion.ThumbnailQuality <= 0 {
		c.Motion.ThumbnailQuality = defaultThumbnailQuality
	}
}

func (c *Config) normalizeTranscription() error {
	c.Transcription.FFmpegBinary = strings.TrimSpace(c.Transcription.FFmpegBinary)
	c.Transcription.FFprobeBinary = strings.TrimSpace(c.Transcription.FFprobeBinary)
	c.Transcription.WhisperBinary = strings.TrimSpace(c.Transcription.WhisperBinary)
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultWhisperModel
	}
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))
	c.Transcription.Device = strings.ToLower(strings.TrimSpace(c.Transcription.Device))
	if c.Transcription.Device == "" {
		c.Transcription.Device = defaultWhisperDevice
	}
	if c.Transcription.SampleRate <= 0 {
		c.Transcription.SampleRate = defaultSampleRate
	}
	if strings.TrimSpace(c.Transcription.ModelDir) == "" {
		c.Transcription.ModelDir = defaultModelDir()
	}
	var err error
	if c.Transcription.ModelDir, err = expandPath(c.Transcription.ModelDir); err != nil {
		return fmt.Errorf("transcription.model_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeClassifier() {
	c.Classifier.Strategy = strings.ToLower(strings.TrimSpace(c.Classifier.Strategy))
	if c.Classifier.Strategy == "" {
		c.Classifier.Strategy = defaultClassifierStrategy
	}
	if len(c.Classifier.Keywords) == 0 {
		return
	}
	keywords := make([]string, 0, len(c.Classifier.Keywords))
	seen := make(map[string]struct{}, len(c.Classifier.Keywords))
	for _, word := range c.Classifier.Keywords {
		normalized := strings.ToLower(strings.TrimSpace(word))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		keywords = append(keywords, normalized)
	}
	c.Classifier.Keywords = keywords
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = defaultWorkflowWorkers
	}
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaultWorkflowHeartbeatInterval
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		c.Workflow.HeartbeatTimeout = defaultWorkflowHeartbeatTimeout
	}
}

func (c *Config) normalizeDispatch() {
	c.Dispatch.NATSURL = strings.TrimSpace(c.Dispatch.NATSURL)
	if c.Dispatch.NATSURL == "" {
		if value, ok := os.LookupEnv("NATS_URL"); ok {
			c.Dispatch.NATSURL = strings.TrimSpace(value)
		}
	}
	c.Dispatch.Stream = strings.TrimSpace(c.Dispatch.Stream)
	if c.Dispatch.Stream == "" {
		c.Dispatch.Stream = defaultDispatchStream
	}
	c.Dispatch.Subject = strings.TrimSpace(c.Dispatch.Subject)
	if c.Dispatch.Subject == "" {
		c.Dispatch.Subject = defaultDispatchSubject
	}
	c.Dispatch.Durable = strings.TrimSpace(c.Dispatch.Durable)
	if c.Dispatch.Durable == "" {
		c.Dispatch.Durable = defaultDispatchDurable
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" || format == "text" {
		format = defaultLogFormat
	}
	c.Logging.Format = format
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
