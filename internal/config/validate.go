package config

import (
	"errors"
	"fmt"
	"slices"
)

var classifierStrategies = []string{"placeholder", "keyword", "llm"}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateMotion(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateClassifier(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	if c.Paths.QueueDB == "" {
		return errors.New("paths.queue_db must be set")
	}
	return nil
}

func (c *Config) validateMotion() error {
	if c.Motion.Threshold < 0 {
		return errors.New("motion.threshold must be zero or positive")
	}
	if c.Motion.BlurKernel < 1 || c.Motion.BlurKernel%2 == 0 {
		return fmt.Errorf("motion.blur_kernel must be a positive odd number, got %d", c.Motion.BlurKernel)
	}
	if c.Motion.PixelThreshold < 0 || c.Motion.PixelThreshold > 254 {
		return errors.New("motion.pixel_threshold must be between 0 and 254")
	}
	if c.Motion.BinaryValue > 255 {
		return errors.New("motion.binary_value must be between 1 and 255")
	}
	if c.Motion.AnalysisWidth < 0 || c.Motion.AnalysisWidth%2 != 0 {
		return errors.New("motion.analysis_width must be zero (native) or a positive even number")
	}
	switch c.Motion.Decoder {
	case "ffmpeg", "gocv":
	default:
		return fmt.Errorf("motion.decoder must be ffmpeg or gocv, got %q", c.Motion.Decoder)
	}
	if c.Motion.ThumbnailWidth < 0 {
		return errors.New("motion.thumbnail_width must be zero (original size) or positive")
	}
	if c.Motion.ThumbnailQuality > 100 {
		return errors.New("motion.thumbnail_quality must be between 1 and 100")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	switch c.Transcription.Device {
	case "cpu", "cuda":
	default:
		return fmt.Errorf("transcription.device must be cpu or cuda, got %q", c.Transcription.Device)
	}
	return nil
}

func (c *Config) validateClassifier() error {
	if !slices.Contains(classifierStrategies, c.Classifier.Strategy) {
		return fmt.Errorf("classifier.strategy must be one of %v, got %q", classifierStrategies, c.Classifier.Strategy)
	}
	if c.Classifier.MinConfidence < 0 || c.Classifier.MinConfidence > 1 {
		return errors.New("classifier.min_confidence must be between 0 and 1")
	}
	if c.Classifier.Strategy == "keyword" && len(c.Classifier.Keywords) == 0 {
		return errors.New("classifier.keywords must list at least one word when strategy is keyword")
	}
	if c.Classifier.Strategy == "llm" && c.LLM.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("llm.api_key is required for the llm classifier. Set OPENROUTER_API_KEY env var or edit %s", defaultPath)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	if c.Workflow.Workers > 64 {
		return errors.New("workflow.workers must be 64 or fewer")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json", "color":
	default:
		return fmt.Errorf("logging.format must be console, json or color, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}
