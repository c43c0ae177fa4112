package whisper

import (
	"strings"

	"vidlens/internal/config"
)

// Defaults applied when Config fields are empty.
const (
	DefaultBinary     = "whisper"
	DefaultModel      = "base"
	DefaultSampleRate = 16000
	FFmpegCommand     = "ffmpeg"
	CPUDevice         = "cpu"
	CUDADevice        = "cuda"
	OutputFormat      = "json"
)

// Config captures runtime settings for audio extraction and recognition.
type Config struct {
	Binary       string
	FFmpegBinary string
	Model        string
	ModelDir     string
	// Language forces the spoken language. Empty lets the engine detect it.
	Language   string
	Device     string
	SampleRate int
}

// ConfigFromSettings maps the [transcription] section onto Config.
func ConfigFromSettings(cfg *config.Config) Config {
	return Config{
		Binary:       cfg.WhisperBinary(),
		FFmpegBinary: cfg.FFmpegBinary(),
		Model:        cfg.Transcription.Model,
		ModelDir:     cfg.Transcription.ModelDir,
		Language:     cfg.Transcription.Language,
		Device:       cfg.Transcription.Device,
		SampleRate:   cfg.Transcription.SampleRate,
	}
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Binary) == "" {
		c.Binary = DefaultBinary
	}
	if strings.TrimSpace(c.FFmpegBinary) == "" {
		c.FFmpegBinary = FFmpegCommand
	}
	if strings.TrimSpace(c.Model) == "" {
		c.Model = DefaultModel
	}
	if strings.TrimSpace(c.Device) == "" {
		c.Device = CPUDevice
	}
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	return c
}
