package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and file locations.
type Paths struct {
	StateDir     string `toml:"state_dir"`
	WorkDir      string `toml:"work_dir"`
	ThumbnailDir string `toml:"thumbnail_dir"`
	LogDir       string `toml:"log_dir"`
	QueueDB      string `toml:"queue_db"`
}

// Motion contains the frame-differencing parameters.
type Motion struct {
	// Threshold is the sample value a frame must exceed to count as motion.
	Threshold int64 `toml:"threshold"`
	// BlurKernel is the Gaussian kernel edge length in pixels. Must be odd.
	BlurKernel int `toml:"blur_kernel"`
	// PixelThreshold is the absolute intensity difference (0-255) a pixel must
	// exceed before it contributes to a sample.
	PixelThreshold int `toml:"pixel_threshold"`
	// BinaryValue is what a changed pixel contributes to a sample. 255 matches
	// the historical 8-bit mask sums; 1 counts changed pixels.
	BinaryValue int `toml:"binary_value"`
	// AnalysisWidth downscales frames before differencing. 0 keeps the
	// native resolution.
	AnalysisWidth int `toml:"analysis_width"`
	// Decoder selects the frame source: ffmpeg (default) or gocv.
	Decoder          string `toml:"decoder"`
	Pipelined        bool   `toml:"pipelined"`
	ThumbnailWidth   int    `toml:"thumbnail_width"`
	ThumbnailQuality int    `toml:"thumbnail_quality"`
}

// Transcription contains configuration for audio extraction and speech recognition.
type Transcription struct {
	Enabled       bool   `toml:"enabled"`
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	WhisperBinary string `toml:"whisper_binary"`
	Model         string `toml:"model"`
	ModelDir      string `toml:"model_dir"`
	Language      string `toml:"language"`
	Device        string `toml:"device"`
	SampleRate    int    `toml:"sample_rate"`
}

// Classifier selects the content classification strategy.
type Classifier struct {
	Strategy      string   `toml:"strategy"`
	Keywords      []string `toml:"keywords"`
	MinConfidence float64  `toml:"min_confidence"`
}

// LLM contains LLM connection settings used by the llm classifier strategy.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Analysis controls which extractors run by default.
type Analysis struct {
	Motion     bool `toml:"motion"`
	Transcript bool `toml:"transcript"`
	Concurrent bool `toml:"concurrent"`
}

// Workflow contains configuration for daemon timing and concurrency.
type Workflow struct {
	Workers           int `toml:"workers"`
	QueuePollInterval int `toml:"queue_poll_interval"`
	HeartbeatInterval int `toml:"heartbeat_interval"`
	HeartbeatTimeout  int `toml:"heartbeat_timeout"`
}

// Dispatch contains the NATS JetStream intake settings. An empty URL disables intake.
type Dispatch struct {
	NATSURL string `toml:"nats_url"`
	Stream  string `toml:"stream"`
	Subject string `toml:"subject"`
	Durable string `toml:"durable"`
}

// Metrics contains the Prometheus listener settings. An empty bind disables it.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for vidlens.
//
// Configuration sections by subsystem:
//   - Paths: state, work, thumbnail and log directories plus the queue database
//   - Motion: frame differencing thresholds and thumbnail output
//   - Transcription: ffmpeg/whisper binaries and model selection
//   - Classifier: content flag strategy (placeholder, keyword, llm)
//   - LLM: connection settings for the llm classifier
//   - Analysis: default extractor selection
//   - Workflow: daemon workers, polling and heartbeat
//   - Dispatch: NATS JetStream job intake
//   - Metrics: Prometheus listener
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Motion        Motion        `toml:"motion"`
	Transcription Transcription `toml:"transcription"`
	Classifier    Classifier    `toml:"classifier"`
	LLM           LLM           `toml:"llm"`
	Analysis      Analysis      `toml:"analysis"`
	Workflow      Workflow      `toml:"workflow"`
	Dispatch      Dispatch      `toml:"dispatch"`
	Metrics       Metrics       `toml:"metrics"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vidlens.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon and CLI operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.Paths.WorkDir, c.Paths.ThumbnailDir, c.Paths.LogDir}
	if c.Paths.QueueDB != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.QueueDB))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "vidlens.lock")
}

// JobLockDir returns the directory holding per-job lock files.
func (c *Config) JobLockDir() string {
	return filepath.Join(c.Paths.StateDir, "locks")
}

// FFmpegBinary returns the ffmpeg executable used for decoding and audio extraction.
func (c *Config) FFmpegBinary() string {
	if v := strings.TrimSpace(c.Transcription.FFmpegBinary); v != "" {
		return v
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for container inspection.
func (c *Config) FFprobeBinary() string {
	if v := strings.TrimSpace(c.Transcription.FFprobeBinary); v != "" {
		return v
	}
	return "ffprobe"
}

// WhisperBinary returns the speech recognition executable.
func (c *Config) WhisperBinary() string {
	if v := strings.TrimSpace(c.Transcription.WhisperBinary); v != "" {
		return v
	}
	return "whisper"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultModelDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "vidlens", "models")
	}
	return "~/.cache/vidlens/models"
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the LLM settings handed to the classifier client.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the LLM connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
