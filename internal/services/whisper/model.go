package whisper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"vidlens/internal/language"
	"vidlens/internal/logging"
)

// ErrClosed is returned by a Model after Close.
var ErrClosed = errors.New("whisper model closed")

// Segment is one timed span of recognized speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the recognizer output for one audio file.
type Result struct {
	Text     string
	Language string
	Segments []Segment
}

type payload struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Model is a process-wide handle on the speech recognizer. A successful Load
// is kept for the life of the handle; a failed one is retried on the next
// call. After Close every call fails with ErrClosed.
type Model struct {
	cfg    Config
	run    Runner
	lookup func(string) (string, error)
	logger *slog.Logger

	loadMu sync.Mutex
	binary string

	mu     sync.RWMutex
	closed bool
}

// Option customizes a Model.
type Option func(*Model)

// WithRunner overrides command execution (tests).
func WithRunner(run Runner) Option {
	return func(m *Model) {
		if run != nil {
			m.run = run
		}
	}
}

// WithLookPath overrides executable resolution (tests).
func WithLookPath(lookup func(string) (string, error)) Option {
	return func(m *Model) {
		if lookup != nil {
			m.lookup = lookup
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Model) {
		m.logger = logger
	}
}

// NewModel returns an unloaded handle. Nothing touches the filesystem until
// Load or Transcribe.
func NewModel(cfg Config, opts ...Option) *Model {
	m := &Model{
		cfg:    cfg.withDefaults(),
		run:    execRunner,
		lookup: exec.LookPath,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "whisper")
	return m
}

// Name returns the configured model name.
func (m *Model) Name() string {
	return m.cfg.Model
}

// Load resolves the recognizer binary and prepares the model directory.
func (m *Model) Load(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	_, err := m.ensureLoaded(ctx)
	return err
}

func (m *Model) ensureLoaded(ctx context.Context) (string, error) {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	if m.binary != "" {
		return m.binary, nil
	}
	binary, err := m.lookup(m.cfg.Binary)
	if err != nil {
		return "", fmt.Errorf("locate %s: %w", m.cfg.Binary, err)
	}
	if dir := strings.TrimSpace(m.cfg.ModelDir); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create model dir: %w", err)
		}
	}
	m.binary = binary
	logging.WithContext(ctx, m.logger).Info("speech model ready",
		logging.String("model", m.cfg.Model),
		logging.String("device", m.cfg.Device),
		logging.String("binary", binary),
	)
	return binary, nil
}

// Transcribe recognizes speech in audioPath. The engine writes its JSON
// output under outputDir, which the caller owns.
func (m *Model) Transcribe(ctx context.Context, audioPath, outputDir string) (Result, error) {
	var result Result
	if audioPath == "" || outputDir == "" {
		return result, errors.New("transcribe: audio path and output dir required")
	}
	if err := m.checkOpen(); err != nil {
		return result, err
	}
	binary, err := m.ensureLoaded(ctx)
	if err != nil {
		return result, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return result, ErrClosed
	}

	if _, err := m.run(ctx, binary, m.buildArgs(audioPath, outputDir)...); err != nil {
		return result, fmt.Errorf("whisper: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return loadResult(filepath.Join(outputDir, base+".json"))
}

func (m *Model) buildArgs(audioPath, outputDir string) []string {
	args := []string{
		audioPath,
		"--model", m.cfg.Model,
		"--output_format", OutputFormat,
		"--output_dir", outputDir,
		"--device", m.cfg.Device,
		"--verbose", "False",
	}
	if dir := strings.TrimSpace(m.cfg.ModelDir); dir != "" {
		args = append(args, "--model_dir", dir)
	}
	if m.cfg.Device == CPUDevice {
		args = append(args, "--fp16", "False")
	}
	if lang := language.ToISO2(m.cfg.Language); lang != "" {
		args = append(args, "--language", lang)
	}
	return args
}

func loadResult(path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read whisper output: %w", err)
	}
	var parsed payload
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Result{}, fmt.Errorf("parse whisper json: %w", err)
	}
	text := strings.TrimSpace(parsed.Text)
	if text == "" {
		parts := make([]string, 0, len(parsed.Segments))
		for _, seg := range parsed.Segments {
			if t := strings.TrimSpace(seg.Text); t != "" {
				parts = append(parts, t)
			}
		}
		text = strings.Join(parts, " ")
	}
	for i := range parsed.Segments {
		parsed.Segments[i].Text = strings.TrimSpace(parsed.Segments[i].Text)
	}
	return Result{
		Text:     text,
		Language: language.ToISO2(parsed.Language),
		Segments: parsed.Segments,
	}, nil
}

func (m *Model) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close releases the handle. In-flight Transcribe calls finish first.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.logger.Debug("speech model closed", logging.String("model", m.cfg.Model))
	return nil
}
