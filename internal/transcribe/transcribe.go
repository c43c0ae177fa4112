package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"vidlens/internal/classify"
	"vidlens/internal/language"
	"vidlens/internal/logging"
	"vidlens/internal/services"
	"vidlens/internal/services/whisper"
)

const stageName = "transcript"

// Steps reported to StepFunc, in order.
const (
	StepExtract   = "extracting audio"
	StepRecognize = "recognizing speech"
	StepClassify  = "classifying content"
)

// Segment is recognized speech with its detected language. Start and End are
// seconds and stay zero when the engine does not report timing.
type Segment struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Start    float64 `json:"start,omitempty"`
	End      float64 `json:"end,omitempty"`
}

// Transcript is a single segment spanning the whole audio track, plus the
// engine's timed spans when available.
type Transcript struct {
	Segment
	Spans []Segment `json:"segments,omitempty"`
}

// LanguageName returns the English display name of the detected language.
func (t *Transcript) LanguageName() string {
	if t == nil {
		return language.DisplayName("")
	}
	return language.DisplayName(t.Language)
}

// AudioExtractor demuxes the audio track of a video into a WAV file.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, source, dest string) error
}

// Recognizer turns a WAV file into text.
type Recognizer interface {
	Transcribe(ctx context.Context, audioPath, outputDir string) (whisper.Result, error)
}

// StepFunc is notified as each step starts.
type StepFunc func(step string)

// Options wires an Extractor.
type Options struct {
	Audio      AudioExtractor
	Recognizer Recognizer
	// Classifier defaults to classify.Placeholder.
	Classifier classify.ContentClassifier
	// WorkDir holds the per-call temp directories. Empty uses os.TempDir.
	WorkDir string
	Logger  *slog.Logger
}

// Extractor runs audio extraction, recognition and classification for one
// video at a time per call; calls may run concurrently.
type Extractor struct {
	audio      AudioExtractor
	recognizer Recognizer
	classifier classify.ContentClassifier
	workDir    string
	logger     *slog.Logger
}

// New validates opts and returns an Extractor.
func New(opts Options) (*Extractor, error) {
	if opts.Audio == nil || opts.Recognizer == nil {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "init", "audio extractor and recognizer are required", nil)
	}
	classifier := opts.Classifier
	if classifier == nil {
		classifier = classify.NewPlaceholder()
	}
	return &Extractor{
		audio:      opts.Audio,
		recognizer: opts.Recognizer,
		classifier: classifier,
		workDir:    strings.TrimSpace(opts.WorkDir),
		logger:     logging.NewComponentLogger(opts.Logger, stageName),
	}, nil
}

// NewFromModel wires an Extractor around a shared whisper model.
func NewFromModel(model *whisper.Model, classifier classify.ContentClassifier, workDir string, logger *slog.Logger) (*Extractor, error) {
	return New(Options{Audio: model, Recognizer: model, Classifier: classifier, WorkDir: workDir, Logger: logger})
}

// Transcribe extracts, recognizes and classifies the speech in path.
func (e *Extractor) Transcribe(ctx context.Context, path string) (*Transcript, []classify.Flag, error) {
	return e.TranscribeWithProgress(ctx, path, nil)
}

// TranscribeWithProgress is Transcribe with step notifications. The temp
// directory holding the extracted audio is removed before it returns.
func (e *Extractor) TranscribeWithProgress(ctx context.Context, path string, step StepFunc) (*Transcript, []classify.Flag, error) {
	logger := logging.WithContext(ctx, e.logger)
	notify := func(name string) {
		if step != nil {
			step(name)
		}
	}

	tempDir, err := e.makeTempDir()
	if err != nil {
		return nil, nil, services.Wrap(services.ErrAudioExtraction, stageName, "temp dir", "", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(tempDir); rmErr != nil {
			logger.Warn("failed to remove transcription temp dir",
				logging.String("path", tempDir),
				logging.Error(rmErr),
				logging.String(logging.FieldEventType, "temp_cleanup_failed"),
			)
		}
	}()

	notify(StepExtract)
	audioPath := filepath.Join(tempDir, "audio.wav")
	if err := e.audio.ExtractAudio(ctx, path, audioPath); err != nil {
		return nil, nil, stepError(ctx, services.ErrAudioExtraction, "extract audio", err)
	}

	notify(StepRecognize)
	result, err := e.recognizer.Transcribe(ctx, audioPath, tempDir)
	if err != nil {
		return nil, nil, stepError(ctx, services.ErrTranscription, "recognize", err)
	}
	transcript := &Transcript{Segment: Segment{
		Text:     strings.TrimSpace(result.Text),
		Language: result.Language,
	}}
	for _, span := range result.Segments {
		transcript.Spans = append(transcript.Spans, Segment{
			Text:     span.Text,
			Language: result.Language,
			Start:    span.Start,
			End:      span.End,
		})
	}
	if n := len(transcript.Spans); n > 0 {
		transcript.Start = transcript.Spans[0].Start
		transcript.End = transcript.Spans[n-1].End
	}

	notify(StepClassify)
	flags, err := e.classifier.Classify(ctx, transcript.Text)
	if err != nil {
		return nil, nil, stepError(ctx, services.ErrClassification, "classify", err)
	}
	for _, flag := range flags {
		if flag.Confidence < 0 || flag.Confidence > 1 || flag.Confidence != flag.Confidence {
			return nil, nil, services.Wrap(services.ErrClassification, stageName, "classify",
				fmt.Sprintf("confidence %v outside [0,1] for %q", flag.Confidence, flag.ContentType), nil)
		}
	}

	logger.Info("transcription complete",
		logging.String("language", transcript.Language),
		logging.Int("characters", len(transcript.Text)),
		logging.Int("flags", len(flags)),
	)
	return transcript, flags, nil
}

func (e *Extractor) makeTempDir() (string, error) {
	base := e.workDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", err
	}
	return os.MkdirTemp(base, "transcribe-*")
}

// stepError tags err with marker unless the failure came from cancellation,
// in which case the context error is kept as the cause.
func stepError(ctx context.Context, marker error, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	if ctx.Err() != nil {
		return services.Wrap(services.ErrTransient, stageName, op, "interrupted", err)
	}
	return services.Wrap(marker, stageName, op, "", err)
}
