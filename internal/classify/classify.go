package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vidlens/internal/config"
	"vidlens/internal/services/llm"
)

// Strategy names accepted in [classifier].strategy.
const (
	StrategyPlaceholder = "placeholder"
	StrategyKeyword     = "keyword"
	StrategyLLM         = "llm"
)

// Content types emitted by the built-in classifiers.
const (
	ContentText    = "text"
	ContentKeyword = "keyword"
)

// Flag marks a span of transcript text as belonging to a content category.
type Flag struct {
	ContentType string    `json:"content_type"`
	TextSpan    string    `json:"text_span"`
	Confidence  float64   `json:"confidence"`
	DetectedAt  time.Time `json:"detected_at"`
}

// ContentClassifier labels transcript text. Implementations must return
// confidences within [0, 1].
type ContentClassifier interface {
	Classify(ctx context.Context, text string) ([]Flag, error)
}

// Clock returns the detection timestamp for new flags.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

// New builds the classifier selected by cfg.Classifier.Strategy.
func New(cfg *config.Config, logger *slog.Logger) (ContentClassifier, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Classifier.Strategy)) {
	case "", StrategyPlaceholder:
		return NewPlaceholder(), nil
	case StrategyKeyword:
		return NewKeyword(cfg.Classifier.Keywords, cfg.Classifier.MinConfidence)
	case StrategyLLM:
		settings := cfg.GetLLM()
		client := llm.NewClient(llm.Config{
			APIKey:         settings.APIKey,
			BaseURL:        settings.BaseURL,
			Model:          settings.Model,
			Referer:        settings.Referer,
			Title:          settings.Title,
			TimeoutSeconds: settings.TimeoutSeconds,
		})
		return NewLLM(client, cfg.Classifier.MinConfidence, logger), nil
	default:
		return nil, fmt.Errorf("unknown classifier strategy %q", cfg.Classifier.Strategy)
	}
}

func clampConfidence(value float64) float64 {
	switch {
	case value != value:
		return 0
	case value < 0:
		return 0
	case value > 1:
		return 1
	default:
		return value
	}
}
