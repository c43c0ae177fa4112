package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"vidlens/internal/logging"
	"vidlens/internal/services/llm"
)

// maxPromptRunes bounds the transcript excerpt sent to the model.
const maxPromptRunes = 12000

const contentFlagPrompt = `You review video transcripts for content that may need moderation.
Return JSON only, shaped as {"flags":[{"content_type":"...","text_span":"...","confidence":0.0}]}.
content_type is one short lowercase label such as profanity, violence, hate, sexual, drugs, self_harm or personal_data.
text_span must quote the transcript verbatim. confidence is between 0 and 1.
Return {"flags":[]} when nothing applies.`

// Completer is the subset of the llm client the classifier needs.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// LLM asks a chat model to flag transcript spans.
type LLM struct {
	client        Completer
	minConfidence float64
	logger        *slog.Logger
	Now           Clock
}

// NewLLM wraps client. Flags below minConfidence are dropped.
func NewLLM(client Completer, minConfidence float64, logger *slog.Logger) *LLM {
	return &LLM{
		client:        client,
		minConfidence: clampConfidence(minConfidence),
		logger:        logging.NewComponentLogger(logger, "classifier"),
		Now:           utcNow,
	}
}

type llmReply struct {
	Flags []struct {
		ContentType string  `json:"content_type"`
		TextSpan    string  `json:"text_span"`
		Confidence  float64 `json:"confidence"`
	} `json:"flags"`
}

func (c *LLM) Classify(ctx context.Context, text string) ([]Flag, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if runes := []rune(text); len(runes) > maxPromptRunes {
		text = string(runes[:maxPromptRunes])
	}
	content, err := c.client.CompleteJSON(ctx, contentFlagPrompt, text)
	if err != nil {
		return nil, err
	}
	var reply llmReply
	if err := llm.DecodeJSON(content, &reply); err != nil {
		return nil, fmt.Errorf("parse classifier reply: %w", err)
	}

	flags := make([]Flag, 0, len(reply.Flags))
	for _, item := range reply.Flags {
		contentType := strings.ToLower(strings.TrimSpace(item.ContentType))
		if contentType == "" {
			continue
		}
		confidence := clampConfidence(item.Confidence)
		if confidence < c.minConfidence {
			continue
		}
		flags = append(flags, Flag{
			ContentType: contentType,
			TextSpan:    strings.TrimSpace(item.TextSpan),
			Confidence:  confidence,
			DetectedAt:  c.Now(),
		})
	}
	logging.WithContext(ctx, c.logger).Debug("llm classification complete",
		logging.Int("flags", len(flags)),
		logging.Int("returned", len(reply.Flags)),
	)
	return flags, nil
}
