package classify

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Keyword flags every sentence containing at least one configured word or
// phrase. Matching is case-folded and Unicode-normalized, on word boundaries.
// Confidence grows with the number of distinct keywords in the sentence:
// hits / (hits + 1).
type Keyword struct {
	keywords      []string
	minConfidence float64
	Now           Clock
}

// NewKeyword builds a keyword classifier. At least one non-blank keyword is required.
func NewKeyword(keywords []string, minConfidence float64) (*Keyword, error) {
	k := &Keyword{
		minConfidence: clampConfidence(minConfidence),
		Now:           utcNow,
	}
	seen := make(map[string]struct{}, len(keywords))
	for _, word := range keywords {
		folded := k.normalize(word)
		if folded == "" {
			continue
		}
		if _, ok := seen[folded]; ok {
			continue
		}
		seen[folded] = struct{}{}
		k.keywords = append(k.keywords, folded)
	}
	if len(k.keywords) == 0 {
		return nil, errors.New("keyword classifier requires at least one keyword")
	}
	return k, nil
}

// normalize folds case, applies NFKC and collapses everything that is not a
// letter or digit to single spaces, so "Fight!" and "ＦＩＧＨＴ" both become "fight".
func (k *Keyword) normalize(text string) string {
	// Casers are stateful; build one per call so Classify is goroutine safe.
	folded := cases.Fold().String(norm.NFKC.String(text))
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	return strings.Join(fields, " ")
}

func (k *Keyword) Classify(ctx context.Context, text string) ([]Flag, error) {
	var flags []Flag
	for _, sentence := range splitSentences(text) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		padded := " " + k.normalize(sentence) + " "
		hits := 0
		for _, keyword := range k.keywords {
			if strings.Contains(padded, " "+keyword+" ") {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		confidence := float64(hits) / float64(hits+1)
		if confidence < k.minConfidence {
			continue
		}
		flags = append(flags, Flag{
			ContentType: ContentKeyword,
			TextSpan:    sentence,
			Confidence:  confidence,
			DetectedAt:  k.Now(),
		})
	}
	return flags, nil
}

// splitSentences breaks text after '.', '!', '?' and newlines, trimming each part.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}
	for _, r := range text {
		if r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			flush()
		}
	}
	flush()
	return sentences
}
