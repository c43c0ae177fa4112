package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Bibliographic ISO 639-2 codes and English words that BCP 47 parsing does
// not accept directly. Whisper reports languages as lowercase English names.
var aliases = map[string]string{
	"fre":        "fr",
	"ger":        "de",
	"dut":        "nl",
	"chi":        "zh",
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"russian":    "ru",
	"arabic":     "ar",
	"hindi":      "hi",
	"dutch":      "nl",
	"polish":     "pl",
	"swedish":    "sv",
	"danish":     "da",
	"norwegian":  "no",
	"finnish":    "fi",
}

// Parse resolves a language code, BCP 47 tag, or English language name.
func Parse(value string) (language.Tag, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return language.Und, false
	}
	if alias, ok := aliases[value]; ok {
		value = alias
	}
	tag, err := language.Parse(value)
	if err != nil || tag == language.Und {
		return language.Und, false
	}
	return tag, true
}

// ToISO2 returns the ISO 639-1 base code for value, or "" when unknown.
func ToISO2(value string) string {
	tag, ok := Parse(value)
	if !ok {
		return ""
	}
	base, _ := tag.Base()
	code := base.String()
	if len(code) != 2 {
		return ""
	}
	return code
}

// ToISO3 returns the ISO 639-2 code for value, or "und" when unknown.
func ToISO3(value string) string {
	tag, ok := Parse(value)
	if !ok {
		return "und"
	}
	base, _ := tag.Base()
	return base.ISO3()
}

// DisplayName returns the English name for value. Empty input yields
// "Unknown"; unrecognized input is returned uppercased.
func DisplayName(value string) string {
	if strings.TrimSpace(value) == "" {
		return "Unknown"
	}
	tag, ok := Parse(value)
	if !ok {
		return strings.ToUpper(strings.TrimSpace(value))
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return strings.ToUpper(strings.TrimSpace(value))
}

// NormalizeList deduplicates values, mapping recognized entries to ISO 639-1.
func NormalizeList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		code := ToISO2(value)
		if code == "" {
			code = strings.ToLower(strings.TrimSpace(value))
		}
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		normalized = append(normalized, code)
	}
	return normalized
}
