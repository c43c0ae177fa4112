package textutil

import "strings"

// SafeToken maps value to a file-name-safe token. ASCII letters and digits,
// hyphens and underscores are kept with their case; every other rune becomes
// an underscore. Blank input yields fallback.
func SafeToken(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, value)
}
