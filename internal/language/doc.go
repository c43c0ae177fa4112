// Package language normalizes the language identifiers reported by the
// transcriber and accepted in configuration, backed by golang.org/x/text.
package language
