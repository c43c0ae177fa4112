// Package services defines shared utilities consumed by the analysis pipeline,
// the workflow manager, and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper. Markers identify the
//     failure kind (unreadable video, audio extraction, transcription...) and
//     survive wrapping so callers classify with errors.Is or KindOf.
//
// Use these helpers when wiring new pipeline logic so failure reporting stays
// uniform across extractors.
package services
