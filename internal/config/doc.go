// Package config loads, normalizes, and validates vidlens configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENROUTER_API_KEY and NATS_URL. The Config type centralizes every knob the
// daemon, the analysis pipeline, and the CLI need, so motion thresholds,
// transcription binaries, and queue locations are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
