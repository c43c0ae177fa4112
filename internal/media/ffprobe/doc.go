// Package ffprobe wraps the ffprobe CLI and decodes its JSON output into typed
// stream and container metadata (frame rate, frame count, dimensions,
// duration) used to open videos for analysis.
package ffprobe
