// Package transcribe produces the transcript section of an analysis: it
// demuxes the audio track to a temporary WAV file, runs speech recognition,
// and applies a content classifier to the recognized text.
package transcribe
