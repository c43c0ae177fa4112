// Package whisper wraps the whisper speech recognition CLI and the ffmpeg
// audio demux that feeds it.
//
// Model is the process-owned recognizer handle: it is created unloaded,
// resolves its binary and model directory on first use, is shared by every
// transcription in the process, and is closed at shutdown. Extraction
// produces mono 16-bit PCM WAV at the configured sample rate (16 kHz by
// default). Recognition output is read from the engine's JSON file.
package whisper
