// Package deps reports whether the external binaries vidlens shells out to
// (ffmpeg, ffprobe, whisper) can be executed.
package deps
