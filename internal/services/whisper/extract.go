package whisper

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// ExtractAudioArgs builds the ffmpeg arguments that demux source into a mono
// PCM WAV at sampleRate.
func ExtractAudioArgs(source, dest string, sampleRate int) []string {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-i", source,
		"-map", "0:a:0",
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-c:a", "pcm_s16le",
		dest,
	}
}

// ExtractAudio writes the first audio stream of source to dest.
func (m *Model) ExtractAudio(ctx context.Context, source, dest string) error {
	if source == "" || dest == "" {
		return errors.New("extract audio: source and destination required")
	}
	args := ExtractAudioArgs(source, dest, m.cfg.SampleRate)
	if _, err := m.run(ctx, m.cfg.FFmpegBinary, args...); err != nil {
		return fmt.Errorf("ffmpeg extract: %w", err)
	}
	return nil
}
