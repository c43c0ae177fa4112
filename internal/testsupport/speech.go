package testsupport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"vidlens/internal/services/whisper"
)

// FakeSpeech stands in for the ffmpeg demux and the whisper model. Extraction
// writes a small file at dest so callers can verify cleanup.
type FakeSpeech struct {
	Result        whisper.Result
	ExtractErr    error
	TranscribeErr error

	mu         sync.Mutex
	audioPaths []string
	sources    []string
}

func (f *FakeSpeech) ExtractAudio(ctx context.Context, source, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.sources = append(f.sources, source)
	f.audioPaths = append(f.audioPaths, dest)
	f.mu.Unlock()
	if f.ExtractErr != nil {
		return f.ExtractErr
	}
	return os.WriteFile(dest, []byte("RIFF"), 0o644)
}

func (f *FakeSpeech) Transcribe(ctx context.Context, audioPath, outputDir string) (whisper.Result, error) {
	if err := ctx.Err(); err != nil {
		return whisper.Result{}, err
	}
	if _, err := os.Stat(audioPath); err != nil {
		return whisper.Result{}, fmt.Errorf("audio missing: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, "audio.json"), []byte("{}"), 0o644); err != nil {
		return whisper.Result{}, err
	}
	if f.TranscribeErr != nil {
		return whisper.Result{}, f.TranscribeErr
	}
	return f.Result, nil
}

// AudioPaths returns every extraction destination seen so far.
func (f *FakeSpeech) AudioPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.audioPaths...)
}

// Sources returns every extraction source seen so far.
func (f *FakeSpeech) Sources() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sources...)
}
