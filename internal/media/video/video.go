package video

import (
	"context"
	"fmt"
	"image"
	"strings"
)

// Info describes the decodable video stream behind a Source.
type Info struct {
	Path       string
	Codec      string
	FPS        float64
	FrameCount int64
	Width      int
	Height     int
	HasAudio   bool
}

// Duration returns FrameCount / FPS in seconds, or 0 when FPS is unknown.
func (i Info) Duration() float64 {
	if i.FPS <= 0 {
		return 0
	}
	return float64(i.FrameCount) / i.FPS
}

// Source yields decoded frames in order. Next returns io.EOF after the last
// frame. Frames returned by Next are owned by the caller.
type Source interface {
	Info() Info
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// Opener opens a Source for a file path. Open fails with an error wrapping
// services.ErrVideoUnreadable when the file cannot be decoded at all.
type Opener interface {
	Open(ctx context.Context, path string) (Source, error)
}

// Prober reads stream metadata without starting a decoder.
type Prober interface {
	Probe(ctx context.Context, path string) (Info, error)
}

// Probe returns the Info for path. Openers that also implement Prober are
// asked directly; any other Opener is opened and closed again.
func Probe(ctx context.Context, opener Opener, path string) (Info, error) {
	if prober, ok := opener.(Prober); ok {
		return prober.Probe(ctx, path)
	}
	src, err := opener.Open(ctx, path)
	if err != nil {
		return Info{}, err
	}
	info := src.Info()
	_ = src.Close()
	return info, nil
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, path string) (Source, error)

// Open calls f(ctx, path).
func (f OpenerFunc) Open(ctx context.Context, path string) (Source, error) {
	return f(ctx, path)
}

// Options configures NewOpener.
type Options struct {
	Decoder       string
	FFmpegBinary  string
	FFprobeBinary string
	// ScaleWidth downscales decoded frames to this width, preserving aspect
	// ratio. 0 keeps the native size.
	ScaleWidth int
}

// NewOpener returns the frame source implementation selected by opts.Decoder.
func NewOpener(opts Options) (Opener, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Decoder)) {
	case "", "ffmpeg":
		return &FFmpegOpener{
			FFmpegBinary:  opts.FFmpegBinary,
			FFprobeBinary: opts.FFprobeBinary,
			ScaleWidth:    opts.ScaleWidth,
		}, nil
	case "gocv":
		return newCaptureOpener(opts.ScaleWidth)
	default:
		return nil, fmt.Errorf("unknown video decoder %q", opts.Decoder)
	}
}

// scaledSize returns the output size for a target width, keeping the height even.
func scaledSize(width, height, target int) (int, int) {
	if target <= 0 || width <= 0 || height <= 0 || target >= width {
		return width, height
	}
	h := int(float64(height)*float64(target)/float64(width) + 0.5)
	if h%2 != 0 {
		h++
	}
	return target, max(h, 2)
}
