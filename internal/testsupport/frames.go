package testsupport

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"sync/atomic"

	"vidlens/internal/media/video"
)

// FrameSource is an in-memory video.Source.
type FrameSource struct {
	info   video.Info
	frames []image.Image
	// FailAt makes Next return FailErr at that frame index (when > 0).
	FailAt  int
	FailErr error
	pos     int
	closed  atomic.Bool
	// OnNext runs before every Next call; tests use it to cancel mid-stream.
	OnNext func(index int)
}

// NewFrameSource wraps frames with the given fps. FrameCount defaults to
// len(frames); override it via SetFrameCount to simulate bad metadata.
func NewFrameSource(fps float64, frames ...image.Image) *FrameSource {
	info := video.Info{Path: "memory", FPS: fps, FrameCount: int64(len(frames))}
	if len(frames) > 0 {
		b := frames[0].Bounds()
		info.Width, info.Height = b.Dx(), b.Dy()
	}
	return &FrameSource{info: info, frames: frames}
}

// SetFrameCount overrides the reported frame count.
func (s *FrameSource) SetFrameCount(n int64) { s.info.FrameCount = n }

// Closed reports whether Close was called.
func (s *FrameSource) Closed() bool { return s.closed.Load() }

func (s *FrameSource) Info() video.Info { return s.info }

func (s *FrameSource) Next(ctx context.Context) (image.Image, error) {
	if s.OnNext != nil {
		s.OnNext(s.pos)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.FailAt > 0 && s.pos == s.FailAt {
		s.pos++
		if s.FailErr != nil {
			return nil, s.FailErr
		}
		return nil, errors.New("synthetic decode failure")
	}
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	frame := s.frames[s.pos]
	s.pos++
	return frame, nil
}

func (s *FrameSource) Close() error {
	s.closed.Store(true)
	return nil
}

// SolidFrame returns a w x h RGBA image filled with a single gray level.
func SolidFrame(w, h int, level uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c := color.RGBA{R: level, G: level, B: level, A: 255}
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// StaticFrames returns n references to the same solid frame.
func StaticFrames(n, w, h int, level uint8) []image.Image {
	frame := SolidFrame(w, h, level)
	frames := make([]image.Image, n)
	for i := range frames {
		frames[i] = frame
	}
	return frames
}

// AlternatingFrames returns n frames flipping between black and white.
func AlternatingFrames(n, w, h int) []image.Image {
	black := SolidFrame(w, h, 0)
	white := SolidFrame(w, h, 255)
	frames := make([]image.Image, n)
	for i := range frames {
		if i%2 == 0 {
			frames[i] = black
		} else {
			frames[i] = white
		}
	}
	return frames
}

// StaticOpener returns an Opener that hands out src for every path.
func StaticOpener(src video.Source) video.Opener {
	return video.OpenerFunc(func(context.Context, string) (video.Source, error) {
		return src, nil
	})
}
