//go:build gocv

package video

import (
	"context"
	"image"
	"io"

	"gocv.io/x/gocv"

	"vidlens/internal/services"
)

type captureOpener struct {
	scaleWidth int
}

func newCaptureOpener(scaleWidth int) (Opener, error) {
	return &captureOpener{scaleWidth: scaleWidth}, nil
}

func (o *captureOpener) Open(_ context.Context, path string) (Source, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrVideoUnreadable, "video", "open", path, err)
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, services.Wrap(services.ErrVideoUnreadable, "video", "open", "capture not opened: "+path, nil)
	}
	nativeW := int(capture.Get(gocv.VideoCaptureFrameWidth))
	nativeH := int(capture.Get(gocv.VideoCaptureFrameHeight))
	width, height := scaledSize(nativeW, nativeH, o.scaleWidth)
	frames := capture.Get(gocv.VideoCaptureFrameCount)
	if frames < 0 {
		frames = 0
	}
	return &captureSource{
		capture: capture,
		frame:   gocv.NewMat(),
		scaled:  gocv.NewMat(),
		resize:  width != nativeW || height != nativeH,
		info: Info{
			Path:       path,
			FPS:        capture.Get(gocv.VideoCaptureFPS),
			FrameCount: int64(frames),
			Width:      width,
			Height:     height,
		},
	}, nil
}

type captureSource struct {
	capture *gocv.VideoCapture
	frame   gocv.Mat
	scaled  gocv.Mat
	resize  bool
	info    Info
}

func (s *captureSource) Info() Info { return s.info }

func (s *captureSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := s.capture.Read(&s.frame); !ok || s.frame.Empty() {
		return nil, io.EOF
	}
	mat := s.frame
	if s.resize {
		gocv.Resize(s.frame, &s.scaled, image.Pt(s.info.Width, s.info.Height), 0, 0, gocv.InterpolationArea)
		mat = s.scaled
	}
	img, err := mat.ToImage()
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "video", "convert frame", "", err)
	}
	return img, nil
}

func (s *captureSource) Close() error {
	_ = s.frame.Close()
	_ = s.scaled.Close()
	return s.capture.Close()
}
