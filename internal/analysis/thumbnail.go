package analysis

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// ThumbnailWriter persists the first frame of a video as a JPEG.
type ThumbnailWriter struct {
	// Width is the maximum output width; wider frames are downscaled with
	// their aspect ratio kept. 0 keeps the native size.
	Width   int
	Quality int
}

// Write encodes img to path, replacing any existing file atomically.
func (w ThumbnailWriter) Write(img image.Image, path string) error {
	if img == nil {
		return fmt.Errorf("thumbnail: no frame")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("thumbnail: ensure dir: %w", err)
	}
	out := img
	if w.Width > 0 && img.Bounds().Dx() > w.Width {
		out = imaging.Resize(img, w.Width, 0, imaging.Lanczos)
	}
	quality := w.Quality
	if quality <= 0 || quality > 100 {
		quality = 85
	}

	tmp := path + ".tmp.jpg"
	if err := imaging.Save(out, tmp, imaging.JPEGQuality(quality)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("thumbnail: encode: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("thumbnail: rename: %w", err)
	}
	return nil
}
