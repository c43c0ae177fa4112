package motion

import (
	"errors"
	"fmt"

	"vidlens/internal/config"
)

// Options controls the differencing pipeline.
type Options struct {
	Threshold      int64
	BlurKernel     int
	PixelThreshold int
	BinaryValue    int64
	// Pipelined overlaps frame decoding with blur/diff work.
	Pipelined bool
	// KeepSamples retains the per-frame sample slice on the Profile.
	KeepSamples bool
}

// DefaultOptions mirrors the historical analyzer: 21x21 blur, pixel delta 25,
// 255 per changed pixel, motion above 1000.
func DefaultOptions() Options {
	return Options{
		Threshold:      1000,
		BlurKernel:     21,
		PixelThreshold: 25,
		BinaryValue:    255,
		KeepSamples:    true,
	}
}

// OptionsFromConfig maps the [motion] section onto Options.
func OptionsFromConfig(cfg config.Motion) Options {
	return Options{
		Threshold:      cfg.Threshold,
		BlurKernel:     cfg.BlurKernel,
		PixelThreshold: cfg.PixelThreshold,
		BinaryValue:    int64(cfg.BinaryValue),
		Pipelined:      cfg.Pipelined,
		KeepSamples:    true,
	}
}

// Validate reports options the profiler cannot run with.
func (o Options) Validate() error {
	if o.Threshold < 0 {
		return errors.New("motion threshold must not be negative")
	}
	if o.BlurKernel < 1 || o.BlurKernel%2 == 0 {
		return fmt.Errorf("blur kernel must be a positive odd number, got %d", o.BlurKernel)
	}
	if o.PixelThreshold < 0 || o.PixelThreshold > 254 {
		return fmt.Errorf("pixel threshold must be within 0-254, got %d", o.PixelThreshold)
	}
	if o.BinaryValue < 1 || o.BinaryValue > 255 {
		return fmt.Errorf("binary value must be within 1-255, got %d", o.BinaryValue)
	}
	return nil
}
