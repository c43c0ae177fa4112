package motion

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"reflect"
	"testing"

	"vidlens/internal/logging"
	"vidlens/internal/services"
	"vidlens/internal/testsupport"
)

func newTestProfiler(t *testing.T, mutate func(*Options)) *Profiler {
	t.Helper()
	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	profiler, err := NewProfiler(opts, logging.NewNop())
	if err != nil {
		t.Fatalf("NewProfiler: %v", err)
	}
	return profiler
}

func movingSquareFrames(n, size, square int) []image.Image {
	frames := make([]image.Image, n)
	for i := range frames {
		img := image.NewRGBA(image.Rect(0, 0, size, size))
		offset := (i * 3) % (size - square)
		for y := range size {
			for x := range size {
				c := color.RGBA{A: 255}
				if x >= offset && x < offset+square && y >= offset && y < offset+square {
					c = color.RGBA{R: 240, G: 200, B: 180, A: 255}
				}
				img.SetRGBA(x, y, c)
			}
		}
		frames[i] = img
	}
	return frames
}

func TestProfileStaticVideoHasNoMotion(t *testing.T) {
	src := testsupport.NewFrameSource(30, testsupport.StaticFrames(300, 8, 8, 128)...)
	profile, err := newTestProfiler(t, nil).Profile(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if profile.Duration() != 10 {
		t.Fatalf("expected duration 10, got %v", profile.Duration())
	}
	if profile.FrameCount != 300 || profile.FramesProcessed != 300 {
		t.Fatalf("unexpected frame counts: %+v", profile)
	}
	if profile.MotionPercentage != 0 {
		t.Fatalf("expected 0%% motion, got %v", profile.MotionPercentage)
	}
	if profile.Min != 0 || profile.Max != 0 || profile.Mean != 0 {
		t.Fatalf("expected zero intensity, got min=%d max=%d mean=%v", profile.Min, profile.Max, profile.Mean)
	}
	if len(profile.Samples) != 299 {
		t.Fatalf("expected 299 samples, got %d", len(profile.Samples))
	}
	if profile.Truncated {
		t.Fatal("static video should not be truncated")
	}
}

func TestProfileAlternatingFrames(t *testing.T) {
	src := testsupport.NewFrameSource(10, testsupport.AlternatingFrames(10, 4, 4)...)
	profile, err := newTestProfiler(t, func(o *Options) { o.Threshold = 0 }).Profile(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	// The first frame has no predecessor, so 9 of 10 frames can be motion.
	if profile.MotionFrames != 9 {
		t.Fatalf("expected 9 motion frames, got %d", profile.MotionFrames)
	}
	if math.Abs(profile.MotionPercentage-90) > 1e-9 {
		t.Fatalf("expected 90%%, got %v", profile.MotionPercentage)
	}
	want := int64(16 * 255)
	if profile.Min != want || profile.Max != want || profile.Mean != float64(want) {
		t.Fatalf("unexpected intensity: min=%d max=%d mean=%v", profile.Min, profile.Max, profile.Mean)
	}
}

func TestProfileThresholdIsStrict(t *testing.T) {
	sample := int64(16 * 255)
	tests := []struct {
		name      string
		threshold int64
		motion    int64
	}{
		{name: "equal", threshold: sample, motion: 0},
		{name: "below", threshold: sample - 1, motion: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := testsupport.NewFrameSource(25, testsupport.AlternatingFrames(6, 4, 4)...)
			profile, err := newTestProfiler(t, func(o *Options) { o.Threshold = tt.threshold }).Profile(context.Background(), src, nil)
			if err != nil {
				t.Fatalf("Profile: %v", err)
			}
			if profile.MotionFrames != tt.motion {
				t.Fatalf("expected %d motion frames, got %d", tt.motion, profile.MotionFrames)
			}
		})
	}
}

func TestProfilePercentageBoundedWhenMetadataUndercounts(t *testing.T) {
	src := testsupport.NewFrameSource(10, testsupport.AlternatingFrames(10, 4, 4)...)
	src.SetFrameCount(3)
	profile, err := newTestProfiler(t, func(o *Options) { o.Threshold = 0 }).Profile(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if profile.MotionPercentage < 0 || profile.MotionPercentage > 100 {
		t.Fatalf("percentage out of range: %v", profile.MotionPercentage)
	}
	if math.Abs(profile.MotionPercentage-90) > 1e-9 {
		t.Fatalf("expected 90%% over decoded frames, got %v", profile.MotionPercentage)
	}
}

func TestProfileEmptyVideo(t *testing.T) {
	src := testsupport.NewFrameSource(30, testsupport.StaticFrames(5, 4, 4, 0)...)
	src.SetFrameCount(0)
	_, err := newTestProfiler(t, nil).Profile(context.Background(), src, nil)
	if !errors.Is(err, services.ErrEmptyVideo) {
		t.Fatalf("expected ErrEmptyVideo, got %v", err)
	}
	if services.KindOf(err) != services.KindEmptyVideo {
		t.Fatalf("unexpected kind %q", services.KindOf(err))
	}
}

func TestProfileNoDecodableFrame(t *testing.T) {
	src := testsupport.NewFrameSource(30)
	src.SetFrameCount(5)
	_, err := newTestProfiler(t, nil).Profile(context.Background(), src, nil)
	if !errors.Is(err, services.ErrVideoUnreadable) {
		t.Fatalf("expected ErrVideoUnreadable, got %v", err)
	}
}

func TestProfileInvalidFrameRate(t *testing.T) {
	src := testsupport.NewFrameSource(0, testsupport.StaticFrames(5, 4, 4, 0)...)
	_, err := newTestProfiler(t, nil).Profile(context.Background(), src, nil)
	if !errors.Is(err, services.ErrVideoUnreadable) {
		t.Fatalf("expected ErrVideoUnreadable, got %v", err)
	}
}

func TestProfileTruncatedDecode(t *testing.T) {
	for _, pipelined := range []bool{false, true} {
		src := testsupport.NewFrameSource(10, testsupport.AlternatingFrames(10, 4, 4)...)
		src.FailAt = 5
		profile, err := newTestProfiler(t, func(o *Options) {
			o.Threshold = 0
			o.Pipelined = pipelined
		}).Profile(context.Background(), src, nil)
		if err != nil {
			t.Fatalf("pipelined=%v: Profile: %v", pipelined, err)
		}
		if !profile.Truncated || profile.DecodeError != "synthetic decode failure" {
			t.Fatalf("pipelined=%v: expected truncation, got %+v", pipelined, profile)
		}
		if profile.FramesProcessed != 5 {
			t.Fatalf("pipelined=%v: expected 5 frames processed, got %d", pipelined, profile.FramesProcessed)
		}
		if math.Abs(profile.MotionPercentage-40) > 1e-9 {
			t.Fatalf("pipelined=%v: expected 40%%, got %v", pipelined, profile.MotionPercentage)
		}
	}
}

func TestProfileFrameSizeChangeTruncates(t *testing.T) {
	frames := testsupport.StaticFrames(4, 4, 4, 10)
	frames = append(frames, testsupport.SolidFrame(6, 4, 10))
	src := testsupport.NewFrameSource(10, frames...)
	profile, err := newTestProfiler(t, nil).Profile(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if !profile.Truncated || profile.FramesProcessed != 4 {
		t.Fatalf("expected truncation after 4 frames, got %+v", profile)
	}
}

func TestProfileCancellation(t *testing.T) {
	for _, pipelined := range []bool{false, true} {
		ctx, cancel := context.WithCancel(context.Background())
		src := testsupport.NewFrameSource(30, testsupport.StaticFrames(50, 4, 4, 0)...)
		src.OnNext = func(index int) {
			if index == 3 {
				cancel()
			}
		}
		_, err := newTestProfiler(t, func(o *Options) { o.Pipelined = pipelined }).Profile(ctx, src, nil)
		cancel()
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("pipelined=%v: expected context.Canceled, got %v", pipelined, err)
		}
		if services.KindOf(err) != services.KindCanceled {
			t.Fatalf("pipelined=%v: unexpected kind %q", pipelined, services.KindOf(err))
		}
	}
}

func TestProfileThumbnailIsFirstFrame(t *testing.T) {
	frames := movingSquareFrames(4, 16, 4)
	src := testsupport.NewFrameSource(24, frames...)
	profile, err := newTestProfiler(t, nil).Profile(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if profile.Thumbnail != frames[0] {
		t.Fatal("expected the first decoded frame as thumbnail")
	}
	if profile.Width != 16 || profile.Height != 16 {
		t.Fatalf("unexpected size %dx%d", profile.Width, profile.Height)
	}
}

func TestProfileDeterministicAndPipelineEquivalent(t *testing.T) {
	frames := movingSquareFrames(20, 32, 8)
	run := func(pipelined bool) *Profile {
		src := testsupport.NewFrameSource(24, frames...)
		profile, err := newTestProfiler(t, func(o *Options) {
			o.BlurKernel = 5
			o.Threshold = 100
			o.Pipelined = pipelined
		}).Profile(context.Background(), src, nil)
		if err != nil {
			t.Fatalf("pipelined=%v: Profile: %v", pipelined, err)
		}
		profile.Thumbnail = nil
		return profile
	}

	first := run(false)
	second := run(false)
	pipelined := run(true)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("sequential runs differ:\n%+v\n%+v", first, second)
	}
	if !reflect.DeepEqual(first, pipelined) {
		t.Fatalf("pipelined run differs:\n%+v\n%+v", first, pipelined)
	}
	if first.Max == 0 {
		t.Fatal("expected some motion energy from the moving square")
	}
}

func TestProfileReportsProgress(t *testing.T) {
	src := testsupport.NewFrameSource(10, testsupport.StaticFrames(12, 4, 4, 0)...)
	var calls int
	var last, total int64
	_, err := newTestProfiler(t, nil).Profile(context.Background(), src, func(processed, n int64) {
		calls++
		last, total = processed, n
	})
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if calls != 12 || last != 12 || total != 12 {
		t.Fatalf("unexpected progress: calls=%d last=%d total=%d", calls, last, total)
	}
}

func TestNewProfilerRejectsInvalidOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.BlurKernel = 4
	_, err := NewProfiler(opts, logging.NewNop())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
