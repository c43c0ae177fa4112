package motion

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"vidlens/internal/logging"
	"vidlens/internal/media/video"
	"vidlens/internal/services"
)

const (
	stageName     = "motion"
	pipelineDepth = 4
)

// Sample is the motion energy of one frame relative to its predecessor.
type Sample struct {
	Frame  int64
	Value  int64
	Motion bool
}

// Profile aggregates the samples of one video.
type Profile struct {
	FPS             float64
	FrameCount      int64
	Width           int
	Height          int
	FramesProcessed int64
	MotionFrames    int64
	// MotionPercentage is MotionFrames over the larger of FrameCount and
	// FramesProcessed, times 100. Always within [0, 100].
	MotionPercentage float64
	Min              int64
	Max              int64
	Mean             float64
	Samples          []Sample
	// Thumbnail is the first decoded frame. The caller owns it.
	Thumbnail image.Image
	// Truncated is set when decoding failed part way; aggregates then cover
	// only the frames before the failure.
	Truncated   bool
	DecodeError string
}

// Duration returns FrameCount / FPS in seconds.
func (p *Profile) Duration() float64 {
	if p == nil || p.FPS <= 0 {
		return 0
	}
	return float64(p.FrameCount) / p.FPS
}

// ProgressFunc receives the number of decoded frames and the expected total.
type ProgressFunc func(processed, total int64)

// Profiler runs the motion analysis over a video.Source.
type Profiler struct {
	opts   Options
	logger *slog.Logger
}

// NewProfiler validates opts and returns a Profiler.
func NewProfiler(opts Options, logger *slog.Logger) (*Profiler, error) {
	if err := opts.Validate(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "options", "", err)
	}
	return &Profiler{opts: opts, logger: logging.NewComponentLogger(logger, stageName)}, nil
}

// Profile consumes src until io.EOF, a decode failure, or cancellation.
// src is not closed. Cancellation is observed between frames and returns the
// context error; a decode failure after the first frame yields a Truncated
// profile instead of an error.
func (p *Profiler) Profile(ctx context.Context, src video.Source, progress ProgressFunc) (*Profile, error) {
	info := src.Info()
	if info.FrameCount <= 0 {
		return nil, services.Wrap(services.ErrEmptyVideo, stageName, "probe", "frame count resolved to 0", nil)
	}
	if info.FPS <= 0 {
		return nil, services.Wrap(services.ErrVideoUnreadable, stageName, "probe",
			fmt.Sprintf("invalid frame rate %v", info.FPS), nil)
	}

	if !p.opts.Pipelined {
		return p.run(ctx, info, func() (image.Image, error) { return src.Next(ctx) }, progress)
	}
	return p.runPipelined(ctx, src, info, progress)
}

type decoded struct {
	img image.Image
	err error
}

func (p *Profiler) runPipelined(ctx context.Context, src video.Source, info video.Info, progress ProgressFunc) (*Profile, error) {
	group, groupCtx := errgroup.WithContext(ctx)
	// Stops the decoder when the consumer returns early.
	decodeCtx, stopDecode := context.WithCancel(groupCtx)
	defer stopDecode()

	frames := make(chan decoded, pipelineDepth)
	group.Go(func() error {
		defer close(frames)
		for {
			img, err := src.Next(decodeCtx)
			select {
			case frames <- decoded{img: img, err: err}:
			case <-decodeCtx.Done():
				return nil
			}
			if err != nil {
				return nil
			}
		}
	})

	var profile *Profile
	group.Go(func() error {
		defer stopDecode()
		next := func() (image.Image, error) {
			select {
			case d, ok := <-frames:
				if !ok {
					return nil, io.EOF
				}
				return d.img, d.err
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		var err error
		profile, err = p.run(ctx, info, next, progress)
		return err
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return profile, nil
}

func (p *Profiler) run(ctx context.Context, info video.Info, next func() (image.Image, error), progress ProgressFunc) (*Profile, error) {
	logger := logging.WithContext(ctx, p.logger)
	report := func(processed int64) {
		if progress != nil {
			progress(processed, max(info.FrameCount, processed))
		}
	}

	first, err := next()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, canceled(0, ctxErr)
		}
		return nil, services.Wrap(services.ErrVideoUnreadable, stageName, "decode", "no decodable frame", err)
	}

	profile := &Profile{
		FPS:             info.FPS,
		FrameCount:      info.FrameCount,
		Thumbnail:       first,
		FramesProcessed: 1,
	}
	if p.opts.KeepSamples {
		profile.Samples = make([]Sample, 0, max(info.FrameCount-1, 0))
	}

	blur := newBlurrer(p.opts.BlurKernel)
	gray := toGray(first, nil)
	prev := blur.apply(gray, nil)
	profile.Width, profile.Height = prev.Rect.Dx(), prev.Rect.Dy()
	var cur *image.Gray
	var acc accumulator
	report(1)

	for {
		if err := ctx.Err(); err != nil {
			return nil, canceled(profile.FramesProcessed, err)
		}
		frame, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, canceled(profile.FramesProcessed, ctxErr)
			}
			p.truncate(logger, profile, err)
			break
		}
		if b := frame.Bounds(); b.Dx() != profile.Width || b.Dy() != profile.Height {
			p.truncate(logger, profile, fmt.Errorf("frame size changed from %dx%d to %dx%d",
				profile.Width, profile.Height, b.Dx(), b.Dy()))
			break
		}

		gray = toGray(frame, gray)
		cur = blur.apply(gray, cur)
		value := diffSample(prev, cur, p.opts.PixelThreshold, p.opts.BinaryValue)
		isMotion := value > p.opts.Threshold
		acc.add(value, isMotion)
		if p.opts.KeepSamples {
			profile.Samples = append(profile.Samples, Sample{Frame: profile.FramesProcessed, Value: value, Motion: isMotion})
		}
		prev, cur = cur, prev
		profile.FramesProcessed++
		report(profile.FramesProcessed)
	}

	acc.finish(profile)
	logger.Debug("motion profile computed",
		logging.Int64("frames_processed", profile.FramesProcessed),
		logging.Int64("frame_count", profile.FrameCount),
		logging.Int64("motion_frames", profile.MotionFrames),
		logging.Float64("motion_percentage", profile.MotionPercentage),
	)
	return profile, nil
}

func (p *Profiler) truncate(logger *slog.Logger, profile *Profile, err error) {
	profile.Truncated = true
	profile.DecodeError = err.Error()
	logging.WarnWithContext(logger, "frame decoding stopped early", "motion_truncated",
		logging.Int64("frames_processed", profile.FramesProcessed),
		logging.Int64("frame_count", profile.FrameCount),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "re-encode or remux the source video"),
		logging.String(logging.FieldImpact, "motion statistics cover only the decoded frames"),
	)
}

func canceled(processed int64, err error) error {
	return services.Wrap(services.ErrTransient, stageName, "decode",
		fmt.Sprintf("stopped after %d frames", processed), err)
}

type accumulator struct {
	count  int64
	motion int64
	sum    int64
	min    int64
	max    int64
}

func (a *accumulator) add(value int64, isMotion bool) {
	if a.count == 0 || value < a.min {
		a.min = value
	}
	if a.count == 0 || value > a.max {
		a.max = value
	}
	a.count++
	a.sum += value
	if isMotion {
		a.motion++
	}
}

func (a *accumulator) finish(profile *Profile) {
	profile.MotionFrames = a.motion
	profile.Min = a.min
	profile.Max = a.max
	if a.count > 0 {
		profile.Mean = float64(a.sum) / float64(a.count)
	}
	denominator := max(profile.FrameCount, profile.FramesProcessed)
	if denominator > 0 {
		profile.MotionPercentage = float64(a.motion) / float64(denominator) * 100
	}
}
