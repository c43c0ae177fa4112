package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"vidlens/internal/classify"
	"vidlens/internal/logging"
	"vidlens/internal/media/video"
	"vidlens/internal/motion"
	"vidlens/internal/services"
	"vidlens/internal/textutil"
	"vidlens/internal/transcribe"
)

// Stage names used in progress updates and StageError.
const (
	StageProbe      = "probe"
	StageMotion     = "motion"
	StageTranscript = "transcript"
	StageThumbnail  = "thumbnail"
)

// Share of overall progress given to motion when both extractors run.
const motionWeight = 0.8

// Request selects the video and the extractors to run.
type Request struct {
	// ID names artifacts such as the thumbnail. Empty assigns a UUID.
	ID         string
	Path       string
	Motion     bool
	Transcript bool
}

// Progress is an overall completion update.
type Progress struct {
	Stage    string
	Fraction float64
	Message  string
}

// ProgressFunc receives progress updates. Calls are serialized.
type ProgressFunc func(Progress)

// StageError identifies which extractor failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + " stage: " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// Transcriber is satisfied by *transcribe.Extractor.
type Transcriber interface {
	TranscribeWithProgress(ctx context.Context, path string, step transcribe.StepFunc) (*transcribe.Transcript, []classify.Flag, error)
}

// Options wires a Pipeline.
type Options struct {
	Opener      video.Opener
	Profiler    *motion.Profiler
	Transcriber Transcriber
	Thumbnails  ThumbnailWriter
	// ThumbnailDir receives <id>.jpg. Empty disables thumbnails.
	ThumbnailDir string
	Concurrent   bool
	Logger       *slog.Logger
}

// Pipeline runs the enabled extractors over one video per Run call.
type Pipeline struct {
	opts   Options
	logger *slog.Logger
}

// New validates opts. A nil Profiler or Transcriber makes requests for that
// section fail with a configuration error.
func New(opts Options) (*Pipeline, error) {
	if opts.Opener == nil {
		return nil, services.Wrap(services.ErrConfiguration, "analysis", "init", "video opener is required", nil)
	}
	return &Pipeline{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "analysis")}, nil
}

// Run analyzes req.Path. When one extractor fails the returned Result still
// carries the other's section, and the error is the first failure wrapped in
// a StageError. A nil Result is returned only when nothing could run.
func (p *Pipeline) Run(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	req.Path = strings.TrimSpace(req.Path)
	if req.Path == "" {
		return nil, services.Wrap(services.ErrValidation, "analysis", "request", "video path is required", nil)
	}
	if !req.Motion && !req.Transcript {
		return nil, services.Wrap(services.ErrValidation, "analysis", "request", "no extractor enabled", nil)
	}
	if req.Motion && p.opts.Profiler == nil {
		return nil, services.Wrap(services.ErrConfiguration, "analysis", "request", "motion profiler not configured", nil)
	}
	if req.Transcript && p.opts.Transcriber == nil {
		return nil, services.Wrap(services.ErrConfiguration, "analysis", "request", "transcriber not configured", nil)
	}
	if strings.TrimSpace(req.ID) == "" {
		req.ID = uuid.NewString()
	}
	ctx = services.WithStage(ctx, "analysis")
	logger := logging.WithContext(ctx, p.logger).With(logging.String("source", req.Path))
	reporter := newReporter(progress, req)

	reporter.report(StageProbe, 0, "opening video")
	result := &Result{}
	var (
		src     video.Source
		openErr error
	)
	if req.Motion {
		src, openErr = p.opts.Opener.Open(ctx, req.Path)
		if openErr == nil {
			defer src.Close()
			result.applyInfo(src.Info())
		}
	} else {
		// Transcript only: metadata without a running decoder.
		var info video.Info
		info, openErr = video.Probe(ctx, p.opts.Opener, req.Path)
		if openErr == nil {
			result.applyInfo(info)
		}
	}
	if openErr != nil {
		openErr = probeError(ctx, openErr)
		if !req.Transcript {
			return nil, &StageError{Stage: StageProbe, Err: openErr}
		}
		// Audio may still be extractable from a file without a decodable video stream.
		logging.WarnWithContext(logger, "video metadata unavailable", "metadata_unavailable",
			logging.Error(openErr),
			logging.String(logging.FieldImpact, "duration, fps and frame_count are omitted"),
		)
	}
	motionEnabled := req.Motion && src != nil

	var (
		mu       sync.Mutex
		firstErr error
	)
	record := func(stage string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = &StageError{Stage: stage, Err: err}
		}
	}

	if req.Motion && openErr != nil {
		record(StageProbe, openErr)
	}

	runMotion := func() {
		profile, err := p.opts.Profiler.Profile(services.WithStage(ctx, StageMotion), src, func(processed, total int64) {
			reporter.motion(processed, total)
		})
		if err != nil {
			record(StageMotion, err)
			return
		}
		mu.Lock()
		result.applyProfile(profile)
		mu.Unlock()
		if path := p.writeThumbnail(ctx, logger, req.ID, profile); path != "" {
			mu.Lock()
			result.ThumbnailPath = path
			mu.Unlock()
		}
		reporter.report(StageMotion, 1, "motion profile complete")
	}

	runTranscript := func() {
		transcript, flags, err := p.opts.Transcriber.TranscribeWithProgress(services.WithStage(ctx, StageTranscript), req.Path, reporter.transcriptStep)
		if err != nil {
			record(StageTranscript, err)
			return
		}
		mu.Lock()
		result.Transcript = transcript
		result.ContentFlags = flags
		mu.Unlock()
		reporter.report(StageTranscript, 1, "transcript complete")
	}

	if p.opts.Concurrent && motionEnabled && req.Transcript {
		// Not errgroup.WithContext: one failing extractor must not cancel the other.
		var group errgroup.Group
		group.Go(func() error { runMotion(); return nil })
		group.Go(func() error { runTranscript(); return nil })
		_ = group.Wait()
	} else {
		if motionEnabled {
			runMotion()
		}
		if req.Transcript && ctx.Err() == nil {
			runTranscript()
		}
	}

	if firstErr == nil {
		if err := ctx.Err(); err != nil {
			firstErr = &StageError{Stage: reporter.lastStage(), Err: services.Wrap(services.ErrTransient, "analysis", "run", "interrupted", err)}
		}
	}
	if firstErr != nil {
		logger.Debug("analysis finished with error", logging.Error(firstErr))
		return result, firstErr
	}
	logger.Info("analysis complete",
		logging.Bool("motion", result.Motion),
		logging.Bool("transcript", result.Transcript != nil),
		logging.Float64("motion_percentage", result.MotionPercentage),
		logging.Int("content_flags", len(result.ContentFlags)),
	)
	return result, nil
}

func (p *Pipeline) writeThumbnail(ctx context.Context, logger *slog.Logger, id string, profile *motion.Profile) string {
	if p.opts.ThumbnailDir == "" || profile.Thumbnail == nil || ctx.Err() != nil {
		return ""
	}
	path := filepath.Join(p.opts.ThumbnailDir, textutil.SafeToken(id, "video")+".jpg")
	if err := p.opts.Thumbnails.Write(profile.Thumbnail, path); err != nil {
		logging.WarnWithContext(logger, "thumbnail not written", "thumbnail_failed",
			logging.Error(err),
			logging.String("path", path),
			logging.String(logging.FieldImpact, "result has no thumbnail_path"),
		)
		return ""
	}
	return path
}

// reporter converts per-extractor progress into overall fractions.
type reporter struct {
	mu         sync.Mutex
	fn         ProgressFunc
	motionFrac float64
	textFrac   float64
	wMotion    float64
	wText      float64
	stage      string
}

func newReporter(fn ProgressFunc, req Request) *reporter {
	r := &reporter{fn: fn, stage: StageProbe}
	switch {
	case req.Motion && req.Transcript:
		r.wMotion, r.wText = motionWeight, 1-motionWeight
	case req.Motion:
		r.wMotion = 1
	default:
		r.wText = 1
	}
	return r
}

func (r *reporter) report(stage string, fraction float64, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch stage {
	case StageMotion:
		r.motionFrac = fraction
	case StageTranscript:
		r.textFrac = fraction
	}
	r.stage = stage
	if r.fn == nil {
		return
	}
	r.fn(Progress{
		Stage:    stage,
		Fraction: min(r.motionFrac*r.wMotion+r.textFrac*r.wText, 1),
		Message:  message,
	})
}

func (r *reporter) motion(processed, total int64) {
	if total <= 0 {
		return
	}
	r.report(StageMotion, float64(processed)/float64(total), fmt.Sprintf("frame %d/%d", processed, total))
}

func (r *reporter) transcriptStep(step string) {
	var fraction float64
	switch step {
	case transcribe.StepRecognize:
		fraction = 0.2
	case transcribe.StepClassify:
		fraction = 0.9
	}
	r.report(StageTranscript, fraction, step)
}

func (r *reporter) lastStage() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

// probeError marks a probe failure caused by cancellation as transient, so
// an interrupted run is requeued instead of failing the video.
func probeError(ctx context.Context, err error) error {
	ctxErr := ctx.Err()
	if ctxErr == nil || errors.Is(err, ctxErr) {
		return err
	}
	return services.Wrap(services.ErrTransient, "analysis", "probe", "interrupted", fmt.Errorf("%w: %w", ctxErr, err))
}

// FailedStage returns the stage recorded on err, or "" when err did not come
// from Run.
func FailedStage(err error) string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}
