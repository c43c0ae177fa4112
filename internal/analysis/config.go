package analysis

import (
	"log/slog"

	"vidlens/internal/classify"
	"vidlens/internal/config"
	"vidlens/internal/media/video"
	"vidlens/internal/motion"
	"vidlens/internal/services"
	"vidlens/internal/services/whisper"
	"vidlens/internal/transcribe"
)

// NewFromConfig builds the production pipeline. model is shared across
// pipelines and owned by the caller; it may be nil when transcription is
// disabled in cfg.
func NewFromConfig(cfg *config.Config, model *whisper.Model, logger *slog.Logger) (*Pipeline, error) {
	opener, err := video.NewOpener(video.Options{
		Decoder:       cfg.Motion.Decoder,
		FFmpegBinary:  cfg.FFmpegBinary(),
		FFprobeBinary: cfg.FFprobeBinary(),
		ScaleWidth:    cfg.Motion.AnalysisWidth,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "analysis", "video decoder", "", err)
	}

	profiler, err := motion.NewProfiler(motion.OptionsFromConfig(cfg.Motion), logger)
	if err != nil {
		return nil, err
	}

	opts := Options{
		Opener:   opener,
		Profiler: profiler,
		Thumbnails: ThumbnailWriter{
			Width:   cfg.Motion.ThumbnailWidth,
			Quality: cfg.Motion.ThumbnailQuality,
		},
		ThumbnailDir: cfg.Paths.ThumbnailDir,
		Concurrent:   cfg.Analysis.Concurrent,
		Logger:       logger,
	}

	if cfg.Transcription.Enabled && model != nil {
		classifier, err := classify.New(cfg, logger)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "analysis", "classifier", "", err)
		}
		extractor, err := transcribe.NewFromModel(model, classifier, cfg.Paths.WorkDir, logger)
		if err != nil {
			return nil, err
		}
		opts.Transcriber = extractor
	}
	return New(opts)
}

// DefaultRequest returns a request for path using the configured extractor
// defaults. Transcription is skipped when disabled in cfg.
func DefaultRequest(cfg *config.Config, id, path string) Request {
	return Request{
		ID:         id,
		Path:       path,
		Motion:     cfg.Analysis.Motion,
		Transcript: cfg.Analysis.Transcript && cfg.Transcription.Enabled,
	}
}
