package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vidlens/internal/analysis"
	"vidlens/internal/logging"
	"vidlens/internal/metrics"
	"vidlens/internal/queue"
)

// progressRecorder persists sampled pipeline progress for one job and tracks
// how long each stage was active.
type progressRecorder struct {
	ctx     context.Context
	store   *queue.Store
	jobID   int64
	logger  *slog.Logger
	sampler *logging.ProgressSampler

	mu     sync.Mutex
	first  map[string]time.Time
	last   map[string]time.Time
	order  []string
	latest analysis.Progress
}

func newProgressRecorder(ctx context.Context, store *queue.Store, jobID int64, logger *slog.Logger, step float64) *progressRecorder {
	return &progressRecorder{
		ctx:     ctx,
		store:   store,
		jobID:   jobID,
		logger:  logger,
		sampler: logging.NewProgressSampler(step),
		first:   make(map[string]time.Time),
		last:    make(map[string]time.Time),
	}
}

func (p *progressRecorder) handle(update analysis.Progress) {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, seen := p.first[update.Stage]; !seen {
		p.first[update.Stage] = now
		p.order = append(p.order, update.Stage)
	}
	p.last[update.Stage] = now
	p.latest = update

	// Stages interleave when extractors run concurrently, so sample on the
	// overall fraction only.
	if !p.sampler.ShouldLog(update.Fraction*100, "") && update.Fraction < 1 {
		return
	}
	if err := p.store.UpdateProgress(p.ctx, p.jobID, update.Stage, update.Message, update.Fraction); err != nil {
		if !errors.Is(err, context.Canceled) {
			p.logger.Warn("failed to persist job progress",
				logging.Error(err),
				logging.String(logging.FieldEventType, "progress_persist_failed"),
			)
		}
		return
	}
	p.logger.Debug("job progress",
		logging.String(logging.FieldStage, update.Stage),
		logging.Float64("fraction", update.Fraction),
		logging.String("message", update.Message),
	)
}

// observe reports per-stage durations to rec.
func (p *progressRecorder) observe(rec *metrics.Recorder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, stage := range p.order {
		rec.ObserveStage(stage, p.last[stage].Sub(p.first[stage]))
	}
}
