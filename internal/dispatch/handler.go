package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"vidlens/internal/config"
	"vidlens/internal/logging"
	"vidlens/internal/metrics"
	"vidlens/internal/queue"
)

// Decision is the acknowledgement a handled message receives.
type Decision int

const (
	// Ack confirms the message was enqueued (or already was).
	Ack Decision = iota
	// Nak asks JetStream to redeliver later.
	Nak
	// Term drops the message permanently.
	Term
)

func (d Decision) String() string {
	switch d {
	case Ack:
		return "ack"
	case Nak:
		return "nak"
	case Term:
		return "term"
	default:
		return "unknown"
	}
}

// Enqueuer persists jobs. *queue.Store satisfies it.
type Enqueuer interface {
	NewJob(ctx context.Context, params queue.NewJobParams) (*queue.Job, error)
	GetByJobID(ctx context.Context, jobID string) (*queue.Job, error)
}

// Handler converts message bodies into jobs.
type Handler struct {
	store    Enqueuer
	defaults config.Analysis
	logger   *slog.Logger
	metrics  *metrics.Recorder
}

// NewHandler builds a Handler. rec may be nil.
func NewHandler(store Enqueuer, defaults config.Analysis, logger *slog.Logger, rec *metrics.Recorder) *Handler {
	return &Handler{
		store:    store,
		defaults: defaults,
		logger:   logging.NewComponentLogger(logger, "dispatch"),
		metrics:  rec,
	}
}

// Handle enqueues the job described by data and reports how the message
// should be acknowledged.
func (h *Handler) Handle(ctx context.Context, data []byte) Decision {
	params, err := ParseMessage(data, h.defaults)
	if err != nil {
		logging.WarnWithContext(h.logger, "dropping invalid dispatch message", "dispatch_invalid",
			logging.Error(err),
			logging.Int("bytes", len(data)),
			logging.String(logging.FieldImpact, "message terminated without creating a job"),
			logging.String(logging.FieldErrorHint, "publish {\"video_id\",\"path\",\"motion\",\"transcript\"} JSON"),
		)
		h.metrics.IntakeMessage("invalid")
		return Term
	}

	if params.JobID != "" {
		existing, err := h.store.GetByJobID(ctx, params.JobID)
		if err != nil {
			return h.retry(err, params)
		}
		if existing != nil {
			h.logger.Info("dispatch message already enqueued",
				logging.String(logging.FieldJobID, existing.JobID),
				logging.String("status", string(existing.Status)),
			)
			h.metrics.IntakeMessage("duplicate")
			return Ack
		}
	}

	job, err := h.store.NewJob(ctx, params)
	if err != nil {
		if errors.Is(err, queue.ErrInvalidJob) {
			h.logger.Warn("dispatch message rejected by queue", logging.Error(err))
			h.metrics.IntakeMessage("invalid")
			return Term
		}
		return h.retry(err, params)
	}
	h.logger.Info("job enqueued from dispatch",
		logging.String(logging.FieldJobID, job.JobID),
		logging.String("video_id", job.VideoID),
		logging.String("source_file", job.SourcePath),
		logging.String(logging.FieldEventType, "dispatch_enqueued"),
	)
	h.metrics.IntakeMessage("enqueued")
	return Ack
}

func (h *Handler) retry(err error, params queue.NewJobParams) Decision {
	logging.ErrorWithContext(h.logger, "failed to enqueue dispatch message", "dispatch_enqueue_failed",
		logging.Error(err),
		logging.String("source_file", params.SourcePath),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	h.metrics.IntakeMessage("retry")
	return Nak
}
