package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"vidlens/internal/analysis"
	"vidlens/internal/logging"
	"vidlens/internal/notifications"
	"vidlens/internal/queue"
	"vidlens/internal/services"
)

func (m *Manager) notifyCompleted(ctx context.Context, logger *slog.Logger, job *queue.Job, result *analysis.Result) {
	payload := notifications.Payload{
		"job_id":   job.JobID,
		"video_id": job.VideoID,
		"path":     job.SourcePath,
	}
	if result.Motion {
		payload["motion_percentage"] = result.MotionPercentage
	}
	if result.Transcript != nil {
		payload["language"] = result.Transcript.LanguageName()
	}
	m.publish(ctx, logger, notifications.EventJobCompleted, payload)
}

func (m *Manager) notifyFailed(ctx context.Context, logger *slog.Logger, job *queue.Job, kind services.ErrorKind, runErr error) {
	m.publish(ctx, logger, notifications.EventJobFailed, notifications.Payload{
		"job_id":   job.JobID,
		"video_id": job.VideoID,
		"path":     job.SourcePath,
		"kind":     string(kind),
		"error":    runErr,
	})
}

func (m *Manager) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("could not send notification during shutdown", logging.String("event", string(event)))
		} else {
			logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
		}
	}
}

func (m *Manager) onJobStarted(ctx context.Context, logger *slog.Logger) {
	m.mu.Lock()
	if m.queueActive {
		m.mu.Unlock()
		return
	}
	m.queueActive = true
	m.queueStart = time.Now()
	m.processed = 0
	m.failed = 0
	m.mu.Unlock()

	count := 0
	if stats, err := m.store.Stats(ctx); err == nil {
		count = stats[queue.StatusPending] + stats[queue.StatusProcessing]
	}
	logger.Info("queue processing started",
		logging.Int("count", count),
		logging.String(logging.FieldEventType, "queue_started"),
	)
	m.publish(ctx, logger, notifications.EventQueueStarted, notifications.Payload{"count": count})
}

func (m *Manager) recordOutcome(success bool) {
	m.mu.Lock()
	if success {
		m.processed++
	} else {
		m.failed++
	}
	m.mu.Unlock()
}

func (m *Manager) checkQueueCompletion(ctx context.Context, logger *slog.Logger) {
	stats, err := m.store.Stats(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logging.WarnWithContext(logger, "queue stats unavailable; completion notification skipped", "queue_stats_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.String(logging.FieldImpact, "queue completion notification will not be sent"),
			)
		}
		return
	}
	if stats[queue.StatusPending] > 0 || stats[queue.StatusProcessing] > 0 {
		return
	}

	m.mu.Lock()
	if !m.queueActive {
		m.mu.Unlock()
		return
	}
	m.queueActive = false
	processed, failed := m.processed, m.failed
	duration := time.Since(m.queueStart)
	m.mu.Unlock()

	logger.Info("queue drained",
		logging.Int("processed", processed),
		logging.Int("failed", failed),
		logging.Duration("duration", duration),
		logging.String(logging.FieldEventType, "queue_completed"),
	)
	m.publish(ctx, logger, notifications.EventQueueCompleted, notifications.Payload{
		"processed": processed,
		"failed":    failed,
		"duration":  duration,
	})
}
