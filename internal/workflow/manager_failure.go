package workflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"vidlens/internal/analysis"
	"vidlens/internal/logging"
	"vidlens/internal/metrics"
	"vidlens/internal/queue"
	"vidlens/internal/services"
)

func (m *Manager) failJob(ctx context.Context, logger *slog.Logger, job *queue.Job, partial *analysis.Result, runErr error, elapsed time.Duration) {
	m.setLastError(runErr)
	kind := services.KindOf(runErr)
	message := failureMessage(runErr)

	var partialJSON string
	if partial != nil {
		if data, err := json.Marshal(partial); err == nil {
			partialJSON = string(data)
		}
	}

	attrs := []logging.Attr{
		logging.String("resolved_status", string(queue.StatusFailed)),
		logging.String("error_kind", string(kind)),
		logging.String("error_message", message),
		logging.String("failed_stage", analysis.FailedStage(runErr)),
		logging.Bool("partial_result", partialJSON != ""),
		logging.Duration("job_duration", elapsed),
		logging.String(logging.FieldErrorHint, failureHint(kind)),
		logging.Error(runErr),
	}
	logging.ErrorWithContext(logger, "job failed", "job_failure", attrs...)

	if err := m.store.Fail(ctx, job.ID, string(kind), message, partialJSON); err != nil {
		logging.ErrorWithContext(logger, "failed to persist job failure", "job_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	}

	m.metrics.JobFinished(metrics.OutcomeFailed, string(kind), elapsed)
	m.recordOutcome(false)
	m.refreshLastJob(ctx, job.ID)
	m.notifyFailed(ctx, logger, job, kind, runErr)
	m.checkQueueCompletion(ctx, logger)
}

func (m *Manager) requeueJob(ctx context.Context, logger *slog.Logger, job *queue.Job, runErr error, elapsed time.Duration) {
	logger.Info("job interrupted by shutdown; returning to queue",
		logging.String(logging.FieldEventType, "job_requeued"),
		logging.Duration("job_duration", elapsed),
		logging.String("failed_stage", analysis.FailedStage(runErr)),
	)
	if err := m.store.Requeue(ctx, job.ID, queue.DaemonStopReason); err != nil {
		logging.ErrorWithContext(logger, "failed to requeue interrupted job", "job_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the job is reset on next daemon start"),
		)
	}
	m.metrics.JobFinished(metrics.OutcomeRequeued, string(services.KindCanceled), elapsed)
}

func failureHint(kind services.ErrorKind) string {
	switch kind {
	case services.KindVideoUnreadable:
		return "verify the file exists and ffprobe can read it"
	case services.KindEmptyVideo:
		return "the container reports no frames; re-encode or replace the source"
	case services.KindAudioExtraction:
		return "check that the video has an audio stream and ffmpeg is installed"
	case services.KindTranscription:
		return "check the whisper binary and model directory"
	case services.KindClassification:
		return "check classifier settings and LLM credentials"
	case services.KindConfiguration, services.KindValidation:
		return "review config.toml"
	default:
		return "retry with vidlens jobs retry"
	}
}
