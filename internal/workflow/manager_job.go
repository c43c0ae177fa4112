package workflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidlens/internal/analysis"
	"vidlens/internal/logging"
	"vidlens/internal/metrics"
	"vidlens/internal/queue"
	"vidlens/internal/services"
)

func (m *Manager) processJob(ctx context.Context, workerLogger *slog.Logger, job *queue.Job) {
	requestID := uuid.NewString()
	jobCtx := services.WithJobID(ctx, job.JobID)
	jobCtx = services.WithRequestID(jobCtx, requestID)
	logger := logging.WithContext(jobCtx, workerLogger)
	// Writes after the pipeline returns must land even when shutdown cancelled ctx.
	persistCtx := context.WithoutCancel(jobCtx)

	lock, err := acquireJobLock(m.cfg.JobLockDir(), job.JobID)
	if err != nil {
		m.metrics.JobStarted()
		m.failJob(persistCtx, logger, job, nil, services.Wrap(services.ErrTransient, "workflow", "job lock", "", err), 0)
		return
	}
	if lock == nil {
		// Another process holds the run; it owns the record from here.
		logger.Warn("job already locked by another runner; skipping",
			logging.String(logging.FieldEventType, "job_lock_busy"),
			logging.String(logging.FieldErrorHint, "check for a second daemon sharing the state dir"),
		)
		return
	}
	defer releaseJobLock(lock)

	m.setLastJob(job)
	m.onJobStarted(persistCtx, logger)
	m.metrics.JobStarted()
	started := time.Now()

	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("source_file", job.SourcePath),
		logging.String("video_id", job.VideoID),
		logging.Bool("motion", job.RunMotion),
		logging.Bool("transcript", job.RunTranscript),
		logging.Int("attempt", job.Attempts),
	)

	req := analysis.Request{
		ID:         job.JobID,
		Path:       job.SourcePath,
		Motion:     job.RunMotion,
		Transcript: job.RunTranscript && m.cfg.Transcription.Enabled,
	}
	if job.RunTranscript && !req.Transcript {
		logging.WarnWithContext(logger, "transcription disabled in configuration; skipping transcript", "transcript_disabled",
			logging.String(logging.FieldImpact, "result has no transcript or content flags"),
			logging.String(logging.FieldErrorHint, "set transcription.enabled = true"),
		)
	}

	progress := newProgressRecorder(jobCtx, m.store, job.ID, logger, m.progressStep)
	result, runErr := m.runWithHeartbeat(jobCtx, req, progress.handle, job.ID)
	progress.observe(m.metrics)
	elapsed := time.Since(started)

	if runErr != nil {
		if services.FailureStatus(runErr) == queue.StatusPending {
			m.requeueJob(persistCtx, logger, job, runErr, elapsed)
			return
		}
		m.failJob(persistCtx, logger, job, result, runErr, elapsed)
		return
	}
	m.completeJob(persistCtx, logger, job, result, elapsed)
}

func (m *Manager) runWithHeartbeat(ctx context.Context, req analysis.Request, progress analysis.ProgressFunc, jobID int64) (*analysis.Result, error) {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, jobID)

	result, err := m.analyzer.Run(ctx, req, progress)
	hbCancel()
	hbWG.Wait()
	return result, err
}

func (m *Manager) completeJob(ctx context.Context, logger *slog.Logger, job *queue.Job, result *analysis.Result, elapsed time.Duration) {
	if result == nil {
		m.failJob(ctx, logger, job, nil, services.Wrap(services.ErrTransient, "workflow", "complete", "pipeline returned no result", nil), elapsed)
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		m.failJob(ctx, logger, job, nil, services.Wrap(services.ErrTransient, "workflow", "encode result", "", err), elapsed)
		return
	}
	if err := m.store.Complete(ctx, job.ID, string(payload), result.ThumbnailPath); err != nil {
		m.setLastError(err)
		logging.ErrorWithContext(logger, "failed to persist job result", "job_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		m.metrics.JobFinished(metrics.OutcomeFailed, string(services.KindTransient), elapsed)
		return
	}

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "job_complete"),
		logging.Duration("job_duration", elapsed),
	}
	if result.Motion {
		attrs = append(attrs,
			logging.Float64("motion_percentage", result.MotionPercentage),
			logging.Int64("frame_count", result.FrameCount),
		)
		m.metrics.ObserveMotion(result.MotionPercentage)
	}
	if result.Transcript != nil {
		attrs = append(attrs, logging.String("language", result.Transcript.Language))
		attrs = append(attrs, logging.Int("content_flags", len(result.ContentFlags)))
	}
	logger.Info("job completed", logging.Args(attrs...)...)

	m.metrics.JobFinished(metrics.OutcomeCompleted, "", elapsed)
	m.recordOutcome(true)
	m.refreshLastJob(ctx, job.ID)
	m.notifyCompleted(ctx, logger, job, result)
	m.checkQueueCompletion(ctx, logger)
}

func (m *Manager) refreshLastJob(ctx context.Context, id int64) {
	job, err := m.store.GetByID(ctx, id)
	if err != nil || job == nil {
		return
	}
	m.setLastJob(job)
}

func failureMessage(err error) string {
	if err == nil {
		return "analysis failed without error detail"
	}
	message := strings.TrimSpace(err.Error())
	if message == "" {
		return "analysis failed"
	}
	return message
}
