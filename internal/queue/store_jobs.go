package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewJob inserts a pending job. At least one extractor must be requested.
func (s *Store) NewJob(ctx context.Context, params NewJobParams) (*Job, error) {
	sourcePath := strings.TrimSpace(params.SourcePath)
	if sourcePath == "" {
		return nil, fmt.Errorf("%w: source path is required", ErrInvalidJob)
	}
	if !params.RunMotion && !params.RunTranscript {
		return nil, fmt.Errorf("%w: motion and transcript are both disabled", ErrInvalidJob)
	}
	jobID := strings.TrimSpace(params.JobID)
	if jobID == "" {
		jobID = uuid.NewString()
	}
	timestamp := formatTime(time.Now())

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO analysis_jobs (
            job_id, video_id, source_path, status, run_motion, run_transcript,
            progress, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		jobID,
		nullableString(strings.TrimSpace(params.VideoID)),
		sourcePath,
		StatusPending,
		boolToInt(params.RunMotion),
		boolToInt(params.RunTranscript),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a job by row identifier. A missing job returns nil, nil.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetByJobID fetches a job by its external identifier. A missing job returns nil, nil.
func (s *Store) GetByJobID(ctx context.Context, jobID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE job_id = ?`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

// List returns jobs ordered by id, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM analysis_jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Claim moves the oldest pending job to processing and returns it. It returns
// nil, nil when nothing is pending. The conditional UPDATE makes the claim
// atomic across workers and processes sharing the database.
func (s *Store) Claim(ctx context.Context) (*Job, error) {
	var job *Job
	err := retryOnBusy(ctx, func() error {
		now := formatTime(time.Now())
		row := s.db.QueryRowContext(
			ctx,
			`UPDATE analysis_jobs
             SET status = ?, progress = 0, progress_stage = 'Starting', progress_message = NULL,
                 error_kind = NULL, error_message = NULL, attempts = attempts + 1,
                 started_at = ?, last_heartbeat = ?, updated_at = ?
             WHERE id = (SELECT id FROM analysis_jobs WHERE status = ? ORDER BY id LIMIT 1)
               AND status = ?
             RETURNING `+jobColumns,
			StatusProcessing, now, now, now, StatusPending, StatusPending,
		)
		var scanErr error
		job, scanErr = scanJob(row)
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// UpdateProgress records incremental progress for a job the caller owns.
func (s *Store) UpdateProgress(ctx context.Context, id int64, stage, message string, fraction float64) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE analysis_jobs
         SET progress = ?, progress_stage = ?, progress_message = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		ClampProgress(fraction),
		nullableString(stage),
		nullableString(message),
		formatTime(time.Now()),
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return requireOwned(res, id)
}

// Complete marks a processing job as completed with its serialized results.
func (s *Store) Complete(ctx context.Context, id int64, resultJSON, thumbnailPath string) error {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE analysis_jobs
         SET status = ?, progress = 1, progress_stage = 'Completed', progress_message = NULL,
             result_json = ?, thumbnail_path = ?, error_kind = NULL, error_message = NULL,
             completed_at = ?, updated_at = ?, last_heartbeat = NULL
         WHERE id = ? AND status = ?`,
		StatusCompleted,
		nullableString(resultJSON),
		nullableString(thumbnailPath),
		now,
		now,
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return requireOwned(res, id)
}

// Fail marks a processing job as failed. resultJSON may carry the sections of
// extractors that succeeded before the failure.
func (s *Store) Fail(ctx context.Context, id int64, kind, message, resultJSON string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "analysis failed"
	}
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE analysis_jobs
         SET status = ?, progress_stage = 'Failed', error_kind = ?, error_message = ?,
             result_json = COALESCE(?, result_json), completed_at = ?, updated_at = ?,
             last_heartbeat = NULL
         WHERE id = ? AND status = ?`,
		StatusFailed,
		nullableString(kind),
		message,
		nullableString(resultJSON),
		now,
		now,
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return requireOwned(res, id)
}

// Requeue returns a processing job to pending, e.g. after a cancelled run.
func (s *Store) Requeue(ctx context.Context, id int64, reason string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE analysis_jobs
         SET status = ?, progress = 0, progress_stage = ?, progress_message = NULL,
             last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusPending,
		nullableString(reason),
		formatTime(time.Now()),
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	return requireOwned(res, id)
}

func requireOwned(res sql.Result, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: id %d", ErrNotProcessing, id)
	}
	return nil
}
