package queue

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

const jobColumns = "id, job_id, video_id, source_path, status, run_motion, run_transcript, progress, progress_stage, progress_message, error_kind, error_message, result_json, thumbnail_path, attempts, created_at, updated_at, started_at, completed_at, last_heartbeat"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job             Job
		statusStr       string
		videoID         sql.NullString
		runMotion       int64
		runTranscript   int64
		progressStage   sql.NullString
		progressMessage sql.NullString
		errorKind       sql.NullString
		errorMessage    sql.NullString
		resultJSON      sql.NullString
		thumbnailPath   sql.NullString
		createdRaw      string
		updatedRaw      string
		startedRaw      sql.NullString
		completedRaw    sql.NullString
		heartbeatRaw    sql.NullString
	)

	if err := scanner.Scan(
		&job.ID,
		&job.JobID,
		&videoID,
		&job.SourcePath,
		&statusStr,
		&runMotion,
		&runTranscript,
		&job.Progress,
		&progressStage,
		&progressMessage,
		&errorKind,
		&errorMessage,
		&resultJSON,
		&thumbnailPath,
		&job.Attempts,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	job.Status = Status(statusStr)
	job.VideoID = videoID.String
	job.RunMotion = runMotion != 0
	job.RunTranscript = runTranscript != 0
	job.ProgressStage = progressStage.String
	job.ProgressMessage = progressMessage.String
	job.ErrorKind = errorKind.String
	job.ErrorMessage = errorMessage.String
	job.ResultJSON = resultJSON.String
	job.ThumbnailPath = thumbnailPath.String
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	job.StartedAt = parseNullableTime(startedRaw)
	job.CompletedAt = parseNullableTime(completedRaw)
	job.LastHeartbeat = parseNullableTime(heartbeatRaw)
	return &job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	parsed, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
