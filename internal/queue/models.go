package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of an analysis job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DaemonStopReason is recorded when a run is interrupted by shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further pipeline run will touch the job.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is an analysis request persisted in SQLite.
type Job struct {
	ID              int64
	JobID           string
	VideoID         string
	SourcePath      string
	Status          Status
	RunMotion       bool
	RunTranscript   bool
	Progress        float64
	ProgressStage   string
	ProgressMessage string
	ErrorKind       string
	ErrorMessage    string
	ResultJSON      string
	ThumbnailPath   string
	Attempts        int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	LastHeartbeat   *time.Time
}

// NewJobParams describes a job to enqueue. An empty JobID is assigned a UUID.
type NewJobParams struct {
	JobID         string
	VideoID       string
	SourcePath    string
	RunMotion     bool
	RunTranscript bool
}

// HealthSummary describes aggregated job counts per status.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Completed  int
}

// ClampProgress bounds a progress fraction to [0, 1].
func ClampProgress(value float64) float64 {
	switch {
	case value != value: // NaN
		return 0
	case value < 0:
		return 0
	case value > 1:
		return 1
	default:
		return value
	}
}
