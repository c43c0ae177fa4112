package queue

import "errors"

var (
	// ErrNotProcessing is returned when a run writes to a job it no longer owns.
	ErrNotProcessing = errors.New("job is not processing")
	// ErrInvalidJob is returned when enqueue parameters are incomplete.
	ErrInvalidJob = errors.New("invalid job")
)
