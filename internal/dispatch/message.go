package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"vidlens/internal/config"
	"vidlens/internal/queue"
)

// ErrInvalidMessage marks payloads that can never be enqueued.
var ErrInvalidMessage = errors.New("invalid dispatch message")

// Message is the JSON body of an analysis request. Omitted extractor flags
// fall back to the configured analysis defaults.
type Message struct {
	JobID      string `json:"job_id,omitempty"`
	VideoID    string `json:"video_id"`
	Path       string `json:"path"`
	Motion     *bool  `json:"motion,omitempty"`
	Transcript *bool  `json:"transcript,omitempty"`
}

// ParseMessage decodes data into job parameters.
func ParseMessage(data []byte, defaults config.Analysis) (queue.NewJobParams, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return queue.NewJobParams{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	path := strings.TrimSpace(msg.Path)
	if path == "" {
		return queue.NewJobParams{}, fmt.Errorf("%w: path is required", ErrInvalidMessage)
	}
	params := queue.NewJobParams{
		JobID:         strings.TrimSpace(msg.JobID),
		VideoID:       strings.TrimSpace(msg.VideoID),
		SourcePath:    path,
		RunMotion:     defaults.Motion,
		RunTranscript: defaults.Transcript,
	}
	if msg.Motion != nil {
		params.RunMotion = *msg.Motion
	}
	if msg.Transcript != nil {
		params.RunTranscript = *msg.Transcript
	}
	if !params.RunMotion && !params.RunTranscript {
		return queue.NewJobParams{}, fmt.Errorf("%w: motion and transcript are both disabled", ErrInvalidMessage)
	}
	return params, nil
}
