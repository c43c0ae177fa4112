package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"vidlens/internal/queue"
)

// Analysis failure markers. Each one is terminal for the job it occurs in.
var (
	ErrVideoUnreadable = errors.New("video unreadable")
	ErrEmptyVideo      = errors.New("empty video")
	ErrAudioExtraction = errors.New("audio extraction failed")
	ErrTranscription   = errors.New("transcription failed")
	ErrClassification  = errors.New("classification failed")
)

// Infrastructure markers.
var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// ErrorKind is the stable, machine-readable name of a failure marker. It is
// persisted alongside the job's error message.
type ErrorKind string

const (
	KindNone            ErrorKind = ""
	KindVideoUnreadable ErrorKind = "video_unreadable"
	KindEmptyVideo      ErrorKind = "empty_video"
	KindAudioExtraction ErrorKind = "audio_extraction_failed"
	KindTranscription   ErrorKind = "transcription_failed"
	KindClassification  ErrorKind = "classification_failed"
	KindCanceled        ErrorKind = "canceled"
	KindExternalTool    ErrorKind = "external_tool"
	KindValidation      ErrorKind = "validation"
	KindConfiguration   ErrorKind = "configuration"
	KindNotFound        ErrorKind = "not_found"
	KindTimeout         ErrorKind = "timeout"
	KindTransient       ErrorKind = "transient"
)

var kindMarkers = []struct {
	marker error
	kind   ErrorKind
}{
	{ErrVideoUnreadable, KindVideoUnreadable},
	{ErrEmptyVideo, KindEmptyVideo},
	{ErrAudioExtraction, KindAudioExtraction},
	{ErrTranscription, KindTranscription},
	{ErrClassification, KindClassification},
	{context.Canceled, KindCanceled},
	{ErrExternalTool, KindExternalTool},
	{ErrValidation, KindValidation},
	{ErrConfiguration, KindConfiguration},
	{ErrNotFound, KindNotFound},
	{ErrTimeout, KindTimeout},
	{context.DeadlineExceeded, KindTimeout},
	{ErrTransient, KindTransient},
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf reports the first marker found in err's chain. Analysis markers win
// over infrastructure markers when both are present.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, km := range kindMarkers {
		if errors.Is(err, km.marker) {
			return km.kind
		}
	}
	return KindTransient
}

// FailureStatus maps a pipeline error to the status the workflow manager
// persists. Cancellation (daemon shutdown) returns the job to pending so it
// runs again; every other failure is terminal.
func FailureStatus(err error) queue.Status {
	if errors.Is(err, context.Canceled) {
		return queue.StatusPending
	}
	return queue.StatusFailed
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
