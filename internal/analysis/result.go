package analysis

import (
	"encoding/json"

	"vidlens/internal/classify"
	"vidlens/internal/media/video"
	"vidlens/internal/motion"
	"vidlens/internal/transcribe"
)

// Intensity summarizes the raw per-frame motion samples.
type Intensity struct {
	Min  int64   `json:"min"`
	Max  int64   `json:"max"`
	Mean float64 `json:"mean"`
}

// Result is the analysis document for one video. Sections for extractors
// that did not run are omitted from the JSON form.
type Result struct {
	// Metadata is set when the video stream was probed.
	Metadata   bool
	Duration   float64
	FPS        float64
	FrameCount int64
	Width      int
	Height     int

	// Motion is set when the motion extractor produced a profile.
	Motion           bool
	MotionPercentage float64
	MotionIntensity  Intensity
	Truncated        bool
	DecodeError      string
	FramesProcessed  int64

	ThumbnailPath string

	Transcript   *transcribe.Transcript
	ContentFlags []classify.Flag
}

func (r *Result) applyInfo(info video.Info) {
	r.Metadata = true
	r.Duration = info.Duration()
	r.FPS = info.FPS
	r.FrameCount = info.FrameCount
	r.Width, r.Height = info.Width, info.Height
}

func (r *Result) applyProfile(profile *motion.Profile) {
	r.Motion = true
	r.MotionPercentage = profile.MotionPercentage
	r.MotionIntensity = Intensity{Min: profile.Min, Max: profile.Max, Mean: profile.Mean}
	r.Truncated = profile.Truncated
	r.DecodeError = profile.DecodeError
	r.FramesProcessed = profile.FramesProcessed
}

type document struct {
	Duration         *float64             `json:"duration,omitempty"`
	FPS              *float64             `json:"fps,omitempty"`
	FrameCount       *int64               `json:"frame_count,omitempty"`
	MotionPercentage *float64             `json:"motion_percentage,omitempty"`
	MotionIntensity  *Intensity           `json:"motion_intensity,omitempty"`
	ThumbnailPath    string               `json:"thumbnail_path,omitempty"`
	Transcript       *transcriptSection   `json:"transcript,omitempty"`
	ContentFlags     *[]classify.Flag     `json:"content_flags,omitempty"`
	Truncated        *bool                `json:"truncated,omitempty"`
	DecodeError      string               `json:"decode_error,omitempty"`
	Segments         []transcribe.Segment `json:"transcript_segments,omitempty"`
}

type transcriptSection struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// MarshalJSON renders the external result document. duration, fps,
// frame_count, motion_percentage and motion_intensity keep their names
// exactly; zero values are still emitted for sections that ran.
func (r Result) MarshalJSON() ([]byte, error) {
	var doc document
	if r.Metadata {
		doc.Duration = &r.Duration
		doc.FPS = &r.FPS
		doc.FrameCount = &r.FrameCount
	}
	if r.Motion {
		doc.MotionPercentage = &r.MotionPercentage
		intensity := r.MotionIntensity
		doc.MotionIntensity = &intensity
		doc.Truncated = &r.Truncated
		doc.DecodeError = r.DecodeError
	}
	doc.ThumbnailPath = r.ThumbnailPath
	if r.Transcript != nil {
		doc.Transcript = &transcriptSection{Text: r.Transcript.Text, Language: r.Transcript.Language}
		doc.Segments = r.Transcript.Spans
		flags := r.ContentFlags
		if flags == nil {
			flags = []classify.Flag{}
		}
		doc.ContentFlags = &flags
	}
	return json.Marshal(doc)
}
