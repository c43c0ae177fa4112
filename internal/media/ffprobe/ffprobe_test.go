package ffprobe

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
)

const sampleJSON = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "width": 640, "height": 360,
     "r_frame_rate": "30/1", "avg_frame_rate": "30/1", "nb_frames": "300", "duration": "10.000000"},
    {"index": 1, "codec_name": "aac", "codec_type": "audio", "sample_rate": "48000", "channels": 2}
  ],
  "format": {"filename": "clip.mp4", "nb_streams": 2, "duration": "10.010000", "size": "123456", "format_name": "mov,mp4"}
}`

func TestParseAndHelpers(t *testing.T) {
	result, err := Parse([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	video, ok := result.PrimaryVideo()
	if !ok {
		t.Fatal("expected a video stream")
	}
	if video.Width != 640 || video.Height != 360 {
		t.Fatalf("unexpected dimensions %dx%d", video.Width, video.Height)
	}
	if video.FrameRate() != 30 {
		t.Fatalf("unexpected fps %v", video.FrameRate())
	}
	if n := video.FrameCount(result.DurationSeconds()); n != 300 {
		t.Fatalf("unexpected frame count %d", n)
	}
	if !result.HasAudio() {
		t.Fatal("expected audio stream")
	}
	if result.SizeBytes() != 123456 {
		t.Fatalf("unexpected size %d", result.SizeBytes())
	}
}

func TestFrameCountEstimatesWithoutNBFrames(t *testing.T) {
	tests := []struct {
		name      string
		stream    Stream
		container float64
		want      int64
	}{
		{"stream duration", Stream{RFrameRate: "30000/1001", Duration: "10.010"}, 0, 300},
		{"container duration", Stream{AvgFrameRate: "25/1"}, 4, 100},
		{"avg fallback", Stream{RFrameRate: "0/0", AvgFrameRate: "24/1", Duration: "2"}, 0, 48},
		{"no rate", Stream{Duration: "2"}, 2, 0},
		{"no duration", Stream{RFrameRate: "30/1", Duration: "N/A"}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stream.FrameCount(tt.container); got != tt.want {
				t.Fatalf("FrameCount = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPrimaryVideoSkipsCoverArt(t *testing.T) {
	result := Result{Streams: []Stream{
		{Index: 0, CodecType: "audio"},
		{Index: 1, CodecType: "video", CodecName: "mjpeg", RFrameRate: "0/0"},
	}}
	if _, ok := result.PrimaryVideo(); ok {
		t.Fatal("expected cover art to be ignored")
	}
}

func TestInvalidNumbers(t *testing.T) {
	result := Result{Format: Format{Duration: "bad", Size: "-1"}}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
	if parseRational("1/0") != 0 {
		t.Fatal("expected zero for division by zero")
	}
}

func TestInspectUsesStubBinary(t *testing.T) {
	dir := t.TempDir()
	payload := filepath.Join(dir, "probe.json")
	if err := os.WriteFile(payload, []byte(sampleJSON), 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	stub := filepath.Join(dir, "ffprobe")
	script := "#!/bin/sh\ncat " + payload + "\n"
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	result, err := Inspect(context.Background(), stub, "clip.mp4")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(result.Streams) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(result.Streams))
	}

	failing := filepath.Join(dir, "ffprobe-fail")
	if err := os.WriteFile(failing, []byte("#!/bin/sh\necho 'Invalid data found' >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	if _, err := Inspect(context.Background(), failing, "clip.mp4"); err == nil {
		t.Fatal("expected error from failing ffprobe")
	}
}
