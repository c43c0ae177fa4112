package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"vidlens/internal/media/video"
	"vidlens/internal/motion"
	"vidlens/internal/queue"
	"vidlens/internal/services"
	"vidlens/internal/services/whisper"
	"vidlens/internal/testsupport"
	"vidlens/internal/transcribe"
)

type fixture struct {
	pipeline *Pipeline
	source   *testsupport.FrameSource
	speech   *testsupport.FakeSpeech
	thumbDir string
	workDir  string
}

func newFixture(t *testing.T, src *testsupport.FrameSource, concurrent bool) *fixture {
	t.Helper()
	base := t.TempDir()
	speech := &testsupport.FakeSpeech{Result: whisper.Result{Text: "hello world", Language: "en"}}
	workDir := filepath.Join(base, "work")
	extractor, err := transcribe.New(transcribe.Options{Audio: speech, Recognizer: speech, WorkDir: workDir})
	if err != nil {
		t.Fatalf("transcribe.New: %v", err)
	}
	profiler, err := motion.NewProfiler(motion.DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("NewProfiler: %v", err)
	}
	thumbDir := filepath.Join(base, "thumbs")
	pipeline, err := New(Options{
		Opener:       testsupport.StaticOpener(src),
		Profiler:     profiler,
		Transcriber:  extractor,
		Thumbnails:   ThumbnailWriter{Width: 320, Quality: 80},
		ThumbnailDir: thumbDir,
		Concurrent:   concurrent,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{pipeline: pipeline, source: src, speech: speech, thumbDir: thumbDir, workDir: workDir}
}

func decode(t *testing.T, result *Result) map[string]any {
	t.Helper()
	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return doc
}

func TestRunStaticVideoEndToEnd(t *testing.T) {
	for _, concurrent := range []bool{false, true} {
		src := testsupport.NewFrameSource(30, testsupport.StaticFrames(300, 8, 8, 90)...)
		f := newFixture(t, src, concurrent)

		var mu sync.Mutex
		var updates []Progress
		result, err := f.pipeline.Run(context.Background(), Request{ID: "job-1", Path: "/videos/static.mp4", Motion: true, Transcript: true}, func(p Progress) {
			mu.Lock()
			updates = append(updates, p)
			mu.Unlock()
		})
		if err != nil {
			t.Fatalf("concurrent=%v: Run: %v", concurrent, err)
		}
		if !src.Closed() {
			t.Fatalf("concurrent=%v: video handle not closed", concurrent)
		}

		doc := decode(t, result)
		if doc["duration"] != 10.0 || doc["fps"] != 30.0 || doc["frame_count"] != 300.0 || doc["motion_percentage"] != 0.0 {
			t.Fatalf("concurrent=%v: unexpected document %v", concurrent, doc)
		}
		intensity, ok := doc["motion_intensity"].(map[string]any)
		if !ok || intensity["min"] != 0.0 || intensity["max"] != 0.0 || intensity["mean"] != 0.0 {
			t.Fatalf("concurrent=%v: unexpected intensity %v", concurrent, doc["motion_intensity"])
		}
		transcript, ok := doc["transcript"].(map[string]any)
		if !ok || transcript["text"] != "hello world" || transcript["language"] != "en" {
			t.Fatalf("concurrent=%v: unexpected transcript %v", concurrent, doc["transcript"])
		}
		flags, ok := doc["content_flags"].([]any)
		if !ok || len(flags) != 1 {
			t.Fatalf("concurrent=%v: unexpected flags %v", concurrent, doc["content_flags"])
		}
		if doc["truncated"] != false {
			t.Fatalf("concurrent=%v: expected truncated=false, got %v", concurrent, doc["truncated"])
		}

		wantThumb := filepath.Join(f.thumbDir, "job-1.jpg")
		if result.ThumbnailPath != wantThumb || doc["thumbnail_path"] != wantThumb {
			t.Fatalf("concurrent=%v: unexpected thumbnail path %q", concurrent, result.ThumbnailPath)
		}
		if info, err := os.Stat(wantThumb); err != nil || info.Size() == 0 {
			t.Fatalf("concurrent=%v: thumbnail missing: %v", concurrent, err)
		}
		if entries := testsupport.DirEntries(t, f.workDir); len(entries) != 0 {
			t.Fatalf("concurrent=%v: temp audio left behind: %v", concurrent, entries)
		}

		last := 0.0
		for _, u := range updates {
			if u.Fraction < last-1e-9 || u.Fraction > 1 {
				t.Fatalf("concurrent=%v: progress not monotonic: %v after %v", concurrent, u.Fraction, last)
			}
			last = u.Fraction
		}
		if last < 1-1e-9 {
			t.Fatalf("concurrent=%v: final progress %v", concurrent, last)
		}
	}
}

func TestRunUnreadableVideo(t *testing.T) {
	opener := &video.FFmpegOpener{FFmpegBinary: "ffmpeg", FFprobeBinary: "ffprobe"}
	pipeline, err := New(Options{Opener: opener, Profiler: mustProfiler(t)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := pipeline.Run(context.Background(), Request{Path: filepath.Join(t.TempDir(), "missing.mp4"), Motion: true}, nil)
	if result != nil {
		t.Fatalf("expected nil result, got %+v", result)
	}
	if !errors.Is(err, services.ErrVideoUnreadable) || services.KindOf(err) != services.KindVideoUnreadable {
		t.Fatalf("expected VideoUnreadable, got %v", err)
	}
	if FailedStage(err) != StageProbe {
		t.Fatalf("expected probe stage, got %q", FailedStage(err))
	}
	if err.Error() == "" {
		t.Fatal("expected a diagnostic message")
	}
}

func mustProfiler(t *testing.T) *motion.Profiler {
	t.Helper()
	profiler, err := motion.NewProfiler(motion.DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("NewProfiler: %v", err)
	}
	return profiler
}

func TestRunMotionFailureKeepsTranscript(t *testing.T) {
	for _, concurrent := range []bool{false, true} {
		src := testsupport.NewFrameSource(30, testsupport.StaticFrames(3, 4, 4, 0)...)
		src.SetFrameCount(0)
		f := newFixture(t, src, concurrent)

		result, err := f.pipeline.Run(context.Background(), Request{Path: "/videos/empty.mp4", Motion: true, Transcript: true}, nil)
		if !errors.Is(err, services.ErrEmptyVideo) {
			t.Fatalf("concurrent=%v: expected EmptyVideo, got %v", concurrent, err)
		}
		if FailedStage(err) != StageMotion {
			t.Fatalf("concurrent=%v: expected motion stage, got %q", concurrent, FailedStage(err))
		}
		if result == nil || result.Transcript == nil || result.Transcript.Text != "hello world" {
			t.Fatalf("concurrent=%v: expected transcript section, got %+v", concurrent, result)
		}
		doc := decode(t, result)
		if _, ok := doc["motion_percentage"]; ok {
			t.Fatalf("concurrent=%v: motion keys must be absent: %v", concurrent, doc)
		}
	}
}

func TestRunUnreadableVideoKeepsTranscript(t *testing.T) {
	for _, concurrent := range []bool{false, true} {
		f := newFixture(t, nil, concurrent)
		f.pipeline.opts.Opener = video.OpenerFunc(func(context.Context, string) (video.Source, error) {
			return nil, services.Wrap(services.ErrVideoUnreadable, "video", "probe", "no video stream", nil)
		})

		result, err := f.pipeline.Run(context.Background(), Request{Path: "/videos/audio-only.mkv", Motion: true, Transcript: true}, nil)
		if !errors.Is(err, services.ErrVideoUnreadable) || FailedStage(err) != StageProbe {
			t.Fatalf("concurrent=%v: expected probe failure, got %v", concurrent, err)
		}
		if result == nil || result.Transcript == nil || result.Transcript.Text != "hello world" {
			t.Fatalf("concurrent=%v: expected transcript section, got %+v", concurrent, result)
		}
		doc := decode(t, result)
		for _, key := range []string{"duration", "motion_percentage", "motion_intensity"} {
			if _, ok := doc[key]; ok {
				t.Fatalf("concurrent=%v: key %q must be absent: %v", concurrent, key, doc)
			}
		}
	}
}

func TestRunTranscriptOnlyDoesNotStartDecoder(t *testing.T) {
	f := newFixture(t, nil, false)
	prober := &probeOnlyOpener{info: video.Info{FPS: 25, FrameCount: 50, Width: 4, Height: 4}}
	f.pipeline.opts.Opener = prober

	result, err := f.pipeline.Run(context.Background(), Request{Path: "/videos/a.mp4", Transcript: true}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if prober.opens != 0 {
		t.Fatalf("decoder opened %d times for a transcript-only request", prober.opens)
	}
	if result.Duration != 2 || result.Transcript == nil {
		t.Fatalf("unexpected result %+v", result)
	}
}

type probeOnlyOpener struct {
	info  video.Info
	opens int
}

func (o *probeOnlyOpener) Open(context.Context, string) (video.Source, error) {
	o.opens++
	return nil, errors.New("decoder not expected")
}

func (o *probeOnlyOpener) Probe(context.Context, string) (video.Info, error) {
	return o.info, nil
}

func TestRunShutdownDuringProbeRequeues(t *testing.T) {
	dir := t.TempDir()
	path := testsupport.WriteFile(t, filepath.Join(dir, "clip.mp4"), []byte("video"))
	opener := &video.FFmpegOpener{
		FFprobeBinary: testsupport.WriteScript(t, filepath.Join(dir, "ffprobe"), "exec sleep 5"),
		FFmpegBinary:  "ffmpeg",
	}
	pipeline, err := New(Options{Opener: opener, Profiler: mustProfiler(t)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(200*time.Millisecond, cancel)

	_, err = pipeline.Run(ctx, Request{Path: path, Motion: true}, nil)
	if err == nil {
		t.Fatal("expected interrupted run")
	}
	if kind := services.KindOf(err); kind == services.KindVideoUnreadable {
		t.Fatalf("shutdown must not mark the video unreadable: %v", err)
	}
	if status := services.FailureStatus(err); status != queue.StatusPending {
		t.Fatalf("expected pending, got %s (%v)", status, err)
	}
}

func TestRunTranscriptFailureKeepsMotion(t *testing.T) {
	src := testsupport.NewFrameSource(10, testsupport.AlternatingFrames(10, 4, 4)...)
	f := newFixture(t, src, false)
	f.speech.TranscribeErr = errors.New("engine crashed")

	result, err := f.pipeline.Run(context.Background(), Request{Path: "/videos/a.mp4", Motion: true, Transcript: true}, nil)
	if !errors.Is(err, services.ErrTranscription) || FailedStage(err) != StageTranscript {
		t.Fatalf("expected transcript failure, got %v", err)
	}
	if result == nil || !result.Motion || result.MotionPercentage != 90 {
		t.Fatalf("expected motion section, got %+v", result)
	}
	if result.Transcript != nil {
		t.Fatal("transcript section should be absent")
	}
}

func TestRunSkipsDisabledExtractors(t *testing.T) {
	src := testsupport.NewFrameSource(25, testsupport.StaticFrames(50, 4, 4, 0)...)
	f := newFixture(t, src, false)

	result, err := f.pipeline.Run(context.Background(), Request{Path: "/videos/a.mp4", Transcript: true}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	doc := decode(t, result)
	for _, key := range []string{"motion_percentage", "motion_intensity", "truncated", "thumbnail_path"} {
		if _, ok := doc[key]; ok {
			t.Fatalf("key %q must be absent when motion is skipped: %v", key, doc)
		}
	}
	if doc["duration"] != 2.0 {
		t.Fatalf("metadata should still be reported, got %v", doc)
	}

	src = testsupport.NewFrameSource(25, testsupport.StaticFrames(50, 4, 4, 0)...)
	f = newFixture(t, src, false)
	result, err = f.pipeline.Run(context.Background(), Request{Path: "/videos/a.mp4", Motion: true}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	doc = decode(t, result)
	if _, ok := doc["transcript"]; ok {
		t.Fatalf("transcript must be absent: %v", doc)
	}
	if _, ok := doc["content_flags"]; ok {
		t.Fatalf("content_flags must be absent: %v", doc)
	}
	if len(f.speech.AudioPaths()) != 0 {
		t.Fatal("audio should not be extracted when transcript is skipped")
	}
}

func TestRunTranscriptOnlyWithoutVideoStream(t *testing.T) {
	speech := &testsupport.FakeSpeech{Result: whisper.Result{Text: "podcast", Language: "en"}}
	extractor, err := transcribe.New(transcribe.Options{Audio: speech, Recognizer: speech, WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("transcribe.New: %v", err)
	}
	failing := video.OpenerFunc(func(context.Context, string) (video.Source, error) {
		return nil, services.Wrap(services.ErrVideoUnreadable, "video", "probe", "no video stream", nil)
	})
	pipeline, err := New(Options{Opener: failing, Transcriber: extractor})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := pipeline.Run(context.Background(), Request{Path: "/audio/a.m4a", Transcript: true}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	doc := decode(t, result)
	if _, ok := doc["duration"]; ok {
		t.Fatalf("metadata must be omitted: %v", doc)
	}
	if result.Transcript == nil || result.Transcript.Text != "podcast" {
		t.Fatalf("unexpected transcript %+v", result.Transcript)
	}
}

func TestRunValidation(t *testing.T) {
	f := newFixture(t, testsupport.NewFrameSource(30, testsupport.StaticFrames(2, 4, 4, 0)...), false)
	if _, err := f.pipeline.Run(context.Background(), Request{Path: "/a.mp4"}, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation with no extractors, got %v", err)
	}
	if _, err := f.pipeline.Run(context.Background(), Request{Motion: true}, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation with no path, got %v", err)
	}
	bare, _ := New(Options{Opener: testsupport.StaticOpener(nil)})
	if _, err := bare.Run(context.Background(), Request{Path: "/a.mp4", Transcript: true}, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration without transcriber, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := testsupport.NewFrameSource(30, testsupport.StaticFrames(100, 4, 4, 0)...)
	src.OnNext = func(index int) {
		if index == 10 {
			cancel()
		}
	}
	f := newFixture(t, src, false)
	_, err := f.pipeline.Run(ctx, Request{Path: "/a.mp4", Motion: true, Transcript: true}, nil)
	if !errors.Is(err, context.Canceled) || services.KindOf(err) != services.KindCanceled {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(f.speech.AudioPaths()) != 0 {
		t.Fatal("transcript should not start after cancellation")
	}
}
