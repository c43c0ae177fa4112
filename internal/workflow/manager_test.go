package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"vidlens/internal/analysis"
	"vidlens/internal/config"
	"vidlens/internal/logging"
	"vidlens/internal/media/video"
	"vidlens/internal/motion"
	"vidlens/internal/notifications"
	"vidlens/internal/queue"
	"vidlens/internal/services"
	"vidlens/internal/services/whisper"
	"vidlens/internal/testsupport"
	"vidlens/internal/transcribe"
	"vidlens/internal/workflow"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	last   map[notifications.Event]notifications.Payload
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if r.last == nil {
		r.last = make(map[notifications.Event]notifications.Payload)
	}
	r.last[event] = payload
	return nil
}

func (r *recordingNotifier) payload(event notifications.Event) (notifications.Payload, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.last[event]
	return p, ok
}

type stubAnalyzer struct {
	mu     sync.Mutex
	calls  []analysis.Request
	result *analysis.Result
	err    error
	run    func(ctx context.Context, req analysis.Request, progress analysis.ProgressFunc) (*analysis.Result, error)
}

func (s *stubAnalyzer) Run(ctx context.Context, req analysis.Request, progress analysis.ProgressFunc) (*analysis.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	if s.run != nil {
		return s.run(ctx, req, progress)
	}
	if progress != nil {
		progress(analysis.Progress{Stage: analysis.StageMotion, Fraction: 0.5, Message: "halfway"})
		progress(analysis.Progress{Stage: analysis.StageMotion, Fraction: 1, Message: "done"})
	}
	return s.result, s.err
}

func (s *stubAnalyzer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newPipeline(t *testing.T, cfg *config.Config, opener video.Opener) *analysis.Pipeline {
	t.Helper()
	profiler, err := motion.NewProfiler(motion.DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("NewProfiler: %v", err)
	}
	speech := &testsupport.FakeSpeech{Result: whisper.Result{Text: "the weather today", Language: "en"}}
	extractor, err := transcribe.New(transcribe.Options{Audio: speech, Recognizer: speech, WorkDir: cfg.Paths.WorkDir})
	if err != nil {
		t.Fatalf("transcribe.New: %v", err)
	}
	pipeline, err := analysis.New(analysis.Options{
		Opener:       opener,
		Profiler:     profiler,
		Transcriber:  extractor,
		Thumbnails:   analysis.ThumbnailWriter{Width: 160, Quality: 80},
		ThumbnailDir: cfg.Paths.ThumbnailDir,
	})
	if err != nil {
		t.Fatalf("analysis.New: %v", err)
	}
	return pipeline
}

func mustGet(t *testing.T, store *queue.Store, id int64) *queue.Job {
	t.Helper()
	job, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job == nil {
		t.Fatalf("job %d not found", id)
	}
	return job
}

func TestRunOnceCompletesJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	src := testsupport.NewFrameSource(30, testsupport.StaticFrames(300, 8, 8, 100)...)
	notifier := &recordingNotifier{}
	mgr := workflow.NewManager(cfg, store, newPipeline(t, cfg, testsupport.StaticOpener(src)), logging.NewNop(), workflow.WithNotifier(notifier))

	job := testsupport.NewJob(t, store, "/videos/static.mp4")
	ran, err := mgr.RunOnce(context.Background())
	if err != nil || !ran {
		t.Fatalf("RunOnce: ran=%v err=%v", ran, err)
	}

	got := mustGet(t, store, job.ID)
	if got.Status != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", got.Status, got.ErrorMessage)
	}
	if got.Progress != 1 {
		t.Fatalf("expected progress 1, got %v", got.Progress)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(got.ResultJSON), &doc); err != nil {
		t.Fatalf("result json: %v", err)
	}
	if doc["duration"] != 10.0 || doc["fps"] != 30.0 || doc["frame_count"] != 300.0 || doc["motion_percentage"] != 0.0 {
		t.Fatalf("unexpected result document: %v", doc)
	}
	transcript, ok := doc["transcript"].(map[string]any)
	if !ok || transcript["text"] != "the weather today" {
		t.Fatalf("unexpected transcript: %v", doc["transcript"])
	}
	if got.ThumbnailPath == "" {
		t.Fatal("expected thumbnail path")
	}
	if _, err := os.Stat(got.ThumbnailPath); err != nil {
		t.Fatalf("thumbnail missing: %v", err)
	}
	if entries := testsupport.DirEntries(t, cfg.JobLockDir()); len(entries) != 0 {
		t.Fatalf("expected job lock to be released, found %v", entries)
	}

	if _, ok := notifier.payload(notifications.EventJobCompleted); !ok {
		t.Fatal("expected job completed notification")
	}
	if payload, ok := notifier.payload(notifications.EventQueueCompleted); !ok || payload["processed"] != 1 {
		t.Fatalf("expected queue completed notification, got %v", payload)
	}

	ran, err = mgr.RunOnce(context.Background())
	if err != nil || ran {
		t.Fatalf("expected empty queue, ran=%v err=%v", ran, err)
	}
}

func TestUnreadableVideoFailsJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	opener := &video.FFmpegOpener{FFmpegBinary: "ffmpeg", FFprobeBinary: "ffprobe"}
	notifier := &recordingNotifier{}
	mgr := workflow.NewManager(cfg, store, newPipeline(t, cfg, opener), logging.NewNop(), workflow.WithNotifier(notifier))

	job := testsupport.NewJob(t, store, filepath.Join(t.TempDir(), "missing.mp4"))
	if _, err := mgr.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got := mustGet(t, store, job.ID)
	if got.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.ErrorKind != string(services.KindVideoUnreadable) {
		t.Fatalf("expected video_unreadable, got %q", got.ErrorKind)
	}
	if strings.TrimSpace(got.ErrorMessage) == "" {
		t.Fatal("expected a non-empty error message")
	}
	payload, ok := notifier.payload(notifications.EventJobFailed)
	if !ok || payload["kind"] != string(services.KindVideoUnreadable) {
		t.Fatalf("expected failure notification, got %v", payload)
	}
	status := mgr.Status(context.Background())
	if status.LastError == "" || status.LastJob == nil || status.LastJob.Status != queue.StatusFailed {
		t.Fatalf("unexpected status summary: %+v", status)
	}
}

func TestFailurePersistsPartialResult(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	analyzer := &stubAnalyzer{
		result: &analysis.Result{Metadata: true, Duration: 2, FPS: 25, FrameCount: 50, Motion: true, MotionPercentage: 40},
		err: &analysis.StageError{
			Stage: analysis.StageTranscript,
			Err:   services.Wrap(services.ErrTranscription, "transcribe", "recognize", "whisper exited 1", nil),
		},
	}
	mgr := workflow.NewManager(cfg, store, analyzer, logging.NewNop())

	job := testsupport.NewJob(t, store, "/videos/clip.mp4")
	if _, err := mgr.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got := mustGet(t, store, job.ID)
	if got.Status != queue.StatusFailed || got.ErrorKind != string(services.KindTranscription) {
		t.Fatalf("unexpected job state: status=%s kind=%s", got.Status, got.ErrorKind)
	}
	if !strings.Contains(got.ErrorMessage, "whisper exited 1") {
		t.Fatalf("expected diagnostic in error message, got %q", got.ErrorMessage)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(got.ResultJSON), &doc); err != nil {
		t.Fatalf("partial result json: %v", err)
	}
	if doc["motion_percentage"] != 40.0 {
		t.Fatalf("expected motion section in partial result, got %v", doc)
	}
}

func TestCancelledRunRequeuesJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	analyzer := &stubAnalyzer{
		err: services.Wrap(services.ErrTransient, "motion", "decode", "", context.Canceled),
	}
	mgr := workflow.NewManager(cfg, store, analyzer, logging.NewNop())

	job := testsupport.NewJob(t, store, "/videos/clip.mp4")
	if _, err := mgr.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got := mustGet(t, store, job.ID)
	if got.Status != queue.StatusPending {
		t.Fatalf("expected pending after cancellation, got %s", got.Status)
	}
	if got.ProgressStage != queue.DaemonStopReason {
		t.Fatalf("expected stop reason, got %q", got.ProgressStage)
	}
	if got.ErrorMessage != "" {
		t.Fatalf("expected no error message, got %q", got.ErrorMessage)
	}
}

func TestDisabledTranscriptionIsMaskedFromRequest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transcription.Enabled = false
	store := testsupport.MustOpenStore(t, cfg)
	analyzer := &stubAnalyzer{result: &analysis.Result{Motion: true}}
	mgr := workflow.NewManager(cfg, store, analyzer, logging.NewNop())

	testsupport.NewJob(t, store, "/videos/clip.mp4")
	if _, err := mgr.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if analyzer.callCount() != 1 {
		t.Fatalf("expected one run, got %d", analyzer.callCount())
	}
	req := analyzer.calls[0]
	if !req.Motion || req.Transcript {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestLockedJobIsSkipped(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	analyzer := &stubAnalyzer{result: &analysis.Result{Motion: true}}
	mgr := workflow.NewManager(cfg, store, analyzer, logging.NewNop())

	job := testsupport.NewJob(t, store, "/videos/clip.mp4")
	if err := os.MkdirAll(cfg.JobLockDir(), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	held := flock.New(filepath.Join(cfg.JobLockDir(), job.JobID+".lock"))
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	defer held.Unlock()

	if _, err := mgr.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if analyzer.callCount() != 0 {
		t.Fatal("expected analyzer not to run while the job lock is held")
	}
	if got := mustGet(t, store, job.ID); got.Status != queue.StatusProcessing {
		t.Fatalf("expected job to stay with the lock holder, got %s", got.Status)
	}
}

func TestStartProcessesQueueUntilStopped(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.Workers = 2
	store := testsupport.MustOpenStore(t, cfg)
	analyzer := &stubAnalyzer{result: &analysis.Result{Motion: true, MotionPercentage: 5}}
	mgr := workflow.NewManager(cfg, store, analyzer, logging.NewNop(), workflow.WithPollInterval(10*time.Millisecond))

	jobs := []*queue.Job{
		testsupport.NewJob(t, store, "/videos/a.mp4"),
		testsupport.NewJob(t, store, "/videos/b.mp4"),
		testsupport.NewJob(t, store, "/videos/c.mp4"),
	}

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := mgr.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		stats, err := store.Stats(context.Background())
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if stats[queue.StatusCompleted] == len(jobs) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("jobs did not complete in time: %v", stats)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if !mgr.Status(context.Background()).Running {
		t.Fatal("expected manager to report running")
	}
	mgr.Stop()
	mgr.Stop()
	if mgr.Status(context.Background()).Running {
		t.Fatal("expected manager to report stopped")
	}
	if analyzer.callCount() != len(jobs) {
		t.Fatalf("expected each job to run once, got %d runs", analyzer.callCount())
	}
}

func TestStopRequeuesInFlightJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	started := make(chan struct{})
	analyzer := &stubAnalyzer{
		run: func(ctx context.Context, _ analysis.Request, _ analysis.ProgressFunc) (*analysis.Result, error) {
			close(started)
			<-ctx.Done()
			return nil, services.Wrap(services.ErrTransient, "motion", "decode", "", ctx.Err())
		},
	}
	mgr := workflow.NewManager(cfg, store, analyzer, logging.NewNop(), workflow.WithPollInterval(10*time.Millisecond))
	job := testsupport.NewJob(t, store, "/videos/long.mp4")

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not start")
	}
	mgr.Stop()

	got := mustGet(t, store, job.ID)
	if got.Status != queue.StatusPending {
		t.Fatalf("expected pending after shutdown, got %s", got.Status)
	}
}

func TestStartRequiresAnalyzer(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManager(cfg, store, nil, nil)
	if err := mgr.Start(context.Background()); err == nil {
		t.Fatal("expected error without analyzer")
	}
	if _, err := mgr.RunOnce(context.Background()); err == nil || errors.Is(err, context.Canceled) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
