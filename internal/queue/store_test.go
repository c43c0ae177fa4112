package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vidlens/internal/queue"
	"vidlens/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, "/videos/a.mp4")
	if job.Status != queue.StatusPending {
		t.Fatalf("expected pending, got %s", job.Status)
	}
	if job.JobID == "" {
		t.Fatal("expected generated job id")
	}
	if !job.RunMotion || !job.RunTranscript {
		t.Fatalf("expected both extractors enabled: %+v", job)
	}
	if store.Path() != cfg.Paths.QueueDB {
		t.Fatalf("unexpected path %q", store.Path())
	}

	// Reopening keeps the data.
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	reopened := testsupport.MustOpenStore(t, cfg)
	got, err := reopened.GetByJobID(ctx, job.JobID)
	if err != nil || got == nil {
		t.Fatalf("GetByJobID after reopen: job=%v err=%v", got, err)
	}
}

func TestNewJobValidation(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, err := store.NewJob(ctx, queue.NewJobParams{SourcePath: " ", RunMotion: true}); !errors.Is(err, queue.ErrInvalidJob) {
		t.Fatalf("expected ErrInvalidJob for empty path, got %v", err)
	}
	if _, err := store.NewJob(ctx, queue.NewJobParams{SourcePath: "/v.mp4"}); !errors.Is(err, queue.ErrInvalidJob) {
		t.Fatalf("expected ErrInvalidJob with no extractors, got %v", err)
	}

	job, err := store.NewJob(ctx, queue.NewJobParams{JobID: "job-1", VideoID: "vid-9", SourcePath: "/v.mp4", RunMotion: true})
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	if job.JobID != "job-1" || job.VideoID != "vid-9" || job.RunTranscript {
		t.Fatalf("unexpected job %+v", job)
	}
	if _, err := store.NewJob(ctx, queue.NewJobParams{JobID: "job-1", SourcePath: "/v.mp4", RunMotion: true}); err == nil {
		t.Fatal("expected duplicate job id to be rejected")
	}
}

func TestClaimOrderAndEmptyQueue(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	none, err := store.Claim(ctx)
	if err != nil || none != nil {
		t.Fatalf("expected nil claim on empty queue, got %v %v", none, err)
	}

	first := testsupport.NewJob(t, store, "/videos/1.mp4")
	second := testsupport.NewJob(t, store, "/videos/2.mp4")

	claimed, err := store.Claim(ctx)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed.ID != first.ID {
		t.Fatalf("expected oldest job %d, got %d", first.ID, claimed.ID)
	}
	if claimed.Status != queue.StatusProcessing || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed state: %+v", claimed)
	}
	if claimed.StartedAt == nil || claimed.LastHeartbeat == nil {
		t.Fatal("expected started_at and heartbeat to be set")
	}

	next, err := store.Claim(ctx)
	if err != nil || next == nil || next.ID != second.ID {
		t.Fatalf("expected second job, got %v %v", next, err)
	}
}

func TestClaimIsExclusiveAcrossWorkers(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	const jobs = 6
	for range jobs {
		testsupport.NewJob(t, store, "/videos/x.mp4")
	}

	var (
		mu      sync.Mutex
		claimed = make(map[int64]int)
		wg      sync.WaitGroup
		errs    = make(chan error, 4)
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := store.Claim(ctx)
				if err != nil {
					errs <- err
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Claim: %v", err)
	}
	if len(claimed) != jobs {
		t.Fatalf("expected %d distinct claims, got %d", jobs, len(claimed))
	}
	for id, n := range claimed {
		if n != 1 {
			t.Fatalf("job %d claimed %d times", id, n)
		}
	}
}

func TestTransitionsRequireOwnership(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	job := testsupport.NewJob(t, store, "/videos/a.mp4")

	if err := store.UpdateProgress(ctx, job.ID, "motion", "", 0.5); !errors.Is(err, queue.ErrNotProcessing) {
		t.Fatalf("expected ErrNotProcessing for pending job, got %v", err)
	}
	if err := store.Complete(ctx, job.ID, `{}`, ""); !errors.Is(err, queue.ErrNotProcessing) {
		t.Fatalf("expected ErrNotProcessing on complete, got %v", err)
	}

	if _, err := store.Claim(ctx); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := store.UpdateProgress(ctx, job.ID, "motion", "frame 5/10", 1.7); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	got, _ := store.GetByID(ctx, job.ID)
	if got.Progress != 1 || got.ProgressStage != "motion" || got.ProgressMessage != "frame 5/10" {
		t.Fatalf("unexpected progress: %+v", got)
	}
	if err := store.UpdateHeartbeat(ctx, job.ID); err != nil {
		t.Fatalf("UpdateHeartbeat: %v", err)
	}

	if err := store.Complete(ctx, job.ID, `{"fps":30}`, "/thumbs/a.jpg"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	done, _ := store.GetByID(ctx, job.ID)
	if done.Status != queue.StatusCompleted || done.ResultJSON != `{"fps":30}` || done.ThumbnailPath != "/thumbs/a.jpg" {
		t.Fatalf("unexpected completed job: %+v", done)
	}
	if done.CompletedAt == nil {
		t.Fatal("expected completed_at")
	}

	// A second terminal transition is rejected.
	if err := store.Fail(ctx, job.ID, "video_unreadable", "boom", ""); !errors.Is(err, queue.ErrNotProcessing) {
		t.Fatalf("expected ErrNotProcessing after completion, got %v", err)
	}
}

func TestFailKeepsPartialResult(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	job := testsupport.NewJob(t, store, "/videos/a.mp4")
	if _, err := store.Claim(ctx); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := store.Fail(ctx, job.ID, "transcription_failed", "  ", `{"fps":25}`); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	got, _ := store.GetByID(ctx, job.ID)
	if got.Status != queue.StatusFailed || got.ErrorKind != "transcription_failed" {
		t.Fatalf("unexpected failed job: %+v", got)
	}
	if got.ErrorMessage != "analysis failed" {
		t.Fatalf("expected default message, got %q", got.ErrorMessage)
	}
	if got.ResultJSON != `{"fps":25}` {
		t.Fatalf("expected partial result, got %q", got.ResultJSON)
	}

	retried, err := store.RetryFailed(ctx)
	if err != nil || retried != 1 {
		t.Fatalf("RetryFailed: n=%d err=%v", retried, err)
	}
	again, _ := store.GetByID(ctx, job.ID)
	if again.Status != queue.StatusPending || again.ErrorKind != "" || again.ErrorMessage != "" {
		t.Fatalf("unexpected retried job: %+v", again)
	}
	claimed, _ := store.Claim(ctx)
	if claimed.Attempts != 2 {
		t.Fatalf("expected attempts 2, got %d", claimed.Attempts)
	}
}

func TestRequeueAndReset(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	a := testsupport.NewJob(t, store, "/videos/a.mp4")
	b := testsupport.NewJob(t, store, "/videos/b.mp4")

	if _, err := store.Claim(ctx); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := store.Requeue(ctx, a.ID, queue.DaemonStopReason); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	got, _ := store.GetByID(ctx, a.ID)
	if got.Status != queue.StatusPending || got.ProgressStage != queue.DaemonStopReason {
		t.Fatalf("unexpected requeued job: %+v", got)
	}

	if _, err := store.Claim(ctx); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := store.Claim(ctx); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	n, err := store.ResetStuckProcessing(ctx)
	if err != nil || n != 2 {
		t.Fatalf("ResetStuckProcessing: n=%d err=%v", n, err)
	}
	for _, id := range []int64{a.ID, b.ID} {
		job, _ := store.GetByID(ctx, id)
		if job.Status != queue.StatusPending {
			t.Fatalf("job %d not reset: %s", id, job.Status)
		}
	}
}

func TestReclaimStaleProcessing(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	job := testsupport.NewJob(t, store, "/videos/a.mp4")
	if _, err := store.Claim(ctx); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	n, err := store.ReclaimStaleProcessing(ctx, time.Now().Add(-time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("fresh heartbeat should not be reclaimed: n=%d err=%v", n, err)
	}
	n, err = store.ReclaimStaleProcessing(ctx, time.Now().Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("expected stale job reclaimed: n=%d err=%v", n, err)
	}
	got, _ := store.GetByID(ctx, job.ID)
	if got.Status != queue.StatusPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}
}

func TestListStatsAndClear(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	a := testsupport.NewJob(t, store, "/videos/a.mp4")
	b := testsupport.NewJob(t, store, "/videos/b.mp4")
	testsupport.NewJob(t, store, "/videos/c.mp4")

	claimed, _ := store.Claim(ctx)
	if err := store.Complete(ctx, claimed.ID, `{}`, ""); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := store.Claim(ctx); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	pending, err := store.List(ctx, queue.StatusPending)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected 1 pending job, got %d (%v)", len(pending), err)
	}
	all, _ := store.List(ctx)
	if len(all) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(all))
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 3 || health.Completed != 1 || health.Processing != 1 || health.Pending != 1 {
		t.Fatalf("unexpected health %+v", health)
	}

	removed, err := store.Remove(ctx, b.ID)
	if err != nil || removed {
		t.Fatalf("processing job must not be removed: removed=%v err=%v", removed, err)
	}
	cleared, err := store.ClearCompleted(ctx)
	if err != nil || cleared != 1 {
		t.Fatalf("ClearCompleted: n=%d err=%v", cleared, err)
	}
	if got, _ := store.GetByID(ctx, a.ID); got != nil {
		t.Fatal("completed job should be gone")
	}
	cleared, err = store.Clear(ctx)
	if err != nil || cleared != 1 {
		t.Fatalf("Clear: n=%d err=%v", cleared, err)
	}
	remaining, _ := store.List(ctx)
	if len(remaining) != 1 || remaining[0].ID != b.ID {
		t.Fatalf("expected only the processing job to remain, got %d", len(remaining))
	}
}
