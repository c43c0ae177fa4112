package testsupport

import (
	"context"
	"testing"

	"vidlens/internal/config"
	"vidlens/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob enqueues a job running both extractors for sourcePath.
func NewJob(t testing.TB, store *queue.Store, sourcePath string) *queue.Job {
	t.Helper()

	job, err := store.NewJob(context.Background(), queue.NewJobParams{
		SourcePath:    sourcePath,
		RunMotion:     true,
		RunTranscript: true,
	})
	if err != nil {
		t.Fatalf("store.NewJob: %v", err)
	}
	return job
}
