package workflow

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"vidlens/internal/textutil"
)

// acquireJobLock takes an exclusive lock file for jobID under dir. It returns
// a nil lock without error when another process already holds it.
func acquireJobLock(dir, jobID string) (*flock.Flock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job lock dir: %w", err)
	}
	lock := flock.New(filepath.Join(dir, textutil.SafeToken(jobID, "job")+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire job lock: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return lock, nil
}

func releaseJobLock(lock *flock.Flock) {
	if lock == nil {
		return
	}
	_ = lock.Unlock()
	_ = os.Remove(lock.Path())
}
