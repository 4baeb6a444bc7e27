package async

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// JobLock serializes documentation jobs per repository across
// processes. Two docweave processes sharing a data directory cannot
// generate the same repository concurrently.
// Works on all platforms (Unix, Linux, macOS, Windows).
type JobLock struct {
	path   string
	flock  *flock.Flock
	locked bool // explicit state tracking for clarity
}

// NewJobLock creates a lock for one repository. The lock file lives at
// <dataDir>/locks/<repoID>.lock
func NewJobLock(dataDir, repoID string) *JobLock {
	lockPath := filepath.Join(dataDir, "locks", repoID+".lock")
	return &JobLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false if it's held by another
// process. The lock directory is created if missing.
func (l *JobLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock.
// It's safe to call Unlock multiple times or on an unlocked JobLock.
func (l *JobLock) Unlock() error {
	if !l.locked {
		return nil
	}

	if err := l.flock.Unlock(); err != nil {
		l.locked = false
		return fmt.Errorf("failed to release lock: %w", err)
	}

	l.locked = false
	return nil
}

// Path returns the path to the lock file.
func (l *JobLock) Path() string {
	return l.path
}

// IsLocked returns true if the lock is currently held.
func (l *JobLock) IsLocked() bool {
	return l.locked
}
