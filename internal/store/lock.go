package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFilename is the lock file inside a collection directory.
const LockFilename = ".studyrag.lock"

// DirLock guards a collection directory against concurrent processes using
// gofrs/flock. Within one process the engine's mutex serializes access; the
// file lock covers the cross-process case (two CLI invocations ingesting
// the same collection). Works on Unix, macOS, and Windows.
type DirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDirLock creates a lock for the given collection directory. The lock
// file is created at <dir>/.studyrag.lock on acquire.
func NewDirLock(dir string) *DirLock {
	path := filepath.Join(dir, LockFilename)
	return &DirLock{
		path:  path,
		flock: flock.New(path),
	}
}

// Acquire takes the lock without blocking. A lock held by another process
// yields ErrCollectionLocked.
func (l *DirLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("%w (lock file: %s)", ErrCollectionLocked, l.path)
	}

	l.locked = true
	return nil
}

// Release drops the lock. Safe to call multiple times or without a held
// lock.
func (l *DirLock) Release() error {
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

// Path returns the lock file path.
func (l *DirLock) Path() string {
	return l.path
}

// Held reports whether this process holds the lock.
func (l *DirLock) Held() bool {
	return l.locked
}
