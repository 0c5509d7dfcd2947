// Package filelock provides the workspace run lock and atomic file writes
// used when persisting patched files.
package filelock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// RunLock guards a workspace against concurrent stitch runs. It wraps a
// flock on a well-known lock file inside the workspace metadata directory.
type RunLock struct {
	flock *flock.Flock
	path  string
}

// NewRunLock creates a lock handle for the given lock file path. The file
// is created on first acquisition.
func NewRunLock(path string) *RunLock {
	return &RunLock{flock: flock.New(path), path: path}
}

// Acquire attempts to take the lock without blocking. It fails when
// another run already holds the workspace.
func (l *RunLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire run lock %s: %w", l.path, err)
	}
	if !ok {
		return fmt.Errorf("workspace is locked by another run (%s)", l.path)
	}
	return nil
}

// Release drops the lock.
func (l *RunLock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release run lock %s: %w", l.path, err)
	}
	return nil
}

// AtomicWrite writes data to path via a temp file and rename so readers
// never observe a partial write. The original file is untouched if any
// step fails.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".stitch-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	// Rename is atomic within one filesystem.
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	tmp = nil
	return nil
}
