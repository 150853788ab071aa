// Package filelock guards workspace documents against concurrent writers.
// Writes pair a flock-based advisory lock with an atomic temp-file rename,
// so readers never observe a partially written document even across
// processes.
package filelock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock is an advisory file lock.
type Lock struct {
	fl   *flock.Flock
	path string
}

// New creates a lock backed by the file at path.
func New(path string) *Lock {
	return &Lock{fl: flock.New(path), path: path}
}

// Acquire blocks until the exclusive lock is held.
func (l *Lock) Acquire() error {
	if err := l.fl.Lock(); err != nil {
		return fmt.Errorf("acquiring lock on %s: %w", l.path, err)
	}
	return nil
}

// TryAcquire attempts the lock without blocking and reports whether it was
// obtained.
func (l *Lock) TryAcquire() (bool, error) {
	ok, err := l.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("trying lock on %s: %w", l.path, err)
	}
	return ok, nil
}

// Release releases the lock.
func (l *Lock) Release() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("releasing lock on %s: %w", l.path, err)
	}
	return nil
}

// AtomicWrite writes data to path via a temp file in the same directory and
// a rename. The rename is atomic on the same filesystem; on any failure the
// original file is left untouched.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", path, err)
	}
	tmp = nil
	return nil
}

// LockAndWrite acquires the lock for path (at path + ".lock") and performs
// an atomic write while holding it.
func LockAndWrite(path string, data []byte) error {
	lock := New(path + ".lock")
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer lock.Release()
	return AtomicWrite(path, data)
}
