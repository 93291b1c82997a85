package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned by Lock when another run holds the lock.
var ErrLocked = errors.New("another run is in progress")

// RunLock is an exclusive advisory lock held for the duration of one run.
type RunLock struct {
	fl *flock.Flock
}

// Lock acquires the lock file at path without blocking.
func Lock(path string) (*RunLock, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating lock dir: %w", err)
		}
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("acquiring %s: %w", path, ErrLocked)
	}
	return &RunLock{fl: fl}, nil
}

// Unlock releases the lock. The lock file itself is left in place.
func (l *RunLock) Unlock() error {
	return l.fl.Unlock()
}
