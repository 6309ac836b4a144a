package instance

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning means another agent holds the lock
var ErrAlreadyRunning = errors.New("another murmur agent is already running")

// Lock guards the output device against a second agent on the same user session
type Lock struct {
	path  string
	flock *flock.Flock
}

// New returns an unacquired lock at path
func New(path string) *Lock {
	slog.Debug("creating instance lock", "file_path", path)
	return &Lock{path: path, flock: flock.New(path)}
}

// Path returns the lock file location
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes the lock without blocking
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	ok, err := l.flock.TryLock()
	if err != nil {
		slog.Error("error during try-lock attempt", "file_path", l.path, "error", err)
		return fmt.Errorf("lock %s: %w", l.path, err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, l.path)
	}

	slog.Debug("instance lock acquired", "file_path", l.path)
	return nil
}

// Release drops the lock; it is safe to call when not held
func (l *Lock) Release() error {
	if !l.flock.Locked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		slog.Error("failed to release instance lock", "file_path", l.path, "error", err)
		return err
	}
	slog.Debug("instance lock released", "file_path", l.path)
	return nil
}
