package fsx

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultLockTimeout is how long AcquireLock waits for an exclusive lock
// before giving up.
const DefaultLockTimeout = 5 * time.Second

var (
	// ErrLockTimeout is returned when a lock could not be acquired within
	// the timeout.
	ErrLockTimeout = errors.New("fsx: lock timeout")
	// ErrLockOpen is returned when the lock file itself could not be opened.
	ErrLockOpen = errors.New("fsx: failed to open lock file")
)

// Lock is a held exclusive advisory lock on a file, backed by flock(2).
type Lock struct {
	path string
	file *os.File
}

// AcquireLock tries to acquire an exclusive lock on path+".lock" within
// timeout, polling every 10ms. Used to serialize writers across processes
// for a given cache object.
func AcquireLock(path string, timeout time.Duration) (*Lock, error) {
	lockPath := path + ".lock"

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644) //nolint:gosec // path from internal caller
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLockOpen, err)
	}

	deadline := time.Now().Add(timeout)

	const retryInterval = 10 * time.Millisecond

	for {
		flockErr := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if flockErr == nil {
			return &Lock{path: lockPath, file: file}, nil
		}

		if time.Now().After(deadline) {
			_ = file.Close()

			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, path)
		}

		time.Sleep(retryInterval)
	}
}

// Release unlocks and closes the underlying lock file. Safe to call once;
// idempotent after the first call only via a fresh Lock value.
func (l *Lock) Release() {
	if l.file != nil {
		_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
		_ = l.file.Close()
	}
}

// WithLock acquires an exclusive lock on path, runs fn, and always
// releases the lock before returning.
func WithLock(path string, timeout time.Duration, fn func() error) error {
	lock, err := AcquireLock(path, timeout)
	if err != nil {
		return fmt.Errorf("acquiring lock: %w", err)
	}

	defer lock.Release()

	return fn()
}
