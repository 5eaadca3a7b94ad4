// Package lock provides the PID-file lock that keeps runs from overlapping.
package lock

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("lock is held by another process")

// PIDLock is an exclusive advisory lock on a PID file.
type PIDLock struct {
	path string
	f    *os.File
}

// Acquire opens or creates path, takes a non-blocking exclusive flock and
// writes the current PID into it.
func Acquire(path string) (*PIDLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open pid file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("lock pid file %s: %w", path, err)
	}

	if err := f.Truncate(0); err != nil {
		unlock(f)
		return nil, fmt.Errorf("truncate pid file %s: %w", path, err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		unlock(f)
		return nil, fmt.Errorf("write pid file %s: %w", path, err)
	}
	return &PIDLock{path: path, f: f}, nil
}

// Path is the lock file.
func (l *PIDLock) Path() string { return l.path }

// Release drops the lock. The file itself is left in place.
func (l *PIDLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlock(l.f)
	l.f = nil
	return err
}

func unlock(f *os.File) error {
	return errors.Join(unix.Flock(int(f.Fd()), unix.LOCK_UN), f.Close())
}
