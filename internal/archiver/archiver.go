// Package archiver moves processed drop files into the backup directory.
package archiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// SuffixLayout is appended to an archived name when the plain name is taken.
const SuffixLayout = "20060102T150405Z"

// maxCollisions bounds the numeric suffix search.
const maxCollisions = 1000

// ErrNoFreeName is returned when no unused backup name could be found.
var ErrNoFreeName = errors.New("no free name in backup directory")

// Mirror receives a copy of every archived file.
type Mirror interface {
	Upload(ctx context.Context, path, name string) error
}

// Archiver moves files from the watch directory to the backup directory
// without ever overwriting an existing backup.
type Archiver struct {
	watchDir  string
	backupDir string
	mirror    Mirror
	now       func() time.Time
	logger    *slog.Logger
}

// Option customizes an Archiver.
type Option func(*Archiver)

// WithMirror uploads archived files after each successful move.
func WithMirror(m Mirror) Option {
	return func(a *Archiver) { a.mirror = m }
}

// WithClock replaces time.Now for collision suffixes.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) { a.now = now }
}

// New returns an Archiver for the two directories.
func New(watchDir, backupDir string, logger *slog.Logger, opts ...Option) *Archiver {
	a := &Archiver{watchDir: watchDir, backupDir: backupDir, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Archive moves watchDir/name into the backup directory and returns the
// destination path. On error the source file is left where it was.
func (a *Archiver) Archive(ctx context.Context, name string) (string, error) {
	src := filepath.Join(a.watchDir, name)
	dst, err := a.target(name)
	if err != nil {
		return "", err
	}

	if err := os.Rename(src, dst); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return "", fmt.Errorf("move %s to %s: %w", src, dst, err)
		}
		a.logger.Debug("Backup directory is on another device, copying.", slog.String("file", name))
		if err := moveAcrossDevices(src, dst); err != nil {
			return "", err
		}
	}

	if a.mirror != nil {
		if err := a.mirror.Upload(ctx, dst, filepath.Base(dst)); err != nil {
			a.logger.Error("Failed to mirror archived file.", slog.String("file", name), slog.String("path", dst), slog.Any("error", err))
		}
	}
	return dst, nil
}

// target picks backup/name, or backup/name.<stamp>[.<n>] when taken.
func (a *Archiver) target(name string) (string, error) {
	dst := filepath.Join(a.backupDir, name)
	if !exists(dst) {
		return dst, nil
	}
	stamped := dst + "." + a.now().UTC().Format(SuffixLayout)
	if !exists(stamped) {
		return stamped, nil
	}
	for i := 1; i < maxCollisions; i++ {
		candidate := fmt.Sprintf("%s.%d", stamped, i)
		if !exists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoFreeName, name)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// moveAcrossDevices copies src to dst, syncs it, then removes src. A partial
// copy is removed again so only the source remains on failure.
func moveAcrossDevices(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer func() {
		if err != nil {
			os.Remove(dst)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if err = out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("sync %s: %w", dst, err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	in.Close()
	if err = os.Remove(src); err != nil {
		return fmt.Errorf("remove %s after copy: %w", src, err)
	}
	return nil
}
