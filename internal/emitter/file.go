package emitter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileEmitter appends events as JSON lines to output.<stamp> in testing mode.
type FileEmitter struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *bufio.Writer
}

// NewFileEmitter creates dir/output.<stamp>.
func NewFileEmitter(dir, stamp string) (*FileEmitter, error) {
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, "output."+stamp)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	return &FileEmitter{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

// Path is the output file being written.
func (e *FileEmitter) Path() string { return e.path }

func (e *FileEmitter) Emit(ctx context.Context, _ string, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := Encode(event)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", e.path, err)
	}
	return nil
}

func (e *FileEmitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return errors.Join(e.w.Flush(), e.f.Close())
}
