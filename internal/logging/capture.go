package logging

import (
	"context"
	"log/slog"
	"sync"
)

// CaptureHandler records every log record it receives. Tests use it to
// assert on warnings and errors.
type CaptureHandler struct {
	mu      *sync.Mutex
	records *[]slog.Record
	attrs   []slog.Attr
}

// NewCapture returns a logger backed by a fresh CaptureHandler.
func NewCapture() (*slog.Logger, *CaptureHandler) {
	h := &CaptureHandler{mu: &sync.Mutex{}, records: &[]slog.Record{}}
	return slog.New(h), h
}

func (h *CaptureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *CaptureHandler) Handle(_ context.Context, r slog.Record) error {
	r = r.Clone()
	r.AddAttrs(h.attrs...)
	h.mu.Lock()
	*h.records = append(*h.records, r)
	h.mu.Unlock()
	return nil
}

func (h *CaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CaptureHandler{
		mu:      h.mu,
		records: h.records,
		attrs:   append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}

// WithGroup is not needed by callers in this module; groups are flattened.
func (h *CaptureHandler) WithGroup(string) slog.Handler { return h }

// Records returns records at or above minLevel.
func (h *CaptureHandler) Records(minLevel slog.Level) []slog.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []slog.Record
	for _, r := range *h.records {
		if r.Level >= minLevel {
			out = append(out, r)
		}
	}
	return out
}

// Messages returns the messages of records at or above minLevel.
func (h *CaptureHandler) Messages(minLevel slog.Level) []string {
	var out []string
	for _, r := range h.Records(minLevel) {
		out = append(out, r.Message)
	}
	return out
}
