package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestNew_JSONToOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Options{Level: "warn", Format: "json", Output: &buf})
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("dropped")
	logger.Warn("kept", "file", "a.csv")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"msg":"kept"`)
	assert.Contains(t, out, `"file":"a.csv"`)
}

func TestCaptureHandler(t *testing.T) {
	logger, h := NewCapture()
	logger.With("run_id", "r1").Warn("warned")
	logger.Info("informed")

	assert.Equal(t, []string{"warned"}, h.Messages(slog.LevelWarn))
	assert.Len(t, h.Records(slog.LevelDebug), 2)

	var runID string
	h.Records(slog.LevelWarn)[0].Attrs(func(a slog.Attr) bool {
		if a.Key == "run_id" {
			runID = a.Value.String()
		}
		return true
	})
	assert.Equal(t, "r1", runID)
}
