package util

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/csvevents/internal/logging"
)

func TestLocalizeTimestamp(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name    string
		in      string
		loc     *time.Location
		want    string
		wantErr bool
	}{
		{"summer offset", "2023-05-01T10:00:00", ny, "2023-05-01T10:00:00-04:00", false},
		{"winter offset", "2023-01-15T08:30:00", ny, "2023-01-15T08:30:00-05:00", false},
		{"utc", "2023-05-01T10:00:00", time.UTC, "2023-05-01T10:00:00+00:00", false},
		{"utc equivalent zone", "2023-05-01T10:00:00", time.FixedZone("GMT", 0), "2023-05-01T10:00:00+00:00", false},
		{"half hour offset", "2023-05-01T10:00:00", time.FixedZone("IST", 5*3600+1800), "2023-05-01T10:00:00+05:30", false},
		{"date only", "2023-05-01", ny, "", true},
		{"space separator", "2023-05-01 10:00:00", ny, "", true},
		{"already zoned", "2023-05-01T10:00:00Z", ny, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LocalizeTimestamp(tt.in, tt.loc)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrTimestampFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocalizer_Localize(t *testing.T) {
	logger, capture := logging.NewCapture()
	l := NewLocalizer("America/New_York", []string{"start", "end", "missing"}, logger)
	require.True(t, l.Enabled())
	assert.Empty(t, capture.Messages(slog.LevelWarn))

	row := Row{"start": "2023-05-01T10:00:00", "end": "bad", "other": "2023-05-01T10:00:00"}
	n, err := l.Localize(row)

	assert.Equal(t, 1, n)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimestampFormat)
	assert.Contains(t, err.Error(), `"end"`)
	assert.Equal(t, "2023-05-01T10:00:00-04:00", row["start"])
	assert.Equal(t, "bad", row["end"], "unparseable value is left as is")
	assert.Equal(t, "2023-05-01T10:00:00", row["other"], "unconfigured field is untouched")
}

func TestNewLocalizer_InvalidTimezone(t *testing.T) {
	logger, capture := logging.NewCapture()
	l := NewLocalizer("Mars/Olympus_Mons", []string{"start"}, logger)

	assert.False(t, l.Enabled())
	assert.Nil(t, l.Location())
	assert.Equal(t, []string{"Invalid timezone, timestamp fields will not be rewritten."}, capture.Messages(slog.LevelWarn))

	row := Row{"start": "2023-05-01T10:00:00"}
	n, err := l.Localize(row)
	assert.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "2023-05-01T10:00:00", row["start"])
}

func TestNewLocalizer_EmptyTimezone(t *testing.T) {
	logger, capture := logging.NewCapture()

	l := NewLocalizer("", nil, logger)
	assert.False(t, l.Enabled())
	assert.Empty(t, capture.Messages(slog.LevelWarn))

	l = NewLocalizer("", []string{"start"}, logger)
	assert.False(t, l.Enabled())
	assert.Len(t, capture.Messages(slog.LevelWarn), 1)
}

func TestLocalizer_NilIsDisabled(t *testing.T) {
	var l *Localizer
	assert.False(t, l.Enabled())
	n, err := l.Localize(Row{"a": "b"})
	assert.NoError(t, err)
	assert.Zero(t, n)
}
