package inspector

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/csvevents/internal/emitter"
	"github.com/brensch/csvevents/internal/logging"
	"github.com/brensch/csvevents/internal/mapping"
)

func writeOutputs(t *testing.T, dir, stamp string, rows int) {
	t.Helper()
	m := mapping.FieldMappings{"pdw": {"Account": "account"}}
	e := emitter.NewParquetEmitter(dir, stamp, m, logging.Discard())
	for i := 0; i < rows; i++ {
		require.NoError(t, e.Emit(context.Background(), "pdw", emitter.Event{"account": "a", emitter.AppNameField: "pdw"}))
	}
	require.NoError(t, e.Close())
}

func TestParseOutputName(t *testing.T) {
	stamp, dt, err := parseOutputName("output.20240102T030405Z.securenow.parquet")
	require.NoError(t, err)
	assert.Equal(t, "securenow", dt)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), stamp)

	_, _, err = parseOutputName("state.parquet")
	assert.Error(t, err)
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	writeOutputs(t, dir, "20240101T000000Z", 3)
	writeOutputs(t, dir, "20240102T000000Z", 2)

	summaries, err := Inspect(context.Background(), dir, logging.Discard())
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	s := summaries[0]
	assert.Equal(t, "pdw", s.DataType)
	assert.Len(t, s.Files, 2)
	assert.Equal(t, int64(5), s.TotalRows)
	assert.Equal(t, 2024, s.FirstStamp.Year())
	assert.Equal(t, 2, s.LastStamp.Day())
	assert.Contains(t, s.ColumnNames, "account")

	var buf bytes.Buffer
	Print(&buf, summaries)
	assert.Contains(t, buf.String(), "=== Data Type: pdw ===")
	assert.Contains(t, buf.String(), "(Found 2 files)")
}

func TestInspect_SkipsUnexpectedNames(t *testing.T) {
	dir := t.TempDir()
	writeOutputs(t, dir, "20240101T000000Z", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.parquet"), []byte("x"), 0o644))

	summaries, err := Inspect(context.Background(), dir, logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "other.parquet")
	require.Len(t, summaries, 1)
	assert.Equal(t, int64(1), summaries[0].TotalRows)
}

func TestInspect_EmptyDir(t *testing.T) {
	summaries, err := Inspect(context.Background(), t.TempDir(), logging.Discard())
	require.NoError(t, err)
	assert.Empty(t, summaries)
}
