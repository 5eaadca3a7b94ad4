// Package processor turns one classified drop file into emitted events.
package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/brensch/csvevents/internal/emitter"
	"github.com/brensch/csvevents/internal/mapping"
	"github.com/brensch/csvevents/internal/util"
)

// progressEvery is how many rows pass between row progress callbacks.
const progressEvery = 500

// ErrNoMapping is returned for a data type with no field map.
var ErrNoMapping = errors.New("no field mapping for data type")

// Progress reports file processing to an observer such as the terminal view.
type Progress struct {
	TotalFiles    int           // Files found in the watch directory
	FilesDone     int           // Files finished, skipped or failed
	CurrentFile   string        // Name of the file being processed
	DataType      string        // Classified data type, empty when skipped
	RowsProcessed int64         // Rows read so far in the current file
	Complete      bool          // Processing of the current file finished
	Skipped       bool          // File was left in place (unclassified)
	Archived      bool          // File was moved to the backup directory
	Err           error         // Error for the current file
	ElapsedTime   time.Duration // Time taken for the current file
}

// FileResult summarizes one file.
type FileResult struct {
	FileName            string
	DataType            string
	RowsRead            int64
	EventsEmitted       int64
	EmitErrors          int64
	TimestampsRewritten int64
	TimestampWarnings   int64
	Duration            time.Duration
	// Err is set when the file could not be read to the end. Such a file
	// must not be archived.
	Err error
}

// Processor reads rows, rewrites timestamps and emits mapped events.
type Processor struct {
	Mappings  mapping.FieldMappings
	Localizer *util.Localizer
	Emitter   emitter.Emitter
	Logger    *slog.Logger
	// OnRows, when set, is called with the running row count of the
	// current file every few hundred rows.
	OnRows func(rows int64)
}

// ProcessFile opens path and processes it as dataType.
func (p *Processor) ProcessFile(ctx context.Context, path, dataType string) FileResult {
	name := filepath.Base(path)
	f, err := os.Open(path)
	if err != nil {
		return FileResult{FileName: name, DataType: dataType, Err: fmt.Errorf("open CSV %s: %w", path, err)}
	}
	defer f.Close()
	return p.ProcessStream(ctx, f, name, dataType)
}

// ProcessStream processes CSV content from r. Rows are emitted as they are
// read; events already sent are not withdrawn when a later row fails to parse.
func (p *Processor) ProcessStream(ctx context.Context, r io.Reader, name, dataType string) FileResult {
	start := time.Now()
	res := FileResult{FileName: name, DataType: dataType}
	l := p.Logger.With(slog.String("file", name), slog.String("data_type", dataType))

	if _, ok := p.Mappings.For(dataType); !ok {
		res.Err = fmt.Errorf("%w: %s", ErrNoMapping, dataType)
		return res
	}

	rr := util.NewRowReader(r)
	for rr.Next() {
		if err := ctx.Err(); err != nil {
			res.Err = fmt.Errorf("stopped after %d rows: %w", res.RowsRead, err)
			break
		}
		row := rr.Row()
		res.RowsRead++

		n, tsErr := p.Localizer.Localize(row)
		res.TimestampsRewritten += int64(n)
		if tsErr != nil {
			res.TimestampWarnings++
			l.Warn("Timestamp left unmodified.", slog.Int("line", rr.Line()), slog.Any("error", tsErr))
		}

		event := emitter.MapEvent(row, p.Mappings, dataType)
		if err := p.Emitter.Emit(ctx, dataType, event); err != nil {
			res.EmitErrors++
			l.Error("Failed to emit event.", slog.Int("line", rr.Line()), slog.Any("error", err))
		} else {
			res.EventsEmitted++
		}

		if p.OnRows != nil && res.RowsRead%progressEvery == 0 {
			p.OnRows(res.RowsRead)
		}
	}
	if err := rr.Err(); err != nil {
		res.Err = err
	}
	if p.OnRows != nil {
		p.OnRows(res.RowsRead)
	}

	res.Duration = time.Since(start)
	l.Debug("Finished reading file.",
		slog.Int64("rows", res.RowsRead),
		slog.Int64("events", res.EventsEmitted),
		slog.Int64("emit_errors", res.EmitErrors),
		slog.Int64("timestamp_warnings", res.TimestampWarnings),
		slog.Duration("duration", res.Duration))
	return res
}
