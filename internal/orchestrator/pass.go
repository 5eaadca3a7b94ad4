package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/brensch/csvevents/internal/db"
	"github.com/brensch/csvevents/internal/processor"
	"github.com/brensch/csvevents/internal/util"
)

// scan lists the watch directory and handles each file in name order.
func (r *run) scan(ctx context.Context) error {
	files, err := util.ListFiles(r.cfg.WatchDir)
	if err != nil {
		r.logger.Error("Failed in data run", slog.Any("error", err))
		return err
	}
	r.summary.FilesSeen = len(files)
	if len(files) == 0 {
		r.logger.Info("No files in watch directory.", slog.String("dir", r.cfg.WatchDir))
		return nil
	}
	r.logger.Info("Found files in watch directory.", slog.Int("count", len(files)))

	archivedBefore, err := db.GetArchivedFiles(ctx, r.conn, r.logger)
	if err != nil {
		r.logger.Warn("Could not load archive history.", slog.Any("error", err))
	}

	for i, name := range files {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("Run cancelled.", slog.Int("files_remaining", len(files)-i))
			return err
		}
		r.enter(StateScanning)
		r.handleFile(ctx, name, i, len(files), archivedBefore[name])
	}
	return ctx.Err()
}

// handleFile classifies, processes and archives one file. Failures are
// logged and recorded; they never stop the pass.
func (r *run) handleFile(ctx context.Context, name string, index, total int, seenBefore bool) {
	start := time.Now()
	l := r.logger.With(slog.String("file", name))
	r.logEvent(ctx, db.FileEvent{Filename: name, Event: db.EventDiscovered})

	progress := processor.Progress{TotalFiles: total, FilesDone: index, CurrentFile: name}

	r.enter(StateClassifying)
	c := r.classifier.Classify(name)
	if !c.Classified() {
		l.Warn("File does not match any data type, skipping.")
		r.summary.FilesSkipped++
		r.logEvent(ctx, db.FileEvent{Filename: name, Event: db.EventSkipUnclassified, Message: "no marker matched"})
		progress.Skipped, progress.Complete, progress.FilesDone = true, true, index+1
		r.report(ctx, progress)
		return
	}
	if len(c.Also) > 0 {
		l.Warn("File matches more than one marker, using the first.",
			slog.String("marker", c.Marker), slog.Any("ignored_markers", c.Also))
	}
	if seenBefore {
		l.Warn("A file with this name was archived by an earlier run; its events will be sent again.")
	}
	l = l.With(slog.String("data_type", c.DataType))
	progress.DataType = c.DataType
	r.report(ctx, progress)

	r.enter(StateParsing)
	r.logEvent(ctx, db.FileEvent{Filename: name, DataType: c.DataType, Event: db.EventProcessStart})
	p := &processor.Processor{
		Mappings:  r.mappings,
		Localizer: r.localizer,
		Emitter:   r.emitter,
		Logger:    r.logger,
		OnRows: func(rows int64) {
			progress.RowsProcessed = rows
			r.report(ctx, progress)
		},
	}
	r.enter(StateEmitting)
	res := p.ProcessFile(ctx, filepath.Join(r.cfg.WatchDir, name), c.DataType)
	r.summary.EventsEmitted += res.EventsEmitted
	defer func() { r.summary.Files = append(r.summary.Files, res) }()

	if res.TimestampWarnings > 0 {
		r.logEvent(ctx, db.FileEvent{Filename: name, DataType: c.DataType, Event: db.EventTimestampWarning,
			Message: fmt.Sprintf("%d rows with timestamps left unmodified", res.TimestampWarnings), RowCount: &res.TimestampWarnings})
	}

	finish := func(err error) {
		elapsed := time.Since(start)
		progress.Complete, progress.FilesDone, progress.ElapsedTime, progress.RowsProcessed = true, index+1, elapsed, res.RowsRead
		progress.Err = err
		progress.Archived = err == nil
		if err != nil {
			r.summary.FilesFailed++
			r.logEvent(ctx, db.FileEvent{Filename: name, DataType: c.DataType, Event: db.EventError, Message: err.Error(), RowCount: &res.RowsRead, Duration: &elapsed})
		}
		r.report(ctx, progress)
	}

	if res.Err != nil {
		l.Error("Failed to process file, leaving it in place.", slog.Int64("rows_read", res.RowsRead), slog.Any("error", res.Err))
		finish(res.Err)
		return
	}
	r.logEvent(ctx, db.FileEvent{Filename: name, DataType: c.DataType, Event: db.EventProcessEnd, RowCount: &res.RowsRead, Duration: &res.Duration,
		Message: fmt.Sprintf("%d rows, %d emit errors", res.RowsRead, res.EmitErrors)})

	r.enter(StateArchiving)
	dst, err := r.archiver.Archive(ctx, name)
	if err != nil {
		l.Error("Failed to move file to backup directory.", slog.Any("error", err))
		finish(err)
		return
	}
	r.summary.FilesProcessed++
	r.logEvent(ctx, db.FileEvent{Filename: name, DataType: c.DataType, Event: db.EventArchiveEnd, OutputPath: dst})
	l.Info("Processed file.",
		slog.Int64("rows", res.RowsRead),
		slog.Int64("events", res.EventsEmitted),
		slog.Int64("emit_errors", res.EmitErrors),
		slog.String("archived_to", dst))
	finish(nil)
}

// logEvent records to the state database; failures are logged only.
func (r *run) logEvent(ctx context.Context, ev db.FileEvent) {
	ev.RunID = r.summary.RunID
	if err := db.LogFileEvent(context.WithoutCancel(ctx), r.conn, ev); err != nil {
		r.logger.Warn("Failed to record file event.", slog.String("event", ev.Event), slog.Any("error", err))
	}
}

// report forwards progress to the observer, if any, without outliving ctx.
func (r *run) report(ctx context.Context, p processor.Progress) {
	if r.opts.Progress == nil {
		return
	}
	select {
	case r.opts.Progress <- p:
	case <-ctx.Done():
	}
}
