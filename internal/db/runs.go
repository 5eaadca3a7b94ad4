package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Run statuses.
const (
	RunRunning     = "running"
	RunCompleted   = "completed"
	RunFailed      = "completed_with_errors"
	RunInterrupted = "interrupted"
)

// RunStats are the counters stored when a run finishes.
type RunStats struct {
	FilesSeen      int
	FilesProcessed int
	FilesSkipped   int
	FilesFailed    int
	EventsEmitted  int64
}

// RunRecord is one row of the run log.
type RunRecord struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Status     string
	RunStats
}

// StartRun records a new run. counter and module are the restart values
// given on the command line; they are stored for reference only.
func StartRun(ctx context.Context, db *sql.DB, runID string, startedAt time.Time, counter, module string) error {
	query := `
		INSERT INTO csv_run_log (run_id, started_at, status, restart_counter, restart_module)
		VALUES (?, ?, ?, ?, ?);
	`
	if _, err := db.ExecContext(ctx, query, runID, startedAt.UTC(), RunRunning, nullString(counter), nullString(module)); err != nil {
		return fmt.Errorf("failed to start run %s: %w", runID, err)
	}
	return nil
}

// FinishRun stores the final counters and status of a run.
func FinishRun(ctx context.Context, db *sql.DB, runID, status string, stats RunStats) error {
	query := `
		UPDATE csv_run_log
		SET finished_at = ?, status = ?, files_seen = ?, files_processed = ?,
		    files_skipped = ?, files_failed = ?, events_emitted = ?
		WHERE run_id = ?;
	`
	res, err := db.ExecContext(ctx, query, time.Now().UTC(), status,
		stats.FilesSeen, stats.FilesProcessed, stats.FilesSkipped, stats.FilesFailed, stats.EventsEmitted, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to finish run %s: no such run", runID)
	}
	return nil
}

// GetLastRun returns the start time of the most recent run that completed,
// with or without file errors. found is false when no run completed yet.
func GetLastRun(ctx context.Context, db *sql.DB) (last time.Time, found bool, err error) {
	query := `
		SELECT started_at
		FROM csv_run_log
		WHERE status IN (?, ?)
		ORDER BY started_at DESC
		LIMIT 1;
	`
	err = db.QueryRowContext(ctx, query, RunCompleted, RunFailed).Scan(&last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed query last run: %w", err)
	}
	return last.UTC(), true, nil
}

// ListRuns returns up to limit runs, newest first.
func ListRuns(ctx context.Context, db *sql.DB, logger *slog.Logger, limit int) ([]RunRecord, error) {
	query := `
		SELECT run_id, started_at, finished_at, status, files_seen, files_processed,
		       files_skipped, files_failed, events_emitted
		FROM csv_run_log
		ORDER BY started_at DESC
		LIMIT ?;
	`
	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		logger.Error("Failed to query run log", "error", err)
		return nil, fmt.Errorf("query run log: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	var scanErrors error
	for rows.Next() {
		var r RunRecord
		var seen, processed, skipped, failed sql.NullInt64
		var events sql.NullInt64
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &r.Status, &seen, &processed, &skipped, &failed, &events); err != nil {
			logger.Error("Failed to scan run log row", "error", err)
			scanErrors = errors.Join(scanErrors, fmt.Errorf("scan run log row: %w", err))
			continue
		}
		r.FilesSeen = int(seen.Int64)
		r.FilesProcessed = int(processed.Int64)
		r.FilesSkipped = int(skipped.Int64)
		r.FilesFailed = int(failed.Int64)
		r.EventsEmitted = events.Int64
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		scanErrors = errors.Join(scanErrors, fmt.Errorf("iterate run log: %w", err))
	}
	logger.Debug("Loaded run log.", slog.Int("count", len(runs)))
	return runs, scanErrors
}
