package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// GetArchivedFiles returns the names of files that were archived by an
// earlier run. A name showing up again in the watch directory means its
// events will be emitted a second time.
func GetArchivedFiles(ctx context.Context, db *sql.DB, logger *slog.Logger) (map[string]bool, error) {
	logger.Debug("Querying database for archived files...")
	archived := make(map[string]bool)

	query := `
		SELECT DISTINCT filename
		FROM csv_event_log
		WHERE event = ?;
	`
	rows, err := db.QueryContext(ctx, query, EventArchiveEnd)
	if err != nil {
		logger.Error("Failed to query for archived files", "error", err, "event", EventArchiveEnd)
		return nil, fmt.Errorf("query archived files: %w", err)
	}
	defer rows.Close()

	var scanErrors error
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			logger.Error("Failed to scan archived filename", "error", err)
			scanErrors = errors.Join(scanErrors, fmt.Errorf("scan archived filename: %w", err))
			continue
		}
		if name != "" {
			archived[name] = true
		}
	}
	if err := rows.Err(); err != nil {
		scanErrors = errors.Join(scanErrors, fmt.Errorf("iterate archived files: %w", err))
		return archived, scanErrors
	}

	logger.Debug("Found archived files in DB.", slog.Int("count", len(archived)))
	return archived, scanErrors
}
