package db

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // Driver
)

// Event log event names.
const (
	EventDiscovered       = "discovered"
	EventSkipUnclassified = "skip_unclassified"
	EventProcessStart     = "process_start"
	EventProcessEnd       = "process_end"
	EventArchiveEnd       = "archive_end"
	EventError            = "error"
	EventTimestampWarning = "timestamp_warning"
)

const schemaSequenceSQL = `CREATE SEQUENCE IF NOT EXISTS csv_event_log_id_seq;`
const schemaTableSQL = `
CREATE TABLE IF NOT EXISTS csv_run_log (
    run_id          VARCHAR PRIMARY KEY,
    started_at      TIMESTAMP NOT NULL,
    finished_at     TIMESTAMP,
    files_seen      INTEGER DEFAULT 0,
    files_processed INTEGER DEFAULT 0,
    files_skipped   INTEGER DEFAULT 0,
    files_failed    INTEGER DEFAULT 0,
    events_emitted  BIGINT DEFAULT 0,
    status          VARCHAR NOT NULL,
    restart_counter VARCHAR,
    restart_module  VARCHAR
);
CREATE TABLE IF NOT EXISTS csv_event_log (
    log_id          BIGINT PRIMARY KEY DEFAULT nextval('csv_event_log_id_seq'),
    run_id          VARCHAR,
    filename        VARCHAR NOT NULL,
    data_type       VARCHAR,
    event           VARCHAR NOT NULL,
    event_timestamp TIMESTAMP NOT NULL,
    output_path     VARCHAR,
    message         VARCHAR,
    row_count       BIGINT,
    duration_ms     BIGINT
);
CREATE INDEX IF NOT EXISTS idx_csv_event_log_file ON csv_event_log (filename);
CREATE INDEX IF NOT EXISTS idx_csv_event_log_event_time ON csv_event_log (event, event_timestamp);
`

// Open opens (creating if needed) the state database at path.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state db %s: %w", path, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping state db %s: %w", path, err)
	}
	return conn, nil
}

// InitializeSchema creates the sequence and tables in the correct order.
func InitializeSchema(db *sql.DB) error {
	_, err := db.Exec(schemaSequenceSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute sequence setup: %w", err)
	}
	_, err = db.Exec(schemaTableSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute table/index setup: %w", err)
	}
	return nil
}

// FileEvent is one row of the event log. Zero-valued optional fields are
// stored as NULL.
type FileEvent struct {
	RunID      string
	Filename   string
	DataType   string
	Event      string
	OutputPath string
	Message    string
	RowCount   *int64
	Duration   *time.Duration
}

// LogFileEvent inserts a new event record into the log.
func LogFileEvent(ctx context.Context, db *sql.DB, ev FileEvent) error {
	query := `
        INSERT INTO csv_event_log (run_id, filename, data_type, event, event_timestamp, output_path, message, row_count, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
    `
	var durationMs, rowCount sql.NullInt64
	if ev.Duration != nil {
		durationMs = sql.NullInt64{Int64: ev.Duration.Milliseconds(), Valid: true}
	}
	if ev.RowCount != nil {
		rowCount = sql.NullInt64{Int64: *ev.RowCount, Valid: true}
	}

	_, err := db.ExecContext(ctx, query,
		nullString(ev.RunID),
		ev.Filename,
		nullString(ev.DataType),
		ev.Event,
		time.Now().UTC(),
		nullString(ev.OutputPath),
		nullString(ev.Message),
		rowCount,
		durationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to log event '%s' for '%s': %w", ev.Event, ev.Filename, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// HistoryFilter narrows DisplayFileHistory output.
type HistoryFilter struct {
	Event    string
	DataType string
	Limit    int
}

// DisplayFileHistory queries and prints the event log, newest first.
func DisplayFileHistory(ctx context.Context, db *sql.DB, w io.Writer, f HistoryFilter) error {
	query := `
        SELECT filename, data_type, event, event_timestamp, message, duration_ms, row_count, output_path
        FROM csv_event_log
    `
	conditions := []string{}
	args := []any{}
	argCounter := 1

	if f.DataType != "" {
		conditions = append(conditions, fmt.Sprintf("data_type = $%d", argCounter))
		args = append(args, f.DataType)
		argCounter++
	}
	if f.Event != "" {
		conditions = append(conditions, fmt.Sprintf("event = $%d", argCounter))
		args = append(args, f.Event)
		argCounter++
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY event_timestamp DESC, log_id DESC LIMIT $%d", argCounter)
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query event log: %w", err)
	}
	defer rows.Close()

	fmt.Fprintf(w, "--- Event Log History (Limit %d) ---\n", limit)
	fmt.Fprintf(w, "%-45s | %-10s | %-17s | %-25s | %-8s | %-10s | %s\n", "Filename", "Type", "Event", "Timestamp (UTC)", "Rows", "DurationMS", "Message/Details")
	fmt.Fprintln(w, strings.Repeat("-", 150))

	count := 0
	for rows.Next() {
		var filename, event string
		var timestamp time.Time
		var dataType, message, outputPath sql.NullString
		var durationMs, rowCount sql.NullInt64
		if err := rows.Scan(&filename, &dataType, &event, &timestamp, &message, &durationMs, &rowCount, &outputPath); err != nil {
			return fmt.Errorf("failed to scan event log row: %w", err)
		}

		durationStr, rowStr := "", ""
		if durationMs.Valid {
			durationStr = fmt.Sprintf("%d", durationMs.Int64)
		}
		if rowCount.Valid {
			rowStr = fmt.Sprintf("%d", rowCount.Int64)
		}
		details := message.String
		if outputPath.Valid && outputPath.String != "" {
			details += fmt.Sprintf(" (Output: %s)", filepath.Base(outputPath.String))
		}

		fmt.Fprintf(w, "%-45s | %-10s | %-17s | %-25s | %-8s | %-10s | %s\n",
			filename, dataType.String, event, timestamp.Format(time.RFC3339), rowStr, durationStr, details)
		count++
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("error iterating event log rows: %w", err)
	}
	fmt.Fprintf(w, "Displayed %d records.\n", count)
	return nil
}

// ExportEventLog writes the whole event log to a Parquet file at path.
func ExportEventLog(ctx context.Context, db *sql.DB, path string) error {
	if err := copyToParquet(ctx, db, "SELECT * FROM csv_event_log ORDER BY log_id", path); err != nil {
		return fmt.Errorf("export event log: %w", err)
	}
	return nil
}

// copyToParquet runs a DuckDB COPY of query into a Parquet file.
func copyToParquet(ctx context.Context, db *sql.DB, query, path string) error {
	duckdbPath := strings.ReplaceAll(path, `\`, `/`)
	copySQL := fmt.Sprintf(`COPY (%s) TO '%s' (FORMAT PARQUET);`, query, strings.ReplaceAll(duckdbPath, "'", "''"))
	if _, err := db.ExecContext(ctx, copySQL); err != nil {
		return fmt.Errorf("copy to %s: %w", path, err)
	}
	return nil
}
