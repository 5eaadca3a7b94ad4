// Package inspector summarizes the Parquet files written in testing mode.
package inspector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/brensch/csvevents/internal/emitter"
)

// TypeSummary describes all output files of one data type.
type TypeSummary struct {
	DataType    string
	Files       []string
	TotalRows   int64
	FirstStamp  time.Time
	LastStamp   time.Time
	Schema      string
	ColumnNames []string
	SchemaErr   error
	StatsErr    error
}

var outputPatternRegex = regexp.MustCompile(`^output\.(\d{8}T\d{6}Z)\.(.+)\.parquet$`)

// parseOutputName extracts the run stamp and data type from a file name
// written by the Parquet emitter.
func parseOutputName(filename string) (time.Time, string, error) {
	matches := outputPatternRegex.FindStringSubmatch(filename)
	if len(matches) != 3 {
		return time.Time{}, "", fmt.Errorf("filename '%s' does not match output.<stamp>.<type>.parquet", filename)
	}
	stamp, err := time.Parse(emitter.StampLayout, matches[1])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("filename '%s': bad stamp: %w", filename, err)
	}
	return stamp, matches[2], nil
}

// Inspect reads every output.*.parquet file in dir with an in-memory DuckDB
// and returns one summary per data type, sorted by type.
// Files with unexpected names are skipped and reported in the error.
func Inspect(ctx context.Context, dir string, logger *slog.Logger) ([]TypeSummary, error) {
	parquetFiles, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if err != nil {
		return nil, fmt.Errorf("failed glob parquet files in %s: %w", dir, err)
	}
	if len(parquetFiles) == 0 {
		logger.Info("No *.parquet files found.", "dir", dir)
		return nil, nil
	}

	byType := make(map[string]*TypeSummary)
	var categorizationErrors error
	for _, fp := range parquetFiles {
		stamp, dataType, err := parseOutputName(filepath.Base(fp))
		if err != nil {
			logger.Warn("Skipping file due to unexpected name format.", slog.String("file", filepath.Base(fp)), slog.String("error", err.Error()))
			categorizationErrors = errors.Join(categorizationErrors, err)
			continue
		}
		s, ok := byType[dataType]
		if !ok {
			s = &TypeSummary{DataType: dataType, FirstStamp: stamp, LastStamp: stamp}
			byType[dataType] = s
		}
		s.Files = append(s.Files, fp)
		if stamp.Before(s.FirstStamp) {
			s.FirstStamp = stamp
		}
		if stamp.After(s.LastStamp) {
			s.LastStamp = stamp
		}
	}
	if len(byType) == 0 {
		return nil, categorizationErrors
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory duckdb: %w", err)
	}
	defer db.Close()
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	summaries := make([]TypeSummary, 0, len(byType))
	finalErr := categorizationErrors
	for _, s := range byType {
		sort.Strings(s.Files)
		l := logger.With(slog.String("data_type", s.DataType))

		s.Schema, s.ColumnNames, s.SchemaErr = getSchemaAndColumns(ctx, conn, s.Files[0])
		if s.SchemaErr != nil {
			l.Error("Failed getting schema for type", "error", s.SchemaErr)
		}

		statsSQL := fmt.Sprintf(`SELECT COUNT(*) FROM read_parquet(%s, union_by_name = true);`, fileListLiteral(s.Files))
		var totalRows sql.NullInt64
		if err := conn.QueryRowContext(ctx, statsSQL).Scan(&totalRows); err != nil {
			s.StatsErr = fmt.Errorf("count rows for %s: %w", s.DataType, err)
			l.Error("Failed getting statistics for type", "error", err)
		} else {
			s.TotalRows = totalRows.Int64
			l.Debug("Statistics gathered.", slog.Int("files", len(s.Files)), slog.Int64("total_rows", s.TotalRows))
		}
		finalErr = errors.Join(finalErr, s.SchemaErr, s.StatsErr)
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].DataType < summaries[j].DataType })
	return summaries, finalErr
}

// Print writes the summaries as schema listings followed by a stats table.
func Print(w io.Writer, summaries []TypeSummary) {
	fmt.Fprintln(w, "\n--- Output File Summary ---")
	for _, s := range summaries {
		fmt.Fprintf(w, "\n=== Data Type: %s ===\n", s.DataType)
		fmt.Fprintf(w, "    (Found %d files)\n", len(s.Files))
		fmt.Fprintln(w, "\n  Schema:")
		switch {
		case s.SchemaErr != nil:
			fmt.Fprintf(w, "    ERROR retrieving schema: %v\n", s.SchemaErr)
		case s.Schema == "":
			fmt.Fprintln(w, "    (Schema not found or file empty)")
		default:
			for _, line := range strings.Split(s.Schema, "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}
	fmt.Fprintln(w, "\n--- Aggregated Statistics ---")
	fmt.Fprintf(w, "%-20s | %-10s | %-12s | %-20s | %-20s | %s\n", "Data Type", "Files", "Total Rows", "First Run (UTC)", "Last Run (UTC)", "Errors")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for _, s := range summaries {
		errorStr := ""
		if s.SchemaErr != nil && s.StatsErr != nil {
			errorStr = "Schema & Stats Error"
		} else if s.SchemaErr != nil {
			errorStr = "Schema Error"
		} else if s.StatsErr != nil {
			errorStr = "Stats Error"
		}
		fmt.Fprintf(w, "%-20s | %-10d | %-12d | %-20s | %-20s | %s\n", s.DataType, len(s.Files), s.TotalRows,
			s.FirstStamp.Format(time.RFC3339), s.LastStamp.Format(time.RFC3339), errorStr)
	}
	fmt.Fprintln(w, strings.Repeat("-", 110))
}

func fileListLiteral(files []string) string {
	escaped := make([]string, 0, len(files))
	for _, p := range files {
		dp := strings.ReplaceAll(p, `\`, `/`)
		escaped = append(escaped, fmt.Sprintf("'%s'", strings.ReplaceAll(dp, "'", "''")))
	}
	return fmt.Sprintf("[%s]", strings.Join(escaped, ", "))
}

func getSchemaAndColumns(ctx context.Context, conn *sql.Conn, filePath string) (string, []string, error) {
	duckdbFilePath := strings.ReplaceAll(filePath, `\`, `/`)
	describeSQL := fmt.Sprintf("DESCRIBE SELECT * FROM read_parquet('%s');", strings.ReplaceAll(duckdbFilePath, "'", "''"))
	schemaRows, err := conn.QueryContext(ctx, describeSQL)
	if err != nil {
		return "", nil, fmt.Errorf("query schema for %s: %w", filePath, err)
	}
	defer schemaRows.Close()

	var schemaBuilder strings.Builder
	var columnNames []string
	fmt.Fprintf(&schemaBuilder, "  %-30s | %-12s | %s\n", "Column Name", "Column Type", "Null")
	schemaBuilder.WriteString("  " + strings.Repeat("-", 56) + "\n")
	for schemaRows.Next() {
		var colName, colType, nullVal, keyVal, defaultVal, extraVal sql.NullString
		if err := schemaRows.Scan(&colName, &colType, &nullVal, &keyVal, &defaultVal, &extraVal); err != nil {
			return "", nil, fmt.Errorf("scan schema row for %s: %w", filePath, err)
		}
		fmt.Fprintf(&schemaBuilder, "  %-30s | %-12s | %s\n", colName.String, colType.String, nullVal.String)
		if colName.Valid {
			columnNames = append(columnNames, colName.String)
		}
	}
	if err := schemaRows.Err(); err != nil {
		return "", nil, fmt.Errorf("iterate schema rows for %s: %w", filePath, err)
	}
	if len(columnNames) == 0 {
		return "(No columns found)", nil, nil
	}
	return strings.TrimRight(schemaBuilder.String(), "\n"), columnNames, nil
}
