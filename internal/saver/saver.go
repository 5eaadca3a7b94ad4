// Package saver dumps the state tables to Parquet files.
package saver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
)

// SaveTables writes every table of the state database to
// outDir/<table>.parquet and returns the written paths in table order.
func SaveTables(ctx context.Context, db *sql.DB, outDir string, logger *slog.Logger) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory '%s': %w", outDir, err)
	}

	tableNames, err := listTables(ctx, db)
	if err != nil {
		return nil, err
	}
	if len(tableNames) == 0 {
		logger.Info("No tables found in the state database to save.")
		return nil, nil
	}
	logger.Info("Found tables to save.", slog.Int("count", len(tableNames)))

	paths := make([]string, len(tableNames))
	var wg sync.WaitGroup
	var saveErrorsMu sync.Mutex
	var saveErrors []error

	for i, tableName := range tableNames {
		if ctx.Err() != nil {
			logger.Warn("Context cancelled before saving all tables.", "error", ctx.Err())
			break
		}
		wg.Add(1)
		go func(i int, tn string) {
			defer wg.Done()
			l := logger.With(slog.String("table", tn))

			safeFilename := strings.ReplaceAll(tn, `"`, "")
			safeFilename = strings.ReplaceAll(safeFilename, "/", "_")
			outputFilePath := filepath.Join(outDir, safeFilename+".parquet")
			duckdbFilePath := strings.ReplaceAll(outputFilePath, `\`, `/`)

			quotedTableName := fmt.Sprintf(`"%s"`, strings.ReplaceAll(tn, `"`, `""`))
			copySQL := fmt.Sprintf(`COPY %s TO '%s' (FORMAT PARQUET);`,
				quotedTableName,
				strings.ReplaceAll(duckdbFilePath, "'", "''"),
			)

			if _, execErr := db.ExecContext(ctx, copySQL); execErr != nil {
				l.Error("Failed to save table to Parquet.", "error", execErr)
				saveErrorsMu.Lock()
				saveErrors = append(saveErrors, fmt.Errorf("save %s: %w", tn, execErr))
				saveErrorsMu.Unlock()
				return
			}
			paths[i] = outputFilePath
			l.Info("Saved table to Parquet.", slog.String("output_path", outputFilePath))
		}(i, tableName)
	}
	wg.Wait()

	saved := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" {
			saved = append(saved, p)
		}
	}
	if err := errors.Join(append(saveErrors, ctx.Err())...); err != nil {
		return saved, err
	}
	return saved, nil
}

func listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `PRAGMA show_tables;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tableNames []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tableNames = append(tableNames, tableName)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return tableNames, nil
}
