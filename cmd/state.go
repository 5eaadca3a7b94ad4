package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/brensch/csvevents/internal/db"
	"github.com/brensch/csvevents/internal/saver"
)

var (
	stateLimit       int
	stateFilterEvent string
	stateFilterType  string
	runsLimit        int
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "View the event log history of processed files",
	Long: `Queries the DuckDB state database and displays the per-file event log,
newest first. Use flags to filter by event or data type and limit the output.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		return withStateDB(cmd.Context(), func(conn *sql.DB) error {
			logger.Debug("Querying database event log", "type_filter", stateFilterType, "event_filter", stateFilterEvent, "limit", stateLimit)
			return db.DisplayFileHistory(cmd.Context(), conn, cmd.OutOrStdout(), db.HistoryFilter{
				Event:    stateFilterEvent,
				DataType: stateFilterType,
				Limit:    stateLimit,
			})
		})
	},
}

var stateExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the event log to a Parquet file",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStateDB(cmd.Context(), func(conn *sql.DB) error {
			if err := db.ExportEventLog(cmd.Context(), conn, args[0]); err != nil {
				return err
			}
			getLogger().Info("Exported event log.", slog.String("path", args[0]))
			return nil
		})
	},
}

var stateRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStateDB(cmd.Context(), func(conn *sql.DB) error {
			runs, err := db.ListRuns(cmd.Context(), conn, getLogger(), runsLimit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-36s | %-20s | %-22s | %-5s | %-9s | %-7s | %-6s | %s\n", "Run ID", "Started (UTC)", "Status", "Seen", "Processed", "Skipped", "Failed", "Events")
			for _, r := range runs {
				fmt.Fprintf(w, "%-36s | %-20s | %-22s | %-5d | %-9d | %-7d | %-6d | %d\n",
					r.RunID, r.StartedAt.UTC().Format(time.RFC3339), r.Status,
					r.FilesSeen, r.FilesProcessed, r.FilesSkipped, r.FilesFailed, r.EventsEmitted)
			}
			return nil
		})
	},
}

var stateSaveCmd = &cobra.Command{
	Use:   "save <dir>",
	Short: "Save every state table to a Parquet file in dir",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStateDB(cmd.Context(), func(conn *sql.DB) error {
			paths, err := saver.SaveTables(cmd.Context(), conn, args[0], getLogger())
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return err
		})
	},
}

// withStateDB opens the configured state database for the duration of fn.
func withStateDB(ctx context.Context, fn func(*sql.DB) error) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}
	path := cfg.StateDBPath()
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no state database at %s: %w", path, err)
	}
	conn, err := db.Open(ctx, path)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := db.InitializeSchema(conn); err != nil {
		return err
	}
	return fn(conn)
}

func init() {
	stateCmd.Flags().IntVarP(&stateLimit, "limit", "n", 50, "Limit the number of log records displayed")
	stateCmd.Flags().StringVarP(&stateFilterEvent, "event", "e", "", "Filter records by event (e.g. process_end, error, skip_unclassified)")
	stateCmd.Flags().StringVar(&stateFilterType, "type", "", "Filter records by data type")
	stateRunsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to list")

	stateCmd.AddCommand(stateExportCmd, stateRunsCmd, stateSaveCmd)
}
