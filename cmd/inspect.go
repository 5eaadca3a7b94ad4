package cmd

import (
	"github.com/spf13/cobra"

	"github.com/brensch/csvevents/internal/inspector"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [dir]",
	Short: "Summarize testing-mode Parquet output files using DuckDB",
	Long: `Reads every output.<stamp>.<type>.parquet file in dir (default: the current
directory) and shows the schema, file count and row count per data type.`,
	Args: usageArgs(cobra.MaximumNArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		summaries, err := inspector.Inspect(cmd.Context(), dir, getLogger())
		inspector.Print(cmd.OutOrStdout(), summaries)
		return err
	},
}
