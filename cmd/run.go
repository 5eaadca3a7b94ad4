package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/brensch/csvevents/internal/app"
	"github.com/brensch/csvevents/internal/emitter"
	"github.com/brensch/csvevents/internal/orchestrator"
	"github.com/brensch/csvevents/internal/processor"
)

var (
	testingMode    bool
	outputDir      string
	outputFormat   string
	restartCounter string
	restartModule  string
	showProgress   bool
)

// runCmd makes the same pass as the bare root command.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Make one pass over the watch directory",
	Long: `Processes every file currently in the watch directory:
1. Classifies each file by the markers in its name; unmatched files are skipped.
2. Maps every row to a JSON event and forwards it (or writes it to a local
   file with -t).
3. Moves each fully processed file to the backup directory.
Use --progress to follow the pass in a terminal view.`,
	Args: usageArgs(cobra.NoArgs),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkPassFlags(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPass(cmd.Context(), getLogger())
	},
}

func addPassFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&testingMode, "testing", "t", false, "Write events to a local output file instead of forwarding them")
	cmd.Flags().StringVar(&outputDir, "output-dir", ".", "Directory for testing-mode output files")
	cmd.Flags().StringVar(&outputFormat, "output-format", emitter.FormatJSON, "Testing-mode output format (json or parquet)")
	cmd.Flags().StringVarP(&restartCounter, "counter", "c", "", "Restart counter, recorded with the run (requires -m)")
	cmd.Flags().StringVarP(&restartModule, "module", "m", "", "Restart module, recorded with the run (requires -c)")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "Show a terminal progress view")
}

func init() {
	addPassFlags(runCmd)
}

// checkPassFlags reports flag combinations that are usage errors.
func checkPassFlags(cmd *cobra.Command) error {
	c, m := cmd.Flags().Changed("counter"), cmd.Flags().Changed("module")
	if c != m {
		return usageError{errors.New("-c and -m must be used together")}
	}
	switch outputFormat {
	case emitter.FormatJSON, emitter.FormatParquet:
	default:
		return usageError{fmt.Errorf("invalid --output-format %q (use json or parquet)", outputFormat)}
	}
	return nil
}

// runPass executes one orchestrated pass. Lock contention, configuration
// problems and run-time failures are logged and do not fail the process.
func runPass(ctx context.Context, logger *slog.Logger) error {
	cfg, err := getConfig()
	if err != nil {
		logger.Error("Failed to load configuration, nothing was processed.", slog.String("config", cfgFile), slog.Any("error", err))
		return nil
	}

	opts := orchestrator.Options{
		Config:         cfg,
		Testing:        testingMode,
		OutputDir:      outputDir,
		OutputFormat:   outputFormat,
		RestartCounter: restartCounter,
		RestartModule:  restartModule,
	}

	if showProgress {
		err = app.RunWithProgress(ctx, os.Stdout, func(ctx context.Context, progress chan<- processor.Progress) error {
			opts.Progress = progress
			_, err := orchestrator.Run(ctx, opts, logger)
			return err
		})
	} else {
		_, err = orchestrator.Run(ctx, opts, logger)
	}

	switch {
	case err == nil, errors.Is(err, orchestrator.ErrAlreadyRunning), errors.Is(err, orchestrator.ErrConfig):
		// Already logged by the orchestrator.
	case errors.Is(err, context.Canceled):
		logger.Warn("Run interrupted.")
	default:
		logger.Error("Run completed with errors", "error", err)
	}
	return nil
}
