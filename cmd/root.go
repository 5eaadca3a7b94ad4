package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brensch/csvevents/internal/config"
	"github.com/brensch/csvevents/internal/logging"
)

// Exit codes returned by Execute.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
	ExitPanic = 3
)

// usageError marks command-line mistakes so they map to ExitUsage.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

var (
	// Persistent flags.
	cfgFile   string
	envFile   string
	logFormat string
	logLevel  string
	console   bool

	// Populated in PersistentPreRunE.
	rootLogger *slog.Logger
	logCloser  io.Closer
	appConfig  config.Config
	configErr  error
)

var rootCmd = &cobra.Command{
	Use:   "csvevents",
	Short: "Forward CSV drop files as JSON events and archive them.",
	Long: `csvevents makes one pass over the configured watch directory. Each CSV file
whose name carries a known marker is read row by row, mapped to a JSON event
and forwarded to syslog or an HTTP collector; the file is then moved to the
backup directory. Files without a marker are left in place.

Run and file history is kept in a DuckDB database under the state directory;
see the 'state' command.`,
	Args:          usageArgs(cobra.NoArgs),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		appConfig, configErr = config.Load(cfgFile, envFile)

		level := logLevel
		if !cmd.Flags().Changed("log-level") && appConfig.Logging.Level != "" {
			level = appConfig.Logging.Level
		}
		format := logFormat
		if !cmd.Flags().Changed("log-format") && appConfig.Logging.Format != "" {
			format = appConfig.Logging.Format
		}

		logger, closer, err := logging.New(logging.Options{Level: level, Format: format, Console: console})
		if err != nil {
			// No syslog daemon; fall back to the console so the run still reports.
			logger, closer, _ = logging.New(logging.Options{Level: level, Format: format, Console: true})
			logger.Warn("Falling back to console logging.", "error", err)
		}
		rootLogger, logCloser = logger, closer
		slog.SetDefault(rootLogger)
		rootLogger.Debug("Logger initialized", "level", level, "format", format, "console", console)

		if configErr == nil {
			rootLogger.Debug("Configuration loaded", slog.String("path", cfgFile), slog.Int("variant", int(appConfig.Variant)))
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkPassFlags(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPass(cmd.Context(), getLogger())
	},
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	var ue usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run 'csvevents --help' for usage.")
		return ExitUsage
	}
	if rootLogger != nil {
		rootLogger.Error("Command execution failed", "error", err)
	}
	fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
	return ExitError
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(inspectCmd)

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultConfigPath, "config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before the config file")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log output format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&console, "log-console", "l", false, "Log to the console instead of syslog")

	addPassFlags(rootCmd)

	rootCmd.Version = "1.0.0"
}

// usageArgs wraps a positional argument validator so its errors are usage errors.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func getLogger() *slog.Logger {
	if rootLogger == nil {
		return logging.Discard()
	}
	return rootLogger
}

// getConfig returns the loaded configuration or the error that prevented it.
func getConfig() (config.Config, error) {
	return appConfig, configErr
}
