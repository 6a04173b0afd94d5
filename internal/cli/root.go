// Package cli implements the bigsort command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/bigsort/internal/config"
	"github.com/Dicklesworthstone/bigsort/internal/output"
)

var (
	cfgFile string
	cfg     *config.Config

	// Global JSON output flag - inherited by all subcommands
	jsonOutput bool

	// Global color control flag - inherited by all subcommands
	noColor bool

	// Global log level override
	logLevel string

	logger = slog.Default()

	// Build information - set via ldflags
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
	BuiltBy = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "bigsort",
	Short: "Sort text files larger than memory",
	Long: `bigsort sorts newline-delimited text files that do not fit in memory.

Lines are read into bounded in-memory chunks, each chunk is sorted and
written to a temporary file, and the chunk files are merged into one
ascending result. Lines compare byte by byte.

Quick Start:
  bigsort generate --num 1000000 --len 100     # Create a test file
  bigsort sort --file sort_1000000_100_*.txt    # Sort it into result.txt
  bigsort verify sort_1000000_100_*.txt result.txt

Memory:
  bigsort sort --file big.txt --memory 64       # Size chunks for 64 MiB
  bigsort sort --file big.txt --chunksize 8MiB  # Fixed chunk capacity`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		logger = newLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
		slog.SetDefault(logger)
		return nil
	},
}

// Execute runs the root command. Cancelling ctx stops a running sort or
// watch.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		// If not in JSON mode, print the error to stderr
		// (SilenceErrors is set to true to handle JSON mode properly)
		if !jsonOutput {
			fmt.Fprintln(os.Stderr, "Error:", err)
		} else {
			_ = output.New(os.Stdout, output.WithJSON(true)).JSON(errorResponse{Error: err.Error()})
		}
		return err
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

// IsJSONOutput reports whether --json was given.
func IsJSONOutput() bool {
	return jsonOutput
}

// newFormatter returns a formatter for cmd's standard output honoring the
// global --json and --no-color flags.
func newFormatter(cmd *cobra.Command) *output.Formatter {
	w := cmd.OutOrStdout()
	return output.New(w,
		output.WithJSON(jsonOutput),
		output.WithColor(output.ColorEnabled(w, noColor)),
	)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/bigsort/config.toml)")

	// Global JSON output flag - applies to all commands
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format (machine-readable)")

	// Global no-color flag - disables colored output (respects NO_COLOR env var standard)
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from config)")

	rootCmd.AddCommand(
		newSortCmd(),
		newGenerateCmd(),
		newVerifyCmd(),
		newWatchCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
}
