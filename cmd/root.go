package cmd

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalnine/hypersweep/internal/config"
	"github.com/signalnine/hypersweep/internal/logger"
)

var (
	cfgFile       string
	flagLogLevel  string
	flagLogFormat string
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "hypersweep",
		Short:        "Hyperparameter sweeps for an external trainer",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "hypersweep.yaml", "config file path")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format (text, json)")
	root.AddCommand(newSweepCmd())
	root.AddCommand(newMonitorCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newPreviewCmd())
	return root
}

// loadConfig reads --config. Read-only commands pass optional so they work
// from defaults and flags alone when the file does not exist.
func loadConfig(optional bool) (*config.Config, error) {
	if optional {
		if _, err := os.Stat(cfgFile); errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
	}
	return config.Load(cfgFile)
}

// newLogger builds the process logger on stderr and installs it as the
// slog default. Flags override the config file.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	level, format := cfg.Log.Level, cfg.Log.Format
	if cmd.Flags().Changed("log-level") {
		level = flagLogLevel
	}
	if cmd.Flags().Changed("log-format") {
		format = flagLogFormat
	}
	log := logger.New(level, format, cmd.ErrOrStderr())
	slog.SetDefault(log)
	return log
}
