package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalnine/hypersweep/internal/config"
	"github.com/signalnine/hypersweep/internal/monitor"
	"github.com/signalnine/hypersweep/internal/study"
)

var (
	flagInterval time.Duration
	flagTarget   int
	flagOnce     bool
)

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Periodically print the progress of a running study",
		RunE:  runMonitor,
	}
	cmd.Flags().DurationVar(&flagInterval, "interval", 0, "refresh interval")
	cmd.Flags().IntVar(&flagTarget, "target", 0, "target trial count used for progress and ETA")
	cmd.Flags().BoolVar(&flagOnce, "once", false, "print one status block and exit")
	addStudyFlags(cmd)
	return cmd
}

func applyMonitorFlags(cmd *cobra.Command, cfg *config.Config) error {
	applyStudyFlags(cmd, cfg)
	if cmd.Flags().Changed("interval") {
		if flagInterval <= 0 {
			return fmt.Errorf("--interval must be positive")
		}
		cfg.Monitor.Interval = flagInterval
	}
	if cmd.Flags().Changed("target") {
		if flagTarget < 1 {
			return fmt.Errorf("--target must be at least 1")
		}
		cfg.Monitor.Target = flagTarget
	}
	return nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	if err := applyMonitorFlags(cmd, cfg); err != nil {
		return err
	}
	log := newLogger(cmd, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The store is opened read-only on the first poll and reopened on later
	// polls until that succeeds.
	source := &study.LocationReader{Location: cfg.Study.Storage, Name: cfg.Study.Name}
	defer source.Close()

	out := cmd.OutOrStdout()
	m := &monitor.Monitor{
		Source:   source,
		Study:    cfg.Study.Name,
		Interval: cfg.Monitor.Interval,
		Target:   cfg.Monitor.Target,
		TopK:     cfg.Monitor.TopK,
		Window:   cfg.Monitor.Window,
		Mode:     cfg.Mode(),
		Seeds:    cfg.Study.Seeds,
		Out:      out,
		Log:      log,
	}
	if flagOnce {
		return m.Poll(ctx)
	}

	fmt.Fprintf(out, "Monitoring study: %s\n", cfg.Study.Name)
	fmt.Fprintf(out, "Storage: %s\n", cfg.Study.Storage)
	fmt.Fprintf(out, "Refresh every %s\n", cfg.Monitor.Interval)
	fmt.Fprintln(out, "Press Ctrl+C to exit")
	if err := m.Run(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "\nMonitoring stopped.")
	return nil
}
