package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalnine/hypersweep/internal/config"
	"github.com/signalnine/hypersweep/internal/docker"
	"github.com/signalnine/hypersweep/internal/monitor"
	"github.com/signalnine/hypersweep/internal/report"
	"github.com/signalnine/hypersweep/internal/result"
	"github.com/signalnine/hypersweep/internal/runner"
	"github.com/signalnine/hypersweep/internal/space"
	"github.com/signalnine/hypersweep/internal/study"
)

var (
	flagTrials    int
	flagParallel  int
	flagStorage   string
	flagStudyName string
	flagTimeout   time.Duration
	flagSeed      uint64
	flagProgress  bool
	flagCleanup   bool
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run or resume a hyperparameter sweep",
		RunE:  runSweep,
	}
	cmd.Flags().IntVar(&flagTrials, "n-trials", 0, "number of trials to run; 0 runs until interrupted")
	cmd.Flags().IntVar(&flagParallel, "n-jobs", 1, "max concurrent trials")
	cmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "time limit per trial")
	cmd.Flags().Uint64Var(&flagSeed, "seed", 0, "sampler seed")
	cmd.Flags().BoolVar(&flagProgress, "progress", false, "print a status block after every trial")
	cmd.Flags().BoolVar(&flagCleanup, "cleanup", false, "prune leftover hypersweep containers after the sweep")
	addStudyFlags(cmd)
	return cmd
}

// addStudyFlags registers the flags that select a study.
func addStudyFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagStorage, "storage", "", "storage location (sqlite:///path.db or memory)")
	cmd.Flags().StringVar(&flagStudyName, "study-name", "", "study name")
}

func applyStudyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("storage") {
		cfg.Study.Storage = flagStorage
	}
	if cmd.Flags().Changed("study-name") {
		cfg.Study.Name = flagStudyName
	}
}

// applySweepFlags overrides the config with flags given on the command line.
// Flags left unset keep the config's values.
func applySweepFlags(cmd *cobra.Command, cfg *config.Config) error {
	applyStudyFlags(cmd, cfg)
	f := cmd.Flags()
	if f.Changed("n-trials") {
		if flagTrials < 0 {
			return fmt.Errorf("--n-trials must not be negative")
		}
		cfg.Study.Trials = flagTrials
	}
	if f.Changed("n-jobs") {
		if flagParallel < 1 {
			return fmt.Errorf("--n-jobs must be at least 1")
		}
		cfg.Study.Parallel = flagParallel
	}
	if f.Changed("timeout") {
		if flagTimeout <= 0 {
			return fmt.Errorf("--timeout must be positive")
		}
		cfg.Trainer.TimeLimit = flagTimeout
	}
	if f.Changed("seed") {
		cfg.Study.Seed = flagSeed
	}
	return nil
}

func newLauncher(t *config.Trainer) (runner.Launcher, error) {
	if t.Launcher == config.LauncherDocker {
		return docker.NewLauncher(t)
	}
	return runner.NewExecLauncher(t)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := applySweepFlags(cmd, cfg); err != nil {
		return err
	}
	log := newLogger(cmd, cfg)

	sp, err := cfg.NewSpace()
	if err != nil {
		return err
	}
	launcher, err := newLauncher(&cfg.Trainer)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	store, st, err := openSweepStudy(ctx, cfg, sp, log)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(out, "Sweep interrupted before the study was opened.")
			return nil
		}
		return err
	}
	defer store.Close()

	prior, err := st.Enumerate(ctx)
	if err != nil {
		return fmt.Errorf("reading trials: %w", err)
	}
	printSweepHeader(out, cfg, len(sp.Params()))
	if len(prior) > 0 {
		fmt.Fprintf(out, "Resuming study with %d existing trials\n\n", len(prior))
	}

	opts := &runner.SweepOpts{
		Sampler: st,
		Evaluator: &runner.Evaluator{
			Command:   cfg.Trainer.Command,
			Space:     sp,
			Launcher:  launcher,
			TimeLimit: cfg.Trainer.TimeLimit,
			Mode:      cfg.Mode(),
			Log:       log,
		},
		Trials:        cfg.Study.Trials,
		Parallel:      cfg.Study.Parallel,
		RetryInterval: cfg.Study.RetryInterval,
		MaxRetries:    cfg.Study.MaxRetries,
		Log:           log,
	}
	if flagProgress {
		m := &monitor.Monitor{
			Source: st,
			Study:  cfg.Study.Name,
			Target: progressTarget(len(prior), cfg.Study.Trials),
			TopK:   cfg.Monitor.TopK,
			Window: cfg.Monitor.Window,
			Mode:   cfg.Mode(),
			Seeds:  cfg.Study.Seeds,
			Out:    out,
			Log:    log,
		}
		opts.OnTrial = func(*result.Trial, result.Completion) {
			if err := m.Poll(context.WithoutCancel(ctx)); err != nil {
				log.Warn("progress", "err", err)
			}
		}
	}

	stats, sweepErr := runner.Sweep(ctx, opts)
	printSweepStats(out, stats)

	// The artifact is written even after an interrupt.
	if err := saveResults(context.WithoutCancel(ctx), out, st, cfg); err != nil {
		sweepErr = errors.Join(sweepErr, err)
	}
	if flagCleanup && cfg.Trainer.Launcher == config.LauncherDocker {
		pruneContainers(context.WithoutCancel(ctx), log)
	}
	return sweepErr
}

// openSweepStudy opens the store and the study, retrying at the configured
// interval. A bounded sweep gives up after max_retries; an unbounded one keeps
// trying until interrupted.
func openSweepStudy(ctx context.Context, cfg *config.Config, sp *space.Space, log *slog.Logger) (result.Store, *study.Study, error) {
	maxRetries := cfg.Study.MaxRetries
	if cfg.Study.Trials == 0 {
		maxRetries = -1
	}
	var (
		store result.Store
		st    *study.Study
	)
	err := runner.Retry(ctx, cfg.Study.RetryInterval, maxRetries, log, "opening study", func(ctx context.Context) error {
		s, err := result.Open(ctx, cfg.Study.Storage)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		opened, err := study.Open(ctx, s, cfg.Study.Name, sp, space.NewRandomSuggester(cfg.Study.Seed))
		if err != nil {
			s.Close()
			return err
		}
		store, st = s, opened
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return store, st, nil
}

// progressTarget is the study size at which a sweep adding trials to existing
// ones finishes, or 0 for an unbounded sweep.
func progressTarget(existing, trials int) int {
	if trials <= 0 {
		return 0
	}
	return existing + trials
}

func printSweepHeader(w io.Writer, cfg *config.Config, params int) {
	trials := "unbounded"
	if cfg.Study.Trials > 0 {
		trials = fmt.Sprintf("%d", cfg.Study.Trials)
	}
	fmt.Fprintf(w, "Starting sweep:\n")
	fmt.Fprintf(w, "  Study: %s\n", cfg.Study.Name)
	fmt.Fprintf(w, "  Storage: %s\n", cfg.Study.Storage)
	fmt.Fprintf(w, "  Trials: %s\n", trials)
	fmt.Fprintf(w, "  Parallel jobs: %d\n", cfg.Study.Parallel)
	fmt.Fprintf(w, "  Parameters: %d\n", params)
	fmt.Fprintf(w, "  Time limit per trial: %s\n", cfg.Trainer.TimeLimit)
	fmt.Fprintf(w, "  Launcher: %s\n\n", cfg.Trainer.Launcher)
}

func printSweepStats(w io.Writer, stats *runner.SweepStats) {
	if stats == nil {
		return
	}
	if stats.Interrupted {
		fmt.Fprintln(w, "\nSweep interrupted.")
	}
	fmt.Fprintf(w, "\nTrials this session: %d complete, %d failed (%s)\n",
		stats.Completed, stats.Failed, stats.Elapsed.Round(time.Second))
	if stats.DriverFailures > 0 {
		fmt.Fprintf(w, "Driver failures: %d\n", stats.DriverFailures)
	}
}

// saveResults prints the study report and writes it as an artifact under the
// results dir.
func saveResults(ctx context.Context, w io.Writer, st *study.Study, cfg *config.Config) error {
	trials, err := st.Enumerate(ctx)
	if err != nil {
		return fmt.Errorf("reading trials: %w", err)
	}
	now := time.Now()
	var buf bytes.Buffer
	err = report.WriteResults(&buf, "text", report.ResultsInput{
		Study:     cfg.Study.Name,
		Trials:    trials,
		Mode:      cfg.Mode(),
		Seeds:     cfg.Study.Seeds,
		TopK:      cfg.Results.TopK,
		Generated: now,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "\n--- Results ---")
	w.Write(buf.Bytes())

	path, err := result.WriteArtifact(cfg.Results.Dir, cfg.Study.Name, now, buf.Bytes())
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nResults saved to: %s\n", path)
	return nil
}

func pruneContainers(ctx context.Context, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := docker.Prune(ctx)
	if err != nil {
		log.Warn("container cleanup failed", "err", err)
		return
	}
	log.Info("pruned containers", "count", n)
}
