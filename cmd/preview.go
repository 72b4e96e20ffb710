package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/hypersweep/internal/config"
	"github.com/signalnine/hypersweep/internal/runner"
	"github.com/signalnine/hypersweep/internal/space"
)

var flagPreviewN int

func newPreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Validate the config and print sampled trainer invocations",
		RunE:  runPreview,
	}
	cmd.Flags().IntVar(&flagPreviewN, "n", 3, "number of configurations to sample")
	cmd.Flags().Uint64Var(&flagSeed, "seed", 0, "sampler seed")
	return cmd
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("seed") {
		cfg.Study.Seed = flagSeed
	}
	if flagPreviewN < 1 {
		return fmt.Errorf("--n must be at least 1")
	}
	sp, err := cfg.NewSpace()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config OK: %d parameters, launcher %s\n", len(sp.Params()), cfg.Trainer.Launcher)
	sg := space.NewRandomSuggester(cfg.Study.Seed)
	for i := 1; i <= flagPreviewN; i++ {
		c, err := sp.Sample(sg)
		if err != nil {
			return fmt.Errorf("sampling: %w", err)
		}
		inv, err := runner.BuildInvocation(cfg.Trainer.Command, sp, c)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n[%d] %s\n", i, inv)
	}
	return nil
}
