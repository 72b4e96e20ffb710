package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/hypersweep/internal/report"
	"github.com/signalnine/hypersweep/internal/result"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the parameter space and the studies in storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			applyStudyFlags(cmd, cfg)
			newLogger(cmd, cfg)
			out := cmd.OutOrStdout()

			if len(cfg.Space) > 0 {
				sp, err := cfg.NewSpace()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "Parameters (sampling order):")
				if err := report.WriteSpace(out, sp); err != nil {
					return err
				}
				fmt.Fprintln(out)
			}

			ctx := cmd.Context()
			store, err := result.OpenReader(ctx, cfg.Study.Storage)
			if err != nil {
				return fmt.Errorf("opening storage: %w", err)
			}
			defer store.Close()

			studies, err := store.Studies(ctx)
			if err != nil {
				return err
			}
			if len(studies) == 0 {
				fmt.Fprintf(out, "No studies in %s\n", cfg.Study.Storage)
				return nil
			}
			trials := make(map[string][]*result.Trial, len(studies))
			for _, st := range studies {
				ts, err := store.Trials(ctx, st.ID)
				if err != nil {
					return err
				}
				trials[st.ID] = ts
			}
			fmt.Fprintf(out, "Studies in %s:\n", cfg.Study.Storage)
			return report.WriteStudies(out, studies, trials)
		},
	}
	addStudyFlags(cmd)
	return cmd
}
