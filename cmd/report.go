package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/hypersweep/internal/report"
	"github.com/signalnine/hypersweep/internal/result"
)

var (
	flagFormat string
	flagTop    int
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [study]",
		Short: "Summarize a study from storage",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			applyStudyFlags(cmd, cfg)
			if len(args) > 0 {
				cfg.Study.Name = args[0]
			}
			topK := cfg.Results.TopK
			if cmd.Flags().Changed("top") {
				topK = flagTop
			}
			newLogger(cmd, cfg)

			ctx := cmd.Context()
			store, err := result.OpenReader(ctx, cfg.Study.Storage)
			if err != nil {
				return fmt.Errorf("opening storage: %w", err)
			}
			defer store.Close()

			st, err := store.FindStudy(ctx, cfg.Study.Name)
			if err != nil {
				return err
			}
			trials, err := store.Trials(ctx, st.ID)
			if err != nil {
				return err
			}
			return report.WriteResults(cmd.OutOrStdout(), flagFormat, report.ResultsInput{
				Study:  st.Name,
				Trials: trials,
				Mode:   cfg.Mode(),
				Seeds:  cfg.Study.Seeds,
				TopK:   topK,
			})
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "text", "output format (text, markdown, json)")
	cmd.Flags().IntVar(&flagTop, "top", report.DefaultTopK, "number of top trials to show")
	addStudyFlags(cmd)
	return cmd
}
