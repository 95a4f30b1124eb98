package main

import (
	"github.com/spf13/cobra"

	"github.com/wolfman30/ersim-ai-platform/internal/cases"
)

func newPrimerCmd(rt *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "primer <case-id>",
		Short: "Print the primer the reasoning step would see for a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeStore, err := rt.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			primer, err := cases.NewPrimerBuilder(store, rt.logger).Build(ctx, args[0])
			if err != nil {
				return err
			}
			if primer.Fallback {
				rt.logger.Warn("case not found; showing fallback primer", "case_id", args[0])
			}
			return printJSON(cmd.OutOrStdout(), primer)
		},
	}
}
