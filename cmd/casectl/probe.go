package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/wolfman30/ersim-ai-platform/internal/cases"
	"github.com/wolfman30/ersim-ai-platform/internal/conversation"
)

func newProbeCmd(rt *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <case-id> <utterance>",
		Short: "Run one reasoning call against a case without recording a turn",
		Args:  cobra.MinimumNArgs(2),
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
			client, err := rt.llm(ctx)
			if err != nil {
				return err
			}
			bridge := conversation.NewReasoningBridge(client, conversation.BridgeConfig{
				Temperature: rt.cfg.ReasoningTemperature,
				Timeout:     rt.cfg.ReasoningTimeout,
			}, rt.logger, nil)

			decision, err := bridge.Decide(ctx, conversation.ReasoningInput{
				Utterance: strings.Join(args[1:], " "),
				Primer:    primer,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), decision)
		},
	}
}
