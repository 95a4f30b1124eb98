package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

func newRootCmd(rt *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "casectl",
		Short:         "Operate ER simulator cases",
		Long:          "casectl imports case sheets, previews case primers and probes the reasoning provider.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newImportCmd(rt))
	cmd.AddCommand(newPrimerCmd(rt))
	cmd.AddCommand(newProbeCmd(rt))
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
