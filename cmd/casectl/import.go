package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wolfman30/ersim-ai-platform/internal/cases"
)

func newImportCmd(rt *deps) *cobra.Command {
	var (
		gid            string
		dryRun         bool
		fetchResources bool
	)

	cmd := &cobra.Command{
		Use:   "import <sheet-url|sheet-id|csv-path>",
		Short: "Import case rows from a Google Sheet or a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts := cases.ImportOptions{
				DryRun:         dryRun,
				FetchResources: fetchResources,
				Bucket:         rt.cfg.AssetsBucket,
			}

			var (
				store   cases.CaseWriter
				objects cases.ObjectPutter
			)
			if !dryRun {
				s, closeStore, err := rt.openStore(ctx)
				if err != nil {
					return err
				}
				defer closeStore()
				store = s
				if fetchResources {
					if objects, err = rt.objects(ctx); err != nil {
						return err
					}
				}
			}

			importer := cases.NewImporter(store, objects, rt.httpClient, rt.logger)
			src, err := openSource(ctx, importer, args[0], gid)
			if err != nil {
				return err
			}
			defer src.Close()

			report, err := importer.Import(ctx, src, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&gid, "gid", "0", "sheet tab gid")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log the plan without writing")
	cmd.Flags().BoolVar(&fetchResources, "fetch-resources", false, "download unsynced media and upload it to the assets bucket")
	return cmd
}

// openSource reads a local CSV when source names an existing file and
// otherwise treats it as a Google Sheet URL or id.
func openSource(ctx context.Context, importer *cases.Importer, source, gid string) (io.ReadCloser, error) {
	source = strings.TrimSpace(source)
	if info, err := os.Stat(source); err == nil && !info.IsDir() {
		return os.Open(source)
	}
	return importer.FetchSheetCSV(ctx, source, gid)
}
