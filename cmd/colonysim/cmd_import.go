package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/colonysim/internal/export"
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Restore runs from an archive",
		Long: `Verify an archive and save its runs into the run store. Runs keep
their IDs, so importing the same archive twice replaces rather than
duplicates.

Examples:
  colonysim import runs.archive
  colonysim import --key colonysim-20260101-120000.000.archive`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key, _ := cmd.Flags().GetString("key")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			r, source, err := openArchive(cmd, cfg, args, key)
			if err != nil {
				return err
			}
			defer r.Close()

			runs, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer runs.Close()

			n, err := export.Import(cmd.Context(), runs, r)
			if err != nil {
				return fmt.Errorf("import failed after %d run(s): %w", n, err)
			}

			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"source":   source,
					"imported": n,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d run(s) from %s\n", n, source)
			return nil
		},
	}

	cmd.Flags().String("key", "", "Read the archive from the export destination")

	return cmd
}
