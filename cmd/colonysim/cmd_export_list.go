package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/colonysim/internal/export"
)

func newExportListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List objects at the export destination",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			sink, err := openSink(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			objects, err := sink.List(cmd.Context(), "")
			if err != nil {
				return fmt.Errorf("failed to list exports: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if objects == nil {
					objects = []export.ObjectInfo{}
				}
				return printJSON(out, map[string]interface{}{
					"objects":     objects,
					"total_count": len(objects),
					"destination": valueOrDefault(cfg.Export.Destination, "fs"),
				})
			}

			if len(objects) == 0 {
				fmt.Fprintln(out, "No exports found.")
				return nil
			}
			for _, o := range objects {
				fmt.Fprintf(out, "%-44s  %10s  %s\n", o.Key, humanize.Bytes(uint64(o.Size)), humanize.Time(o.LastModified))
			}
			return nil
		},
	}
}
