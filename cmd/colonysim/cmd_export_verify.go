package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/colonysim/internal/config"
	"github.com/nvandessel/colonysim/internal/export"
)

func newExportVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [file]",
		Short: "Verify an archive's checksum",
		Long: `Verify the checksum of an archive file, or of an archive at the export
destination with --key.

Examples:
  colonysim export verify runs.archive
  colonysim export verify --key colonysim-20260101-120000.000.archive`,
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

			header, err := export.VerifyArchive(r)
			if err != nil {
				if jsonOut {
					printJSON(cmd.OutOrStdout(), map[string]interface{}{
						"source": source,
						"valid":  false,
						"error":  err.Error(),
					})
				}
				return fmt.Errorf("verification failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, map[string]interface{}{
					"source":     source,
					"valid":      true,
					"run_count":  header.RunCount,
					"created_at": header.CreatedAt,
					"checksum":   header.Checksum,
				})
			}
			fmt.Fprintf(out, "OK %s\n", source)
			fmt.Fprintf(out, "  Runs:     %d\n", header.RunCount)
			fmt.Fprintf(out, "  Created:  %s\n", header.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "  Checksum: %s\n", header.Checksum)
			return nil
		},
	}

	cmd.Flags().String("key", "", "Read the archive from the export destination")

	return cmd
}

// openArchive opens the file named in args, or the object under key at the
// export destination.
func openArchive(cmd *cobra.Command, cfg *config.Config, args []string, key string) (io.ReadCloser, string, error) {
	switch {
	case key != "" && len(args) > 0:
		return nil, "", fmt.Errorf("pass a file or --key, not both")
	case key != "":
		sink, err := openSink(cmd.Context(), cfg)
		if err != nil {
			return nil, "", err
		}
		r, err := sink.Get(cmd.Context(), key)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", key, err)
		}
		return r, destinationLabel(cfg.Export, key), nil
	case len(args) == 1:
		f, err := os.Open(args[0])
		if err != nil {
			return nil, "", fmt.Errorf("failed to open archive: %w", err)
		}
		return f, args[0], nil
	default:
		return nil, "", fmt.Errorf("pass an archive file or --key")
	}
}
