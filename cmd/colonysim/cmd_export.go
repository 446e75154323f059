package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/colonysim/internal/config"
	"github.com/nvandessel/colonysim/internal/export"
)

const (
	formatArchive = "archive"
	formatCSV     = "csv"
	formatJSON    = "json"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [id...]",
		Short: "Export saved runs",
		Long: `Export saved runs to the configured destination or a local file.

The archive format bundles runs (all of them when no ID is given) into a
checksummed, compressed file that 'colonysim import' restores. The csv
and json formats export exactly one run. Without --out the export is
uploaded to the export destination (~/.colonysim/exports or S3);
--out - writes to stdout.

Examples:
  colonysim export
  colonysim export --keep 5
  colonysim export <id> --format csv --out east.csv
  colonysim export <id> --format json --out -
  colonysim export list
  colonysim export verify colonysim-20260101-120000.000.archive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			format, _ := cmd.Flags().GetString("format")
			outPath, _ := cmd.Flags().GetString("out")
			keep, _ := cmd.Flags().GetInt("keep")

			switch format {
			case formatArchive, formatCSV, formatJSON:
			default:
				return fmt.Errorf("unknown format %q (valid: archive, csv, json)", format)
			}
			if format != formatArchive && len(args) != 1 {
				return fmt.Errorf("%s export takes exactly one run ID", format)
			}
			if keep < 0 {
				return fmt.Errorf("--keep must not be negative")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			runs, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer runs.Close()

			records, err := export.Collect(ctx, runs, args)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("no saved runs to export")
			}

			var buf bytes.Buffer
			var key, contentType, checksum string
			switch format {
			case formatArchive:
				header, err := export.WriteArchive(&buf, records)
				if err != nil {
					return fmt.Errorf("failed to write archive: %w", err)
				}
				checksum = header.Checksum
				key, contentType = export.ArchiveKey(time.Now()), "application/octet-stream"
			case formatCSV:
				if err := export.WriteCSV(&buf, records[0].Result); err != nil {
					return fmt.Errorf("failed to write csv: %w", err)
				}
				key, contentType = records[0].ID+".csv", "text/csv"
			case formatJSON:
				if err := export.WriteJSON(&buf, records[0].Result); err != nil {
					return fmt.Errorf("failed to write json: %w", err)
				}
				key, contentType = records[0].ID+".json", "application/json"
			}

			if outPath == "-" {
				_, err := cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}

			size := int64(buf.Len())
			var location string
			var rotated []string
			if outPath != "" {
				if dir := filepath.Dir(outPath); dir != "." {
					if err := os.MkdirAll(dir, 0700); err != nil {
						return fmt.Errorf("failed to create output directory: %w", err)
					}
				}
				if err := os.WriteFile(outPath, buf.Bytes(), 0600); err != nil {
					return fmt.Errorf("failed to write export: %w", err)
				}
				location = outPath
			} else {
				sink, err := openSink(ctx, cfg)
				if err != nil {
					return err
				}
				info, err := sink.Put(ctx, key, bytes.NewReader(buf.Bytes()), contentType)
				if err != nil {
					return fmt.Errorf("failed to upload export: %w", err)
				}
				location = destinationLabel(cfg.Export, info.Key)
				if format == formatArchive && keep > 0 {
					rotated, err = export.Rotate(ctx, sink, "", keep)
					if err != nil {
						newLogger(cmd, cfg).Warn("archive rotation failed", "error", err)
					}
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				payload := map[string]interface{}{
					"location":   location,
					"format":     format,
					"run_count":  len(records),
					"size_bytes": size,
				}
				if checksum != "" {
					payload["checksum"] = checksum
				}
				if len(rotated) > 0 {
					payload["rotated"] = rotated
				}
				return printJSON(out, payload)
			}

			fmt.Fprintf(out, "Exported %d run(s) as %s to %s (%s)\n", len(records), format, location, humanize.Bytes(uint64(size)))
			if checksum != "" {
				fmt.Fprintf(out, "  Checksum: %s\n", checksum)
			}
			for _, k := range rotated {
				fmt.Fprintf(out, "  Rotated out: %s\n", k)
			}
			return nil
		},
	}

	cmd.Flags().String("format", formatArchive, "Export format: archive, csv, or json")
	cmd.Flags().String("out", "", "Write to this file instead of the export destination (- for stdout)")
	cmd.Flags().Int("keep", 0, "After an archive upload, keep only the newest N archives (0 = keep all)")

	cmd.AddCommand(
		newExportListCmd(),
		newExportVerifyCmd(),
	)

	return cmd
}

func openSink(ctx context.Context, cfg *config.Config) (export.Sink, error) {
	sink, err := export.OpenSink(ctx, cfg.Export)
	if err != nil {
		return nil, fmt.Errorf("failed to open export destination: %w", err)
	}
	return sink, nil
}

// destinationLabel names an uploaded object for humans.
func destinationLabel(cfg config.ExportConfig, key string) string {
	if cfg.Destination == config.ExportS3 {
		return "s3://" + cfg.S3.Bucket + "/" + key
	}
	return key
}
