package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/colonysim/internal/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Manage saved runs",
		Long: `List, show and delete runs saved with 'colonysim run --save'.

Examples:
  colonysim runs list
  colonysim runs show <id>
  colonysim runs delete <id>`,
	}

	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsDeleteCmd(),
	)

	return cmd
}

func newRunsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runs, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer runs.Close()

			infos, err := runs.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if infos == nil {
					infos = []store.RunInfo{}
				}
				return printJSON(out, map[string]interface{}{
					"runs":  infos,
					"count": len(infos),
				})
			}

			if len(infos) == 0 {
				fmt.Fprintln(out, "No saved runs.")
				return nil
			}
			for _, info := range infos {
				fmt.Fprintf(out, "%s  %-24s  %4d steps  final %8.2f  %s",
					info.ID, info.Name, info.DurationSteps, info.FinalSize, humanize.Time(info.CreatedAt))
				if info.Warnings > 0 {
					fmt.Fprintf(out, "  (%d warnings)", info.Warnings)
				}
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "\n%d run(s)\n", len(infos))
			return nil
		},
	}
}

func newRunsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			withSnapshots, _ := cmd.Flags().GetBool("snapshots")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runs, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer runs.Close()

			rec, err := runs.Get(cmd.Context(), args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("run not found: %s", args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to load run: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				payload := map[string]interface{}{
					"id":         rec.ID,
					"name":       rec.Name,
					"created_at": rec.CreatedAt,
					"parameters": rec.Result.Parameters,
					"summary":    rec.Result.Summary,
					"warnings":   rec.Result.Warnings,
				}
				if withSnapshots {
					payload["snapshots"] = rec.Result.Snapshots
				}
				return printJSON(out, payload)
			}

			fmt.Fprintf(out, "Run %s\n", rec.ID)
			fmt.Fprintf(out, "Name:    %s\n", valueOrDefault(rec.Name, "(unnamed)"))
			fmt.Fprintf(out, "Saved:   %s (%s)\n\n", rec.CreatedAt.Format("2006-01-02 15:04:05"), humanize.Time(rec.CreatedAt))
			printSummary(out, rec.Result)
			return nil
		},
	}

	cmd.Flags().Bool("snapshots", false, "Include every snapshot in --json output")

	return cmd
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runs, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer runs.Close()

			if err := runs.Delete(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("run not found: %s", args[0])
				}
				return fmt.Errorf("failed to delete run: %w", err)
			}

			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]string{"status": "deleted", "id": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
			return nil
		},
	}
}
