package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/colonysim/internal/simulation"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the model against published outcomes",
		Long: `Run the reference scenarios and check each final size against its
accepted band: a stable unmanaged colony, 75% sterilization, and the AMH
dose response, which must fall with coverage at a diminishing rate.

Exits non-zero when any check fails.

Examples:
  colonysim validate
  colonysim validate --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			report, err := simulation.Validate(cmd.Context())
			if err != nil {
				return fmt.Errorf("validation run failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if err := printJSON(out, report); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, "Benchmarks:")
				for _, b := range report.Benchmarks {
					fmt.Fprintf(out, "  [%s] %-28s observed %7.2f  band [%.2f, %.2f]\n",
						passLabel(b.Passed), b.Name, b.Observed, b.Low, b.High)
				}
				fmt.Fprintln(out)
				fmt.Fprintf(out, "AMH dose response (capacity %d):\n", simulation.DoseResponseCapacity)
				for i, coverage := range report.DoseResponse.Coverages {
					fmt.Fprintf(out, "  %3.0f%%  %7.2f\n", coverage*100, report.DoseResponse.FinalSizes[i])
				}
				fmt.Fprintf(out, "  [%s] non-increasing\n", passLabel(report.DoseResponse.NonIncreasing))
				fmt.Fprintf(out, "  [%s] diminishing returns\n", passLabel(report.DoseResponse.Diminishing))
				fmt.Fprintln(out)
			}

			if !report.Passed {
				return errors.New("validation failed")
			}
			if !jsonOut {
				fmt.Fprintln(out, "All checks passed.")
			}
			return nil
		},
	}
}

func passLabel(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}
