package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/colonysim/internal/config"
	"github.com/nvandessel/colonysim/internal/models"
	"github.com/nvandessel/colonysim/internal/simulation"
)

func newParamsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Inspect and check parameter sets",
		Long: `Print the default parameters or a preset as a starting point for a
parameter file, list the presets, and check a file before running it.

Examples:
  colonysim params show > colony.yaml
  colonysim params show boone2019-sterilization
  colonysim params presets
  colonysim params check colony.yaml`,
	}

	cmd.AddCommand(
		newParamsShowCmd(),
		newParamsPresetsCmd(),
		newParamsCheckCmd(),
	)

	return cmd
}

func newParamsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [preset]",
		Short: "Print the defaults or a preset as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			var name string
			if len(args) == 1 {
				name = args[0]
			}
			params, err := simulation.BaseParameters(name)
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(cmd.OutOrStdout(), params)
			}
			data, err := yaml.Marshal(params)
			if err != nil {
				return fmt.Errorf("failed to encode parameters: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newParamsPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the built-in scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			presets := simulation.Presets()
			names := simulation.PresetNames()
			out := cmd.OutOrStdout()

			if jsonOut {
				list := make([]simulation.Scenario, 0, len(names))
				for _, name := range names {
					list = append(list, presets[name])
				}
				return printJSON(out, map[string]interface{}{
					"presets": list,
					"count":   len(list),
				})
			}

			for _, name := range names {
				sc := presets[name]
				fmt.Fprintf(out, "%s\n  %s\n", sc.Name, sc.Description)
			}
			return nil
		},
	}
}

func newParamsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a parameter file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			params, err := config.LoadParameters(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			verr := params.Validate()
			var fields models.ValidationErrors
			if verr != nil && !errors.As(verr, &fields) {
				return verr
			}

			if jsonOut {
				if fields == nil {
					fields = models.ValidationErrors{}
				}
				if err := printJSON(out, map[string]interface{}{
					"file":   args[0],
					"valid":  len(fields) == 0,
					"errors": fields,
				}); err != nil {
					return err
				}
			} else if len(fields) == 0 {
				fmt.Fprintf(out, "%s: OK (%d steps)\n", args[0], params.DurationSteps)
			} else {
				fmt.Fprintf(out, "%s: %d problem(s)\n", args[0], len(fields))
				for _, f := range fields {
					fmt.Fprintf(out, "  %s: %s\n", f.Field, f.Reason)
				}
			}

			if len(fields) > 0 {
				return fmt.Errorf("invalid parameters in %s", args[0])
			}
			return nil
		},
	}
}
