package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/colonysim/internal/config"
	"github.com/nvandessel/colonysim/internal/export"
	"github.com/nvandessel/colonysim/internal/models"
	"github.com/nvandessel/colonysim/internal/simulation"
	"github.com/nvandessel/colonysim/internal/store"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulation",
		Long: `Run the colony model and print its summary.

Parameters start from the defaults (or --preset), then the --params file
is applied over them, then each --set. Keys use the parameter file's
names; nested fields use dots.

Examples:
  colonysim run
  colonysim run --preset boone2019-sterilization
  colonysim run --params colony.yaml --set duration_steps=120
  colonysim run --set control.amh_females=0.5 --set control.timing.mode=one-time
  colonysim run --set control.unit=count --set control.sterilized_females=5 --set control.timing.every=2
  colonysim run --save --name "east lot" --csv east.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			preset, _ := cmd.Flags().GetString("preset")
			paramsFile, _ := cmd.Flags().GetString("params")
			sets, _ := cmd.Flags().GetStringArray("set")
			save, _ := cmd.Flags().GetBool("save")
			name, _ := cmd.Flags().GetString("name")
			csvPath, _ := cmd.Flags().GetString("csv")
			outPath, _ := cmd.Flags().GetString("out")
			withSnapshots, _ := cmd.Flags().GetBool("snapshots")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)

			if paramsFile == "" && preset == "" {
				paramsFile = cfg.Simulation.ParamsFile
			}
			params, err := resolveRunParams(preset, paramsFile, sets)
			if err != nil {
				return err
			}

			trace := openTrace(cfg)
			defer trace.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			var opts []simulation.Option
			if trace != nil {
				opts = append(opts, simulation.WithStepHook(func(s models.Snapshot) {
					trace.Log(map[string]any{
						"event":             "step",
						"step":              s.Step,
						"month":             s.Month,
						"focal_size":        s.Focal.Size(),
						"neighborhood_size": s.Neighborhood.Size(),
						"births":            s.Focal.Events.Births,
					})
				}))
			}

			logger.Debug("starting run", "preset", preset, "params_file", paramsFile, "duration_steps", params.DurationSteps)
			result, err := simulation.RunContext(ctx, params, opts...)
			if err != nil {
				return fmt.Errorf("simulation failed: %w", err)
			}
			logger.Debug("run finished", "final_size", result.Summary.FinalSize, "warnings", len(result.Warnings))

			var id string
			if save {
				runs, err := openStore(ctx, cfg)
				if err != nil {
					return err
				}
				defer runs.Close()
				if name == "" {
					name = valueOrDefault(preset, "run")
				}
				id, err = runs.Save(ctx, store.NewRecord(name, result))
				if err != nil {
					return fmt.Errorf("failed to save run: %w", err)
				}
			}

			if csvPath != "" {
				if err := writeResultFile(csvPath, result, export.WriteCSV); err != nil {
					return err
				}
			}
			if outPath != "" {
				if err := writeResultFile(outPath, result, export.WriteJSON); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				payload := map[string]interface{}{
					"parameters": result.Parameters,
					"summary":    result.Summary,
					"warnings":   result.Warnings,
				}
				if id != "" {
					payload["id"] = id
				}
				if withSnapshots {
					payload["snapshots"] = result.Snapshots
				}
				return printJSON(out, payload)
			}

			printSummary(out, result)
			if id != "" {
				fmt.Fprintf(out, "\nSaved run %s\n", id)
			}
			if csvPath != "" {
				fmt.Fprintf(out, "Wrote time series to %s\n", csvPath)
			}
			if outPath != "" {
				fmt.Fprintf(out, "Wrote result to %s\n", outPath)
			}
			return nil
		},
	}

	cmd.Flags().String("preset", "", "Start from a built-in scenario (see 'colonysim params presets')")
	cmd.Flags().String("params", "", "YAML or JSON parameter file applied over the preset")
	cmd.Flags().StringArray("set", nil, "Override one parameter as key=value (repeatable)")
	cmd.Flags().Bool("save", false, "Save the run to the run store")
	cmd.Flags().String("name", "", "Name for the saved run")
	cmd.Flags().String("csv", "", "Write the per-step time series as CSV to this file")
	cmd.Flags().String("out", "", "Write the full result as JSON to this file")
	cmd.Flags().Bool("snapshots", false, "Include every snapshot in --json output")

	return cmd
}

// resolveRunParams layers the preset, the parameter file and the --set
// overrides, in that order.
func resolveRunParams(preset, paramsFile string, sets []string) (models.ParameterSet, error) {
	base, err := simulation.BaseParameters(preset)
	if err != nil {
		return base, err
	}
	params, err := config.LoadParametersOver(base, paramsFile)
	if err != nil {
		return params, err
	}
	if len(sets) == 0 {
		return params, nil
	}
	overrides, err := parseSetFlags(sets)
	if err != nil {
		return params, err
	}
	overlay, err := json.Marshal(overrides)
	if err != nil {
		return params, fmt.Errorf("encoding overrides: %w", err)
	}
	return simulation.ApplyOverlay(params, overlay)
}

// parseSetFlags turns key=value pairs into a nested map. Values are parsed
// as YAML scalars, so numbers and booleans keep their types.
func parseSetFlags(sets []string) (map[string]any, error) {
	root := map[string]any{}
	for _, kv := range sets {
		key, raw, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: want key=value", kv)
		}

		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", key, err)
		}

		parts := strings.Split(key, ".")
		node := root
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}
	return root, nil
}

// writeResultFile writes result to path with the given encoder.
func writeResultFile(path string, result *models.SimulationResult, write func(io.Writer, *models.SimulationResult) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f, result); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// printSummary prints the run summary and its warnings.
func printSummary(w io.Writer, result *models.SimulationResult) {
	s := result.Summary
	fmt.Fprintf(w, "Simulated %d steps (%.1f years)\n\n", result.Parameters.DurationSteps, s.Years)
	fmt.Fprintf(w, "  Initial size:        %.2f\n", s.InitialSize)
	fmt.Fprintf(w, "  Final size:          %.2f\n", s.FinalSize)
	fmt.Fprintf(w, "  Peak size:           %.2f\n", s.PeakSize)
	fmt.Fprintf(w, "  Net change:          %+.2f\n", s.NetChange)
	fmt.Fprintf(w, "  Annual growth rate:  %+.1f%%\n", s.AnnualGrowthRate*100)
	fmt.Fprintf(w, "  Total births:        %.2f\n", s.TotalBirths)
	fmt.Fprintf(w, "  Kitten survival:     %.1f%%\n", s.KittenSurvivalRate*100)
	fmt.Fprintf(w, "  Arrivals per year:   %.2f\n", s.ArrivalsPerYear)
	fmt.Fprintf(w, "  Departures per year: %.2f\n", s.DeparturesPerYear)
	fmt.Fprintf(w, "  Neighborhood final:  %.2f\n", s.NeighborhoodFinalSize)

	if len(result.Warnings) == 0 {
		return
	}
	fmt.Fprintf(w, "\nWarnings (%d):\n", len(result.Warnings))
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "  step %d [%s] %s: %s\n", warn.Step, warn.Population, warn.Kind, warn.Message)
	}
}
