package mcp

import (
	"time"

	"github.com/nvandessel/colonysim/internal/models"
	"github.com/nvandessel/colonysim/internal/store"
)

// RunInput defines the input for the colonysim_run tool.
type RunInput struct {
	Preset           string         `json:"preset,omitempty" jsonschema:"Preset to start from (see colonysim_defaults); defaults are used when empty"`
	Params           map[string]any `json:"params,omitempty" jsonschema:"Parameter overrides applied over the preset, using the field names of colonysim_defaults"`
	Save             bool           `json:"save,omitempty" jsonschema:"Persist the run so it can be listed and exported later"`
	Name             string         `json:"name,omitempty" jsonschema:"Label for a saved run"`
	IncludeSnapshots bool           `json:"include_snapshots,omitempty" jsonschema:"Return the per-step snapshots as well as the summary"`
}

// RunOutput defines the output for the colonysim_run tool.
type RunOutput struct {
	ID         string              `json:"id,omitempty" jsonschema:"ID of the saved run"`
	Parameters models.ParameterSet `json:"parameters" jsonschema:"Resolved parameters the run used"`
	Summary    models.Summary      `json:"summary" jsonschema:"Aggregate outcome of the run"`
	Warnings   []models.Warning    `json:"warnings" jsonschema:"Numerical anomalies corrected during the run"`
	Snapshots  []models.Snapshot   `json:"snapshots,omitempty" jsonschema:"Per-step population states, when requested"`
	Message    string              `json:"message" jsonschema:"Human-readable result message"`
}

// ValidateInput defines the input for the colonysim_validate tool.
type ValidateInput struct{}

// BenchmarkRow is one literature benchmark and its observed outcome.
type BenchmarkRow struct {
	Name     string  `json:"name"`
	Target   float64 `json:"target"`
	Observed float64 `json:"observed"`
	Low      float64 `json:"low"`
	High     float64 `json:"high"`
	Passed   bool    `json:"passed"`
}

// ValidateOutput defines the output for the colonysim_validate tool.
type ValidateOutput struct {
	Passed          bool           `json:"passed" jsonschema:"Whether every benchmark and the dose-response check passed"`
	Benchmarks      []BenchmarkRow `json:"benchmarks" jsonschema:"Final colony size against each published target"`
	DoseCoverages   []float64      `json:"dose_coverages" jsonschema:"AMH coverages swept"`
	DoseFinalSizes  []float64      `json:"dose_final_sizes" jsonschema:"Final focal size at each AMH coverage"`
	DoseMonotone    bool           `json:"dose_monotone" jsonschema:"Final size never rises with coverage"`
	DoseDiminishing bool           `json:"dose_diminishing" jsonschema:"Marginal reduction shrinks at high coverage"`
	Message         string         `json:"message" jsonschema:"Human-readable summary"`
}

// ScenarioInput names one parameter set in a comparison.
type ScenarioInput struct {
	Name   string         `json:"name,omitempty" jsonschema:"Label for the scenario"`
	Preset string         `json:"preset,omitempty" jsonschema:"Preset to start from"`
	Params map[string]any `json:"params,omitempty" jsonschema:"Parameter overrides applied over the preset"`
}

// CompareInput defines the input for the colonysim_compare tool.
type CompareInput struct {
	Scenarios []ScenarioInput `json:"scenarios" jsonschema:"Scenarios to run side by side"`
}

// ComparisonRow is one scenario's headline numbers.
type ComparisonRow struct {
	Name             string  `json:"name"`
	InitialSize      float64 `json:"initial_size"`
	FinalSize        float64 `json:"final_size"`
	PeakSize         float64 `json:"peak_size"`
	AnnualGrowthRate float64 `json:"annual_growth_rate"`
	TotalBirths      float64 `json:"total_births"`
	Warnings         int     `json:"warnings"`
}

// CompareOutput defines the output for the colonysim_compare tool.
type CompareOutput struct {
	Rows    []ComparisonRow `json:"rows" jsonschema:"One row per scenario, in input order"`
	Message string          `json:"message" jsonschema:"Human-readable summary"`
}

// RunsInput defines the input for the colonysim_runs tool.
type RunsInput struct {
	Action string `json:"action,omitempty" jsonschema:"One of list, get or delete (default: list)"`
	ID     string `json:"id,omitempty" jsonschema:"Run ID for get and delete"`
}

// RunsOutput defines the output for the colonysim_runs tool.
type RunsOutput struct {
	Runs    []store.RunInfo `json:"runs,omitempty" jsonschema:"Saved runs, newest first"`
	Run     *RunDetail      `json:"run,omitempty" jsonschema:"The requested run"`
	Count   int             `json:"count" jsonschema:"Number of runs returned or deleted"`
	Message string          `json:"message" jsonschema:"Human-readable result message"`
}

// RunDetail is a saved run without its snapshots.
type RunDetail struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	CreatedAt  time.Time           `json:"created_at"`
	Parameters models.ParameterSet `json:"parameters"`
	Summary    models.Summary      `json:"summary"`
	Warnings   []models.Warning    `json:"warnings"`
}

// DefaultsInput defines the input for the colonysim_defaults tool.
type DefaultsInput struct{}

// PresetItem describes one built-in scenario.
type PresetItem struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Params      models.ParameterSet `json:"params"`
}

// DefaultsOutput defines the output for the colonysim_defaults tool.
type DefaultsOutput struct {
	Defaults models.ParameterSet `json:"defaults" jsonschema:"Built-in parameter set"`
	Presets  []PresetItem        `json:"presets" jsonschema:"Built-in scenarios"`
}

// ExportInput defines the input for the colonysim_export tool.
type ExportInput struct {
	Format     string   `json:"format,omitempty" jsonschema:"archive, csv or json (default: archive)"`
	IDs        []string `json:"ids,omitempty" jsonschema:"Runs to export; an archive of every saved run when empty. csv and json take exactly one"`
	OutputPath string   `json:"output_path,omitempty" jsonschema:"File to write, inside an allowed export directory; the configured export destination is used when empty"`
	Keep       int      `json:"keep,omitempty" jsonschema:"After writing an archive to the export destination, keep only this many newest archives (0 keeps all)"`
}

// ExportOutput defines the output for the colonysim_export tool.
type ExportOutput struct {
	Location  string   `json:"location" jsonschema:"Path or destination key written"`
	Format    string   `json:"format"`
	RunCount  int      `json:"run_count"`
	SizeBytes int64    `json:"size_bytes"`
	Checksum  string   `json:"checksum,omitempty" jsonschema:"sha256 of the archive payload"`
	Rotated   []string `json:"rotated,omitempty" jsonschema:"Old archives removed by rotation"`
	Message   string   `json:"message"`
}
