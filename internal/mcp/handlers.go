package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/colonysim/internal/export"
	"github.com/nvandessel/colonysim/internal/models"
	"github.com/nvandessel/colonysim/internal/ratelimit"
	"github.com/nvandessel/colonysim/internal/sanitize"
	"github.com/nvandessel/colonysim/internal/simulation"
	"github.com/nvandessel/colonysim/internal/store"
)

// Tool names.
const (
	toolRun      = "colonysim_run"
	toolValidate = "colonysim_validate"
	toolCompare  = "colonysim_compare"
	toolRuns     = "colonysim_runs"
	toolDefaults = "colonysim_defaults"
	toolExport   = "colonysim_export"
)

// Export formats accepted by colonysim_export.
const (
	formatArchive = "archive"
	formatCSV     = "csv"
	formatJSON    = "json"
)

const (
	presetsURI     = "colonysim://presets"
	runURIPrefix   = "colonysim://runs/"
	maxScenarios   = 16
	maxExportedIDs = 256
)

// registerTools registers all colonysim MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        toolRun,
		Description: "Run a colony simulation from a preset and/or parameter overrides and return its summary",
	}, s.handleRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        toolValidate,
		Description: "Check the model against published outcomes: a stable unmanaged colony, 75% sterilization, and the AMH dose response",
	}, s.handleValidate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        toolCompare,
		Description: "Run several scenarios side by side and compare final size, growth and births",
	}, s.handleCompare)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        toolRuns,
		Description: "List, show or delete saved runs",
	}, s.handleRuns)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        toolDefaults,
		Description: "Show the default parameter set and the built-in presets",
	}, s.handleDefaults)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        toolExport,
		Description: "Export saved runs as a verified archive, or one run as CSV or JSON",
	}, s.handleExport)
}

// registerResources registers MCP resources clients can read directly.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         presetsURI,
		Name:        "colonysim-presets",
		Description: "Built-in scenarios with their descriptions and key parameters.",
		MIMEType:    "text/markdown",
	}, s.handlePresetsResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: runURIPrefix + "{id}",
		Name:        "colonysim-run",
		Description: "A saved run with its parameters, summary and warnings (snapshots omitted).",
		MIMEType:    "application/json",
	}, s.handleRunResource)
}

// resolveParams applies the overrides to the named preset.
func resolveParams(preset string, overrides map[string]any) (models.ParameterSet, error) {
	var overlay []byte
	if len(overrides) > 0 {
		data, err := json.Marshal(overrides)
		if err != nil {
			return models.ParameterSet{}, fmt.Errorf("encoding params: %w", err)
		}
		overlay = data
	}
	return simulation.ResolveParameters(preset, overlay)
}

func (s *Server) handleRun(ctx context.Context, req *sdk.CallToolRequest, args RunInput) (_ *sdk.CallToolResult, _ RunOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(toolRun, start, retErr, sanitizeToolParams(map[string]interface{}{
			"preset": args.Preset, "params": args.Params, "save": args.Save,
			"name": args.Name, "include_snapshots": args.IncludeSnapshots,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, toolRun); err != nil {
		return nil, RunOutput{}, err
	}

	params, err := resolveParams(args.Preset, args.Params)
	if err != nil {
		return nil, RunOutput{}, err
	}

	s.trace.Log(map[string]any{"event": "run_started", "source": "mcp", "preset": args.Preset, "duration_steps": params.DurationSteps})
	result, err := simulation.RunContext(ctx, params)
	if err != nil {
		return nil, RunOutput{}, fmt.Errorf("simulation failed: %w", err)
	}
	s.trace.Log(map[string]any{"event": "run_finished", "source": "mcp", "final_size": result.Summary.FinalSize, "warnings": len(result.Warnings)})

	out := RunOutput{
		Parameters: result.Parameters,
		Summary:    result.Summary,
		Warnings:   result.Warnings,
	}
	if args.IncludeSnapshots {
		out.Snapshots = result.Snapshots
	}

	sum := result.Summary
	out.Message = fmt.Sprintf("Colony went from %.1f to %.1f over %.1f years (peak %.1f, %d warnings)",
		sum.InitialSize, sum.FinalSize, sum.Years, sum.PeakSize, len(result.Warnings))

	if args.Save {
		id, err := s.runs.Save(ctx, store.NewRecord(args.Name, result))
		if err != nil {
			return nil, RunOutput{}, fmt.Errorf("saving run: %w", err)
		}
		out.ID = id
		out.Message += fmt.Sprintf("; saved as %s", id)
		s.logger.Info("saved run", "id", id, "source", "mcp")
	}

	return nil, out, nil
}

func (s *Server) handleValidate(ctx context.Context, req *sdk.CallToolRequest, args ValidateInput) (_ *sdk.CallToolResult, _ ValidateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(toolValidate, start, retErr, nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, toolValidate); err != nil {
		return nil, ValidateOutput{}, err
	}

	report, err := simulation.Validate(ctx)
	if err != nil {
		return nil, ValidateOutput{}, fmt.Errorf("validation failed: %w", err)
	}

	out := ValidateOutput{
		Passed:          report.Passed,
		Benchmarks:      make([]BenchmarkRow, len(report.Benchmarks)),
		DoseCoverages:   report.DoseResponse.Coverages,
		DoseFinalSizes:  report.DoseResponse.FinalSizes,
		DoseMonotone:    report.DoseResponse.NonIncreasing,
		DoseDiminishing: report.DoseResponse.Diminishing,
	}
	passed := 0
	for i, b := range report.Benchmarks {
		out.Benchmarks[i] = BenchmarkRow{
			Name:     b.Name,
			Target:   b.Target,
			Observed: b.Observed,
			Low:      b.Low,
			High:     b.High,
			Passed:   b.Passed,
		}
		if b.Passed {
			passed++
		}
	}
	out.Message = fmt.Sprintf("%d/%d benchmarks passed; dose response monotone=%v diminishing=%v",
		passed, len(report.Benchmarks), out.DoseMonotone, out.DoseDiminishing)

	return nil, out, nil
}

func (s *Server) handleCompare(ctx context.Context, req *sdk.CallToolRequest, args CompareInput) (_ *sdk.CallToolResult, _ CompareOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(toolCompare, start, retErr, sanitizeToolParams(map[string]interface{}{
			"scenarios": len(args.Scenarios),
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, toolCompare); err != nil {
		return nil, CompareOutput{}, err
	}

	if len(args.Scenarios) == 0 {
		return nil, CompareOutput{}, errors.New("at least one scenario is required")
	}
	if len(args.Scenarios) > maxScenarios {
		return nil, CompareOutput{}, fmt.Errorf("at most %d scenarios may be compared", maxScenarios)
	}

	scenarios := make([]simulation.Scenario, len(args.Scenarios))
	for i, in := range args.Scenarios {
		params, err := resolveParams(in.Preset, in.Params)
		if err != nil {
			return nil, CompareOutput{}, fmt.Errorf("scenario %d: %w", i+1, err)
		}
		name := sanitize.Name(in.Name)
		if name == "" {
			name = in.Preset
		}
		if name == "" {
			name = fmt.Sprintf("scenario-%d", i+1)
		}
		scenarios[i] = simulation.Scenario{Name: name, Params: params}
	}

	comparisons, err := simulation.Compare(ctx, scenarios, s.concurrency)
	if err != nil {
		return nil, CompareOutput{}, fmt.Errorf("comparison failed: %w", err)
	}

	out := CompareOutput{Rows: make([]ComparisonRow, len(comparisons))}
	smallest := 0
	for i, c := range comparisons {
		sum := c.Result.Summary
		out.Rows[i] = ComparisonRow{
			Name:             c.Name,
			InitialSize:      sum.InitialSize,
			FinalSize:        sum.FinalSize,
			PeakSize:         sum.PeakSize,
			AnnualGrowthRate: sum.AnnualGrowthRate,
			TotalBirths:      sum.TotalBirths,
			Warnings:         len(c.Result.Warnings),
		}
		if sum.FinalSize < out.Rows[smallest].FinalSize {
			smallest = i
		}
	}
	out.Message = fmt.Sprintf("Compared %d scenarios; smallest final colony: %s (%.1f)",
		len(out.Rows), out.Rows[smallest].Name, out.Rows[smallest].FinalSize)

	return nil, out, nil
}

func (s *Server) handleRuns(ctx context.Context, req *sdk.CallToolRequest, args RunsInput) (_ *sdk.CallToolResult, _ RunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(toolRuns, start, retErr, sanitizeToolParams(map[string]interface{}{
			"action": args.Action, "id": args.ID,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, toolRuns); err != nil {
		return nil, RunsOutput{}, err
	}

	switch args.Action {
	case "", "list":
		infos, err := s.runs.List(ctx)
		if err != nil {
			return nil, RunsOutput{}, fmt.Errorf("listing runs: %w", err)
		}
		return nil, RunsOutput{
			Runs:    infos,
			Count:   len(infos),
			Message: fmt.Sprintf("%d saved runs", len(infos)),
		}, nil

	case "get":
		if args.ID == "" {
			return nil, RunsOutput{}, errors.New("'id' is required for get")
		}
		rec, err := s.runs.Get(ctx, args.ID)
		if err != nil {
			return nil, RunsOutput{}, fmt.Errorf("run %s: %w", args.ID, err)
		}
		detail := runDetail(rec)
		return nil, RunsOutput{
			Run:     &detail,
			Count:   1,
			Message: fmt.Sprintf("Run %s: final size %.1f", rec.ID, rec.Result.Summary.FinalSize),
		}, nil

	case "delete":
		if args.ID == "" {
			return nil, RunsOutput{}, errors.New("'id' is required for delete")
		}
		if err := s.runs.Delete(ctx, args.ID); err != nil {
			return nil, RunsOutput{}, fmt.Errorf("run %s: %w", args.ID, err)
		}
		s.logger.Info("deleted run", "id", args.ID, "source", "mcp")
		return nil, RunsOutput{Count: 1, Message: fmt.Sprintf("Deleted run %s", args.ID)}, nil

	default:
		return nil, RunsOutput{}, fmt.Errorf("unknown action %q (valid: list, get, delete)", args.Action)
	}
}

func runDetail(rec *store.RunRecord) RunDetail {
	return RunDetail{
		ID:         rec.ID,
		Name:       rec.Name,
		CreatedAt:  rec.CreatedAt,
		Parameters: rec.Result.Parameters,
		Summary:    rec.Result.Summary,
		Warnings:   rec.Result.Warnings,
	}
}

func (s *Server) handleDefaults(ctx context.Context, req *sdk.CallToolRequest, args DefaultsInput) (_ *sdk.CallToolResult, _ DefaultsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(toolDefaults, start, retErr, nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, toolDefaults); err != nil {
		return nil, DefaultsOutput{}, err
	}

	presets := simulation.Presets()
	out := DefaultsOutput{Defaults: models.DefaultParameters()}
	for _, name := range simulation.PresetNames() {
		p := presets[name]
		out.Presets = append(out.Presets, PresetItem{Name: p.Name, Description: p.Description, Params: p.Params})
	}
	return nil, out, nil
}

func (s *Server) handleExport(ctx context.Context, req *sdk.CallToolRequest, args ExportInput) (_ *sdk.CallToolResult, _ ExportOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(toolExport, start, retErr, sanitizeToolParams(map[string]interface{}{
			"format": args.Format, "ids": len(args.IDs), "output_path": args.OutputPath, "keep": args.Keep,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, toolExport); err != nil {
		return nil, ExportOutput{}, err
	}

	format := args.Format
	if format == "" {
		format = formatArchive
	}
	switch format {
	case formatArchive, formatCSV, formatJSON:
	default:
		return nil, ExportOutput{}, fmt.Errorf("unknown format %q (valid: archive, csv, json)", format)
	}
	if format != formatArchive && len(args.IDs) != 1 {
		return nil, ExportOutput{}, fmt.Errorf("%s export takes exactly one run ID", format)
	}
	if len(args.IDs) > maxExportedIDs {
		return nil, ExportOutput{}, fmt.Errorf("at most %d runs may be exported at once", maxExportedIDs)
	}
	if args.Keep < 0 {
		return nil, ExportOutput{}, errors.New("keep must not be negative")
	}

	runs, err := export.Collect(ctx, s.runs, args.IDs)
	if err != nil {
		return nil, ExportOutput{}, err
	}

	var buf bytes.Buffer
	out := ExportOutput{Format: format, RunCount: len(runs)}
	var key, contentType string
	switch format {
	case formatArchive:
		header, err := export.WriteArchive(&buf, runs)
		if err != nil {
			return nil, ExportOutput{}, fmt.Errorf("writing archive: %w", err)
		}
		out.Checksum = header.Checksum
		key, contentType = export.ArchiveKey(time.Now()), "application/octet-stream"
	case formatCSV:
		if err := export.WriteCSV(&buf, runs[0].Result); err != nil {
			return nil, ExportOutput{}, fmt.Errorf("writing csv: %w", err)
		}
		key, contentType = runs[0].ID+".csv", "text/csv"
	case formatJSON:
		if err := export.WriteJSON(&buf, runs[0].Result); err != nil {
			return nil, ExportOutput{}, fmt.Errorf("writing json: %w", err)
		}
		key, contentType = runs[0].ID+".json", "application/json"
	}
	out.SizeBytes = int64(buf.Len())

	if args.OutputPath != "" {
		if s.guard == nil {
			return nil, ExportOutput{}, errors.New("output paths are disabled on this server")
		}
		path, err := s.guard.Check(args.OutputPath)
		if err != nil {
			return nil, ExportOutput{}, fmt.Errorf("output path rejected: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, ExportOutput{}, fmt.Errorf("creating output directory: %w", err)
		}
		if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
			return nil, ExportOutput{}, fmt.Errorf("writing export: %w", err)
		}
		out.Location = path
	} else {
		if s.sink == nil {
			return nil, ExportOutput{}, errors.New("no export destination configured; pass output_path")
		}
		info, err := s.sink.Put(ctx, key, bytes.NewReader(buf.Bytes()), contentType)
		if err != nil {
			return nil, ExportOutput{}, fmt.Errorf("uploading export: %w", err)
		}
		out.Location = info.Key
		if format == formatArchive && args.Keep > 0 {
			rotated, err := export.Rotate(ctx, s.sink, "", args.Keep)
			if err != nil {
				s.logger.Warn("archive rotation failed", "error", err)
			}
			out.Rotated = rotated
		}
	}

	out.Message = fmt.Sprintf("Exported %d run(s) as %s to %s (%d bytes)", out.RunCount, format, out.Location, out.SizeBytes)
	return nil, out, nil
}

// handlePresetsResource renders the built-in scenarios as markdown.
func (s *Server) handlePresetsResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	presets := simulation.Presets()

	var sb strings.Builder
	sb.WriteString("# Colony presets\n\n")
	for _, name := range simulation.PresetNames() {
		p := presets[name].Params
		fmt.Fprintf(&sb, "## %s\n\n%s\n\n", name, presets[name].Description)
		fmt.Fprintf(&sb, "- focal colony: %.0f (capacity %.0f)\n", p.FocalPopulation, p.FocalCapacity)
		fmt.Fprintf(&sb, "- neighborhood: %.0f (capacity %.0f)\n", p.NeighborhoodPopulation, p.NeighborhoodCapacity)
		if p.Control.Counts() {
			fmt.Fprintf(&sb, "- fertility control: %.0f sterilized, %.0f AMH, %.0f neutered males per application (%s)\n",
				p.Control.SterilizedFemales, p.Control.AMHFemales, p.Control.NeuteredMales, p.Control.Timing.Mode)
		} else {
			fmt.Fprintf(&sb, "- fertility control: sterilized %.0f%%, AMH %.0f%%, neutered males %.0f%% (%s)\n",
				p.Control.SterilizedFemales*100, p.Control.AMHFemales*100, p.Control.NeuteredMales*100, p.Control.Timing.Mode)
		}
		fmt.Fprintf(&sb, "- duration: %d steps (%.1f years)\n\n", p.DurationSteps, p.Years())
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      presetsURI,
				MIMEType: "text/markdown",
				Text:     sb.String(),
			},
		},
	}, nil
}

// handleRunResource returns a saved run without its snapshots.
func (s *Server) handleRunResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	if !strings.HasPrefix(uri, runURIPrefix) {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}
	id := strings.TrimPrefix(uri, runURIPrefix)
	if id == "" {
		return nil, errors.New("run ID is required")
	}

	rec, err := s.runs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", id, err)
	}
	data, err := json.MarshalIndent(runDetail(rec), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding run: %w", err)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}
