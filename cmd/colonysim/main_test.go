package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/colonysim/internal/config"
	"github.com/nvandessel/colonysim/internal/models"
	"github.com/nvandessel/colonysim/internal/simulation"
)

// isolateHome points HOME at a temp directory so stores, exports and the
// config file never touch the real ~/.colonysim/.
// MUST be called for any test that opens a store or writes config.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(home, 0700); err != nil {
		t.Fatalf("Failed to create temp home: %v", err)
	}
	t.Setenv("HOME", home)
	for _, key := range []string{
		"COLONYSIM_LOG_LEVEL", "COLONYSIM_STORE_DRIVER", "COLONYSIM_STORE_PATH",
		"COLONYSIM_EXPORT_DESTINATION", "COLONYSIM_EXPORT_DIR", "COLONYSIM_PARAMS_FILE",
	} {
		t.Setenv(key, "")
	}
	return home
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd := newRootCmd()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// mustExecute is execute that fails the test on error.
func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("colonysim %s: %v\noutput: %s", strings.Join(args, " "), err, out)
	}
	return out
}

func decodeJSON(t *testing.T, data string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(data), v); err != nil {
		t.Fatalf("failed to decode JSON output: %v\n%s", err, data)
	}
}

func TestVersionCmd(t *testing.T) {
	out := mustExecute(t, "version")
	if !strings.Contains(out, "colonysim version "+version) {
		t.Errorf("unexpected version output: %q", out)
	}

	var got map[string]string
	decodeJSON(t, mustExecute(t, "version", "--json"), &got)
	if got["version"] != version {
		t.Errorf("version = %q, want %q", got["version"], version)
	}
}

func TestParseSetFlags(t *testing.T) {
	tests := []struct {
		name    string
		sets    []string
		want    string
		wantErr bool
	}{
		{"number", []string{"litter_size=4"}, `{"litter_size":4}`, false},
		{"nested", []string{"control.timing.mode=one-time", "control.timing.start=3"}, `{"control":{"timing":{"mode":"one-time","start":3}}}`, false},
		{"float", []string{"control.amh_females=0.5"}, `{"control":{"amh_females":0.5}}`, false},
		{"value with equals", []string{"name=a=b"}, `{"name":"a=b"}`, false},
		{"later wins", []string{"duration_steps=12", "duration_steps=24"}, `{"duration_steps":24}`, false},
		{"missing equals", []string{"litter_size"}, "", true},
		{"empty key", []string{"=4"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSetFlags(tt.sets)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseSetFlags(%v) expected error", tt.sets)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSetFlags(%v): %v", tt.sets, err)
			}
			data, err := json.Marshal(got)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.want {
				t.Errorf("parseSetFlags(%v) = %s, want %s", tt.sets, data, tt.want)
			}
		})
	}
}

func TestResolveRunParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colony.yaml")
	if err := os.WriteFile(path, []byte("focal_capacity: 80\nduration_steps: 36\n"), 0600); err != nil {
		t.Fatal(err)
	}

	params, err := resolveRunParams(simulation.PresetSterilization, path, []string{"duration_steps=12"})
	if err != nil {
		t.Fatalf("resolveRunParams: %v", err)
	}

	sc, _ := simulation.Preset(simulation.PresetSterilization)
	if params.Control != sc.Params.Control {
		t.Errorf("preset control lost: %+v", params.Control)
	}
	if params.FocalCapacity != 80 {
		t.Errorf("FocalCapacity = %v, want 80 from the file", params.FocalCapacity)
	}
	if params.DurationSteps != 12 {
		t.Errorf("DurationSteps = %d, want 12 from --set", params.DurationSteps)
	}

	if _, err := resolveRunParams("", "", []string{"litter_sise=4"}); err == nil {
		t.Error("expected error for unknown parameter")
	}
	if _, err := resolveRunParams("nope", "", nil); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestRunCmd(t *testing.T) {
	isolateHome(t)

	out := mustExecute(t, "run", "--set", "duration_steps=12")
	for _, want := range []string{"Simulated 12 steps", "Final size:", "Total births:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	var result struct {
		ID         string              `json:"id"`
		Parameters models.ParameterSet `json:"parameters"`
		Summary    models.Summary      `json:"summary"`
		Snapshots  []models.Snapshot   `json:"snapshots"`
	}
	decodeJSON(t, mustExecute(t, "run", "--preset", simulation.PresetBaseline, "--set", "duration_steps=12", "--snapshots", "--json"), &result)
	if result.Parameters.DurationSteps != 12 {
		t.Errorf("DurationSteps = %d, want 12", result.Parameters.DurationSteps)
	}
	if len(result.Snapshots) != 13 {
		t.Errorf("expected 13 snapshots, got %d", len(result.Snapshots))
	}
	if result.Summary.InitialSize != 50 {
		t.Errorf("InitialSize = %v, want 50", result.Summary.InitialSize)
	}
	if result.ID != "" {
		t.Error("unsaved run should have no ID")
	}
}

func TestRunCmd_Errors(t *testing.T) {
	isolateHome(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"invalid value", []string{"run", "--set", "litter_size=-1"}, "litter_size"},
		{"malformed set", []string{"run", "--set", "litter_size"}, "key=value"},
		{"unknown preset", []string{"run", "--preset", "nope"}, "unknown preset"},
		{"missing params file", []string{"run", "--params", "/nonexistent/params.yaml"}, "parameter file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestRunCmd_WritesFiles(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "run.csv")
	jsonPath := filepath.Join(dir, "out", "run.json")

	mustExecute(t, "run", "--set", "duration_steps=6", "--csv", csvPath, "--out", jsonPath)

	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 8 {
		t.Errorf("expected header plus 7 rows, got %d lines", lines)
	}

	data, err = os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("reading json: %v", err)
	}
	var result models.SimulationResult
	decodeJSON(t, string(data), &result)
	if len(result.Snapshots) != 7 {
		t.Errorf("expected 7 snapshots, got %d", len(result.Snapshots))
	}
}

func TestRunsLifecycle(t *testing.T) {
	isolateHome(t)

	var saved struct {
		ID string `json:"id"`
	}
	decodeJSON(t, mustExecute(t, "run", "--set", "duration_steps=6", "--save", "--name", "north <b>lot</b>", "--json"), &saved)
	if saved.ID == "" {
		t.Fatal("expected an ID for a saved run")
	}

	var list struct {
		Runs []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"runs"`
		Count int `json:"count"`
	}
	decodeJSON(t, mustExecute(t, "runs", "list", "--json"), &list)
	if list.Count != 1 || list.Runs[0].ID != saved.ID {
		t.Fatalf("unexpected run list: %+v", list)
	}
	if list.Runs[0].Name != "north lot" {
		t.Errorf("Name = %q, want sanitized %q", list.Runs[0].Name, "north lot")
	}

	if out := mustExecute(t, "runs", "list"); !strings.Contains(out, saved.ID) || !strings.Contains(out, "1 run(s)") {
		t.Errorf("unexpected list output:\n%s", out)
	}

	out := mustExecute(t, "runs", "show", saved.ID)
	if !strings.Contains(out, "north lot") || !strings.Contains(out, "Simulated 6 steps") {
		t.Errorf("unexpected show output:\n%s", out)
	}

	mustExecute(t, "runs", "delete", saved.ID)

	if _, err := execute(t, "runs", "show", saved.ID); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found after delete, got %v", err)
	}
	if _, err := execute(t, "runs", "delete", saved.ID); err == nil {
		t.Error("expected error deleting a missing run")
	}
	if out := mustExecute(t, "runs", "list"); !strings.Contains(out, "No saved runs") {
		t.Errorf("expected empty list, got:\n%s", out)
	}
}

func TestValidateCmd(t *testing.T) {
	var report simulation.ValidationReport
	decodeJSON(t, mustExecute(t, "validate", "--json"), &report)
	if !report.Passed {
		t.Errorf("expected validation to pass: %+v", report)
	}

	out := mustExecute(t, "validate")
	if !strings.Contains(out, "All checks passed.") || strings.Contains(out, "FAIL") {
		t.Errorf("unexpected validate output:\n%s", out)
	}
}

func TestCompareCmd(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "small-lot.yaml")
	if err := os.WriteFile(path, []byte("focal_population: 20\nfocal_capacity: 20\nduration_steps: 12\n"), 0600); err != nil {
		t.Fatal(err)
	}

	var got struct {
		Scenarios []struct {
			Name    string         `json:"name"`
			Summary models.Summary `json:"summary"`
		} `json:"scenarios"`
		Count int `json:"count"`
	}
	decodeJSON(t, mustExecute(t, "compare", simulation.PresetBaseline, path, "--concurrency", "2", "--json"), &got)
	if got.Count != 2 {
		t.Fatalf("expected 2 scenarios, got %d", got.Count)
	}
	if got.Scenarios[0].Name != simulation.PresetBaseline || got.Scenarios[1].Name != "small-lot" {
		t.Errorf("unexpected names: %q, %q", got.Scenarios[0].Name, got.Scenarios[1].Name)
	}
	if got.Scenarios[1].Summary.InitialSize != 20 {
		t.Errorf("file scenario InitialSize = %v, want 20", got.Scenarios[1].Summary.InitialSize)
	}

	out := mustExecute(t, "compare", simulation.PresetBaseline, simulation.PresetSterilization)
	if !strings.Contains(out, simulation.PresetSterilization) || !strings.Contains(out, "births") {
		t.Errorf("unexpected compare table:\n%s", out)
	}

	if _, err := execute(t, "compare", "no-such-preset-or-file"); err == nil {
		t.Error("expected error for unknown scenario")
	}
	if _, err := execute(t, "compare"); err == nil {
		t.Error("expected error with no scenarios")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	home := isolateHome(t)

	var saved struct {
		ID string `json:"id"`
	}
	decodeJSON(t, mustExecute(t, "run", "--set", "duration_steps=4", "--save", "--json"), &saved)

	var exported struct {
		Location string `json:"location"`
		RunCount int    `json:"run_count"`
		Checksum string `json:"checksum"`
	}
	decodeJSON(t, mustExecute(t, "export", "--json"), &exported)
	if exported.RunCount != 1 || !strings.HasPrefix(exported.Checksum, "sha256:") {
		t.Fatalf("unexpected export result: %+v", exported)
	}
	if _, err := os.Stat(filepath.Join(home, ".colonysim", "exports", exported.Location)); err != nil {
		t.Fatalf("archive not written to the export directory: %v", err)
	}

	var listed struct {
		TotalCount int `json:"total_count"`
	}
	decodeJSON(t, mustExecute(t, "export", "list", "--json"), &listed)
	if listed.TotalCount != 1 {
		t.Errorf("expected 1 exported object, got %d", listed.TotalCount)
	}

	if out := mustExecute(t, "export", "verify", "--key", exported.Location); !strings.Contains(out, "OK") {
		t.Errorf("unexpected verify output:\n%s", out)
	}

	mustExecute(t, "runs", "delete", saved.ID)

	var imported struct {
		Imported int `json:"imported"`
	}
	decodeJSON(t, mustExecute(t, "import", "--key", exported.Location, "--json"), &imported)
	if imported.Imported != 1 {
		t.Errorf("Imported = %d, want 1", imported.Imported)
	}
	if out := mustExecute(t, "runs", "show", saved.ID); !strings.Contains(out, "Simulated 4 steps") {
		t.Errorf("imported run not restored:\n%s", out)
	}
}

func TestExportCmd_Formats(t *testing.T) {
	isolateHome(t)

	var saved struct {
		ID string `json:"id"`
	}
	decodeJSON(t, mustExecute(t, "run", "--set", "duration_steps=4", "--save", "--json"), &saved)

	out := mustExecute(t, "export", saved.ID, "--format", "csv", "--out", "-")
	if !strings.HasPrefix(out, "step,month") {
		t.Errorf("expected CSV on stdout, got:\n%s", out)
	}

	path := filepath.Join(t.TempDir(), "run.archive")
	mustExecute(t, "export", saved.ID, "--out", path)
	if out := mustExecute(t, "export", "verify", path); !strings.Contains(out, "Runs:     1") {
		t.Errorf("unexpected verify output:\n%s", out)
	}

	if err := os.WriteFile(path, []byte("not an archive\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "export", "verify", path); err == nil {
		t.Error("expected verification failure for a corrupt archive")
	}

	errCases := [][]string{
		{"export", "--format", "xml"},
		{"export", "--format", "csv"},
		{"export", "--keep", "-1"},
		{"export", "missing-id"},
		{"export", "verify"},
	}
	for _, args := range errCases {
		if _, err := execute(t, args...); err == nil {
			t.Errorf("colonysim %s: expected error", strings.Join(args, " "))
		}
	}
}

func TestParamsCmds(t *testing.T) {
	out := mustExecute(t, "params", "show")
	if !strings.Contains(out, "litter_size:") || !strings.Contains(out, "control:") {
		t.Errorf("expected YAML parameters, got:\n%s", out)
	}

	var params models.ParameterSet
	decodeJSON(t, mustExecute(t, "params", "show", simulation.PresetSterilization, "--json"), &params)
	sc, _ := simulation.Preset(simulation.PresetSterilization)
	if params != sc.Params {
		t.Error("params show --json should print the preset parameters")
	}

	out = mustExecute(t, "params", "presets")
	for _, name := range simulation.PresetNames() {
		if !strings.Contains(out, name) {
			t.Errorf("presets output missing %s", name)
		}
	}

	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	if err := os.WriteFile(good, []byte(mustExecute(t, "params", "show")), 0600); err != nil {
		t.Fatal(err)
	}
	if out := mustExecute(t, "params", "check", good); !strings.Contains(out, "OK") {
		t.Errorf("expected OK, got:\n%s", out)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("litter_size: -2\nmale_fraction: 1.5\n"), 0600); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "params", "check", bad, "--json")
	if err == nil {
		t.Fatal("expected error for invalid parameters")
	}
	var report struct {
		Valid  bool                 `json:"valid"`
		Errors []models.ConfigError `json:"errors"`
	}
	decodeJSON(t, out, &report)
	if report.Valid || len(report.Errors) < 2 {
		t.Errorf("expected at least 2 field errors, got %+v", report)
	}

	typo := filepath.Join(dir, "typo.yaml")
	if err := os.WriteFile(typo, []byte("control:\n  sterilised_females: 0.75\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "params", "check", typo); err == nil || !strings.Contains(err.Error(), "sterilised_females") {
		t.Errorf("expected unknown field error naming sterilised_females, got %v", err)
	}
}

func TestConfigCmds(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	mustExecute(t, "--config", path, "config", "set", "store.driver", "memory")
	mustExecute(t, "--config", path, "config", "set", "server.rate_limit", "2.5")
	mustExecute(t, "--config", path, "config", "set", "export.s3.secret_access_key", "abcd1234efgh5678")

	if out := mustExecute(t, "--config", path, "config", "get", "store.driver"); strings.TrimSpace(out) != "store.driver = memory" {
		t.Errorf("unexpected get output: %q", out)
	}

	var got struct {
		Value string `json:"value"`
	}
	decodeJSON(t, mustExecute(t, "--config", path, "config", "get", "export.s3.secret_access_key", "--json"), &got)
	if got.Value != "abcd...5678" {
		t.Errorf("secret should be redacted, got %q", got.Value)
	}

	out := mustExecute(t, "--config", path, "config", "list")
	if strings.Contains(out, "abcd1234efgh5678") {
		t.Error("config list leaked the secret")
	}
	if !strings.Contains(out, "server.rate_limit:") || !strings.Contains(out, "2.5") {
		t.Errorf("unexpected list output:\n%s", out)
	}

	cfg, err := config.LoadRaw(path)
	if err != nil {
		t.Fatalf("LoadRaw: %v", err)
	}
	if cfg.Store.Driver != config.StoreMemory || cfg.Server.RateLimit != 2.5 {
		t.Errorf("config not saved: %+v", cfg)
	}

	mustExecute(t, "--config", path, "config", "set", "server.trusted_proxies", "10.0.0.0/8, 127.0.0.1")
	if out := mustExecute(t, "--config", path, "config", "get", "server.trusted_proxies"); strings.TrimSpace(out) != "server.trusted_proxies = 10.0.0.0/8,127.0.0.1" {
		t.Errorf("unexpected trusted proxies: %q", out)
	}

	errCases := [][]string{
		{"config", "set", "server.trusted_proxies", "lb.internal"},
		{"config", "set", "no.such.key", "x"},
		{"config", "set", "server.burst", "many"},
		{"config", "set", "store.driver", "mysql"},
		{"config", "get", "no.such.key"},
	}
	for _, args := range errCases {
		if _, err := execute(t, append([]string{"--config", path}, args...)...); err == nil {
			t.Errorf("colonysim %s: expected error", strings.Join(args, " "))
		}
	}
}

func TestConfigSet_DoesNotPersistEnvironment(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("COLONYSIM_SERVER_ADDR", "0.0.0.0:9999")

	mustExecute(t, "--config", path, "config", "set", "server.burst", "3")

	cfg, err := config.LoadRaw(path)
	if err != nil {
		t.Fatalf("LoadRaw: %v", err)
	}
	if cfg.Server.Addr != config.Default().Server.Addr {
		t.Errorf("environment override was written to the file: %s", cfg.Server.Addr)
	}
	if cfg.Server.Burst != 3 {
		t.Errorf("Burst = %d, want 3", cfg.Server.Burst)
	}
}
