package mcp

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"
)

func readAuditEntries(t *testing.T, path string) []AuditEntry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening audit log: %v", err)
	}
	defer f.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("parsing audit entry %q: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestAuditLogger_NilSafety(t *testing.T) {
	t.Run("nil logger Log is no-op", func(t *testing.T) {
		var logger *AuditLogger
		logger.Log(AuditEntry{Tool: "test"})
	})

	t.Run("nil logger Close is no-op", func(t *testing.T) {
		var logger *AuditLogger
		if err := logger.Close(); err != nil {
			t.Errorf("Close() on nil logger returned error: %v", err)
		}
	})
}

func TestAuditLogger_WritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.jsonl")
	logger := NewAuditLogger(path)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	defer logger.Close()

	logger.Log(AuditEntry{
		Timestamp:  time.Now(),
		Tool:       toolRun,
		DurationMs: 42,
		Status:     "success",
		Params:     map[string]string{"preset": "boone2019"},
	})
	logger.Log(AuditEntry{Timestamp: time.Now(), Tool: toolRuns, Status: "error", Error: "run not found"})

	entries := readAuditEntries(t, path)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Tool != toolRun || entries[0].DurationMs != 42 || entries[0].Params["preset"] != "boone2019" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Status != "error" || entries[1].Error != "run not found" {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}
}

func TestAuditLogger_AppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	first := NewAuditLogger(path)
	first.Log(AuditEntry{Tool: "one"})
	first.Close()

	second := NewAuditLogger(path)
	second.Log(AuditEntry{Tool: "two"})
	second.Close()

	if entries := readAuditEntries(t, path); len(entries) != 2 {
		t.Errorf("expected 2 entries after reopen, got %d", len(entries))
	}
}

func TestAuditLogger_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file permissions not enforced on Windows")
	}
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger := NewAuditLogger(path)
	defer logger.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat audit log: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("audit log permissions = %o, want 600", perm)
	}
}

func TestAuditLogger_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger := NewAuditLogger(path)
	defer logger.Close()

	const goroutines, perGoroutine = 10, 20
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perGoroutine {
				logger.Log(AuditEntry{Timestamp: time.Now(), Tool: toolDefaults, Status: "success"})
			}
		}()
	}
	wg.Wait()

	if entries := readAuditEntries(t, path); len(entries) != goroutines*perGoroutine {
		t.Errorf("expected %d entries, got %d", goroutines*perGoroutine, len(entries))
	}
}

func TestAuditLogger_LogAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger := NewAuditLogger(path)
	logger.Log(AuditEntry{Tool: "before"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	logger.Log(AuditEntry{Tool: "after"})

	if entries := readAuditEntries(t, path); len(entries) != 1 {
		t.Errorf("expected 1 entry, got %d", len(entries))
	}
}

func TestAuditLogger_NonFatalOnBadPath(t *testing.T) {
	// A regular file where the directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if logger := NewAuditLogger(filepath.Join(blocker, "audit.jsonl")); logger != nil {
		t.Error("expected nil logger for unusable path")
	}
}

func TestSanitizeToolParams(t *testing.T) {
	t.Run("safe values are included", func(t *testing.T) {
		result := sanitizeToolParams(map[string]interface{}{
			"preset":    "metapopulation",
			"save":      true,
			"scenarios": 3,
		})
		if result["preset"] != "metapopulation" {
			t.Errorf("preset = %q, want metapopulation", result["preset"])
		}
		if result["save"] != "true" {
			t.Errorf("save = %q, want true", result["save"])
		}
		if result["scenarios"] != "3" {
			t.Errorf("scenarios = %q, want 3", result["scenarios"])
		}
		if result["_param_count"] != "3" {
			t.Errorf("_param_count = %q, want 3", result["_param_count"])
		}
	})

	t.Run("free-form values are redacted", func(t *testing.T) {
		result := sanitizeToolParams(map[string]interface{}{
			"name":        "my private colony",
			"output_path": "/home/user/exports/run.csv",
			"params":      map[string]any{"litter_size": 4},
			"id":          "0b4c2f0e-9c39-4c2e-8d5e-2d7a1c3f9e11",
		})
		for _, key := range []string{"name", "output_path", "params", "id"} {
			if result[key] != "(set)" {
				t.Errorf("%s = %q, want (set)", key, result[key])
			}
		}
	})

	t.Run("empty free-form values are omitted", func(t *testing.T) {
		var noParams map[string]any
		result := sanitizeToolParams(map[string]interface{}{
			"name":   "",
			"params": noParams,
		})
		if _, ok := result["name"]; ok {
			t.Error("empty name should not be logged")
		}
		if _, ok := result["params"]; ok {
			t.Error("nil params should not be logged")
		}
	})

	t.Run("unknown params are excluded", func(t *testing.T) {
		result := sanitizeToolParams(map[string]interface{}{"malicious_param": "should not appear"})
		if _, ok := result["malicious_param"]; ok {
			t.Error("unknown param should not be included")
		}
		if result["_param_count"] != "1" {
			t.Errorf("_param_count = %q, want 1", result["_param_count"])
		}
	})

	t.Run("nil params returns nil", func(t *testing.T) {
		if result := sanitizeToolParams(nil); result != nil {
			t.Errorf("expected nil, got %v", result)
		}
	})
}

func TestAuditTool_Integration(t *testing.T) {
	server, env := setupTestServer(t)

	start := time.Now()
	time.Sleep(time.Millisecond)
	server.auditTool("colonysim_test", start, nil, map[string]string{"preset": "boone2019"})
	server.auditTool("colonysim_test", start, errors.New("boom"), nil)

	entries := readAuditEntries(t, env.auditPath)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Status != "success" || entries[0].DurationMs < 1 {
		t.Errorf("unexpected success entry: %+v", entries[0])
	}
	if entries[1].Status != "error" || entries[1].Error != "boom" {
		t.Errorf("unexpected error entry: %+v", entries[1])
	}
}
