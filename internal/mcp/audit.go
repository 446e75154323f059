package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEntry represents a single audit log entry for an MCP tool invocation.
// It captures metadata about the call without including parameter payloads.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // "success" or "error"
	Error      string            `json:"error,omitempty"`
	Params     map[string]string `json:"params,omitempty"` // sanitized metadata only
}

// AuditLogger appends audit entries to a JSONL file. It is safe for
// concurrent use. A nil AuditLogger is safe to use; all methods are no-ops
// on a nil receiver.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewAuditLogger opens (or creates) the audit log at path with owner-only
// permissions. If the file cannot be opened a warning is printed to stderr
// and nil is returned; auditing is never fatal.
func NewAuditLogger(path string) *AuditLogger {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot create audit log directory %s: %v\n", filepath.Dir(path), err)
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open audit log %s: %v\n", path, err)
		return nil
	}
	return &AuditLogger{file: f}
}

// Log appends entry as a single JSON line.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return
	}
	_, _ = a.file.Write(data)
}

// Close closes the log file. Further calls to Log are dropped.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// sanitizeToolParams extracts safe metadata from tool parameters.
// It returns key names and non-sensitive value summaries, never content.
//
// Parameters are classified into three categories:
//   - Safe-value params: both key and value are safe to log (e.g., "preset", "save")
//   - Presence-only params: key is logged but value is replaced with "(set)"
//   - Unknown params: not logged at all
//
// A "_param_count" key is always included to indicate how many params were provided.
func sanitizeToolParams(params map[string]interface{}) map[string]string {
	if params == nil {
		return nil
	}

	safeValueParams := map[string]bool{
		"preset":            true,
		"save":              true,
		"include_snapshots": true,
		"action":            true,
		"format":            true,
		"keep":              true,
		"scenarios":         true, // logged as a count
		"ids":               true, // logged as a count
	}

	// Free-form values that may carry user text or local paths.
	presenceOnlyParams := map[string]bool{
		"name":        true,
		"id":          true,
		"params":      true,
		"output_path": true,
	}

	result := make(map[string]string)
	for key, val := range params {
		switch {
		case safeValueParams[key]:
			result[key] = fmt.Sprintf("%v", val)
		case presenceOnlyParams[key]:
			if isSet(val) {
				result[key] = "(set)"
			}
		}
	}
	result["_param_count"] = fmt.Sprintf("%d", len(params))
	return result
}

// isSet reports whether a parameter value carries anything.
func isSet(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

// auditTool logs a tool invocation to the audit log.
func (s *Server) auditTool(toolName string, start time.Time, err error, params map[string]string) {
	status := "success"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}

	s.auditLogger.Log(AuditEntry{
		Timestamp:  start,
		Tool:       toolName,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     status,
		Error:      errMsg,
		Params:     params,
	})
}
