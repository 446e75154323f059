// Package logging provides leveled logging and run tracing for colonysim.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A RunTraceLogger for structured JSONL step traces (~/.colonysim/runs.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug for per-step logging.
// At this level the driver logs every compartment of every snapshot.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "error", "warn", "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "error":
		return slog.LevelError
	case "warn":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Label the custom trace level
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything. Used as the default
// when callers pass a nil logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// RunTraceLogger appends structured run events to a JSONL file.
// It is safe for concurrent use. A nil RunTraceLogger is safe to use;
// all methods are no-ops on nil receiver.
type RunTraceLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewRunTraceLogger creates a trace logger appending to path.
// At "info" level and above, returns nil and no file is created.
// At "debug" or "trace" level, the file is opened for append.
// Returns nil if the file cannot be opened. All methods are nil-safe.
func NewRunTraceLogger(path string, level string) *RunTraceLogger {
	if ParseLevel(level) >= slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &RunTraceLogger{file: f}
}

// Log writes an event as a single JSONL line.
// A "time" field is added automatically. The caller's map is not mutated.
// Safe to call on nil receiver.
func (rl *RunTraceLogger) Log(event map[string]any) {
	if rl == nil {
		return
	}

	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.file == nil {
		return
	}
	_, _ = rl.file.Write(data)
}

// Close closes the underlying file. Safe to call on nil receiver.
func (rl *RunTraceLogger) Close() {
	if rl == nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.file != nil {
		rl.file.Close()
		rl.file = nil
	}
}
