// Package pathutil confines file writes requested by agents and API clients
// to known export directories.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/colonysim/internal/config"
)

// ErrOutsideAllowed is returned for paths that resolve outside every allowed directory.
var ErrOutsideAllowed = errors.New("path is outside allowed directories")

// RedactPath reduces a full path to .../<parent>/<basename> for safe error messages.
// For example, "/home/user/.colonysim/exports/run.csv" becomes ".../exports/run.csv".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(cleaned)
	}
	return ".../" + parent + "/" + filepath.Base(cleaned)
}

// Guard accepts only paths inside its directories, after symlinks are resolved.
type Guard struct {
	dirs []string
}

// NewGuard returns a guard over dirs. Empty entries are ignored.
func NewGuard(dirs ...string) (*Guard, error) {
	g := &Guard{}
	for _, d := range dirs {
		if d == "" {
			continue
		}
		abs, err := filepath.Abs(filepath.Clean(d))
		if err != nil {
			return nil, fmt.Errorf("resolving allowed directory: %w", err)
		}
		resolved, err := resolveExisting(abs)
		if err != nil {
			return nil, err
		}
		g.dirs = append(g.dirs, resolved)
	}
	if len(g.dirs) == 0 {
		return nil, errors.New("no allowed directories configured")
	}
	return g, nil
}

// NewExportGuard allows ~/.colonysim/exports plus the configured
// filesystem export directory.
func NewExportGuard(cfg config.ExportConfig) (*Guard, error) {
	home, err := config.HomeDir()
	if err != nil {
		return nil, err
	}
	return NewGuard(filepath.Join(home, "exports"), cfg.Dir)
}

// Dirs returns the resolved allowed directories.
func (g *Guard) Dirs() []string {
	return append([]string(nil), g.dirs...)
}

// Check returns the absolute, symlink-resolved form of path, or an error
// if it escapes every allowed directory. The file itself need not exist.
func (g *Guard) Check(path string) (string, error) {
	if path == "" {
		return "", errors.New("path is empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return "", errors.New("path contains null byte")
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	dir, err := resolveExisting(filepath.Dir(abs))
	if err != nil {
		return "", err
	}
	resolved := filepath.Join(dir, filepath.Base(abs))

	for _, allowed := range g.dirs {
		if within(resolved, allowed) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrOutsideAllowed, RedactPath(abs))
}

// resolveExisting evaluates symlinks on the deepest existing ancestor of
// dir and re-appends the missing tail.
func resolveExisting(dir string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return resolved, nil
	}
	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(dir))
	}
	resolvedParent, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(dir)), nil
}

// within reports whether path is base or below it. "/tmp/foo" is not within "/tmp/fo".
func within(path, base string) bool {
	return path == base || strings.HasPrefix(path, base+string(os.PathSeparator))
}
