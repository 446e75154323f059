package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/nvandessel/colonysim/internal/config"
)

// DefaultDBPath returns the SQLite database used when none is configured.
// On Unix: ~/.colonysim/runs.db
func DefaultDBPath() (string, error) {
	dir, err := config.HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "runs.db"), nil
}

// Open returns the RunStore selected by cfg.
func Open(ctx context.Context, cfg config.StoreConfig) (RunStore, error) {
	switch cfg.Driver {
	case config.StoreMemory:
		return NewInMemoryRunStore(), nil
	case config.StorePostgres:
		return NewPostgresRunStore(ctx, cfg.DSN)
	case config.StoreSQLite, "":
		path := cfg.Path
		if path == "" {
			p, err := DefaultDBPath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		return NewSQLiteRunStore(ctx, path)
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}
