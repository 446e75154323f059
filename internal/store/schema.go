package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// schemaV1 is the initial schema. It is portable across SQLite and
// Postgres: JSON documents are kept as TEXT and timestamps as fixed-width
// RFC 3339 strings so they sort lexically.
var schemaV1 = []string{
	`CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    duration_steps INTEGER NOT NULL,
    final_size DOUBLE PRECISION NOT NULL,
    warning_count INTEGER NOT NULL DEFAULT 0,
    params TEXT NOT NULL,   -- JSON ParameterSet
    result TEXT NOT NULL    -- JSON SimulationResult
)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	`CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
)`,
}

// InitSchema initializes the database schema.
// It creates all tables and applies migrations as needed.
func InitSchema(ctx context.Context, db *sqlx.DB) error {
	currentVersion, err := getSchemaVersion(ctx, db)
	if err != nil {
		// Schema version table doesn't exist yet, create fresh schema
		if err := createSchema(ctx, db); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return nil
	}

	if currentVersion < SchemaVersion {
		if err := migrateSchema(ctx, db, currentVersion); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	return nil
}

// getSchemaVersion returns the current schema version from the database.
// Returns 0 and an error if the schema_version table doesn't exist.
func getSchemaVersion(ctx context.Context, db *sqlx.DB) (int, error) {
	var version int
	if err := db.GetContext(ctx, &version, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return 0, err
	}
	return version, nil
}

// createSchema creates the initial database schema.
func createSchema(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schemaV1 {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`),
		SchemaVersion, formatTime(now())); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return tx.Commit()
}

// migrateSchema applies migrations from currentVersion to SchemaVersion.
func migrateSchema(ctx context.Context, db *sqlx.DB, currentVersion int) error {
	// Only one version so far.
	_ = ctx
	_ = db
	_ = currentVersion
	return nil
}

// ResetSchema drops all tables and recreates the schema.
// Only use for testing.
func ResetSchema(ctx context.Context, db *sqlx.DB) error {
	for _, table := range []string{"runs", "schema_version"} {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return InitSchema(ctx, db)
}
