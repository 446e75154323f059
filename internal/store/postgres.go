package store

import (
	"context"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/jmoiron/sqlx"
)

// NewPostgresRunStore connects to Postgres at dsn and applies the schema.
func NewPostgresRunStore(ctx context.Context, dsn string) (*SQLRunStore, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return newSQLRunStore(ctx, db)
}
