package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/colonysim/internal/models"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// now is swapped in tests that need distinct, ordered timestamps.
var now = func() time.Time { return time.Now().UTC() }

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

// runRow is the database shape of a run.
type runRow struct {
	ID            string  `db:"id"`
	Name          string  `db:"name"`
	CreatedAt     string  `db:"created_at"`
	DurationSteps int     `db:"duration_steps"`
	FinalSize     float64 `db:"final_size"`
	WarningCount  int     `db:"warning_count"`
	Params        string  `db:"params"`
	Result        string  `db:"result"`
}

func (r runRow) info() (RunInfo, error) {
	created, err := time.Parse(timeLayout, r.CreatedAt)
	if err != nil {
		return RunInfo{}, fmt.Errorf("parsing created_at for run %s: %w", r.ID, err)
	}
	return RunInfo{
		ID:            r.ID,
		Name:          r.Name,
		CreatedAt:     created,
		DurationSteps: r.DurationSteps,
		FinalSize:     r.FinalSize,
		Warnings:      r.WarningCount,
	}, nil
}

// SQLRunStore implements RunStore over any sqlx database. The SQLite and
// Postgres constructors differ only in driver and connection settings.
type SQLRunStore struct {
	db *sqlx.DB
}

// NewSQLiteRunStore opens (creating if needed) a SQLite database at path.
func NewSQLiteRunStore(ctx context.Context, path string) (*SQLRunStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	return newSQLRunStore(ctx, db)
}

func newSQLRunStore(ctx context.Context, db *sqlx.DB) (*SQLRunStore, error) {
	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLRunStore{db: db}, nil
}

// Save stores a run, replacing any run with the same ID.
func (s *SQLRunStore) Save(ctx context.Context, rec RunRecord) (string, error) {
	rec, err := prepare(rec)
	if err != nil {
		return "", err
	}

	params, err := json.Marshal(rec.Result.Parameters)
	if err != nil {
		return "", fmt.Errorf("encoding parameters: %w", err)
	}
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}

	row := runRow{
		ID:            rec.ID,
		Name:          rec.Name,
		CreatedAt:     formatTime(rec.CreatedAt),
		DurationSteps: rec.Result.Parameters.DurationSteps,
		FinalSize:     rec.Result.Summary.FinalSize,
		WarningCount:  len(rec.Result.Warnings),
		Params:        string(params),
		Result:        string(result),
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM runs WHERE id = ?`), row.ID); err != nil {
		return "", fmt.Errorf("failed to replace run %s: %w", row.ID, err)
	}
	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO runs (id, name, created_at, duration_steps, final_size, warning_count, params, result)
		VALUES (:id, :name, :created_at, :duration_steps, :final_size, :warning_count, :params, :result)`, row); err != nil {
		return "", fmt.Errorf("failed to insert run %s: %w", row.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run %s: %w", row.ID, err)
	}
	return row.ID, nil
}

// Get retrieves a run by ID.
func (s *SQLRunStore) Get(ctx context.Context, id string) (*RunRecord, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT * FROM runs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}

	info, err := row.info()
	if err != nil {
		return nil, err
	}
	var result models.SimulationResult
	if err := json.Unmarshal([]byte(row.Result), &result); err != nil {
		return nil, fmt.Errorf("decoding result for run %s: %w", id, err)
	}
	return &RunRecord{ID: info.ID, Name: info.Name, CreatedAt: info.CreatedAt, Result: &result}, nil
}

// List returns all runs, newest first. Result documents are not loaded.
func (s *SQLRunStore) List(ctx context.Context) ([]RunInfo, error) {
	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, name, created_at, duration_steps, final_size, warning_count, '' AS params, '' AS result
		FROM runs ORDER BY created_at DESC, id`); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	out := make([]RunInfo, 0, len(rows))
	for _, row := range rows {
		info, err := row.info()
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// Delete removes a run.
func (s *SQLRunStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM runs WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database connection.
func (s *SQLRunStore) Close() error {
	return s.db.Close()
}
