// Package store persists completed simulation runs so they can be listed,
// reloaded, and exported later.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/colonysim/internal/models"
	"github.com/nvandessel/colonysim/internal/sanitize"
)

// ErrNotFound is returned when no run has the requested ID.
var ErrNotFound = errors.New("run not found")

// RunRecord is a saved run: its identity plus the full result.
type RunRecord struct {
	ID        string                   `json:"id"`
	Name      string                   `json:"name"`
	CreatedAt time.Time                `json:"created_at"`
	Result    *models.SimulationResult `json:"result"`
}

// RunInfo is the listing view of a saved run.
type RunInfo struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"created_at"`
	DurationSteps int       `json:"duration_steps"`
	FinalSize     float64   `json:"final_size"`
	Warnings      int       `json:"warnings"`
}

// NewRecord wraps a result in a record with a fresh ID and timestamp.
func NewRecord(name string, result *models.SimulationResult) RunRecord {
	return RunRecord{
		ID:        uuid.NewString(),
		Name:      sanitize.Name(name),
		CreatedAt: now(),
		Result:    result,
	}
}

// Info derives the listing view of the record.
func (r RunRecord) Info() RunInfo {
	info := RunInfo{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt}
	if r.Result != nil {
		info.DurationSteps = r.Result.Parameters.DurationSteps
		info.FinalSize = r.Result.Summary.FinalSize
		info.Warnings = len(r.Result.Warnings)
	}
	return info
}

// RunStore defines the interface for saving and loading runs.
type RunStore interface {
	// Save stores the record, assigning an ID when it has none, and
	// returns the ID.
	Save(ctx context.Context, rec RunRecord) (string, error)

	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, id string) (*RunRecord, error)

	// List returns all runs, newest first.
	List(ctx context.Context) ([]RunInfo, error)

	// Delete removes the record or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	Close() error
}

// prepare fills in the ID and timestamp of a record about to be saved.
func prepare(rec RunRecord) (RunRecord, error) {
	if rec.Result == nil {
		return rec, errors.New("run record has no result")
	}
	rec.Name = sanitize.Name(rec.Name)
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	} else if _, err := uuid.Parse(rec.ID); err != nil {
		return rec, errors.New("run ID must be a UUID")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now()
	}
	return rec, nil
}
