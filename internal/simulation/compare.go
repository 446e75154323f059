package simulation

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/colonysim/internal/models"
)

// Comparison is one scenario's outcome in a side-by-side comparison.
type Comparison struct {
	Name   string                   `json:"name"`
	Result *models.SimulationResult `json:"result"`
}

// Compare runs each scenario independently and returns results in input
// order. Runs share no state, so they execute concurrently up to limit
// (GOMAXPROCS when limit <= 0).
func Compare(ctx context.Context, scenarios []Scenario, limit int) ([]Comparison, error) {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	out := make([]Comparison, len(scenarios))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, sc := range scenarios {
		g.Go(func() error {
			result, err := RunContext(ctx, sc.Params)
			if err != nil {
				return fmt.Errorf("scenario %q: %w", sc.Name, err)
			}
			out[i] = Comparison{Name: sc.Name, Result: result}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
