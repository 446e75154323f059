package simulation

import (
	"testing"

	"github.com/nvandessel/colonysim/internal/models"
)

// Runner executes scenarios inside a test, failing the test on
// configuration errors.
type Runner struct {
	t *testing.T
}

// NewRunner creates a runner bound to t.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	return &Runner{t: t}
}

// Run executes the scenario and returns its result.
func (r *Runner) Run(scenario Scenario) *models.SimulationResult {
	r.t.Helper()
	result, err := Run(scenario.Params)
	if err != nil {
		r.t.Fatalf("scenario %s: %v", scenario.Name, err)
	}
	return result
}

// Sweep runs the scenario once per value, calling apply to vary the
// parameters, and returns the final focal size of each run.
func (r *Runner) Sweep(scenario Scenario, values []float64, apply func(p *models.ParameterSet, v float64)) []float64 {
	r.t.Helper()
	finals := make([]float64, len(values))
	for i, v := range values {
		sc := scenario
		apply(&sc.Params, v)
		finals[i] = r.Run(sc).Summary.FinalSize
	}
	return finals
}
