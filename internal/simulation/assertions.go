package simulation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"testing"

	"github.com/nvandessel/colonysim/internal/models"
)

const partitionTolerance = 1e-9

// balanceTolerance is relative to the expected total.
const balanceTolerance = 1e-9

// AssertFinalWithin asserts that the final focal size lies in [min, max].
func AssertFinalWithin(t *testing.T, result *models.SimulationResult, min, max float64) {
	t.Helper()
	got := result.Summary.FinalSize
	if got < min || got > max {
		t.Errorf("AssertFinalWithin: final focal size %.3f not in [%.2f, %.2f] (trajectory: %v)", got, min, max, rounded(result.FocalSizes()))
	}
}

// AssertNonNegative asserts that every count in every snapshot is >= 0.
func AssertNonNegative(t *testing.T, result *models.SimulationResult) {
	t.Helper()
	for _, snap := range result.Snapshots {
		for name, s := range map[string]models.PopulationState{models.Focal: snap.Focal, models.Neighborhood: snap.Neighborhood} {
			values := []float64{s.IntactMales, s.NeuteredMales, s.NonBreeding, s.Estrus, s.Pregnant, s.Sterilized, s.AMH}
			for _, c := range s.Cohorts {
				values = append(values, c.Females, c.Males)
			}
			for _, v := range values {
				if v < 0 || math.IsNaN(v) {
					t.Errorf("AssertNonNegative: step %d: %s has count %v", snap.Step, name, v)
				}
			}
		}
	}
}

// AssertPopulationBalance asserts that every individual is accounted for:
// each snapshot's total equals the previous total plus births and arrivals,
// minus deaths, departures and orphaned newborns, in both subpopulations.
func AssertPopulationBalance(t *testing.T, result *models.SimulationResult) {
	t.Helper()
	for _, problem := range balanceErrors(result) {
		t.Errorf("AssertPopulationBalance: %s", problem)
	}
}

// balanceErrors returns one message per subpopulation and step whose
// recorded flows do not explain the change in total.
func balanceErrors(result *models.SimulationResult) []string {
	var problems []string
	check := func(step int, name string, prev, cur models.PopulationState, inflow, outflow float64) {
		ev := cur.Events
		want := prev.Total() + ev.Births - ev.Deaths() + inflow - outflow
		if tol := balanceTolerance * math.Max(1, want); math.Abs(cur.Total()-want) > tol {
			problems = append(problems, fmt.Sprintf("step %d: %s total %.6f, flows account for %.6f", step, name, cur.Total(), want))
		}
	}
	for i := 1; i < len(result.Snapshots); i++ {
		prev, cur := result.Snapshots[i-1], result.Snapshots[i]
		m := cur.Migration
		check(cur.Step, models.Focal, prev.Focal, cur.Focal,
			m.Arrivals+m.DispersedIn+m.Immigrants,
			m.Removals+m.DispersedOut+m.FocalOrphans)
		check(cur.Step, models.Neighborhood, prev.Neighborhood, cur.Neighborhood,
			m.DispersedOut,
			m.DispersedIn+m.Immigrants+m.NeighborhoodOrphans)
	}
	return problems
}

// AssertWithinCapacity asserts that no snapshot's independent size exceeds
// its subpopulation's carrying capacity.
func AssertWithinCapacity(t *testing.T, result *models.SimulationResult) {
	t.Helper()
	p := result.Parameters
	for _, snap := range result.Snapshots {
		if snap.Focal.Size() > p.FocalCapacity+partitionTolerance {
			t.Errorf("AssertWithinCapacity: step %d: focal size %.3f > capacity %.0f", snap.Step, snap.Focal.Size(), p.FocalCapacity)
		}
		if snap.Neighborhood.Size() > p.NeighborhoodCapacity+partitionTolerance {
			t.Errorf("AssertWithinCapacity: step %d: neighborhood size %.3f > capacity %.0f", snap.Step, snap.Neighborhood.Size(), p.NeighborhoodCapacity)
		}
	}
}

// AssertNonIncreasing asserts that each value is <= the one before it.
func AssertNonIncreasing(t *testing.T, values []float64) {
	t.Helper()
	for i := 1; i < len(values); i++ {
		if values[i] > values[i-1]+partitionTolerance {
			t.Errorf("AssertNonIncreasing: value %d (%.4f) > value %d (%.4f): %v", i, values[i], i-1, values[i-1], rounded(values))
		}
	}
}

// AssertDiminishing asserts that the last step-to-step reduction is smaller
// than the first.
func AssertDiminishing(t *testing.T, values []float64) {
	t.Helper()
	if len(values) < 3 {
		t.Fatalf("AssertDiminishing: need at least 3 values, got %d", len(values))
	}
	first := values[0] - values[1]
	last := values[len(values)-2] - values[len(values)-1]
	if last >= first {
		t.Errorf("AssertDiminishing: last reduction %.4f >= first reduction %.4f: %v", last, first, rounded(values))
	}
}

// AssertDeterministic runs params twice and asserts the JSON encodings match
// byte for byte.
func AssertDeterministic(t *testing.T, params models.ParameterSet) {
	t.Helper()
	encode := func() []byte {
		result, err := Run(params)
		if err != nil {
			t.Fatalf("AssertDeterministic: %v", err)
		}
		data, err := json.Marshal(result)
		if err != nil {
			t.Fatalf("AssertDeterministic: marshal: %v", err)
		}
		return data
	}
	a, b := encode(), encode()
	if !bytes.Equal(a, b) {
		t.Errorf("AssertDeterministic: two runs produced different results (%d vs %d bytes)", len(a), len(b))
	}
}

// AssertWarning asserts that at least one warning of kind was recorded.
func AssertWarning(t *testing.T, result *models.SimulationResult, kind models.WarningKind) {
	t.Helper()
	if len(result.WarningsOf(kind)) == 0 {
		t.Errorf("AssertWarning: no %s warning among %d warnings", kind, len(result.Warnings))
	}
}

func rounded(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Round(v*10) / 10
	}
	return out
}
