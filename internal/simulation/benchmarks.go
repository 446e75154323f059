package simulation

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/colonysim/internal/models"
)

// Benchmark is a literature outcome the model is validated against.
type Benchmark struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Target      float64             `json:"target"`
	Tolerance   float64             `json:"tolerance"` // relative to Target
	Params      models.ParameterSet `json:"-"`
}

// Band returns the accepted [low, high] range of final focal sizes.
func (b Benchmark) Band() (float64, float64) {
	return b.Target * (1 - b.Tolerance), b.Target * (1 + b.Tolerance)
}

// BenchmarkResult is a benchmark with its observed outcome.
type BenchmarkResult struct {
	Benchmark
	Observed float64 `json:"observed"`
	Low      float64 `json:"low"`
	High     float64 `json:"high"`
	Passed   bool    `json:"passed"`
}

// DoseResponse is the final focal size at increasing AMH coverage.
type DoseResponse struct {
	Coverages     []float64 `json:"coverages"`
	FinalSizes    []float64 `json:"final_sizes"`
	NonIncreasing bool      `json:"non_increasing"`
	Diminishing   bool      `json:"diminishing"`
}

// ValidationReport collects every benchmark outcome.
type ValidationReport struct {
	Benchmarks   []BenchmarkResult `json:"benchmarks"`
	DoseResponse DoseResponse      `json:"dose_response"`
	Passed       bool              `json:"passed"`
}

// DoseResponseCapacity is the focal capacity for the AMH sweep. At the
// baseline capacity the ceiling absorbs most of the reduction.
const DoseResponseCapacity = 200

// Benchmarks returns the published outcomes: a stable unmanaged colony of
// 50, and the same colony shrinking toward 21 under 75% sterilization.
func Benchmarks() []Benchmark {
	presets := Presets()
	return []Benchmark{
		{
			Name:        "baseline",
			Description: "No intervention, colony of 50 over 10 years",
			Target:      50,
			Tolerance:   0.10,
			Params:      presets[PresetBaseline].Params,
		},
		{
			Name:        "sterilization-75",
			Description: "75% of females sterilized over 10 years",
			Target:      21,
			Tolerance:   0.40,
			Params:      presets[PresetSterilization].Params,
		},
	}
}

// DoseCoverages are the AMH coverages swept by the dose-response check.
var DoseCoverages = []float64{0, 0.2, 0.4, 0.6, 0.8}

// Validate runs every benchmark and the AMH dose-response sweep concurrently.
func Validate(ctx context.Context) (*ValidationReport, error) {
	benchmarks := Benchmarks()
	report := &ValidationReport{
		Benchmarks: make([]BenchmarkResult, len(benchmarks)),
		DoseResponse: DoseResponse{
			Coverages:  DoseCoverages,
			FinalSizes: make([]float64, len(DoseCoverages)),
		},
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, b := range benchmarks {
		g.Go(func() error {
			result, err := RunContext(ctx, b.Params)
			if err != nil {
				return fmt.Errorf("benchmark %s: %w", b.Name, err)
			}
			low, high := b.Band()
			observed := result.Summary.FinalSize
			report.Benchmarks[i] = BenchmarkResult{
				Benchmark: b,
				Observed:  observed,
				Low:       low,
				High:      high,
				Passed:    observed >= low && observed <= high,
			}
			return nil
		})
	}
	for i, coverage := range DoseCoverages {
		g.Go(func() error {
			params := models.DefaultParameters()
			params.FocalCapacity = DoseResponseCapacity
			params.Control.AMHFemales = coverage
			result, err := RunContext(ctx, params)
			if err != nil {
				return fmt.Errorf("dose response at %.0f%%: %w", coverage*100, err)
			}
			report.DoseResponse.FinalSizes[i] = result.Summary.FinalSize
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dr := &report.DoseResponse
	dr.NonIncreasing = true
	for i := 1; i < len(dr.FinalSizes); i++ {
		if dr.FinalSizes[i] > dr.FinalSizes[i-1] {
			dr.NonIncreasing = false
		}
	}
	n := len(dr.FinalSizes)
	if n >= 3 {
		first := dr.FinalSizes[0] - dr.FinalSizes[1]
		last := dr.FinalSizes[n-2] - dr.FinalSizes[n-1]
		dr.Diminishing = last < first && !math.IsNaN(last)
	}

	report.Passed = dr.NonIncreasing && dr.Diminishing
	for _, b := range report.Benchmarks {
		report.Passed = report.Passed && b.Passed
	}
	return report, nil
}
