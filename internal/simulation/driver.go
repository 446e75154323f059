package simulation

import (
	"context"
	"fmt"
	"math"

	"github.com/nvandessel/colonysim/internal/constants"
	"github.com/nvandessel/colonysim/internal/demography"
	"github.com/nvandessel/colonysim/internal/metapop"
	"github.com/nvandessel/colonysim/internal/models"
)

// StepHook is called with each snapshot as it is appended, step 0 included.
type StepHook func(models.Snapshot)

// Option configures a run.
type Option func(*runOptions)

type runOptions struct {
	hook StepHook
}

// WithStepHook registers a callback invoked after every step.
func WithStepHook(h StepHook) Option {
	return func(o *runOptions) { o.hook = h }
}

// Run simulates params for their full duration. Invalid parameters are
// rejected with models.ValidationErrors before any step runs; every other
// anomaly is reported through the result's warnings.
func Run(params models.ParameterSet, opts ...Option) (*models.SimulationResult, error) {
	return RunContext(context.Background(), params, opts...)
}

// RunContext is Run with cancellation checked between steps. On cancellation
// the snapshots collected so far are returned with ctx.Err().
func RunContext(ctx context.Context, params models.ParameterSet, opts ...Option) (*models.SimulationResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}

	engine, err := demography.NewEngine(params)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	coupler := metapop.NewCoupler(params)

	focalPop := demography.Subpopulation{Name: models.Focal, Capacity: params.FocalCapacity, Managed: true}
	nbhPop := demography.Subpopulation{Name: models.Neighborhood, Capacity: params.NeighborhoodCapacity}

	result := &models.SimulationResult{
		Parameters: params,
		Snapshots:  make([]models.Snapshot, 0, params.DurationSteps+1),
		Warnings:   []models.Warning{},
	}

	focal := models.NewPopulationState(params.FocalPopulation, params.MaleFraction)
	nbh := models.NewPopulationState(params.NeighborhoodPopulation, params.MaleFraction)
	ceiling(result, 0, focalPop, &focal)
	ceiling(result, 0, nbhPop, &nbh)

	_, _, lastMonth := demography.StepMonths(params.StartMonth, 0)
	appendSnapshot(result, o.hook, models.Snapshot{Step: 0, Month: lastMonth, Focal: focal, Neighborhood: nbh})

	for step := 1; step <= params.DurationSteps; step++ {
		if err := ctx.Err(); err != nil {
			result.Summary = summarize(result)
			return result, err
		}

		var warnings []models.Warning
		focal, warnings = engine.Step(focal, step, focalPop)
		result.Warnings = append(result.Warnings, warnings...)
		nbh, warnings = engine.Step(nbh, step, nbhPop)
		result.Warnings = append(result.Warnings, warnings...)

		migration := coupler.Apply(&focal, &nbh)
		orphaned(result, step, models.Focal, migration.FocalOrphans)
		orphaned(result, step, models.Neighborhood, migration.NeighborhoodOrphans)

		ceiling(result, step, focalPop, &focal)
		ceiling(result, step, nbhPop, &nbh)

		_, _, month := demography.StepMonths(params.StartMonth, step)
		appendSnapshot(result, o.hook, models.Snapshot{
			Step:         step,
			Month:        month,
			Focal:        focal.Clone(),
			Neighborhood: nbh.Clone(),
			Migration:    migration,
		})
	}

	result.Summary = summarize(result)
	return result, nil
}

func appendSnapshot(result *models.SimulationResult, hook StepHook, snap models.Snapshot) {
	result.Snapshots = append(result.Snapshots, snap)
	if hook != nil {
		hook(snap)
	}
}

// ceiling enforces capacity outside the engine step, after initialization
// and after coupling, recording any corrective mortality.
func ceiling(result *models.SimulationResult, step int, pop demography.Subpopulation, s *models.PopulationState) {
	if s.Clamp() {
		result.Warnings = append(result.Warnings, models.Warning{
			Step: step, Population: pop.Name, Kind: models.WarningNumericAnomaly,
			Message: "negative count clamped to zero after migration",
		})
	}
	if lost := demography.ApplyCeiling(s, pop.Capacity); lost > 0 {
		result.Warnings = append(result.Warnings, models.Warning{
			Step: step, Population: pop.Name, Kind: models.WarningOverflowCeiling,
			Message: fmt.Sprintf("size exceeded capacity %.0f after migration; %.2f removed by overflow mortality", pop.Capacity, lost),
		})
	}
}

func orphaned(result *models.SimulationResult, step int, name string, n float64) {
	if n <= 0 {
		return
	}
	result.Warnings = append(result.Warnings, models.Warning{
		Step: step, Population: name, Kind: models.WarningOrphanedKittens,
		Message: fmt.Sprintf("%.2f newborns orphaned by departing mothers", n),
	})
}

func summarize(result *models.SimulationResult) models.Summary {
	var sum models.Summary
	if len(result.Snapshots) == 0 {
		return sum
	}
	first := result.Snapshots[0]
	last := result.Final()
	sum.Years = float64(last.Step) / constants.StepsPerYear
	sum.InitialSize = first.Focal.Size()
	sum.FinalSize = last.Focal.Size()
	sum.NetChange = sum.FinalSize - sum.InitialSize
	sum.NeighborhoodFinalSize = last.Neighborhood.Size()

	var exposed, weaned, arrivals, departures float64
	for _, snap := range result.Snapshots {
		sum.PeakSize = math.Max(sum.PeakSize, snap.Focal.Size())
		ev := snap.Focal.Events
		sum.TotalBirths += ev.Births
		sum.KittenDeaths += ev.KittenDeaths
		sum.AdultDeaths += ev.AdultDeaths
		sum.OverflowDeaths += ev.OverflowDeaths
		exposed += ev.KittensExposed
		weaned += ev.KittensWeaned

		mig := snap.Migration
		sum.OrphanedKittens += mig.FocalOrphans
		arrivals += mig.Arrivals + mig.Immigrants + mig.DispersedIn
		departures += mig.Removals + mig.DispersedOut
	}
	if exposed > 0 {
		sum.KittenSurvivalRate = weaned / exposed
	}
	if sum.Years > 0 {
		sum.ArrivalsPerYear = arrivals / sum.Years
		sum.DeparturesPerYear = departures / sum.Years
		if sum.InitialSize > 0 {
			sum.AnnualGrowthRate = math.Pow(sum.FinalSize/sum.InitialSize, 1/sum.Years) - 1
		}
	}
	return sum
}
