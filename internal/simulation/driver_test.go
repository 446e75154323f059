package simulation_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/nvandessel/colonysim/internal/constants"
	"github.com/nvandessel/colonysim/internal/models"
	"github.com/nvandessel/colonysim/internal/simulation"
)

// TestBaselineColonyIsStable reproduces the unmanaged field colony: 50 cats at
// capacity with 10 arrivals and 10 removals a year stay near 50 for 10 years.
func TestBaselineColonyIsStable(t *testing.T) {
	sc, _ := simulation.Preset(simulation.PresetBaseline)
	result := simulation.NewRunner(t).Run(sc)

	simulation.AssertFinalWithin(t, result, 45, 55)
	simulation.AssertNonNegative(t, result)
	simulation.AssertPopulationBalance(t, result)
	simulation.AssertWithinCapacity(t, result)

	if got := len(result.Snapshots); got != 21 {
		t.Fatalf("expected 21 snapshots (step 0..20), got %d", got)
	}
	sizes := result.FocalSizes()
	for i, s := range sizes {
		if s < 45 {
			t.Errorf("step %d: size %.2f dropped below 45", i, s)
		}
	}
}

// TestSterilizationShrinksColony: 75% of females sterilized and topped up
// every step brings the colony toward the documented 21.
func TestSterilizationShrinksColony(t *testing.T) {
	sc, _ := simulation.Preset(simulation.PresetSterilization)
	result := simulation.NewRunner(t).Run(sc)

	simulation.AssertFinalWithin(t, result, 12.6, 29.4)
	simulation.AssertNonNegative(t, result)
	simulation.AssertPopulationBalance(t, result)

	sizes := result.FocalSizes()
	simulation.AssertNonIncreasing(t, sizes[2:])
}

func TestOneTimeSterilizationDilutes(t *testing.T) {
	sc, _ := simulation.Preset(simulation.PresetSterilization)
	sc.Params.Control.Timing = models.Timing{Mode: models.TimingOneTime, Start: 1}
	once := simulation.NewRunner(t).Run(sc)

	recurring, _ := simulation.Preset(simulation.PresetSterilization)
	every := simulation.NewRunner(t).Run(recurring)

	if once.Summary.FinalSize <= every.Summary.FinalSize {
		t.Errorf("one-time sterilization (%.2f) should leave a larger colony than recurring (%.2f)",
			once.Summary.FinalSize, every.Summary.FinalSize)
	}
	// Marked females are never returned to the breeding pool.
	for i := 1; i < len(once.Snapshots); i++ {
		prev, cur := once.Snapshots[i-1].Focal, once.Snapshots[i].Focal
		if cur.Sterilized > prev.Sterilized+1e-9 && i > 1 {
			t.Errorf("step %d: sterilized grew from %.3f to %.3f after the one-time intervention", i, prev.Sterilized, cur.Sterilized)
		}
	}
}

func TestSterilizationMonotonicity(t *testing.T) {
	r := simulation.NewRunner(t)
	sc, _ := simulation.Preset(simulation.PresetBaseline)

	finals := r.Sweep(sc, []float64{0, 0.25, 0.5, 0.75, 1}, func(p *models.ParameterSet, v float64) {
		p.Control.SterilizedFemales = v
	})

	simulation.AssertNonIncreasing(t, finals)
	if finals[len(finals)-1] >= finals[0] {
		t.Errorf("full sterilization should shrink the colony: %v", finals)
	}
}

// TestAMHDoseResponse sweeps AMH coverage 0-80% at capacity 200, where the
// ceiling does not absorb the reduction.
func TestAMHDoseResponse(t *testing.T) {
	r := simulation.NewRunner(t)
	sc, _ := simulation.Preset(simulation.PresetBaseline)
	sc.Params.FocalCapacity = simulation.DoseResponseCapacity

	finals := r.Sweep(sc, simulation.DoseCoverages, func(p *models.ParameterSet, v float64) {
		p.Control.AMHFemales = v
	})

	simulation.AssertNonIncreasing(t, finals)
	simulation.AssertDiminishing(t, finals)
}

func TestFullNeuteringStopsBirths(t *testing.T) {
	sc, _ := simulation.Preset(simulation.PresetBaseline)
	sc.Params.Control.NeuteredMales = 1
	result := simulation.NewRunner(t).Run(sc)

	if result.Summary.TotalBirths > 1e-6 {
		t.Errorf("expected no births with every male neutered each step, got %.4f", result.Summary.TotalBirths)
	}
	if result.Summary.FinalSize >= result.Summary.InitialSize {
		t.Errorf("colony without births should shrink, got %.2f -> %.2f", result.Summary.InitialSize, result.Summary.FinalSize)
	}
}

// TestCountCoverage treats a fixed number of animals once a year instead of
// topping up a fraction.
func TestCountCoverage(t *testing.T) {
	sc, _ := simulation.Preset(simulation.PresetBaseline)
	sc.Params.Control = models.FertilityControl{
		Unit:              models.UnitCount,
		SterilizedFemales: 5,
		NeuteredMales:     5,
		Timing:            models.Timing{Mode: models.TimingRecurring, Start: 2, Every: 2},
	}
	result := simulation.NewRunner(t).Run(sc)

	simulation.AssertNonNegative(t, result)
	simulation.AssertPopulationBalance(t, result)

	if got := result.Snapshots[1].Focal.Sterilized; got != 0 {
		t.Errorf("step 1: sterilized %v before the first due step", got)
	}
	if got := result.Snapshots[2].Focal.Sterilized; got <= 0 || got > 5 {
		t.Errorf("step 2: sterilized %v, want in (0, 5]", got)
	}
	if got := result.Snapshots[2].Focal.NeuteredMales; got <= 0 || got > 5 {
		t.Errorf("step 2: neutered %v, want in (0, 5]", got)
	}

	base, _ := simulation.Preset(simulation.PresetBaseline)
	baseline := simulation.NewRunner(t).Run(base)
	if result.Summary.TotalBirths >= baseline.Summary.TotalBirths {
		t.Errorf("count coverage births %.2f not below baseline %.2f", result.Summary.TotalBirths, baseline.Summary.TotalBirths)
	}
}

func TestNoBreedingSeason(t *testing.T) {
	// Step midpoints fall in April and October; a January-only season never opens.
	sc, _ := simulation.Preset(simulation.PresetBaseline)
	sc.Params.SeasonStartMonth = 1
	sc.Params.SeasonEndMonth = 1
	result := simulation.NewRunner(t).Run(sc)

	if result.Summary.TotalBirths != 0 {
		t.Errorf("expected no births outside the breeding season, got %.4f", result.Summary.TotalBirths)
	}
}

func TestWrappingSeasonBreeds(t *testing.T) {
	sc, _ := simulation.Preset(simulation.PresetBaseline)
	sc.Params.SeasonStartMonth = 10
	sc.Params.SeasonEndMonth = 3
	result := simulation.NewRunner(t).Run(sc)

	if result.Summary.TotalBirths <= 0 {
		t.Error("expected births in an October-March season")
	}
	simulation.AssertFinalWithin(t, result, 45, 55)
}

func TestBaselineSummary(t *testing.T) {
	sc, _ := simulation.Preset(simulation.PresetBaseline)
	result := simulation.NewRunner(t).Run(sc)
	s := result.Summary

	tests := []struct {
		name string
		got  float64
		want float64
		tol  float64
	}{
		{"Years", s.Years, 10, 0},
		{"InitialSize", s.InitialSize, 50, 1e-9},
		{"ArrivalsPerYear", s.ArrivalsPerYear, 10, 1e-9},
		{"DeparturesPerYear", s.DeparturesPerYear, 10, 1e-9},
		{"KittenSurvivalRate", s.KittenSurvivalRate, 0.1313, 0.001},
		{"TotalBirths", s.TotalBirths, 566.5, 0.5},
	}
	for _, tt := range tests {
		if math.Abs(tt.got-tt.want) > tt.tol {
			t.Errorf("Summary.%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if math.Abs(s.NetChange-(s.FinalSize-s.InitialSize)) > 1e-9 {
		t.Errorf("NetChange %v inconsistent with sizes %v -> %v", s.NetChange, s.InitialSize, s.FinalSize)
	}
	wantGrowth := math.Pow(s.FinalSize/s.InitialSize, 0.1) - 1
	if math.Abs(s.AnnualGrowthRate-wantGrowth) > 1e-12 {
		t.Errorf("AnnualGrowthRate = %v, want %v", s.AnnualGrowthRate, wantGrowth)
	}
	if s.OrphanedKittens <= 0 {
		t.Error("removals during kitten season should orphan some newborns")
	}
	if s.OverflowDeaths <= 0 {
		t.Error("a colony at capacity should record overflow deaths")
	}
	simulation.AssertWarning(t, result, models.WarningOverflowCeiling)
	simulation.AssertWarning(t, result, models.WarningOrphanedKittens)
}

func TestMetapopulationCoupling(t *testing.T) {
	sc, _ := simulation.Preset(simulation.PresetMetapopulation)
	result := simulation.NewRunner(t).Run(sc)

	simulation.AssertNonNegative(t, result)
	simulation.AssertPopulationBalance(t, result)
	simulation.AssertWithinCapacity(t, result)

	var immigrants, out float64
	for _, snap := range result.Snapshots {
		immigrants += snap.Migration.Immigrants
		out += snap.Migration.DispersedOut
		for _, v := range []float64{snap.Migration.Immigrants, snap.Migration.DispersedIn, snap.Migration.DispersedOut} {
			if v != math.Floor(v+1e-9) && math.Abs(v-math.Round(v)) > 1e-9 {
				t.Errorf("step %d: migrant count %v is not whole", snap.Step, v)
			}
		}
	}
	if immigrants == 0 || out == 0 {
		t.Errorf("expected both immigration and dispersal, got %v in / %v out", immigrants, out)
	}
	if result.Summary.ArrivalsPerYear <= result.Summary.DeparturesPerYear {
		t.Errorf("a sink colony should receive more than it sends: %v vs %v",
			result.Summary.ArrivalsPerYear, result.Summary.DeparturesPerYear)
	}
}

func TestZeroCapacity(t *testing.T) {
	t.Run("empty colony", func(t *testing.T) {
		p := models.DefaultParameters()
		p.FocalCapacity = 0
		p.FocalPopulation = 0
		p.ArrivalsPerYear = 0
		p.RemovalsPerYear = 0

		result, err := simulation.Run(p)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		for _, snap := range result.Snapshots {
			if snap.Focal.Total() != 0 {
				t.Errorf("step %d: focal total %v, want 0", snap.Step, snap.Focal.Total())
			}
		}
		for _, w := range result.Warnings {
			if w.Population == models.Focal {
				t.Errorf("unexpected focal warning: %+v", w)
			}
		}
	})

	t.Run("populated colony", func(t *testing.T) {
		p := models.DefaultParameters()
		p.FocalCapacity = 0

		result, err := simulation.Run(p)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		first := result.Snapshots[0]
		if first.Focal.Total() != 0 {
			t.Errorf("initial ceiling should empty the colony, got %v", first.Focal.Total())
		}
		if first.Focal.Events.OverflowDeaths != 50 {
			t.Errorf("expected 50 overflow deaths at step 0, got %v", first.Focal.Events.OverflowDeaths)
		}
		found := false
		for _, w := range result.Warnings {
			if w.Step == 0 && w.Kind == models.WarningOverflowCeiling && w.Population == models.Focal {
				found = true
			}
		}
		if !found {
			t.Error("expected an overflow_ceiling warning at step 0")
		}
		simulation.AssertNonNegative(t, result)
		simulation.AssertWithinCapacity(t, result)
	})
}

func TestRunRejectsInvalidParameters(t *testing.T) {
	p := models.DefaultParameters()
	p.AdultMortality = -0.5

	result, err := simulation.Run(p)
	if err == nil {
		t.Fatal("expected configuration error")
	}
	if result != nil {
		t.Error("no result should be produced for invalid parameters")
	}
	var verrs models.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Errorf("expected ValidationErrors, got %T", err)
	}
}

func TestRunRejectsUnboundedReproduction(t *testing.T) {
	p := models.DefaultParameters()
	p.LitterSize = 1e308

	if _, err := simulation.Run(p); err == nil {
		t.Fatal("expected litter_size 1e308 to be rejected")
	}
}

func TestRunExtremeReproductionIsEncodable(t *testing.T) {
	p := models.DefaultParameters()
	p.LitterSize = constants.MaxLitterSize
	p.LittersPerYear = constants.MaxLittersPerYear
	p.FocalPopulation = constants.MaxCount
	p.FocalCapacity = constants.MaxCount
	p.NeighborhoodPopulation = constants.MaxCount
	p.NeighborhoodCapacity = constants.MaxCount
	p.ArrivalsPerYear = constants.MaxCount
	p.DurationSteps = constants.MaxDurationSteps

	result, err := simulation.Run(p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Snapshots) != p.DurationSteps+1 {
		t.Fatalf("got %d snapshots, want %d", len(result.Snapshots), p.DurationSteps+1)
	}
	if result.Summary.FinalSize <= 0 {
		t.Errorf("final size = %v, want a colony held at capacity", result.Summary.FinalSize)
	}
	if math.IsInf(result.Summary.TotalBirths, 0) || math.IsNaN(result.Summary.TotalBirths) {
		t.Errorf("total births = %v, want finite", result.Summary.TotalBirths)
	}
	if _, err := json.Marshal(result); err != nil {
		t.Errorf("result does not encode as JSON: %v", err)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	for _, name := range simulation.PresetNames() {
		t.Run(name, func(t *testing.T) {
			sc, _ := simulation.Preset(name)
			simulation.AssertDeterministic(t, sc.Params)
		})
	}
}

func TestRunStepHook(t *testing.T) {
	var steps []int
	_, err := simulation.Run(models.DefaultParameters(), simulation.WithStepHook(func(s models.Snapshot) {
		steps = append(steps, s.Step)
	}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(steps) != 21 || steps[0] != 0 || steps[20] != 20 {
		t.Errorf("hook saw steps %v", steps)
	}
}

func TestRunContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := simulation.RunContext(ctx, models.DefaultParameters())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result == nil || len(result.Snapshots) != 1 {
		t.Fatalf("expected the initial snapshot only, got %+v", result)
	}
}

func TestSnapshotMonths(t *testing.T) {
	p := models.DefaultParameters()
	p.DurationSteps = 3
	result, err := simulation.Run(p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []int{12, 6, 12, 6}
	for i, snap := range result.Snapshots {
		if snap.Month != want[i] {
			t.Errorf("step %d month = %d, want %d", snap.Step, snap.Month, want[i])
		}
	}
}
