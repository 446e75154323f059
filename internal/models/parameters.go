package models

import (
	"github.com/nvandessel/colonysim/internal/constants"
)

// ParameterSet holds every biological and intervention constant for one run.
// It is passed by value and never modified once a run starts.
type ParameterSet struct {
	// Starting sizes and carrying capacities, in individuals.
	FocalPopulation        float64 `json:"focal_population" yaml:"focal_population"`
	FocalCapacity          float64 `json:"focal_capacity" yaml:"focal_capacity"`
	NeighborhoodPopulation float64 `json:"neighborhood_population" yaml:"neighborhood_population"`
	NeighborhoodCapacity   float64 `json:"neighborhood_capacity" yaml:"neighborhood_capacity"`

	// Kitten mortality rises linearly from base to high as size approaches capacity.
	BaseKittenMortality float64 `json:"base_kitten_mortality" yaml:"base_kitten_mortality"`
	HighKittenMortality float64 `json:"high_kitten_mortality" yaml:"high_kitten_mortality"`

	// AdultMortality is an annual rate.
	AdultMortality float64 `json:"adult_mortality" yaml:"adult_mortality"`

	FemaleMaturityMonths float64 `json:"female_maturity_months" yaml:"female_maturity_months"`
	MaleMaturityMonths   float64 `json:"male_maturity_months" yaml:"male_maturity_months"`

	CycleDays     float64 `json:"cycle_days" yaml:"cycle_days"`
	EstrusDays    float64 `json:"estrus_days" yaml:"estrus_days"`
	GestationDays float64 `json:"gestation_days" yaml:"gestation_days"`

	// Breeding season as inclusive calendar months. Start > End wraps past December.
	SeasonStartMonth int `json:"season_start_month" yaml:"season_start_month"`
	SeasonEndMonth   int `json:"season_end_month" yaml:"season_end_month"`

	// StartMonth is the calendar month in which step 1 begins.
	StartMonth int `json:"start_month" yaml:"start_month"`

	LittersPerYear float64 `json:"litters_per_year" yaml:"litters_per_year"`
	LitterSize     float64 `json:"litter_size" yaml:"litter_size"`
	MaleFraction   float64 `json:"male_fraction" yaml:"male_fraction"`

	Control FertilityControl `json:"control" yaml:"control"`

	// DispersalRate moves this fraction of each subpopulation's mature
	// individuals to the other one every step.
	DispersalRate float64 `json:"dispersal_rate" yaml:"dispersal_rate"`

	// ImmigrationRate moves this fraction of the neighborhood's mature
	// individuals into the focal population every step.
	ImmigrationRate float64 `json:"immigration_rate" yaml:"immigration_rate"`

	// External flows of adults into and out of the focal colony
	// (abandoned pets joining, adoptions and removals leaving).
	ArrivalsPerYear float64 `json:"arrivals_per_year" yaml:"arrivals_per_year"`
	RemovalsPerYear float64 `json:"removals_per_year" yaml:"removals_per_year"`

	// DurationSteps is the number of 6-month steps to simulate.
	DurationSteps int `json:"duration_steps" yaml:"duration_steps"`
}

// Coverage units accepted in parameter files.
const (
	// UnitFraction reads coverage as target fractions of mature animals.
	UnitFraction = "fraction"
	// UnitCount reads coverage as animals treated at each due step.
	UnitCount = "count"
)

// FertilityControl describes the interventions applied to the focal population.
type FertilityControl struct {
	// Coverage of mature females / males. Fractions in [0,1] by default,
	// or whole animals per due step when Unit is "count".
	SterilizedFemales float64 `json:"sterilized_females" yaml:"sterilized_females"`
	AMHFemales        float64 `json:"amh_females" yaml:"amh_females"`
	NeuteredMales     float64 `json:"neutered_males" yaml:"neutered_males"`

	// Unit is "fraction" (the default when empty) or "count".
	Unit string `json:"unit,omitempty" yaml:"unit,omitempty"`

	Timing Timing `json:"timing" yaml:"timing"`
}

// Counts reports whether coverage is expressed as animals per due step.
func (fc FertilityControl) Counts() bool {
	return fc.Unit == UnitCount
}

// Active reports whether any coverage is configured.
func (fc FertilityControl) Active() bool {
	return fc.SterilizedFemales > 0 || fc.AMHFemales > 0 || fc.NeuteredMales > 0
}

// DefaultParameters returns the baseline parameter set: an unmanaged colony
// of 50 at capacity with no neighborhood exchange.
func DefaultParameters() ParameterSet {
	return ParameterSet{
		FocalPopulation:        constants.DefaultFocalPopulation,
		FocalCapacity:          constants.DefaultFocalCapacity,
		NeighborhoodPopulation: constants.DefaultNeighborhoodPopulation,
		NeighborhoodCapacity:   constants.DefaultNeighborhoodCapacity,
		BaseKittenMortality:    constants.DefaultBaseKittenMortality,
		HighKittenMortality:    constants.DefaultHighKittenMortality,
		AdultMortality:         constants.DefaultAdultMortality,
		FemaleMaturityMonths:   constants.DefaultFemaleMaturityMonths,
		MaleMaturityMonths:     constants.DefaultMaleMaturityMonths,
		CycleDays:              constants.DefaultCycleDays,
		EstrusDays:             constants.DefaultEstrusDays,
		GestationDays:          constants.DefaultGestationDays,
		SeasonStartMonth:       constants.DefaultSeasonStartMonth,
		SeasonEndMonth:         constants.DefaultSeasonEndMonth,
		StartMonth:             constants.DefaultStartMonth,
		LittersPerYear:         constants.DefaultLittersPerYear,
		LitterSize:             constants.DefaultLitterSize,
		MaleFraction:           constants.DefaultMaleFraction,
		Control: FertilityControl{
			Timing: Timing{
				Mode:  TimingRecurring,
				Start: constants.DefaultInterventionStart,
				Every: constants.DefaultInterventionEvery,
			},
		},
		ArrivalsPerYear: constants.DefaultArrivalsPerYear,
		RemovalsPerYear: constants.DefaultRemovalsPerYear,
		DurationSteps:   constants.DefaultDurationSteps,
	}
}

// Years returns the simulated duration in years.
func (p ParameterSet) Years() float64 {
	return float64(p.DurationSteps) / constants.StepsPerYear
}
