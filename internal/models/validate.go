package models

import (
	"fmt"
	"math"
	"strings"

	"github.com/nvandessel/colonysim/internal/constants"
)

// ConfigError describes one out-of-range or contradictory parameter.
type ConfigError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidationErrors is every ConfigError found in a ParameterSet.
type ValidationErrors []*ConfigError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return "invalid parameters: " + strings.Join(msgs, "; ")
}

// Validate checks every field and returns ValidationErrors, or nil when the
// set is usable.
func (p ParameterSet) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}
	fraction := func(field string, v float64) {
		if math.IsNaN(v) || v < 0 || v > 1 {
			add(field, "must be a fraction in [0,1], got %v", v)
		}
	}
	bounded := func(field string, v, limit float64) {
		if math.IsNaN(v) || v < 0 || v > limit {
			add(field, "must be in [0,%v], got %v", limit, v)
		}
	}
	count := func(field string, v float64) {
		bounded(field, v, constants.MaxCount)
	}
	month := func(field string, m int) {
		if m < 1 || m > 12 {
			add(field, "must be a calendar month 1-12, got %d", m)
		}
	}

	count("focal_population", p.FocalPopulation)
	count("focal_capacity", p.FocalCapacity)
	count("neighborhood_population", p.NeighborhoodPopulation)
	count("neighborhood_capacity", p.NeighborhoodCapacity)

	fraction("base_kitten_mortality", p.BaseKittenMortality)
	fraction("high_kitten_mortality", p.HighKittenMortality)
	if p.BaseKittenMortality > p.HighKittenMortality {
		add("high_kitten_mortality", "must be >= base_kitten_mortality (%v), got %v", p.BaseKittenMortality, p.HighKittenMortality)
	}
	fraction("adult_mortality", p.AdultMortality)

	count("female_maturity_months", p.FemaleMaturityMonths)
	count("male_maturity_months", p.MaleMaturityMonths)

	if math.IsNaN(p.CycleDays) || p.CycleDays <= 0 {
		add("cycle_days", "must be positive, got %v", p.CycleDays)
	}
	count("estrus_days", p.EstrusDays)
	if p.EstrusDays > p.CycleDays {
		add("estrus_days", "must not exceed cycle_days (%v), got %v", p.CycleDays, p.EstrusDays)
	}
	if math.IsNaN(p.GestationDays) || p.GestationDays <= 0 {
		add("gestation_days", "must be positive, got %v", p.GestationDays)
	}

	month("season_start_month", p.SeasonStartMonth)
	month("season_end_month", p.SeasonEndMonth)
	month("start_month", p.StartMonth)

	bounded("litters_per_year", p.LittersPerYear, constants.MaxLittersPerYear)
	bounded("litter_size", p.LitterSize, constants.MaxLitterSize)
	fraction("male_fraction", p.MaleFraction)

	coverage := fraction
	switch p.Control.Unit {
	case "", UnitFraction:
	case UnitCount:
		coverage = count
	default:
		add("control.unit", "must be %q or %q, got %q", UnitFraction, UnitCount, p.Control.Unit)
	}
	coverage("control.sterilized_females", p.Control.SterilizedFemales)
	coverage("control.amh_females", p.Control.AMHFemales)
	coverage("control.neutered_males", p.Control.NeuteredMales)
	if _, err := p.Control.Timing.Variant(); err != nil {
		add("control.timing", "%v", err)
	}

	fraction("dispersal_rate", p.DispersalRate)
	fraction("immigration_rate", p.ImmigrationRate)
	count("arrivals_per_year", p.ArrivalsPerYear)
	count("removals_per_year", p.RemovalsPerYear)

	if p.DurationSteps < 0 || p.DurationSteps > constants.MaxDurationSteps {
		add("duration_steps", "must be in [0,%d], got %d", constants.MaxDurationSteps, p.DurationSteps)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
