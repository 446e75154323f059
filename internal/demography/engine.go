// Package demography advances one cat subpopulation by one 6-month step.
//
// Transitions within a step run in a fixed order, and later phases consume
// the output of earlier ones:
//
//  1. mortality (adults at the per-step adult rate, newborns at the
//     density-dependent kitten rate), then every cohort ages one step
//  2. maturation into the adult pools, release of last step's estrus
//     females, and fertility control when due
//  3. breeding eligibility: fertile non-breeding females enter estrus
//     when the step's midpoint month is in season
//  4. mating and conception, gated on at least one intact male
//  5. births, followed by the carrying-capacity ceiling
//
// The engine is stateless. All state lives in the PopulationState values
// passed in and returned, so independent runs can share nothing.
package demography

import (
	"fmt"
	"math"

	"github.com/nvandessel/colonysim/internal/constants"
	"github.com/nvandessel/colonysim/internal/models"
)

// Subpopulation identifies the population being stepped and its capacity.
type Subpopulation struct {
	Name     string
	Capacity float64

	// Managed populations receive fertility control.
	Managed bool
}

// Engine applies the demographic transitions for a fixed ParameterSet.
type Engine struct {
	params    models.ParameterSet
	timing    models.TimingMode
	adultRate float64

	// lambda is expected litters per female per step.
	lambda float64
	// carried is the share of conceptions still pregnant at step close.
	carried     float64
	estrusShare float64
}

// NewEngine creates an engine for params, which must already be valid.
func NewEngine(params models.ParameterSet) (*Engine, error) {
	timing, err := params.Control.Timing.Variant()
	if err != nil {
		return nil, fmt.Errorf("fertility timing: %w", err)
	}
	e := &Engine{
		params:    params,
		timing:    timing,
		adultRate: AdultStepMortality(params.AdultMortality),
		lambda:    params.LittersPerYear / constants.StepsPerYear,
		carried:   math.Min(1, params.GestationDays/constants.DaysPerStep),
	}
	if params.CycleDays > 0 {
		e.estrusShare = math.Min(1, params.EstrusDays/params.CycleDays)
	}
	return e, nil
}

// Timing returns the fertility-control timing mode in effect.
func (e *Engine) Timing() models.TimingMode {
	return e.timing
}

// Step advances prev by one step and returns the new state together with any
// warnings raised. prev is not modified.
func (e *Engine) Step(prev models.PopulationState, step int, pop Subpopulation) (models.PopulationState, []models.Warning) {
	s := prev.Clone()
	s.Events = models.StepEvents{}
	var warnings []models.Warning
	warn := func(kind models.WarningKind, format string, args ...any) {
		warnings = append(warnings, models.Warning{
			Step:       step,
			Population: pop.Name,
			Kind:       kind,
			Message:    fmt.Sprintf(format, args...),
		})
	}

	e.mortality(&s, pop, warn)
	e.mature(&s)
	if pop.Managed {
		targets := ResolveFertility(e.params.Control, e.timing, step)
		if targets.Due {
			if targets.Clipped {
				warn(models.WarningCoverageClipped,
					"sterilized (%.0f%%) plus AMH (%.0f%%) coverage exceeds 100%%; AMH clipped to %.0f%%",
					e.params.Control.SterilizedFemales*100, e.params.Control.AMHFemales*100, targets.AMHFemales*100)
			}
			applyFertility(&s, targets)
		}
	}

	_, mid, _ := StepMonths(e.params.StartMonth, step)
	if InSeason(mid, e.params.SeasonStartMonth, e.params.SeasonEndMonth) {
		s.Estrus += s.NonBreeding
		s.NonBreeding = 0
	}

	e.conceiveAndBirth(&s)

	capped := s.CapInfinite(pop.Capacity)
	clamped := s.Clamp()
	if capped || !finite(s.Events.Births) {
		s.Events.Births = s.Newborns()
		warn(models.WarningNumericAnomaly, "non-finite count capped at capacity %.0f", pop.Capacity)
	}
	if clamped {
		warn(models.WarningNumericAnomaly, "negative count clamped to zero")
	}
	if lost := ApplyCeiling(&s, pop.Capacity); lost > 0 {
		warn(models.WarningOverflowCeiling, "size exceeded capacity %.0f; %.2f removed by overflow mortality", pop.Capacity, lost)
	}
	return s, warnings
}

func (e *Engine) mortality(s *models.PopulationState, pop Subpopulation, warn func(models.WarningKind, string, ...any)) {
	size := s.Size()
	if pop.Capacity <= 0 && s.Total() > 0 {
		warn(models.WarningNumericAnomaly, "carrying capacity is zero; kitten mortality held at %.2f", e.params.HighKittenMortality)
	}
	kitten := KittenMortality(size, pop.Capacity, e.params.BaseKittenMortality, e.params.HighKittenMortality)

	adultsBefore := s.Mature()
	keep := 1 - e.adultRate
	s.IntactMales *= keep
	s.NeuteredMales *= keep
	s.NonBreeding *= keep
	s.Estrus *= keep
	s.Pregnant *= keep
	s.Sterilized *= keep
	s.AMH *= keep
	s.Events.AdultDeaths += adultsBefore - s.Mature()

	for i := range s.Cohorts {
		c := &s.Cohorts[i]
		n := c.Females + c.Males
		rate := e.adultRate
		if c.AgeMonths == 0 {
			rate = kitten
			s.Events.KittensExposed += n
			s.Events.KittenDeaths += n * rate
			s.Events.KittensWeaned += n * (1 - rate)
		} else {
			s.Events.AdultDeaths += n * rate
		}
		c.Females *= 1 - rate
		c.Males *= 1 - rate
		c.AgeMonths += constants.MonthsPerStep
	}
}

// mature moves cohorts that reached maturity into the adult pools and returns
// last step's estrus females to the non-breeding pool.
func (e *Engine) mature(s *models.PopulationState) {
	kept := s.Cohorts[:0]
	for _, c := range s.Cohorts {
		age := float64(c.AgeMonths)
		if age >= e.params.FemaleMaturityMonths {
			s.NonBreeding += c.Females
			c.Females = 0
		}
		if age >= e.params.MaleMaturityMonths {
			s.IntactMales += c.Males
			c.Males = 0
		}
		if c.Females > 0 || c.Males > 0 {
			kept = append(kept, c)
		}
	}
	s.Cohorts = kept

	s.NonBreeding += s.Estrus
	s.Estrus = 0
}

// conceiveAndBirth mates estrus females and delivers litters due this step.
// A single intact male is enough for the full conception rate.
func (e *Engine) conceiveAndBirth(s *models.PopulationState) {
	var conceived float64
	if s.IntactMales > constants.MinCount {
		conceived = s.Estrus * math.Min(1, e.lambda)
	}
	s.Estrus -= conceived

	carried := conceived * e.carried
	delivering := s.Pregnant + conceived*(1-e.carried)
	kittens := delivering * e.params.LitterSize * math.Max(1, e.lambda)

	// Unmated females are still cycling for part of the step.
	stay := s.Estrus * e.estrusShare
	s.NonBreeding += s.Estrus - stay
	s.Estrus = stay

	s.NonBreeding += delivering
	s.Pregnant = carried

	s.Events.Births = kittens
	if kittens > 0 {
		s.Cohorts = append(s.Cohorts, models.Cohort{
			AgeMonths: 0,
			Females:   kittens / 2,
			Males:     kittens / 2,
		})
	}
}

// ApplyCeiling scales every category, newborns included, so that the
// independent size does not exceed capacity. The individuals removed are
// added to OverflowDeaths and returned.
func ApplyCeiling(s *models.PopulationState, capacity float64) float64 {
	size := s.Size()
	if !finite(size) {
		s.CapInfinite(capacity)
		s.Clamp()
		size = s.Size()
	}
	if size <= capacity+constants.MinCount || size <= 0 {
		return 0
	}
	factor := 0.0
	if capacity > 0 {
		factor = capacity / size
	}
	before := s.Total()
	s.Scale(factor)
	lost := before - s.Total()
	s.Events.OverflowDeaths += lost
	return lost
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
