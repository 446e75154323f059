package models

import "math"

// Subpopulation names used in snapshots and warnings.
const (
	Focal        = "focal"
	Neighborhood = "neighborhood"
)

// Cohort is a group of immature kittens born in the same step.
type Cohort struct {
	AgeMonths int     `json:"age_months"`
	Females   float64 `json:"females"`
	Males     float64 `json:"males"`
}

// StepEvents counts what happened to a subpopulation during one step.
type StepEvents struct {
	Births         float64 `json:"births"`
	KittenDeaths   float64 `json:"kitten_deaths"`
	AdultDeaths    float64 `json:"adult_deaths"`
	OverflowDeaths float64 `json:"overflow_deaths"`

	// KittensExposed is the size of the newborn cohort entering kitten
	// mortality; KittensWeaned is how many of them survived it.
	KittensExposed float64 `json:"kittens_exposed"`
	KittensWeaned  float64 `json:"kittens_weaned"`
}

// Deaths is the total of every cause of death in the step.
func (e StepEvents) Deaths() float64 {
	return e.KittenDeaths + e.AdultDeaths + e.OverflowDeaths
}

// PopulationState is the composition of one subpopulation at the end of a step.
// Mature females are partitioned into NonBreeding, Estrus, Pregnant,
// Sterilized and AMH; each female is in exactly one of them.
type PopulationState struct {
	IntactMales   float64 `json:"intact_males"`
	NeuteredMales float64 `json:"neutered_males"`

	NonBreeding float64 `json:"non_breeding"`
	Estrus      float64 `json:"estrus"`
	Pregnant    float64 `json:"pregnant"`
	Sterilized  float64 `json:"sterilized"`
	AMH         float64 `json:"amh"`

	// Cohorts are immature kittens ordered oldest first.
	Cohorts []Cohort `json:"cohorts"`

	Events StepEvents `json:"events"`
}

// NewPopulationState returns a population of n mature adults, all intact and
// non-breeding, split by maleFraction.
func NewPopulationState(n, maleFraction float64) PopulationState {
	males := n * maleFraction
	return PopulationState{
		IntactMales: males,
		NonBreeding: n - males,
		Cohorts:     []Cohort{},
	}
}

// Clone returns a deep copy.
func (s PopulationState) Clone() PopulationState {
	c := s
	c.Cohorts = make([]Cohort, len(s.Cohorts))
	copy(c.Cohorts, s.Cohorts)
	return c
}

func (s PopulationState) MatureMales() float64 {
	return s.IntactMales + s.NeuteredMales
}

func (s PopulationState) MatureFemales() float64 {
	return s.NonBreeding + s.Estrus + s.Pregnant + s.Sterilized + s.AMH
}

// Mature is the number of adults of both sexes.
func (s PopulationState) Mature() float64 {
	return s.MatureMales() + s.MatureFemales()
}

func (s PopulationState) ImmatureFemales() float64 {
	var n float64
	for _, c := range s.Cohorts {
		n += c.Females
	}
	return n
}

func (s PopulationState) ImmatureMales() float64 {
	var n float64
	for _, c := range s.Cohorts {
		n += c.Males
	}
	return n
}

// Newborns is the size of the unweaned cohort born this step.
func (s PopulationState) Newborns() float64 {
	var n float64
	for _, c := range s.Cohorts {
		if c.AgeMonths == 0 {
			n += c.Females + c.Males
		}
	}
	return n
}

// Total counts every individual, newborns included.
func (s PopulationState) Total() float64 {
	return s.Mature() + s.ImmatureFemales() + s.ImmatureMales()
}

// Size counts independent individuals: everyone except this step's newborns.
// This is the figure compared against carrying capacity and reported as the
// population size.
func (s PopulationState) Size() float64 {
	return s.Total() - s.Newborns()
}

// Scale multiplies every category and cohort by f.
func (s *PopulationState) Scale(f float64) {
	s.IntactMales *= f
	s.NeuteredMales *= f
	s.NonBreeding *= f
	s.Estrus *= f
	s.Pregnant *= f
	s.Sterilized *= f
	s.AMH *= f
	for i := range s.Cohorts {
		s.Cohorts[i].Females *= f
		s.Cohorts[i].Males *= f
	}
}

// CapInfinite replaces +Inf counts with limit and reports whether any were
// found.
func (s *PopulationState) CapInfinite(limit float64) bool {
	capped := false
	fix := func(v *float64) {
		if math.IsInf(*v, 1) {
			*v = limit
			capped = true
		}
	}
	fix(&s.IntactMales)
	fix(&s.NeuteredMales)
	fix(&s.NonBreeding)
	fix(&s.Estrus)
	fix(&s.Pregnant)
	fix(&s.Sterilized)
	fix(&s.AMH)
	for i := range s.Cohorts {
		fix(&s.Cohorts[i].Females)
		fix(&s.Cohorts[i].Males)
	}
	return capped
}

// Clamp replaces negative or NaN counts with zero and reports whether any
// were found.
func (s *PopulationState) Clamp() bool {
	clamped := false
	fix := func(v *float64) {
		if *v < 0 || *v != *v {
			*v = 0
			clamped = true
		}
	}
	fix(&s.IntactMales)
	fix(&s.NeuteredMales)
	fix(&s.NonBreeding)
	fix(&s.Estrus)
	fix(&s.Pregnant)
	fix(&s.Sterilized)
	fix(&s.AMH)
	for i := range s.Cohorts {
		fix(&s.Cohorts[i].Females)
		fix(&s.Cohorts[i].Males)
	}
	return clamped
}
