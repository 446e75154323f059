// Package metapop moves individuals between the focal and neighborhood
// subpopulations, and into and out of the focal colony, after each step.
package metapop

import (
	"math"

	"github.com/nvandessel/colonysim/internal/constants"
	"github.com/nvandessel/colonysim/internal/models"
)

// flow indexes the fractional remainders carried between steps.
type flow int

const (
	flowDispersalOut flow = iota
	flowDispersalIn
	flowImmigration
	flowArrivals
	flowRemovals
	numFlows
)

// Coupler applies whole-individual flows. Fractional remainders are carried
// to the next step so nothing is lost to rounding. A Coupler belongs to one
// run and must not be shared.
type Coupler struct {
	dispersal    float64
	immigration  float64
	arrivals     float64
	removals     float64
	maleFraction float64

	remainder [numFlows]float64
}

// NewCoupler creates a coupler for params.
func NewCoupler(params models.ParameterSet) *Coupler {
	return &Coupler{
		dispersal:    params.DispersalRate,
		immigration:  params.ImmigrationRate,
		arrivals:     params.ArrivalsPerYear / constants.StepsPerYear,
		removals:     params.RemovalsPerYear / constants.StepsPerYear,
		maleFraction: params.MaleFraction,
	}
}

// whole adds the carried remainder to x and returns the whole part,
// keeping the fraction for next time.
func (c *Coupler) whole(f flow, x float64) float64 {
	v := x + c.remainder[f]
	w := math.Floor(v + constants.WholeEpsilon)
	c.remainder[f] = v - w
	if c.remainder[f] < 0 {
		c.remainder[f] = 0
	}
	return w
}

// Apply runs the external focal flows, then dispersal and immigration. Movers
// are drawn from the mature categories in proportion to their sizes.
// Newborns of departing mothers are orphaned and removed.
func (c *Coupler) Apply(focal, neighborhood *models.PopulationState) models.Migration {
	var m models.Migration

	m.Arrivals = c.whole(flowArrivals, c.arrivals)
	focal.IntactMales += m.Arrivals * c.maleFraction
	focal.NonBreeding += m.Arrivals * (1 - c.maleFraction)

	removed, orphans := take(focal, c.whole(flowRemovals, c.removals))
	m.Removals = removed.Mature()
	m.FocalOrphans += orphans

	focalMature := focal.Mature()
	nbhMature := neighborhood.Mature()
	out := c.whole(flowDispersalOut, c.dispersal*focalMature)
	back := c.whole(flowDispersalIn, c.dispersal*nbhMature)
	imm := c.whole(flowImmigration, c.immigration*nbhMature)

	leaving, orphans := take(focal, out)
	m.FocalOrphans += orphans
	arriving, orphans := take(neighborhood, back+imm)
	m.NeighborhoodOrphans += orphans

	m.DispersedOut = leaving.Mature()
	moved := arriving.Mature()
	// Dispersers and immigrants are drawn together; split the actual count
	// in the requested proportion.
	if back+imm > 0 {
		m.DispersedIn = moved * back / (back + imm)
		m.Immigrants = moved - m.DispersedIn
	}

	add(neighborhood, leaving)
	add(focal, arriving)
	return m
}

// take removes up to n mature individuals from s proportionally and returns
// them as a state, with the number of newborns orphaned by departing females.
func take(s *models.PopulationState, n float64) (models.PopulationState, float64) {
	total := s.Mature()
	if n <= 0 || total <= 0 {
		return models.PopulationState{}, 0
	}
	frac := math.Min(1, n/total)
	females := s.MatureFemales()

	out := models.PopulationState{
		IntactMales:   s.IntactMales * frac,
		NeuteredMales: s.NeuteredMales * frac,
		NonBreeding:   s.NonBreeding * frac,
		Estrus:        s.Estrus * frac,
		Pregnant:      s.Pregnant * frac,
		Sterilized:    s.Sterilized * frac,
		AMH:           s.AMH * frac,
	}
	s.IntactMales -= out.IntactMales
	s.NeuteredMales -= out.NeuteredMales
	s.NonBreeding -= out.NonBreeding
	s.Estrus -= out.Estrus
	s.Pregnant -= out.Pregnant
	s.Sterilized -= out.Sterilized
	s.AMH -= out.AMH

	var orphans float64
	if females > 0 {
		share := out.MatureFemales() / females
		for i := range s.Cohorts {
			c := &s.Cohorts[i]
			if c.AgeMonths != 0 {
				continue
			}
			orphans += (c.Females + c.Males) * share
			c.Females *= 1 - share
			c.Males *= 1 - share
		}
	}
	return out, orphans
}

func add(dst *models.PopulationState, src models.PopulationState) {
	dst.IntactMales += src.IntactMales
	dst.NeuteredMales += src.NeuteredMales
	dst.NonBreeding += src.NonBreeding
	dst.Estrus += src.Estrus
	dst.Pregnant += src.Pregnant
	dst.Sterilized += src.Sterilized
	dst.AMH += src.AMH
}
