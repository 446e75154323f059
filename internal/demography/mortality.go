package demography

import (
	"math"

	"github.com/nvandessel/colonysim/internal/constants"
)

// KittenMortality returns the probability that a newborn dies before weaning,
// interpolated linearly from base at zero density to high at n >= k.
// The result never leaves [base, high]. A non-positive k is treated as
// permanently at capacity.
func KittenMortality(n, k, base, high float64) float64 {
	if k <= 0 {
		return high
	}
	density := n / k
	switch {
	case density <= 0 || math.IsNaN(density):
		return base
	case density >= 1:
		return high
	}
	return base + density*(high-base)
}

// AdultStepMortality converts an annual adult mortality rate into the
// per-step probability for 6-month steps.
func AdultStepMortality(annual float64) float64 {
	return 1 - math.Pow(1-annual, 1.0/constants.StepsPerYear)
}
