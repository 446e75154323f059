package demography

import (
	"github.com/nvandessel/colonysim/internal/models"
)

// FertilityTargets is the resolver's answer for one step.
type FertilityTargets struct {
	// Target fractions of mature females (sterilized, AMH) and mature males
	// (neutered) that should be infertile after this step's intervention.
	// With Counts set they are animals to treat this step instead.
	SterilizedFemales float64
	AMHFemales        float64
	NeuteredMales     float64

	// Due is true when the timing mode applies coverage at this step.
	Due bool

	// Clipped is true when sterilized + AMH exceeded 100% and AMH was reduced.
	Clipped bool

	Counts bool
}

// ResolveFertility maps coverage and timing to the targets for a step.
// Sterilized and AMH fractions cover disjoint groups of females, so AMH is
// clipped to whatever sterilization leaves. Counts are never clipped here;
// applyFertility caps them by the fertile animals present.
func ResolveFertility(fc models.FertilityControl, mode models.TimingMode, step int) FertilityTargets {
	t := FertilityTargets{
		SterilizedFemales: fc.SterilizedFemales,
		AMHFemales:        fc.AMHFemales,
		NeuteredMales:     fc.NeuteredMales,
		Due:               mode != nil && mode.Due(step),
		Counts:            fc.Counts(),
	}
	if !t.Counts && t.SterilizedFemales+t.AMHFemales > 1 {
		t.AMHFemales = 1 - t.SterilizedFemales
		t.Clipped = true
	}
	return t
}

// applyFertility tops the infertile groups up toward the targets by moving
// fertile animals out of the breeding pool. Existing marks are never removed,
// so coverage is permanent within a run.
func applyFertility(s *models.PopulationState, t FertilityTargets) {
	if t.Counts {
		applyCounts(s, t)
		return
	}
	females := s.MatureFemales()
	s.NonBreeding -= topUp(&s.Sterilized, t.SterilizedFemales*females, s.NonBreeding)
	s.NonBreeding -= topUp(&s.AMH, t.AMHFemales*females, s.NonBreeding)

	males := s.MatureMales()
	s.IntactMales -= topUp(&s.NeuteredMales, t.NeuteredMales*males, s.IntactMales)
}

// topUp raises *have toward want using at most avail, returning the amount moved.
func topUp(have *float64, want, avail float64) float64 {
	need := want - *have
	if need <= 0 || avail <= 0 {
		return 0
	}
	moved := min(need, avail)
	*have += moved
	return moved
}

// applyCounts treats a fixed number of fertile animals. Sterilization is
// served before AMH when females run short.
func applyCounts(s *models.PopulationState, t FertilityTargets) {
	s.NonBreeding -= treat(&s.Sterilized, t.SterilizedFemales, s.NonBreeding)
	s.NonBreeding -= treat(&s.AMH, t.AMHFemales, s.NonBreeding)
	s.IntactMales -= treat(&s.NeuteredMales, t.NeuteredMales, s.IntactMales)
}

// treat moves up to n of avail into *marked and returns the amount moved.
func treat(marked *float64, n, avail float64) float64 {
	if n <= 0 || avail <= 0 {
		return 0
	}
	moved := min(n, avail)
	*marked += moved
	return moved
}
