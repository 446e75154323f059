package metapop

import (
	"math"
	"testing"

	"github.com/nvandessel/colonysim/internal/models"
)

func isolated() models.ParameterSet {
	p := models.DefaultParameters()
	p.ArrivalsPerYear = 0
	p.RemovalsPerYear = 0
	p.DispersalRate = 0
	p.ImmigrationRate = 0
	return p
}

func TestCouplerCarriesRemainders(t *testing.T) {
	p := isolated()
	p.ArrivalsPerYear = 3 // 1.5 per step
	c := NewCoupler(p)

	var got []float64
	for range 4 {
		focal := models.PopulationState{}
		nbh := models.PopulationState{}
		m := c.Apply(&focal, &nbh)
		if m.Arrivals != math.Floor(m.Arrivals) {
			t.Fatalf("arrivals %v not a whole number", m.Arrivals)
		}
		got = append(got, m.Arrivals)
	}

	want := []float64{1, 2, 1, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d arrivals = %v, want %v (all: %v)", i+1, got[i], want[i], got)
		}
	}
}

func TestCouplerArrivalsSplitBySex(t *testing.T) {
	p := isolated()
	p.ArrivalsPerYear = 8
	p.MaleFraction = 0.25
	c := NewCoupler(p)

	focal := models.PopulationState{}
	nbh := models.PopulationState{}
	c.Apply(&focal, &nbh)

	if focal.IntactMales != 1 || focal.NonBreeding != 3 {
		t.Errorf("expected 1 male / 3 females, got %v / %v", focal.IntactMales, focal.NonBreeding)
	}
}

func TestCouplerDispersalConservesIndividuals(t *testing.T) {
	p := isolated()
	p.DispersalRate = 0.015
	c := NewCoupler(p)

	focal := models.PopulationState{IntactMales: 40, NonBreeding: 60}
	nbh := models.PopulationState{IntactMales: 100, NonBreeding: 100}
	before := focal.Mature() + nbh.Mature()

	m := c.Apply(&focal, &nbh)

	if m.DispersedOut != 1 || m.DispersedIn != 3 {
		t.Errorf("expected 1 out / 3 in, got %v / %v", m.DispersedOut, m.DispersedIn)
	}
	if after := focal.Mature() + nbh.Mature(); math.Abs(after-before) > 1e-9 {
		t.Errorf("dispersal changed total from %v to %v", before, after)
	}
	if math.Abs(focal.Mature()-102) > 1e-9 {
		t.Errorf("focal mature = %v, want 102", focal.Mature())
	}
}

func TestCouplerImmigrationIsOneWay(t *testing.T) {
	p := isolated()
	p.ImmigrationRate = 0.05
	c := NewCoupler(p)

	focal := models.PopulationState{IntactMales: 50, NonBreeding: 50}
	nbh := models.PopulationState{IntactMales: 100, NonBreeding: 100}

	m := c.Apply(&focal, &nbh)

	if m.Immigrants != 10 {
		t.Errorf("Immigrants = %v, want 10", m.Immigrants)
	}
	if m.DispersedOut != 0 || m.DispersedIn != 0 {
		t.Errorf("unexpected dispersal %v / %v", m.DispersedOut, m.DispersedIn)
	}
	if math.Abs(focal.Mature()-110) > 1e-9 || math.Abs(nbh.Mature()-190) > 1e-9 {
		t.Errorf("expected focal 110 / neighborhood 190, got %v / %v", focal.Mature(), nbh.Mature())
	}
}

func TestCouplerMoversKeepStatus(t *testing.T) {
	p := isolated()
	p.DispersalRate = 0.1
	c := NewCoupler(p)

	focal := models.PopulationState{Sterilized: 50, NeuteredMales: 50}
	nbh := models.PopulationState{}

	c.Apply(&focal, &nbh)

	if math.Abs(nbh.Sterilized-5) > 1e-9 || math.Abs(nbh.NeuteredMales-5) > 1e-9 {
		t.Errorf("expected 5 sterilized and 5 neutered dispersers, got %+v", nbh)
	}
}

func TestCouplerOrphansNewborns(t *testing.T) {
	p := isolated()
	p.RemovalsPerYear = 2 // one per step
	c := NewCoupler(p)

	focal := models.PopulationState{
		NonBreeding: 10,
		Cohorts: []models.Cohort{
			{AgeMonths: 6, Females: 4, Males: 4},
			{AgeMonths: 0, Females: 10, Males: 10},
		},
	}
	nbh := models.PopulationState{}

	m := c.Apply(&focal, &nbh)

	if m.Removals != 1 {
		t.Errorf("Removals = %v, want 1", m.Removals)
	}
	if math.Abs(m.FocalOrphans-2) > 1e-9 {
		t.Errorf("FocalOrphans = %v, want 2", m.FocalOrphans)
	}
	if math.Abs(focal.Newborns()-18) > 1e-9 {
		t.Errorf("Newborns() = %v, want 18", focal.Newborns())
	}
	if focal.Cohorts[0].Females != 4 {
		t.Error("weaned cohort should not be orphaned")
	}
}

func TestCouplerRemovalsCappedByPopulation(t *testing.T) {
	p := isolated()
	p.RemovalsPerYear = 100
	c := NewCoupler(p)

	focal := models.PopulationState{IntactMales: 2, NonBreeding: 3}
	nbh := models.PopulationState{}

	m := c.Apply(&focal, &nbh)

	if m.Removals != 5 {
		t.Errorf("Removals = %v, want 5", m.Removals)
	}
	if focal.Mature() != 0 {
		t.Errorf("expected empty focal population, got %v", focal.Mature())
	}
}
