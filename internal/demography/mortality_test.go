package demography

import (
	"math"
	"testing"
)

func TestKittenMortality(t *testing.T) {
	tests := []struct {
		name string
		n, k float64
		want float64
	}{
		{"empty colony", 0, 50, 0.75},
		{"half capacity", 25, 50, 0.81},
		{"at capacity", 50, 50, 0.87},
		{"overshoot clipped", 500, 50, 0.87},
		{"negative size clipped", -5, 50, 0.75},
		{"zero capacity", 10, 0, 0.87},
		{"zero capacity empty", 0, 0, 0.87},
		{"negative capacity", 10, -1, 0.87},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := KittenMortality(tt.n, tt.k, 0.75, 0.87)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("KittenMortality(%v, %v) = %v, want %v", tt.n, tt.k, got, tt.want)
			}
		})
	}
}

func TestKittenMortalityMonotone(t *testing.T) {
	prev := KittenMortality(0, 100, 0.6, 0.9)
	for n := 1.0; n <= 200; n++ {
		m := KittenMortality(n, 100, 0.6, 0.9)
		if m < prev {
			t.Fatalf("mortality decreased from %v to %v at n=%v", prev, m, n)
		}
		if m < 0.6 || m > 0.9 {
			t.Fatalf("mortality %v outside [0.6, 0.9] at n=%v", m, n)
		}
		prev = m
	}
}

func TestAdultStepMortality(t *testing.T) {
	tests := []struct {
		annual float64
		want   float64
	}{
		{0, 0},
		{0.10, 1 - math.Sqrt(0.9)},
		{0.75, 0.5},
		{1, 1},
	}
	for _, tt := range tests {
		got := AdultStepMortality(tt.annual)
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("AdultStepMortality(%v) = %v, want %v", tt.annual, got, tt.want)
		}
	}

	// Two steps compound back to the annual rate.
	step := AdultStepMortality(0.10)
	if annual := 1 - (1-step)*(1-step); math.Abs(annual-0.10) > 1e-12 {
		t.Errorf("two steps compound to %v, want 0.10", annual)
	}
}
