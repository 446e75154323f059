package models

// WarningKind classifies a non-fatal anomaly recorded during a run.
type WarningKind string

const (
	// WarningNumericAnomaly marks a value clamped in place, such as a
	// negative count or a density evaluated against zero capacity.
	WarningNumericAnomaly WarningKind = "numeric_anomaly"

	// WarningOverflowCeiling marks corrective mortality applied because a
	// subpopulation exceeded its carrying capacity.
	WarningOverflowCeiling WarningKind = "overflow_ceiling"

	// WarningCoverageClipped marks sterilization plus AMH coverage above 100%.
	WarningCoverageClipped WarningKind = "coverage_clipped"

	// WarningOrphanedKittens marks newborns removed because their mothers left.
	WarningOrphanedKittens WarningKind = "orphaned_kittens"
)

// Warning is one entry in a result's warning channel.
type Warning struct {
	Step       int         `json:"step"`
	Population string      `json:"population"`
	Kind       WarningKind `json:"kind"`
	Message    string      `json:"message"`
}

// Migration counts whole individuals moved during one step's coupling.
type Migration struct {
	// Focal to neighborhood dispersal.
	DispersedOut float64 `json:"dispersed_out"`
	// Neighborhood to focal dispersal.
	DispersedIn float64 `json:"dispersed_in"`
	Immigrants  float64 `json:"immigrants"`
	Arrivals    float64 `json:"arrivals"`
	Removals    float64 `json:"removals"`

	FocalOrphans        float64 `json:"focal_orphans"`
	NeighborhoodOrphans float64 `json:"neighborhood_orphans"`
}

// Snapshot pairs the focal and neighborhood states at the end of a step.
// Step 0 is the initial state.
type Snapshot struct {
	Step int `json:"step"`
	// Month is the calendar month (1-12) the step ended in.
	Month int `json:"month"`

	Focal        PopulationState `json:"focal"`
	Neighborhood PopulationState `json:"neighborhood"`
	Migration    Migration       `json:"migration"`
}

// Summary holds statistics derived from the focal population's trajectory.
type Summary struct {
	Years float64 `json:"years"`

	InitialSize float64 `json:"initial_size"`
	FinalSize   float64 `json:"final_size"`
	PeakSize    float64 `json:"peak_size"`
	NetChange   float64 `json:"net_change"`

	// AnnualGrowthRate is (final/initial)^(1/years) - 1.
	AnnualGrowthRate float64 `json:"annual_growth_rate"`

	TotalBirths float64 `json:"total_births"`

	// KittenSurvivalRate is newborns surviving their first step over
	// newborns exposed, across the whole run.
	KittenSurvivalRate float64 `json:"kitten_survival_rate"`

	ArrivalsPerYear   float64 `json:"arrivals_per_year"`
	DeparturesPerYear float64 `json:"departures_per_year"`

	KittenDeaths    float64 `json:"kitten_deaths"`
	AdultDeaths     float64 `json:"adult_deaths"`
	OverflowDeaths  float64 `json:"overflow_deaths"`
	OrphanedKittens float64 `json:"orphaned_kittens"`

	NeighborhoodFinalSize float64 `json:"neighborhood_final_size"`
}

// SimulationResult is the complete output of one run. Callers must treat it
// as read-only.
type SimulationResult struct {
	Parameters ParameterSet `json:"parameters"`
	Snapshots  []Snapshot   `json:"snapshots"`
	Summary    Summary      `json:"summary"`
	Warnings   []Warning    `json:"warnings"`
}

// Final returns the last snapshot.
func (r *SimulationResult) Final() Snapshot {
	if len(r.Snapshots) == 0 {
		return Snapshot{}
	}
	return r.Snapshots[len(r.Snapshots)-1]
}

// FocalSizes returns the focal population size at every snapshot.
func (r *SimulationResult) FocalSizes() []float64 {
	sizes := make([]float64, len(r.Snapshots))
	for i, s := range r.Snapshots {
		sizes[i] = s.Focal.Size()
	}
	return sizes
}

// WarningsOf returns the warnings of the given kind.
func (r *SimulationResult) WarningsOf(kind WarningKind) []Warning {
	var out []Warning
	for _, w := range r.Warnings {
		if w.Kind == kind {
			out = append(out, w)
		}
	}
	return out
}
