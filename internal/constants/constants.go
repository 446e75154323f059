// Package constants provides named constants used throughout the colonysim codebase.
// This centralizes the biological defaults and model tunables in one place.
package constants

// Time-step constants
const (
	// MonthsPerStep is the length of one simulation timestep in months.
	MonthsPerStep = 6

	// StepsPerYear is the number of timesteps in one calendar year.
	StepsPerYear = 12 / MonthsPerStep

	// DaysPerStep is the length of one timestep in days.
	DaysPerStep = 365.0 / StepsPerYear
)

// Population size defaults. The focal colony starts at its carrying capacity,
// matching the managed colony in the field study the presets reproduce.
const (
	DefaultFocalPopulation        = 50.0
	DefaultFocalCapacity          = 50.0
	DefaultNeighborhoodPopulation = 200.0
	DefaultNeighborhoodCapacity   = 800.0
)

// Mortality defaults
const (
	// DefaultBaseKittenMortality is kitten mortality at low density.
	DefaultBaseKittenMortality = 0.75

	// DefaultHighKittenMortality is kitten mortality at or above carrying capacity.
	DefaultHighKittenMortality = 0.87

	// DefaultAdultMortality is the annual adult mortality rate.
	DefaultAdultMortality = 0.10
)

// Reproductive biology defaults
const (
	// DefaultFemaleMaturityMonths is the age at which females join the breeding pool.
	DefaultFemaleMaturityMonths = 6.0

	// DefaultMaleMaturityMonths is the age at which males can sire litters.
	DefaultMaleMaturityMonths = 12.0

	DefaultCycleDays     = 21.0
	DefaultEstrusDays    = 8.0
	DefaultGestationDays = 63.0

	// Breeding season, inclusive calendar months (1 = January).
	DefaultSeasonStartMonth = 1
	DefaultSeasonEndMonth   = 9

	// DefaultStartMonth is the calendar month the first timestep begins in.
	DefaultStartMonth = 1

	DefaultLittersPerYear = 1.4
	DefaultLitterSize     = 3.5
	DefaultMaleFraction   = 0.5

	// Upper bounds on reproduction. Larger values overflow float64 within a
	// few steps.
	MaxLittersPerYear = 6.0
	MaxLitterSize     = 12.0
)

// MaxCount bounds starting sizes, capacities and yearly flows.
const MaxCount = 1e9

// Intervention and movement defaults
const (
	// DefaultInterventionStart is the first timestep fertility control is applied.
	DefaultInterventionStart = 1

	// DefaultInterventionEvery is the recurring interval in timesteps.
	DefaultInterventionEvery = 1

	DefaultArrivalsPerYear = 10.0
	DefaultRemovalsPerYear = 10.0

	// DefaultDurationSteps is ten years of 6-month steps.
	DefaultDurationSteps = 20

	// MaxDurationSteps bounds a single run to 500 years.
	MaxDurationSteps = 1000
)

// WholeEpsilon absorbs float error when flooring migrant counts to whole individuals.
const WholeEpsilon = 1e-9

// MinCount is the smallest count treated as present. Smaller residues come
// from floating-point subtraction, not from animals.
const MinCount = 1e-9
