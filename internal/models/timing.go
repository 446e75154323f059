package models

import "fmt"

// Timing mode names accepted in parameter files.
const (
	TimingOneTime   = "one-time"
	TimingRecurring = "recurring"
)

// Timing is the serialized form of a TimingMode.
type Timing struct {
	// Mode is "one-time" or "recurring".
	Mode string `json:"mode" yaml:"mode"`

	// Start is the first step (1-based) at which coverage is applied.
	Start int `json:"start" yaml:"start"`

	// Every is the interval in steps between recurring applications.
	// Ignored in one-time mode.
	Every int `json:"every,omitempty" yaml:"every,omitempty"`
}

// TimingMode decides on which steps fertility control is applied.
// The only implementations are OneTime and Recurring.
type TimingMode interface {
	// Due reports whether coverage is applied at the given step.
	Due(step int) bool
	String() string
	timingMode()
}

// OneTime applies coverage once, at Step. The marked animals keep their
// status for the rest of the run.
type OneTime struct {
	Step int
}

func (o OneTime) Due(step int) bool { return step == o.Step }
func (o OneTime) String() string    { return fmt.Sprintf("%s@%d", TimingOneTime, o.Step) }
func (OneTime) timingMode()         {}

// Recurring tops coverage back up to target at Start and every Every steps after.
type Recurring struct {
	Start int
	Every int
}

func (r Recurring) Due(step int) bool {
	if step < r.Start || r.Every <= 0 {
		return false
	}
	return (step-r.Start)%r.Every == 0
}

func (r Recurring) String() string {
	return fmt.Sprintf("%s@%d/%d", TimingRecurring, r.Start, r.Every)
}

func (Recurring) timingMode() {}

// Variant converts the serialized timing into its TimingMode.
func (t Timing) Variant() (TimingMode, error) {
	if t.Start < 1 {
		return nil, fmt.Errorf("start step must be >= 1, got %d", t.Start)
	}
	switch t.Mode {
	case TimingOneTime:
		return OneTime{Step: t.Start}, nil
	case TimingRecurring, "":
		if t.Every < 1 {
			return nil, fmt.Errorf("recurring interval must be >= 1, got %d", t.Every)
		}
		return Recurring{Start: t.Start, Every: t.Every}, nil
	default:
		return nil, fmt.Errorf("unknown timing mode %q (valid: %s, %s)", t.Mode, TimingOneTime, TimingRecurring)
	}
}
