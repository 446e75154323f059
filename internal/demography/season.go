package demography

import "github.com/nvandessel/colonysim/internal/constants"

// StepMonths returns the calendar months (1-12) in which step begins, reaches
// its midpoint, and ends. Step 1 begins in startMonth.
func StepMonths(startMonth, step int) (first, mid, last int) {
	offset := (startMonth - 1 + constants.MonthsPerStep*(step-1)) % 12
	if offset < 0 {
		offset += 12
	}
	first = offset + 1
	mid = (offset+constants.MonthsPerStep/2)%12 + 1
	last = (offset+constants.MonthsPerStep-1)%12 + 1
	return first, mid, last
}

// InSeason reports whether month lies in the inclusive season [start, end].
// A season with start > end wraps past December.
func InSeason(month, start, end int) bool {
	if start <= end {
		return month >= start && month <= end
	}
	return month >= start || month <= end
}
