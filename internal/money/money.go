// Package money provides monetary arithmetic and schedule-date helpers for the
// collections engines. All amounts are decimal fixed-point rounded to two places.
package money

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/voltgrid-erp/voltgrid/internal/shared"
)

// Frequency enumerates installment frequencies.
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiweekly  Frequency = "biweekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
)

// Valid reports whether the frequency is a known value.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyQuarterly:
		return true
	}
	return false
}

// Round normalises an amount to two decimal places, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ApplyInterest returns the flat interest amount for a principal at ratePercent.
func ApplyInterest(principal decimal.Decimal, ratePercent decimal.Decimal) decimal.Decimal {
	return Round(principal.Mul(ratePercent).Div(decimal.NewFromInt(100)))
}

// SplitEven divides total into n parts of at most two decimals. The uniform
// share is floored to a whole cent and the leftover cents are spread across
// the earliest parts, so the parts sum to total exactly and no part is ever
// negative. Any sub-cent residue in total lands on the final part.
func SplitEven(total decimal.Decimal, n int) ([]decimal.Decimal, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: split requires at least one part", shared.ErrValidation)
	}
	if total.IsNegative() {
		return nil, fmt.Errorf("%w: split total must not be negative", shared.ErrValidation)
	}

	cent := decimal.New(1, -2)
	count := decimal.NewFromInt(int64(n))
	base := total.Div(count).RoundDown(2)
	leftoverCents := total.Sub(base.Mul(count)).Div(cent).IntPart()

	parts := make([]decimal.Decimal, n)
	running := decimal.Zero
	for i := 0; i < n-1; i++ {
		parts[i] = base
		if int64(i) < leftoverCents {
			parts[i] = base.Add(cent)
		}
		running = running.Add(parts[i])
	}
	parts[n-1] = total.Sub(running)
	return parts, nil
}

// Advance returns the due date steps periods after start for the frequency.
// Monthly and quarterly steps follow time.AddDate calendar-month semantics.
func Advance(start time.Time, f Frequency, steps int) (time.Time, error) {
	switch f {
	case FrequencyWeekly:
		return start.AddDate(0, 0, 7*steps), nil
	case FrequencyBiweekly:
		return start.AddDate(0, 0, 14*steps), nil
	case FrequencyMonthly:
		return start.AddDate(0, steps, 0), nil
	case FrequencyQuarterly:
		return start.AddDate(0, 3*steps, 0), nil
	}
	return time.Time{}, fmt.Errorf("%w: unknown frequency %q", shared.ErrValidation, f)
}
