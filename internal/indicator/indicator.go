// Package indicator provides technical indicator calculations over rate bars.
//
// All indicators implement the Indicator interface, receiving rates and
// producing float64 values. Indicators are designed to be composable.
package indicator

import "market-analyzer/internal/model"

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "EMA").
	Name() string

	// Update feeds a new rate and recalculates.
	Update(rate model.Rate)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Reset clears the indicator for reuse.
	Reset()
}

// Series resets ind, feeds every rate and returns the value after each one.
// Values before the indicator is ready are 0.
func Series(ind Indicator, rates []model.Rate) []float64 {
	ind.Reset()
	out := make([]float64, len(rates))
	for i, r := range rates {
		ind.Update(r)
		if ind.Ready() {
			out[i] = ind.Value()
		}
	}
	return out
}

// Last resets ind, feeds every rate and returns the final value and readiness.
func Last(ind Indicator, rates []model.Rate) (float64, bool) {
	ind.Reset()
	for _, r := range rates {
		ind.Update(r)
	}
	return ind.Value(), ind.Ready()
}
