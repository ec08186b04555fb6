package strategy

import (
	"math"
	"sort"
)

const defaultFeeRate = 0.002

// CalibratedFeeRate returns the 95th percentile of observed implied fee
// rates, or the default when no observations exist. Using a high percentile
// keeps the cost model pessimistic against the venue's effective schedule.
func CalibratedFeeRate(rates []float64) float64 {
	if len(rates) == 0 {
		return defaultFeeRate
	}
	sorted := append([]float64(nil), rates...)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// ImpliedFeeRate derives the effective rate from signal price vs realized
// execution price of a fill.
func ImpliedFeeRate(signalPrice, executionPrice float64) float64 {
	if signalPrice <= 0 {
		return 0
	}
	return math.Abs(executionPrice-signalPrice) / signalPrice
}
