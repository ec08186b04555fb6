package strategy

import (
	"math"

	"polyshark/internal/market"
)

// The invariant for a mutually-exclusive-exhaustive outcome set: prices of
// all legs must sum to 1.
const complementaryInvariant = 1.0

// ConstraintChecker evaluates whether a snapshot's outcome prices violate the
// complementary-set invariant. The full set is always evaluated, never
// pairwise subsets.
type ConstraintChecker struct {
	Epsilon float64
}

func NewConstraintChecker(epsilon float64) ConstraintChecker {
	return ConstraintChecker{Epsilon: epsilon}
}

// Check returns the violation and true when |sum − 1| >= epsilon. A deviation
// inside epsilon is pricing noise, not a violation.
func (c ConstraintChecker) Check(snap market.Snapshot) (Violation, bool) {
	observed := snap.PriceSum()
	deviation := observed - complementaryInvariant
	if math.Abs(deviation) < c.Epsilon {
		return Violation{}, false
	}
	return Violation{
		Pair:      snap.Pair,
		Expected:  complementaryInvariant,
		Observed:  observed,
		Deviation: deviation,
		Magnitude: math.Abs(deviation),
	}, true
}
