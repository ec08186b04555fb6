package market

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Snapshot is the normalized view of one related-outcome market pair for a
// single decision cycle. It is a value type and never mutated after Normalize.
type Snapshot struct {
	Pair        string
	Outcomes    []string
	Prices      []float64
	Volume24h   float64
	Liquidity   float64
	Timestamp   time.Time
	BlockHeight uint64
}

// RawQuote is what the data collaborator hands us before validation.
type RawQuote struct {
	Pair        string
	Outcomes    []string
	Prices      []float64
	Volume24h   float64
	Liquidity   float64
	Timestamp   time.Time
	BlockHeight uint64
}

// Normalize validates a raw quote into a Snapshot. Prices are probability
// denominated and must each lie in [0,1].
func Normalize(raw RawQuote) (Snapshot, error) {
	if raw.Pair == "" {
		return Snapshot{}, fmt.Errorf("%w: missing pair id", ErrInvalidSnapshot)
	}
	if len(raw.Prices) < 2 {
		return Snapshot{}, fmt.Errorf("%w: need at least two outcome prices, got %d", ErrInvalidSnapshot, len(raw.Prices))
	}
	for i, p := range raw.Prices {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return Snapshot{}, fmt.Errorf("%w: price %d is not finite", ErrInvalidSnapshot, i)
		}
		if p < 0 || p > 1 {
			return Snapshot{}, fmt.Errorf("%w: price %d out of [0,1]: %f", ErrInvalidSnapshot, i, p)
		}
	}
	if math.IsNaN(raw.Liquidity) || math.IsInf(raw.Liquidity, 0) || raw.Liquidity < 0 {
		return Snapshot{}, fmt.Errorf("%w: bad liquidity %f", ErrInvalidSnapshot, raw.Liquidity)
	}
	if math.IsNaN(raw.Volume24h) || math.IsInf(raw.Volume24h, 0) || raw.Volume24h < 0 {
		return Snapshot{}, fmt.Errorf("%w: bad volume %f", ErrInvalidSnapshot, raw.Volume24h)
	}
	if raw.Timestamp.IsZero() {
		return Snapshot{}, fmt.Errorf("%w: missing timestamp", ErrInvalidSnapshot)
	}
	prices := append([]float64(nil), raw.Prices...)
	outcomes := append([]string(nil), raw.Outcomes...)
	return Snapshot{
		Pair:        raw.Pair,
		Outcomes:    outcomes,
		Prices:      prices,
		Volume24h:   raw.Volume24h,
		Liquidity:   raw.Liquidity,
		Timestamp:   raw.Timestamp,
		BlockHeight: raw.BlockHeight,
	}, nil
}

// PriceSum is the sum of all outcome prices; the constraint engine compares it
// against the complementary-set invariant.
func (s Snapshot) PriceSum() float64 {
	var sum float64
	for _, p := range s.Prices {
		sum += p
	}
	return sum
}

func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}
