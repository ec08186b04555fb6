package exec

import (
	"math/rand"
	"time"
)

// LatencyModel applies signal-to-execution delay and the adverse price move
// accumulated during it. The adverse move is a zero-mean Gaussian in relative
// terms; a zero std disables it.
type LatencyModel struct {
	MeanDelay      time.Duration
	AdverseMoveStd float64

	rng *rand.Rand
}

func NewLatencyModel(meanDelay time.Duration, adverseMoveStd float64, seed int64) *LatencyModel {
	return &LatencyModel{
		MeanDelay:      meanDelay,
		AdverseMoveStd: adverseMoveStd,
		rng:            rand.New(rand.NewSource(seed)),
	}
}

// Apply returns the price after the adverse move and the delay to wait out.
func (m *LatencyModel) Apply(signalPrice float64) (float64, time.Duration) {
	move := 0.0
	if m.AdverseMoveStd > 0 && m.rng != nil {
		move = m.rng.NormFloat64() * m.AdverseMoveStd
	}
	return signalPrice * (1 + move), m.MeanDelay
}
