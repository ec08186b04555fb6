package strategy

import "polyshark/internal/config"

// Mode is derived from the remaining-budget fraction every cycle. It is never
// stored; recomputing it eliminates staleness.
type Mode string

const (
	ModeAggressive   Mode = "AGGRESSIVE"
	ModeNormal       Mode = "NORMAL"
	ModeConservative Mode = "CONSERVATIVE"
)

// ModePolicy holds the adaptive-threshold table. The percentages are policy
// choices, so they stay configuration rather than constants.
type ModePolicy struct {
	ConservativeThreshold float64
	AggressiveThreshold   float64
	ConservativeMinEdge   float64
	NormalMinEdge         float64
	AggressiveMinEdge     float64
}

func PolicyFromConfig(cfg config.StrategyConfig) ModePolicy {
	return ModePolicy{
		ConservativeThreshold: cfg.ConservativeThreshold,
		AggressiveThreshold:   cfg.AggressiveThreshold,
		ConservativeMinEdge:   cfg.ConservativeMinEdge,
		NormalMinEdge:         cfg.NormalMinEdge,
		AggressiveMinEdge:     cfg.AggressiveMinEdge,
	}
}

// ModeFor maps remaining-budget fraction to a mode. Boundary values resolve
// to the lower-risk mode: exactly the aggressive threshold is Normal, exactly
// the conservative threshold is Conservative.
func (p ModePolicy) ModeFor(remainingFraction float64) Mode {
	if remainingFraction <= p.ConservativeThreshold {
		return ModeConservative
	}
	if remainingFraction > p.AggressiveThreshold {
		return ModeAggressive
	}
	return ModeNormal
}

// MinEdge is the minimum expected net profit, as a fraction of notional,
// required before an opportunity is emitted in the given mode.
func (p ModePolicy) MinEdge(mode Mode) float64 {
	switch mode {
	case ModeAggressive:
		return p.AggressiveMinEdge
	case ModeConservative:
		return p.ConservativeMinEdge
	default:
		return p.NormalMinEdge
	}
}
