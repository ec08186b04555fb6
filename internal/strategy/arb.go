package strategy

import "polyshark/internal/market"

// Detector scores a constraint violation into a trade candidate, or rejects
// it when the cost-adjusted edge is below the current mode's minimum.
type Detector struct {
	Costs  CostModel
	Policy ModePolicy
}

func NewDetector(costs CostModel, policy ModePolicy) Detector {
	return Detector{Costs: costs, Policy: policy}
}

// Evaluate converts a violation into an opportunity. Direction always trades
// toward restoring the invariant: an overpriced basket (sum > 1) is sold, an
// underpriced basket (sum < 1) is bought for a guaranteed $1 payout.
func (d Detector) Evaluate(violation Violation, snap market.Snapshot, notionalUSD float64, mode Mode) (Opportunity, bool) {
	if notionalUSD <= 0 {
		return Opportunity{}, false
	}
	direction := DirectionBuy
	if violation.Deviation > 0 {
		direction = DirectionSell
	}
	rawEdge := violation.Magnitude * notionalUSD
	est := d.Costs.Estimate(notionalUSD, snap.Liquidity)
	net := rawEdge - est.TotalUSD()
	expected := net * est.FillProbability
	if expected < d.Policy.MinEdge(mode)*notionalUSD {
		return Opportunity{}, false
	}
	return Opportunity{
		Pair:              violation.Pair,
		Direction:         direction,
		NotionalUSD:       notionalUSD,
		RawEdgeUSD:        rawEdge,
		FeeUSD:            est.FeeUSD,
		SlippageUSD:       est.SlippageUSD,
		NetProfitUSD:      net,
		FillProbability:   est.FillProbability,
		ExpectedProfitUSD: expected,
	}, true
}
