package strategy

import (
	"math"

	"polyshark/internal/config"
)

// Fill probability never drops to zero; near-liquidity sizes are discounted,
// not blocked.
const minFillProbability = 0.05

// CostModel estimates execution costs for a candidate size against available
// liquidity. Slippage grows super-linearly with the utilized share of the
// book, so doubling the size more than doubles the impact.
type CostModel struct {
	TakerFeeRate     float64
	SlippageCoeff    float64
	SlippageExponent float64
}

func CostModelFromConfig(cfg config.TradingConfig) CostModel {
	return CostModel{
		TakerFeeRate:     cfg.TakerFeeRate,
		SlippageCoeff:    cfg.SlippageCoeff,
		SlippageExponent: cfg.SlippageExponent,
	}
}

type CostEstimate struct {
	FeeUSD          float64
	SlippageUSD     float64
	FillProbability float64
}

func (e CostEstimate) TotalUSD() float64 {
	return e.FeeUSD + e.SlippageUSD
}

// Estimate prices a taker order of the given notional against the pair's
// available liquidity.
func (m CostModel) Estimate(notionalUSD, liquidityUSD float64) CostEstimate {
	fee := notionalUSD * m.TakerFeeRate
	utilization := 1.0
	if liquidityUSD > 0 {
		utilization = notionalUSD / liquidityUSD
		if utilization > 1 {
			utilization = 1
		}
	}
	exponent := m.SlippageExponent
	if exponent <= 1 {
		exponent = 1.5
	}
	slippage := notionalUSD * m.SlippageCoeff * math.Pow(utilization, exponent)
	fill := 1 - utilization
	if fill < minFillProbability {
		fill = minFillProbability
	}
	return CostEstimate{
		FeeUSD:          fee,
		SlippageUSD:     slippage,
		FillProbability: fill,
	}
}
