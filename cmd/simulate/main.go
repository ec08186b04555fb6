package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"polyshark/internal/budget"
	"polyshark/internal/config"
	"polyshark/internal/exec"
	"polyshark/internal/logging"
	"polyshark/internal/market"
	"polyshark/internal/strategy"

	"go.uber.org/zap"
)

const (
	defaultRuns        = 10000
	defaultNotional    = 10.0
	defaultLiquidity   = 50000.0
	defaultDeviation   = 0.02
	defaultSweep       = "0,0.005,0.01,0.02,0.05"
	defaultLatencyMS   = 0
	defaultDailyLimit  = 1e9
	simulatedPairID    = "sim-pair"
	simulatedWindowLen = 24 * time.Hour
)

// Monte Carlo over synthetic snapshots: how much of the detected edge
// survives latency and adverse selection at each volatility level.
func main() {
	runs := flag.Int("runs", defaultRuns, "cycles per sweep point")
	notional := flag.Float64("notional", defaultNotional, "trade size in USD")
	liquidity := flag.Float64("liquidity", defaultLiquidity, "snapshot liquidity in USD")
	deviationStd := flag.Float64("deviation-std", defaultDeviation, "std of the synthetic price-sum deviation")
	sweep := flag.String("sweep", defaultSweep, "comma-separated adverse-move stds to sweep")
	latencyMS := flag.Int("latency-ms", defaultLatencyMS, "mean execution latency in milliseconds, waited out per fill")
	seed := flag.Int64("seed", 1, "rng seed")
	flag.Parse()

	log := logging.New(config.LoggingConfig{Level: "warn"})
	defer func() { _ = log.Sync() }()

	stds, err := parseSweep(*sweep)
	if err != nil {
		fatal(err)
	}

	policy := strategy.ModePolicy{
		ConservativeThreshold: 0.30,
		AggressiveThreshold:   0.70,
		ConservativeMinEdge:   0.05,
		NormalMinEdge:         0.02,
		AggressiveMinEdge:     0.01,
	}
	costs := strategy.CostModel{TakerFeeRate: 0.002, SlippageCoeff: 0.1, SlippageExponent: 1.5}
	checker := strategy.NewConstraintChecker(0.001)
	detector := strategy.NewDetector(costs, policy)

	fmt.Printf("%-12s %8s %8s %14s %14s %10s\n",
		"adverse_std", "cycles", "trades", "expected_usd", "realized_usd", "hit_rate")
	for _, std := range stds {
		result := runSweep(log, sweepParams{
			runs:         *runs,
			notionalUSD:  *notional,
			liquidityUSD: *liquidity,
			deviationStd: *deviationStd,
			adverseStd:   std,
			latency:      time.Duration(*latencyMS) * time.Millisecond,
			seed:         *seed,
		}, checker, detector, policy)
		fmt.Printf("%-12.4f %8d %8d %14.4f %14.4f %9.1f%%\n",
			std, *runs, result.trades, result.expected, result.realized, result.hitRate()*100)
	}
}

type sweepParams struct {
	runs         int
	notionalUSD  float64
	liquidityUSD float64
	deviationStd float64
	adverseStd   float64
	latency      time.Duration
	seed         int64
}

type sweepResult struct {
	trades   int
	wins     int
	expected float64
	realized float64
}

func (r sweepResult) hitRate() float64 {
	if r.trades == 0 {
		return 0
	}
	return float64(r.wins) / float64(r.trades)
}

func runSweep(log *zap.Logger, params sweepParams, checker strategy.ConstraintChecker, detector strategy.Detector, policy strategy.ModePolicy) sweepResult {
	rng := rand.New(rand.NewSource(params.seed))
	latency := exec.NewLatencyModel(params.latency, params.adverseStd, params.seed)
	venue := exec.NewSimVenue(latency, 0.002, nil, log)
	tracker := budget.NewTracker(defaultDailyLimit, simulatedWindowLen)

	var result sweepResult
	now := time.Now()
	for i := 0; i < params.runs; i++ {
		deviation := rng.NormFloat64() * params.deviationStd
		snap := syntheticSnapshot(deviation, params.liquidityUSD, now)
		violation, ok := checker.Check(snap)
		if !ok {
			continue
		}
		mode := policy.ModeFor(tracker.RemainingFraction())
		opp, ok := detector.Evaluate(violation, snap, params.notionalUSD, mode)
		if !ok {
			continue
		}
		auth, err := tracker.Reserve(opp.NotionalUSD)
		if err != nil {
			continue
		}
		signalPrice := snap.PriceSum() / float64(len(snap.Prices))
		order := exec.Order{
			Pair:        simulatedPairID,
			Side:        sideFor(opp.Direction),
			NotionalUSD: opp.NotionalUSD,
			Price:       signalPrice,
		}
		fill, err := venue.Submit(context.Background(), order)
		if err != nil {
			tracker.Release(auth)
			continue
		}
		tracker.Commit(auth, fill.FilledUSD)

		// The adverse move eats into the detected edge in proportion to
		// how far the fill landed from the signal price.
		adverseCost := math.Abs(fill.AvgPrice-signalPrice) / signalPrice * fill.FilledUSD
		realized := violation.Magnitude*fill.FilledUSD - fill.FeePaid - adverseCost
		result.trades++
		result.expected += opp.ExpectedProfitUSD
		result.realized += realized
		if realized > 0 {
			result.wins++
		}
	}
	return result
}

func syntheticSnapshot(deviation, liquidity float64, ts time.Time) market.Snapshot {
	half := (1.0 + deviation) / 2
	return market.Snapshot{
		Pair:      simulatedPairID,
		Outcomes:  []string{"Yes", "No"},
		Prices:    []float64{half, half},
		Liquidity: liquidity,
		Timestamp: ts,
	}
}

func sideFor(direction strategy.Direction) market.Side {
	if direction == strategy.DirectionSell {
		return market.SideSell
	}
	return market.SideBuy
}

func parseSweep(raw string) ([]float64, error) {
	parts := strings.Split(raw, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		val, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid sweep value %q: %w", trimmed, err)
		}
		if val < 0 {
			return nil, fmt.Errorf("sweep value must be >= 0, got %f", val)
		}
		out = append(out, val)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("sweep needs at least one value")
	}
	return out, nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
