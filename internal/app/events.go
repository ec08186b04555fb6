package app

import (
	"context"
	"time"

	"polyshark/internal/strategy"
	"polyshark/internal/timescale"

	"go.uber.org/zap"
)

// Decision is the outcome of one pair cycle. Exactly one event carrying a
// Decision is emitted per cycle.
type Decision string

const (
	DecisionHalted         Decision = "HALTED"
	DecisionSkippedStale   Decision = "SKIPPED_STALE"
	DecisionNoViolation    Decision = "NO_VIOLATION"
	DecisionHoldingOpen    Decision = "HOLDING_POSITION"
	DecisionPositionExited Decision = "POSITION_EXITED"
	DecisionBelowEdge      Decision = "BELOW_MIN_EDGE"
	DecisionBudgetRejected Decision = "BUDGET_REJECTED"
	DecisionExecuted       Decision = "EXECUTED"
	DecisionFailed         Decision = "FAILED"
)

// DecisionEvent is the structured record of a cycle. Opportunity is nil for
// cycles that never scored one.
type DecisionEvent struct {
	Time         time.Time
	Pair         string
	Decision     Decision
	Status       strategy.Status
	Mode         strategy.Mode
	PriceSum     float64
	Deviation    float64
	Opportunity  *strategy.Opportunity
	FilledUSD    float64
	ConsumedUSD  float64
	PermittedUSD float64
	Reason       string
}

// Sink consumes decision events. Emit must never block the decision loop.
type Sink interface {
	Emit(ctx context.Context, event DecisionEvent)
}

type zapSink struct {
	log *zap.Logger
}

func NewZapSink(log *zap.Logger) Sink {
	return zapSink{log: log}
}

func (s zapSink) Emit(ctx context.Context, event DecisionEvent) {
	_ = ctx
	fields := []zap.Field{
		zap.String("pair", event.Pair),
		zap.String("decision", string(event.Decision)),
		zap.String("status", string(event.Status)),
		zap.Float64("price_sum", event.PriceSum),
		zap.Float64("deviation", event.Deviation),
		zap.Float64("consumed_usd", event.ConsumedUSD),
		zap.Float64("permitted_usd", event.PermittedUSD),
	}
	if event.Mode != "" {
		fields = append(fields, zap.String("mode", string(event.Mode)))
	}
	if opp := event.Opportunity; opp != nil {
		fields = append(fields,
			zap.String("direction", string(opp.Direction)),
			zap.Float64("notional_usd", opp.NotionalUSD),
			zap.Float64("raw_edge_usd", opp.RawEdgeUSD),
			zap.Float64("expected_profit_usd", opp.ExpectedProfitUSD),
		)
	}
	if event.FilledUSD > 0 {
		fields = append(fields, zap.Float64("filled_usd", event.FilledUSD))
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}
	s.log.Info("decision cycle", fields...)
}

type timescaleSink struct {
	writer *timescale.Writer
}

func NewTimescaleSink(writer *timescale.Writer) Sink {
	return timescaleSink{writer: writer}
}

func (s timescaleSink) Emit(ctx context.Context, event DecisionEvent) {
	_ = ctx
	if s.writer == nil {
		return
	}
	row := timescale.DecisionRow{
		Time:         event.Time,
		Pair:         event.Pair,
		Decision:     string(event.Decision),
		Status:       string(event.Status),
		Mode:         string(event.Mode),
		PriceSum:     event.PriceSum,
		Deviation:    event.Deviation,
		FilledUSD:    event.FilledUSD,
		ConsumedUSD:  event.ConsumedUSD,
		PermittedUSD: event.PermittedUSD,
		Reason:       event.Reason,
	}
	if opp := event.Opportunity; opp != nil {
		row.Direction = string(opp.Direction)
		row.NotionalUSD = opp.NotionalUSD
		row.RawEdgeUSD = opp.RawEdgeUSD
		row.FeeUSD = opp.FeeUSD
		row.SlippageUSD = opp.SlippageUSD
		row.FillProbability = opp.FillProbability
		row.ExpectedProfitUSD = opp.ExpectedProfitUSD
	}
	s.writer.EnqueueDecision(row)
}

type multiSink []Sink

// NewMultiSink fans out to every non-nil sink.
func NewMultiSink(sinks ...Sink) Sink {
	var out multiSink
	for _, sink := range sinks {
		if sink != nil {
			out = append(out, sink)
		}
	}
	return out
}

func (s multiSink) Emit(ctx context.Context, event DecisionEvent) {
	for _, sink := range s {
		sink.Emit(ctx, event)
	}
}
