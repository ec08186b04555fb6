package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"polyshark/internal/account"
	"polyshark/internal/alerts"
	"polyshark/internal/budget"
	"polyshark/internal/exec"
	"polyshark/internal/market"
	"polyshark/internal/metrics"
	"polyshark/internal/permission"
	"polyshark/internal/state"
	"polyshark/internal/strategy"

	"go.uber.org/zap"
)

// SnapshotSource supplies a fresh market snapshot for one pair.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context, pair string) (market.Snapshot, error)
}

// Submitter is the execution entry point seen by the engine.
type Submitter interface {
	Submit(ctx context.Context, order exec.Order) (exec.FillResult, error)
}

// Engine runs the per-pair decision cycle. One Engine is shared by all pair
// loops; the tracker and monitor serialize the state they guard, so Cycle is
// safe to call concurrently for different pairs.
type Engine struct {
	log        *zap.Logger
	source     SnapshotSource
	checker    strategy.ConstraintChecker
	detector   strategy.Detector
	policy     strategy.ModePolicy
	monitor    *strategy.Monitor
	tracker    *budget.Tracker
	permission permission.Provider
	executor   Submitter
	positions  *account.Positions
	store      state.Store
	metrics    *metrics.Metrics
	sink       Sink
	alerts     *alerts.Telegram

	notionalUSD   float64
	maxDataDelay  time.Duration
	fetchTimeout  time.Duration
	submitTimeout time.Duration
	now           func() time.Time
}

type EngineConfig struct {
	Log        *zap.Logger
	Source     SnapshotSource
	Checker    strategy.ConstraintChecker
	Detector   strategy.Detector
	Policy     strategy.ModePolicy
	Monitor    *strategy.Monitor
	Tracker    *budget.Tracker
	Permission permission.Provider
	Executor   Submitter
	Positions  *account.Positions
	Store      state.Store
	Metrics    *metrics.Metrics
	Sink       Sink
	Alerts     *alerts.Telegram

	NotionalUSD   float64
	MaxDataDelay  time.Duration
	FetchTimeout  time.Duration
	SubmitTimeout time.Duration
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Engine{
		log:           cfg.Log,
		source:        cfg.Source,
		checker:       cfg.Checker,
		detector:      cfg.Detector,
		policy:        cfg.Policy,
		monitor:       cfg.Monitor,
		tracker:       cfg.Tracker,
		permission:    cfg.Permission,
		executor:      cfg.Executor,
		positions:     cfg.Positions,
		store:         cfg.Store,
		metrics:       cfg.Metrics,
		sink:          cfg.Sink,
		alerts:        cfg.Alerts,
		notionalUSD:   cfg.NotionalUSD,
		maxDataDelay:  cfg.MaxDataDelay,
		fetchTimeout:  cfg.FetchTimeout,
		submitTimeout: cfg.SubmitTimeout,
		now:           time.Now,
	}
}

// SetClock is for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Cycle runs one decision cycle for a pair: safety tick, permission check,
// fetch, constraint check, scoring, reserve, execute, settle. Exactly one
// decision event is emitted per call.
func (e *Engine) Cycle(ctx context.Context, pair string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := e.now()
	e.metrics.CyclesTotal.Inc()

	prev := e.monitor.Status()
	status := e.monitor.Tick(now)
	if prev == strategy.StatusSafeMode && status == strategy.StatusRunning {
		e.metrics.SafeModeRestored.Inc()
		e.notify(ctx, "safe mode lifted, trading resumed")
	}

	switch status {
	case strategy.StatusIdle, strategy.StatusSafeMode:
		e.emit(ctx, DecisionEvent{Time: now, Pair: pair, Decision: DecisionHalted, Status: status})
		return nil
	case strategy.StatusPermissionExpired:
		if !e.permissionHealthy(ctx, now) {
			e.emit(ctx, DecisionEvent{Time: now, Pair: pair, Decision: DecisionHalted, Status: status, Reason: "permission not renewed"})
			return nil
		}
		e.monitor.Renew()
		status = e.monitor.Status()
		e.log.Info("permission renewed, resuming")
	}

	if !e.permissionHealthy(ctx, now) {
		e.monitor.ExpirePermission()
		e.metrics.PermissionExpiration.Inc()
		e.notify(ctx, "spend permission expired or revoked, trading halted")
		e.emit(ctx, DecisionEvent{Time: now, Pair: pair, Decision: DecisionHalted, Status: e.monitor.Status(), Reason: "permission expired"})
		return nil
	}

	fetchCtx, cancel := e.withTimeout(ctx, e.fetchTimeout)
	snap, err := e.source.FetchSnapshot(fetchCtx, pair)
	cancel()
	if err != nil {
		e.recordFailure(ctx, now)
		e.emit(ctx, DecisionEvent{Time: now, Pair: pair, Decision: DecisionFailed, Status: e.monitor.Status(), Reason: err.Error()})
		return fmt.Errorf("fetch snapshot for %s: %w", pair, err)
	}

	// Stale data is a market condition, not a collaborator failure: the
	// cycle is skipped without touching the failure counter.
	if e.maxDataDelay > 0 && snap.Age(now) > e.maxDataDelay {
		e.metrics.CyclesSkippedStale.Inc()
		e.emit(ctx, DecisionEvent{Time: now, Pair: pair, Decision: DecisionSkippedStale, Status: status, PriceSum: snap.PriceSum()})
		return nil
	}

	sum := snap.PriceSum()
	deviation := sum - 1.0
	spread := deviation
	if spread < 0 {
		spread = -spread
	}

	if signal, ok := e.positions.CheckExit(pair, spread, now); ok {
		pos := signal.Position
		pnl := (pos.EntrySpread - spread) * pos.NotionalUSD
		e.positions.Close(pair, pnl, pos.FeePaid)
		e.notify(ctx, "closed %s position on %s (%s), pnl %.4f USD", pos.Direction, pair, signal.Reason, pnl)
		e.emit(ctx, DecisionEvent{
			Time: now, Pair: pair, Decision: DecisionPositionExited, Status: status,
			PriceSum: sum, Deviation: deviation, FilledUSD: pos.NotionalUSD, Reason: string(signal.Reason),
		})
		e.monitor.RecordSuccess(now)
		return nil
	}

	violation, found := e.checker.Check(snap)
	if !found {
		e.emit(ctx, DecisionEvent{Time: now, Pair: pair, Decision: DecisionNoViolation, Status: status, PriceSum: sum, Deviation: deviation})
		e.monitor.RecordSuccess(now)
		return nil
	}
	e.metrics.ViolationsDetected.Inc()

	if _, open := e.positions.Get(pair); open {
		e.emit(ctx, DecisionEvent{Time: now, Pair: pair, Decision: DecisionHoldingOpen, Status: status, PriceSum: sum, Deviation: deviation})
		e.monitor.RecordSuccess(now)
		return nil
	}

	mode := e.policy.ModeFor(e.tracker.RemainingFraction())
	opp, ok := e.detector.Evaluate(violation, snap, e.notionalUSD, mode)
	if !ok {
		e.emit(ctx, DecisionEvent{Time: now, Pair: pair, Decision: DecisionBelowEdge, Status: status, Mode: mode, PriceSum: sum, Deviation: deviation})
		e.monitor.RecordSuccess(now)
		return nil
	}
	e.metrics.OpportunitiesScored.Inc()

	auth, err := e.tracker.Reserve(opp.NotionalUSD)
	if err != nil {
		if errors.Is(err, budget.ErrInsufficientAllowance) {
			e.metrics.BudgetRejected.Inc()
			e.emit(ctx, DecisionEvent{
				Time: now, Pair: pair, Decision: DecisionBudgetRejected, Status: status, Mode: mode,
				PriceSum: sum, Deviation: deviation, Opportunity: &opp,
			})
			e.monitor.RecordSuccess(now)
			return nil
		}
		return err
	}

	order := exec.Order{
		Pair:          pair,
		Side:          sideFor(opp.Direction),
		NotionalUSD:   opp.NotionalUSD,
		Price:         referencePrice(snap),
		ClientOrderID: fmt.Sprintf("arb-%s-%d", pair, now.UnixMilli()),
	}
	submitCtx, cancel := e.withTimeout(ctx, e.submitTimeout)
	fill, err := e.executor.Submit(submitCtx, order)
	cancel()
	if err != nil {
		// Ambiguous or timed-out submissions count as not filled; the
		// reservation goes back to the pool.
		e.tracker.Release(auth)
		e.metrics.TradesFailed.Inc()
		e.recordFailure(ctx, now)
		e.emit(ctx, DecisionEvent{
			Time: now, Pair: pair, Decision: DecisionFailed, Status: e.monitor.Status(), Mode: mode,
			PriceSum: sum, Deviation: deviation, Opportunity: &opp, Reason: err.Error(),
		})
		return fmt.Errorf("submit order for %s: %w", pair, err)
	}

	e.tracker.Commit(auth, fill.FilledUSD)
	e.metrics.TradesSubmitted.Inc()
	e.positions.Open(account.Position{
		Pair:        pair,
		Direction:   opp.Direction,
		NotionalUSD: fill.FilledUSD,
		EntrySpread: violation.Magnitude,
		EntryPrice:  fill.AvgPrice,
		FeePaid:     fill.FeePaid,
		OpenedAt:    now,
	})
	e.persistBudget(ctx, now)
	e.monitor.RecordSuccess(now)
	e.notify(ctx, "%s %s %.2f USD filled %.2f at %.4f", opp.Direction, pair, opp.NotionalUSD, fill.FilledUSD, fill.AvgPrice)
	e.emit(ctx, DecisionEvent{
		Time: now, Pair: pair, Decision: DecisionExecuted, Status: status, Mode: mode,
		PriceSum: sum, Deviation: deviation, Opportunity: &opp, FilledUSD: fill.FilledUSD,
	})
	return nil
}

// permissionHealthy reports whether the grant still authorizes trading. The
// provider is expected to be wrapped fail-closed, so a query failure reads as
// revoked here.
func (e *Engine) permissionHealthy(ctx context.Context, now time.Time) bool {
	revoked, err := e.permission.Revoked(ctx)
	if err != nil || revoked {
		return false
	}
	end, err := e.permission.WindowEnd(ctx)
	if err != nil || !end.After(now) {
		return false
	}
	return true
}

func (e *Engine) recordFailure(ctx context.Context, now time.Time) {
	prev := e.monitor.Status()
	status := e.monitor.RecordFailure(now)
	if prev != strategy.StatusSafeMode && status == strategy.StatusSafeMode {
		e.metrics.SafeModeEngaged.Inc()
		e.notify(ctx, "consecutive failures reached limit, safe mode until %s", e.monitor.SafeModeUntil().UTC().Format(time.RFC3339))
	}
}

func (e *Engine) persistBudget(ctx context.Context, now time.Time) {
	if e.store == nil {
		return
	}
	consumed, windowStart := e.tracker.Export()
	err := state.SaveBudgetSnapshot(ctx, e.store, state.BudgetSnapshot{
		ConsumedUSD:   consumed,
		WindowStartMS: windowStart.UnixMilli(),
		UpdatedAtMS:   now.UnixMilli(),
	})
	if err != nil {
		e.log.Warn("budget snapshot persist failed", zap.Error(err))
	}
}

func (e *Engine) emit(ctx context.Context, event DecisionEvent) {
	event.ConsumedUSD = e.tracker.Consumed()
	event.PermittedUSD = e.tracker.Permitted()
	if e.sink != nil {
		e.sink.Emit(ctx, event)
	}
}

func (e *Engine) notify(ctx context.Context, format string, args ...any) {
	if e.alerts != nil {
		e.alerts.Sendf(ctx, format, args...)
	}
}

func (e *Engine) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func sideFor(direction strategy.Direction) market.Side {
	if direction == strategy.DirectionSell {
		return market.SideSell
	}
	return market.SideBuy
}

// referencePrice is the per-leg signal price the venue's latency model moves:
// the average outcome price of the basket.
func referencePrice(snap market.Snapshot) float64 {
	if len(snap.Prices) == 0 {
		return 0
	}
	return snap.PriceSum() / float64(len(snap.Prices))
}
