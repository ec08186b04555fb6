package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"polyshark/internal/account"
	"polyshark/internal/budget"
	"polyshark/internal/exec"
	"polyshark/internal/market"
	"polyshark/internal/permission"
	"polyshark/internal/strategy"
)

type fakeSource struct {
	snap market.Snapshot
	err  error
}

func (f *fakeSource) FetchSnapshot(ctx context.Context, pair string) (market.Snapshot, error) {
	if f.err != nil {
		return market.Snapshot{}, f.err
	}
	snap := f.snap
	snap.Pair = pair
	return snap, nil
}

type fakeSubmitter struct {
	fill   exec.FillResult
	err    error
	orders []exec.Order
}

func (f *fakeSubmitter) Submit(ctx context.Context, order exec.Order) (exec.FillResult, error) {
	f.orders = append(f.orders, order)
	if f.err != nil {
		return exec.FillResult{}, f.err
	}
	if f.fill.FilledUSD == 0 {
		return exec.FillResult{FilledUSD: order.NotionalUSD, AvgPrice: order.Price}, nil
	}
	return f.fill, nil
}

type stubProvider struct {
	revoked bool
	end     time.Time
}

var _ permission.Provider = (*stubProvider)(nil)

func (s *stubProvider) RemainingAllowance(ctx context.Context) (float64, error) { return 0, nil }
func (s *stubProvider) WindowEnd(ctx context.Context) (time.Time, error)        { return s.end, nil }
func (s *stubProvider) Revoked(ctx context.Context) (bool, error)               { return s.revoked, nil }

type recordingSink struct {
	events []DecisionEvent
}

func (r *recordingSink) Emit(ctx context.Context, event DecisionEvent) {
	r.events = append(r.events, event)
}

func (r *recordingSink) last(t *testing.T) DecisionEvent {
	t.Helper()
	if len(r.events) == 0 {
		t.Fatal("no decision events emitted")
	}
	return r.events[len(r.events)-1]
}

type harness struct {
	engine    *Engine
	source    *fakeSource
	submitter *fakeSubmitter
	provider  *stubProvider
	sink      *recordingSink
	tracker   *budget.Tracker
	monitor   *strategy.Monitor
	positions *account.Positions
	now       time.Time
}

func newHarness(t *testing.T, permitted float64) *harness {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h := &harness{
		source:    &fakeSource{},
		submitter: &fakeSubmitter{},
		provider:  &stubProvider{end: now.Add(24 * time.Hour)},
		sink:      &recordingSink{},
		tracker:   budget.NewTracker(permitted, 24*time.Hour),
		monitor:   strategy.NewMonitor(3, 300*time.Second),
		positions: account.NewPositions(account.ExitRules{ProfitTargetSpread: 0.005, StopLossSpread: 0.05, MaxHoldTime: time.Hour}),
		now:       now,
	}
	h.tracker.SetClock(func() time.Time { return h.now })
	policy := strategy.ModePolicy{
		ConservativeThreshold: 0.30,
		AggressiveThreshold:   0.70,
		ConservativeMinEdge:   0.05,
		NormalMinEdge:         0.02,
		AggressiveMinEdge:     0.01,
	}
	costs := strategy.CostModel{TakerFeeRate: 0.002, SlippageCoeff: 0.1, SlippageExponent: 1.5}
	h.engine = NewEngine(EngineConfig{
		Source:        h.source,
		Checker:       strategy.NewConstraintChecker(0.001),
		Detector:      strategy.NewDetector(costs, policy),
		Policy:        policy,
		Monitor:       h.monitor,
		Tracker:       h.tracker,
		Permission:    h.provider,
		Executor:      h.submitter,
		Positions:     h.positions,
		Sink:          h.sink,
		NotionalUSD:   100,
		MaxDataDelay:  5 * time.Second,
		FetchTimeout:  time.Second,
		SubmitTimeout: time.Second,
	})
	h.engine.SetClock(func() time.Time { return h.now })
	h.monitor.Start()
	h.source.snap = overpricedSnapshot(h.now)
	return h
}

func overpricedSnapshot(ts time.Time) market.Snapshot {
	return market.Snapshot{
		Outcomes:  []string{"Yes", "No"},
		Prices:    []float64{0.52, 0.52},
		Liquidity: 100000,
		Timestamp: ts,
	}
}

func balancedSnapshot(ts time.Time) market.Snapshot {
	return market.Snapshot{
		Outcomes:  []string{"Yes", "No"},
		Prices:    []float64{0.48, 0.52},
		Liquidity: 100000,
		Timestamp: ts,
	}
}

func TestCycleExecutesOnViolation(t *testing.T) {
	h := newHarness(t, 1000)
	if err := h.engine.Cycle(context.Background(), "cond-1"); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	event := h.sink.last(t)
	if event.Decision != DecisionExecuted {
		t.Fatalf("decision = %s, want %s", event.Decision, DecisionExecuted)
	}
	if len(h.submitter.orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(h.submitter.orders))
	}
	order := h.submitter.orders[0]
	if order.Side != market.SideSell {
		t.Fatalf("overpriced set must sell, got %s", order.Side)
	}
	if h.tracker.Consumed() != 100 {
		t.Fatalf("consumed = %f, want 100", h.tracker.Consumed())
	}
	if _, open := h.positions.Get("cond-1"); !open {
		t.Fatal("expected an open position after execution")
	}
}

func TestCycleUnderpricedBuys(t *testing.T) {
	h := newHarness(t, 1000)
	h.source.snap = market.Snapshot{
		Outcomes:  []string{"Yes", "No"},
		Prices:    []float64{0.46, 0.48},
		Liquidity: 100000,
		Timestamp: h.now,
	}
	if err := h.engine.Cycle(context.Background(), "cond-1"); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if got := h.submitter.orders[0].Side; got != market.SideBuy {
		t.Fatalf("underpriced set must buy, got %s", got)
	}
}

func TestCycleNoViolation(t *testing.T) {
	h := newHarness(t, 1000)
	h.source.snap = balancedSnapshot(h.now)
	if err := h.engine.Cycle(context.Background(), "cond-1"); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if got := h.sink.last(t).Decision; got != DecisionNoViolation {
		t.Fatalf("decision = %s, want %s", got, DecisionNoViolation)
	}
	if len(h.submitter.orders) != 0 {
		t.Fatal("no order should be submitted without a violation")
	}
}

func TestCycleStaleDataSkipsWithoutFailure(t *testing.T) {
	h := newHarness(t, 1000)
	h.source.snap = overpricedSnapshot(h.now.Add(-time.Minute))
	for i := 0; i < 5; i++ {
		if err := h.engine.Cycle(context.Background(), "cond-1"); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		if got := h.sink.last(t).Decision; got != DecisionSkippedStale {
			t.Fatalf("decision = %s, want %s", got, DecisionSkippedStale)
		}
	}
	if h.monitor.Failures() != 0 {
		t.Fatalf("stale skips must not count as failures, got %d", h.monitor.Failures())
	}
	if h.monitor.Status() != strategy.StatusRunning {
		t.Fatalf("status = %s, want RUNNING", h.monitor.Status())
	}
}

func TestCycleFetchFailuresTripSafeMode(t *testing.T) {
	h := newHarness(t, 1000)
	h.source.err = errors.New("gamma unreachable")
	for i := 0; i < 3; i++ {
		if err := h.engine.Cycle(context.Background(), "cond-1"); err == nil {
			t.Fatalf("cycle %d: expected error", i)
		}
	}
	if h.monitor.Status() != strategy.StatusSafeMode {
		t.Fatalf("status = %s, want SAFE_MODE", h.monitor.Status())
	}

	// While cooling down the cycle is halted even with good data.
	h.source.err = nil
	if err := h.engine.Cycle(context.Background(), "cond-1"); err != nil {
		t.Fatalf("halted cycle: %v", err)
	}
	if got := h.sink.last(t).Decision; got != DecisionHalted {
		t.Fatalf("decision = %s, want %s", got, DecisionHalted)
	}

	// After the cooldown the next tick recovers and trades again.
	h.now = h.now.Add(301 * time.Second)
	h.source.snap = overpricedSnapshot(h.now)
	if err := h.engine.Cycle(context.Background(), "cond-1"); err != nil {
		t.Fatalf("recovered cycle: %v", err)
	}
	if got := h.sink.last(t).Decision; got != DecisionExecuted {
		t.Fatalf("decision = %s, want %s", got, DecisionExecuted)
	}
	if h.monitor.Failures() != 0 {
		t.Fatalf("recovery must reset failures, got %d", h.monitor.Failures())
	}
}

func TestCycleSubmitFailureReleasesReservation(t *testing.T) {
	h := newHarness(t, 1000)
	h.submitter.err = exec.ErrAmbiguousFill
	if err := h.engine.Cycle(context.Background(), "cond-1"); err == nil {
		t.Fatal("expected cycle error")
	}
	if got := h.sink.last(t).Decision; got != DecisionFailed {
		t.Fatalf("decision = %s, want %s", got, DecisionFailed)
	}
	if h.tracker.ProvisionalConsumed() != 0 {
		t.Fatalf("reservation must be released, provisional = %f", h.tracker.ProvisionalConsumed())
	}
	if h.monitor.Failures() != 1 {
		t.Fatalf("failures = %d, want 1", h.monitor.Failures())
	}
}

func TestCyclePartialFillConsumesActual(t *testing.T) {
	h := newHarness(t, 1000)
	h.submitter.fill = exec.FillResult{FilledUSD: 37.5, AvgPrice: 0.52}
	if err := h.engine.Cycle(context.Background(), "cond-1"); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if h.tracker.Consumed() != 37.5 {
		t.Fatalf("consumed = %f, want 37.5", h.tracker.Consumed())
	}
	if got := h.sink.last(t).FilledUSD; got != 37.5 {
		t.Fatalf("event filled = %f, want 37.5", got)
	}
}

func TestCycleBudgetRejected(t *testing.T) {
	h := newHarness(t, 50)
	if err := h.engine.Cycle(context.Background(), "cond-1"); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if got := h.sink.last(t).Decision; got != DecisionBudgetRejected {
		t.Fatalf("decision = %s, want %s", got, DecisionBudgetRejected)
	}
	if len(h.submitter.orders) != 0 {
		t.Fatal("rejected reservation must never reach the venue")
	}
	if h.monitor.Status() != strategy.StatusRunning {
		t.Fatalf("budget rejection is not a failure, status = %s", h.monitor.Status())
	}
}

func TestCyclePermissionExpiredAndRenewed(t *testing.T) {
	h := newHarness(t, 1000)
	h.provider.end = h.now.Add(-time.Minute)
	if err := h.engine.Cycle(context.Background(), "cond-1"); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if h.monitor.Status() != strategy.StatusPermissionExpired {
		t.Fatalf("status = %s, want PERMISSION_EXPIRED", h.monitor.Status())
	}
	if got := h.sink.last(t).Decision; got != DecisionHalted {
		t.Fatalf("decision = %s, want %s", got, DecisionHalted)
	}

	// Still expired: no trading.
	if err := h.engine.Cycle(context.Background(), "cond-1"); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(h.submitter.orders) != 0 {
		t.Fatal("expired permission must block trading")
	}

	// Renewal resumes the loop in the same cycle.
	h.provider.end = h.now.Add(24 * time.Hour)
	if err := h.engine.Cycle(context.Background(), "cond-1"); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if got := h.sink.last(t).Decision; got != DecisionExecuted {
		t.Fatalf("decision = %s, want %s", got, DecisionExecuted)
	}
}

func TestCycleRevokedPermissionHalts(t *testing.T) {
	h := newHarness(t, 1000)
	h.provider.revoked = true
	if err := h.engine.Cycle(context.Background(), "cond-1"); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if h.monitor.Status() != strategy.StatusPermissionExpired {
		t.Fatalf("status = %s, want PERMISSION_EXPIRED", h.monitor.Status())
	}
	if len(h.submitter.orders) != 0 {
		t.Fatal("revoked permission must block trading")
	}
}

func TestCycleConservativeModeRaisesBar(t *testing.T) {
	h := newHarness(t, 1000)
	// Drain most of the allowance: 20% remaining selects conservative mode,
	// and a 4% edge no longer clears the 5% minimum.
	auth, err := h.tracker.Reserve(800)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	h.tracker.Commit(auth, 800)
	if err := h.engine.Cycle(context.Background(), "cond-1"); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	event := h.sink.last(t)
	if event.Decision != DecisionBelowEdge {
		t.Fatalf("decision = %s, want %s", event.Decision, DecisionBelowEdge)
	}
	if event.Mode != strategy.ModeConservative {
		t.Fatalf("mode = %s, want CONSERVATIVE", event.Mode)
	}
}

func TestCycleHoldsOpenPosition(t *testing.T) {
	h := newHarness(t, 1000)
	if err := h.engine.Cycle(context.Background(), "cond-1"); err != nil {
		t.Fatalf("entry cycle: %v", err)
	}
	// Violation persists: the open basket blocks a second entry.
	if err := h.engine.Cycle(context.Background(), "cond-1"); err != nil {
		t.Fatalf("holding cycle: %v", err)
	}
	if got := h.sink.last(t).Decision; got != DecisionHoldingOpen {
		t.Fatalf("decision = %s, want %s", got, DecisionHoldingOpen)
	}
	if len(h.submitter.orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(h.submitter.orders))
	}
}

func TestCycleExitsOnMeanReversion(t *testing.T) {
	h := newHarness(t, 1000)
	if err := h.engine.Cycle(context.Background(), "cond-1"); err != nil {
		t.Fatalf("entry cycle: %v", err)
	}
	h.source.snap = market.Snapshot{
		Outcomes:  []string{"Yes", "No"},
		Prices:    []float64{0.499, 0.501},
		Liquidity: 100000,
		Timestamp: h.now,
	}
	if err := h.engine.Cycle(context.Background(), "cond-1"); err != nil {
		t.Fatalf("exit cycle: %v", err)
	}
	event := h.sink.last(t)
	if event.Decision != DecisionPositionExited {
		t.Fatalf("decision = %s, want %s", event.Decision, DecisionPositionExited)
	}
	if event.Reason != string(account.ExitMeanReversion) {
		t.Fatalf("reason = %s, want %s", event.Reason, account.ExitMeanReversion)
	}
	if _, open := h.positions.Get("cond-1"); open {
		t.Fatal("position must be closed after exit")
	}
	if h.positions.RealizedPnLUSD() <= 0 {
		t.Fatalf("mean reversion exit should realize profit, got %f", h.positions.RealizedPnLUSD())
	}
}

func TestCycleExitsOnTimeout(t *testing.T) {
	h := newHarness(t, 1000)
	if err := h.engine.Cycle(context.Background(), "cond-1"); err != nil {
		t.Fatalf("entry cycle: %v", err)
	}
	h.now = h.now.Add(2 * time.Hour)
	h.source.snap = overpricedSnapshot(h.now)
	if err := h.engine.Cycle(context.Background(), "cond-1"); err != nil {
		t.Fatalf("exit cycle: %v", err)
	}
	event := h.sink.last(t)
	if event.Decision != DecisionPositionExited {
		t.Fatalf("decision = %s, want %s", event.Decision, DecisionPositionExited)
	}
	if event.Reason != string(account.ExitTimeout) {
		t.Fatalf("reason = %s, want %s", event.Reason, account.ExitTimeout)
	}
}

func TestCycleCancelledContext(t *testing.T) {
	h := newHarness(t, 1000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.engine.Cycle(ctx, "cond-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(h.sink.events) != 0 {
		t.Fatal("a cancelled cycle must not emit events")
	}
}

func TestCycleStoppedMonitorHalts(t *testing.T) {
	h := newHarness(t, 1000)
	h.monitor.Stop()
	if err := h.engine.Cycle(context.Background(), "cond-1"); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	event := h.sink.last(t)
	if event.Decision != DecisionHalted || event.Status != strategy.StatusIdle {
		t.Fatalf("event = %s/%s, want HALTED/IDLE", event.Decision, event.Status)
	}
}
