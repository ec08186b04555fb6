package account

import (
	"sync"
	"time"

	"polyshark/internal/strategy"
)

type ExitReason string

const (
	ExitMeanReversion ExitReason = "MEAN_REVERSION"
	ExitStopLoss      ExitReason = "STOP_LOSS"
	ExitTimeout       ExitReason = "TIMEOUT"
)

// Position is an open basket held against one pair.
type Position struct {
	Pair        string
	Direction   strategy.Direction
	NotionalUSD float64
	EntrySpread float64
	EntryPrice  float64
	FeePaid     float64
	OpenedAt    time.Time
}

// ExitSignal tells the loop to unwind a position and why.
type ExitSignal struct {
	Position Position
	Reason   ExitReason
}

// ExitRules are the thresholds for closing an open basket.
type ExitRules struct {
	ProfitTargetSpread float64
	StopLossSpread     float64
	MaxHoldTime        time.Duration
}

// Positions tracks open baskets and realized results. One instance is shared
// across pair loops; all access is serialized.
type Positions struct {
	mu       sync.Mutex
	open     map[string]Position
	rules    ExitRules
	realized float64
	fees     float64
	wins     int
	losses   int
}

func NewPositions(rules ExitRules) *Positions {
	return &Positions{
		open:  make(map[string]Position),
		rules: rules,
	}
}

// Open records a filled basket. One position per pair; an existing one is
// replaced only after it closes.
func (p *Positions) Open(pos Position) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.open[pos.Pair]; exists {
		return false
	}
	p.open[pos.Pair] = pos
	return true
}

func (p *Positions) Get(pair string) (Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.open[pair]
	return pos, ok
}

func (p *Positions) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.open)
}

// CheckExit evaluates the exit rules for a pair against the current spread.
// Priority: stop loss, then profit target, then timeout.
func (p *Positions) CheckExit(pair string, currentSpread float64, now time.Time) (ExitSignal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.open[pair]
	if !ok {
		return ExitSignal{}, false
	}
	if p.rules.StopLossSpread > 0 && currentSpread > pos.EntrySpread+p.rules.StopLossSpread {
		return ExitSignal{Position: pos, Reason: ExitStopLoss}, true
	}
	if currentSpread < p.rules.ProfitTargetSpread {
		return ExitSignal{Position: pos, Reason: ExitMeanReversion}, true
	}
	if p.rules.MaxHoldTime > 0 && now.Sub(pos.OpenedAt) >= p.rules.MaxHoldTime {
		return ExitSignal{Position: pos, Reason: ExitTimeout}, true
	}
	return ExitSignal{}, false
}

// Close settles a position with its realized pnl and fees.
func (p *Positions) Close(pair string, pnlUSD, feesUSD float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.open[pair]; !ok {
		return
	}
	delete(p.open, pair)
	p.realized += pnlUSD
	p.fees += feesUSD
	if pnlUSD > 0 {
		p.wins++
	} else {
		p.losses++
	}
}

func (p *Positions) RealizedPnLUSD() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.realized
}

func (p *Positions) FeesPaidUSD() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fees
}

// WinRate is wins over settled trades; 0 before any settlement.
func (p *Positions) WinRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := p.wins + p.losses
	if total == 0 {
		return 0
	}
	return float64(p.wins) / float64(total)
}
