package budget

import (
	"errors"
	"sync"
	"time"
)

var ErrInsufficientAllowance = errors.New("insufficient allowance")

// Authorization is a provisional reservation handle. It must be settled with
// exactly one Commit or Release.
type Authorization struct {
	id     uint64
	amount float64
}

func (a Authorization) Amount() float64 { return a.amount }
func (a Authorization) Valid() bool     { return a.id != 0 }

// Tracker enforces the permitted spend for the active allowance window. All
// pair loops share one Tracker; every operation is serialized so concurrent
// reservations can never jointly exceed the allowance.
//
// The window rolls lazily: elapsed windows are reset on the next call, not by
// a timer.
type Tracker struct {
	mu          sync.Mutex
	permitted   float64
	consumed    float64
	windowStart time.Time
	windowLen   time.Duration
	pending     map[uint64]float64
	nextID      uint64
	now         func() time.Time
}

func NewTracker(permitted float64, windowLen time.Duration) *Tracker {
	t := &Tracker{
		permitted: permitted,
		windowLen: windowLen,
		pending:   make(map[uint64]float64),
		now:       time.Now,
	}
	t.windowStart = t.now()
	return t
}

// SetClock is for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Reserve checks committed plus provisional spend against the permitted
// amount and holds the requested amount on success. The check happens before
// execution, never after: the over-limit state is unreachable.
func (t *Tracker) Reserve(amount float64) (Authorization, error) {
	if amount <= 0 {
		return Authorization{}, errors.New("reserve amount must be > 0")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollWindowLocked()
	if t.consumed+t.pendingTotalLocked()+amount > t.permitted {
		return Authorization{}, ErrInsufficientAllowance
	}
	t.nextID++
	auth := Authorization{id: t.nextID, amount: amount}
	t.pending[auth.id] = amount
	return auth, nil
}

// Commit settles a reservation with the actual filled amount, which may be
// smaller than reserved on a partial fill. Committing more than was reserved
// is capped at the reservation.
func (t *Tracker) Commit(auth Authorization, actualFilled float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	reserved, ok := t.pending[auth.id]
	if !ok {
		return
	}
	delete(t.pending, auth.id)
	if actualFilled < 0 {
		actualFilled = 0
	}
	if actualFilled > reserved {
		actualFilled = reserved
	}
	t.consumed += actualFilled
}

// Release returns a reserved amount to the pool after a failed execution.
// Releasing an already-settled authorization is a no-op.
func (t *Tracker) Release(auth Authorization) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, auth.id)
}

// ProvisionalConsumed is committed plus outstanding reservations.
func (t *Tracker) ProvisionalConsumed() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollWindowLocked()
	return t.consumed + t.pendingTotalLocked()
}

func (t *Tracker) Consumed() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollWindowLocked()
	return t.consumed
}

func (t *Tracker) Permitted() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.permitted
}

func (t *Tracker) WindowStart() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollWindowLocked()
	return t.windowStart
}

// RemainingFraction drives strategy-mode selection. A zero or exhausted
// allowance reports 0, which maps to the most conservative mode.
func (t *Tracker) RemainingFraction() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollWindowLocked()
	if t.permitted <= 0 {
		return 0
	}
	frac := (t.permitted - t.consumed - t.pendingTotalLocked()) / t.permitted
	if frac < 0 {
		return 0
	}
	if frac > 1 {
		return 1
	}
	return frac
}

// Export returns the committed state for persistence. Pending reservations
// are in flight and never persisted.
func (t *Tracker) Export() (consumed float64, windowStart time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consumed, t.windowStart
}

// Restore seeds the tracker from persisted state, so the allowance window
// survives a restart. A window that already elapsed is dropped.
func (t *Tracker) Restore(consumed float64, windowStart time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if windowStart.IsZero() || consumed < 0 {
		return
	}
	t.consumed = consumed
	t.windowStart = windowStart
	t.rollWindowLocked()
}

func (t *Tracker) rollWindowLocked() {
	if t.windowLen <= 0 {
		return
	}
	now := t.now()
	if now.Sub(t.windowStart) >= t.windowLen {
		t.consumed = 0
		t.windowStart = now
	}
}

func (t *Tracker) pendingTotalLocked() float64 {
	var total float64
	for _, amount := range t.pending {
		total += amount
	}
	return total
}
