package exec

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"polyshark/internal/market"
	"polyshark/internal/state"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

var ErrAmbiguousFill = errors.New("ambiguous execution result")

// Order is a basket trade request in USD notional terms. Price is the signal
// reference price used by the venue's slippage/latency model.
type Order struct {
	Pair          string
	Side          market.Side
	NotionalUSD   float64
	Price         float64
	ClientOrderID string
}

// FillResult reports the actual execution. FilledUSD may be less than
// requested; budget accounting downstream always uses FilledUSD.
type FillResult struct {
	FilledUSD float64 `msgpack:"filled_usd"`
	AvgPrice  float64 `msgpack:"avg_price"`
	FeePaid   float64 `msgpack:"fee_paid"`
}

// Venue is the execution collaborator. A timeout or ambiguous response must
// surface as an error so the caller releases the budget reservation; the
// venue must never report success it cannot prove.
type Venue interface {
	Submit(ctx context.Context, order Order) (FillResult, error)
}

// Executor makes submission idempotent: settled fills are persisted keyed by
// client order id, so a crash-and-retry cannot spend the allowance twice.
type Executor struct {
	venue Venue
	store state.Store
	log   *zap.Logger

	mu    sync.Mutex
	cache map[string]FillResult
}

func New(venue Venue, store state.Store, log *zap.Logger) *Executor {
	return &Executor{
		venue: venue,
		store: store,
		log:   log,
		cache: make(map[string]FillResult),
	}
}

func (e *Executor) Submit(ctx context.Context, order Order) (FillResult, error) {
	if order.NotionalUSD <= 0 {
		return FillResult{}, fmt.Errorf("order notional must be > 0, got %f", order.NotionalUSD)
	}
	if order.ClientOrderID == "" {
		return e.venue.Submit(ctx, order)
	}
	cacheKey := "fill:" + order.ClientOrderID
	e.mu.Lock()
	if fill, ok := e.cache[cacheKey]; ok {
		e.mu.Unlock()
		return fill, nil
	}
	e.mu.Unlock()
	if e.store != nil {
		if raw, ok, err := e.store.Get(ctx, cacheKey); err != nil {
			return FillResult{}, err
		} else if ok {
			var fill FillResult
			if err := msgpack.Unmarshal(raw, &fill); err != nil {
				return FillResult{}, err
			}
			e.mu.Lock()
			e.cache[cacheKey] = fill
			e.mu.Unlock()
			return fill, nil
		}
	}
	// No blind retries here: a submission that timed out may or may not have
	// executed, and retrying it could double-spend. The caller treats the
	// error as "not filled" and releases its reservation.
	fill, err := e.venue.Submit(ctx, order)
	if err != nil {
		return FillResult{}, err
	}
	if e.store != nil {
		payload, err := msgpack.Marshal(fill)
		if err == nil {
			err = e.store.Set(ctx, cacheKey, payload)
		}
		if err != nil {
			e.log.Warn("failed to persist fill", zap.String("client_order_id", order.ClientOrderID), zap.Error(err))
		}
	}
	e.mu.Lock()
	e.cache[cacheKey] = fill
	e.mu.Unlock()
	return fill, nil
}
