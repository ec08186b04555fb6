package exec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"polyshark/internal/market"

	"go.uber.org/zap"
)

// BookSource supplies the resting book a simulated order would trade
// against. Optional: without one the venue fills fully at the adverse price.
type BookSource interface {
	Book(pair string, side market.Side) (market.Book, bool)
}

// SimVenue is the default execution collaborator: a paper-trading venue that
// walks real order books under the latency model. Fills can be partial; what
// it reports as filled is exactly what the budget tracker should consume.
type SimVenue struct {
	latency *LatencyModel
	feeRate float64
	books   BookSource
	log     *zap.Logger
}

func NewSimVenue(latency *LatencyModel, feeRate float64, books BookSource, log *zap.Logger) *SimVenue {
	return &SimVenue{latency: latency, feeRate: feeRate, books: books, log: log}
}

func (v *SimVenue) Submit(ctx context.Context, order Order) (FillResult, error) {
	price := order.Price
	var delay time.Duration
	if v.latency != nil {
		price, delay = v.latency.Apply(order.Price)
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return FillResult{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if price <= 0 {
		return FillResult{}, fmt.Errorf("adverse move produced unusable price %f", price)
	}
	if v.books == nil {
		return v.fill(order, order.NotionalUSD, price), nil
	}
	book, ok := v.books.Book(order.Pair, order.Side)
	if !ok {
		return v.fill(order, order.NotionalUSD, price), nil
	}
	shares := order.NotionalUSD / price
	available := bookShares(book, order.Side)
	if available <= 0 {
		return FillResult{}, errors.New("no resting liquidity")
	}
	if shares > available {
		shares = available
	}
	vwap, err := book.ExecutionPrice(shares, order.Side)
	if err != nil {
		return FillResult{}, err
	}
	return v.fill(order, shares*vwap, vwap), nil
}

func (v *SimVenue) fill(order Order, filledUSD, avgPrice float64) FillResult {
	fee := filledUSD * v.feeRate
	if v.log != nil && filledUSD < order.NotionalUSD {
		v.log.Debug("partial fill",
			zap.String("pair", order.Pair),
			zap.Float64("requested_usd", order.NotionalUSD),
			zap.Float64("filled_usd", filledUSD),
		)
	}
	return FillResult{FilledUSD: filledUSD, AvgPrice: avgPrice, FeePaid: fee}
}

func bookShares(book market.Book, side market.Side) float64 {
	levels := book.Asks
	if side == market.SideSell {
		levels = book.Bids
	}
	var total float64
	for _, lvl := range levels {
		total += lvl.Size
	}
	return total
}
