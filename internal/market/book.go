package market

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type Level struct {
	Price float64
	Size  float64
}

// Book is a single outcome token's order book.
type Book struct {
	Bids      []Level
	Asks      []Level
	Timestamp time.Time
}

var ErrInsufficientDepth = errors.New("insufficient book depth")

// Normalized returns a copy with bids sorted descending and asks ascending.
func (b Book) Normalized() Book {
	bids := append([]Level(nil), b.Bids...)
	asks := append([]Level(nil), b.Asks...)
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
	return Book{Bids: bids, Asks: asks, Timestamp: b.Timestamp}
}

func (b Book) BestBid() (Level, bool) {
	if len(b.Bids) == 0 {
		return Level{}, false
	}
	return b.Bids[0], true
}

func (b Book) BestAsk() (Level, bool) {
	if len(b.Asks) == 0 {
		return Level{}, false
	}
	return b.Asks[0], true
}

func (b Book) Midpoint() (float64, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	return (bid.Price + ask.Price) / 2, true
}

func (b Book) Spread() (float64, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	return ask.Price - bid.Price, true
}

// TotalLiquidity is the notional resting on the side a taker of the given
// direction would hit.
func (b Book) TotalLiquidity(side Side) float64 {
	levels := b.Asks
	if side == SideSell {
		levels = b.Bids
	}
	var total float64
	for _, lvl := range levels {
		total += lvl.Price * lvl.Size
	}
	return total
}

// ExecutionPrice walks the book and returns the volume-weighted average price
// for filling the requested size, taking asks on a buy and bids on a sell.
func (b Book) ExecutionPrice(size float64, side Side) (float64, error) {
	if size <= 0 {
		return 0, fmt.Errorf("size must be > 0, got %f", size)
	}
	levels := b.Asks
	if side == SideSell {
		levels = b.Bids
	}
	remaining := size
	var cost float64
	for _, lvl := range levels {
		take := lvl.Size
		if take > remaining {
			take = remaining
		}
		cost += take * lvl.Price
		remaining -= take
		if remaining <= 0 {
			return cost / size, nil
		}
	}
	return 0, fmt.Errorf("%w: %f of %f unfilled", ErrInsufficientDepth, remaining, size)
}
