package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"polyshark/internal/poly/rest"
	"polyshark/internal/poly/ws"

	"go.uber.org/zap"
)

// MarketData is the data collaborator: REST hydration from Gamma/CLOB plus
// live price updates from the market websocket channel. Snapshots are applied
// in timestamp order per pair; anything older than the retained snapshot is
// discarded.
type MarketData struct {
	rest *rest.Client
	ws   *ws.Client
	log  *zap.Logger
	now  func() time.Time

	mu        sync.Mutex
	latest    map[string]Snapshot
	books     map[string]Book   // token id -> book
	tokenPair map[string]string // token id -> pair id
	tokenIdx  map[string]int    // token id -> outcome index
	pairToken map[string][]string
}

func New(restClient *rest.Client, wsClient *ws.Client, log *zap.Logger) *MarketData {
	return &MarketData{
		rest:      restClient,
		ws:        wsClient,
		log:       log,
		now:       time.Now,
		latest:    make(map[string]Snapshot),
		books:     make(map[string]Book),
		tokenPair: make(map[string]string),
		tokenIdx:  make(map[string]int),
		pairToken: make(map[string][]string),
	}
}

// Track registers a pair for streaming updates. Must be called before Start.
func (m *MarketData) Track(ctx context.Context, pair string) error {
	record, err := m.rest.MarketByCondition(ctx, pair)
	if err != nil {
		return err
	}
	tokens := stringList(record.ClobTokenIDs)
	if len(tokens) < 2 {
		return fmt.Errorf("%w: pair %s has %d outcome tokens", ErrInvalidSnapshot, pair, len(tokens))
	}
	m.mu.Lock()
	m.pairToken[pair] = tokens
	for i, token := range tokens {
		m.tokenPair[token] = pair
		m.tokenIdx[token] = i
	}
	m.mu.Unlock()
	return nil
}

// Start connects the websocket, subscribes tracked tokens and consumes
// updates until ctx is cancelled.
func (m *MarketData) Start(ctx context.Context) error {
	if m.ws == nil {
		return nil
	}
	if err := m.ws.Connect(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	var tokens []string
	for token := range m.tokenPair {
		tokens = append(tokens, token)
	}
	m.mu.Unlock()
	if len(tokens) > 0 {
		if err := m.ws.Subscribe(ctx, tokens...); err != nil {
			return err
		}
	}
	go func() {
		if err := m.ws.Run(ctx, m.handleMessage); err != nil && ctx.Err() == nil {
			m.log.Warn("market ws stopped", zap.Error(err))
		}
	}()
	return nil
}

// FetchSnapshot implements the SnapshotSource contract for the decision loop.
func (m *MarketData) FetchSnapshot(ctx context.Context, pair string) (Snapshot, error) {
	record, err := m.rest.MarketByCondition(ctx, pair)
	if err != nil {
		return Snapshot{}, err
	}
	snap, err := snapshotFromRecord(record, m.now())
	if err != nil {
		return Snapshot{}, err
	}
	return m.apply(snap), nil
}

// Latest returns the retained snapshot for a pair, if any.
func (m *MarketData) Latest(pair string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.latest[pair]
	return snap, ok
}

// LatestBook returns the last streamed book for an outcome token.
func (m *MarketData) LatestBook(tokenID string) (Book, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, ok := m.books[tokenID]
	return book, ok
}

// Book returns the streamed book for a pair's primary outcome token. This is
// the book the simulated venue trades against; Side is accepted to satisfy
// the execution BookSource contract.
func (m *MarketData) Book(pair string, side Side) (Book, bool) {
	_ = side
	m.mu.Lock()
	defer m.mu.Unlock()
	tokens := m.pairToken[pair]
	if len(tokens) == 0 {
		return Book{}, false
	}
	book, ok := m.books[tokens[0]]
	return book, ok
}

// apply keeps per-pair snapshots monotonic in time: an incoming snapshot older
// than the retained one is dropped and the retained one is returned.
func (m *MarketData) apply(snap Snapshot) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.latest[snap.Pair]; ok && snap.Timestamp.Before(prev.Timestamp) {
		return prev
	}
	m.latest[snap.Pair] = snap
	return snap
}

func snapshotFromRecord(record rest.MarketRecord, now time.Time) (Snapshot, error) {
	if !record.Active || !record.AcceptingOrders {
		return Snapshot{}, fmt.Errorf("%w: market %s not accepting orders", ErrInvalidSnapshot, record.ConditionID)
	}
	prices, ok := floatList(record.OutcomePrices)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: unparseable outcome prices %q", ErrInvalidSnapshot, record.OutcomePrices)
	}
	return Normalize(RawQuote{
		Pair:      record.ConditionID,
		Outcomes:  stringList(record.Outcomes),
		Prices:    prices,
		Volume24h: floatOrZero(record.Volume24hr),
		Liquidity: floatOrZero(record.Liquidity),
		Timestamp: now,
	})
}

type wsEvent struct {
	EventType string             `json:"event_type"`
	AssetID   string             `json:"asset_id"`
	Market    string             `json:"market"`
	Price     string             `json:"price"`
	Timestamp string             `json:"timestamp"`
	Bids      []rest.LevelRecord `json:"bids"`
	Asks      []rest.LevelRecord `json:"asks"`
}

func (m *MarketData) handleMessage(raw json.RawMessage) {
	var events []wsEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		var single wsEvent
		if err := json.Unmarshal(raw, &single); err != nil {
			return
		}
		events = []wsEvent{single}
	}
	for _, event := range events {
		switch event.EventType {
		case "price_change":
			m.applyPriceChange(event)
		case "book":
			m.applyBook(event)
		}
	}
}

func (m *MarketData) applyPriceChange(event wsEvent) {
	price, ok := parseFloat(event.Price)
	if !ok || price < 0 || price > 1 {
		return
	}
	ts := wsTimestamp(event.Timestamp, m.now())
	m.mu.Lock()
	defer m.mu.Unlock()
	pair, ok := m.tokenPair[event.AssetID]
	if !ok {
		return
	}
	idx := m.tokenIdx[event.AssetID]
	prev, ok := m.latest[pair]
	if !ok || idx >= len(prev.Prices) || ts.Before(prev.Timestamp) {
		return
	}
	prices := append([]float64(nil), prev.Prices...)
	prices[idx] = price
	next := prev
	next.Prices = prices
	next.Timestamp = ts
	m.latest[pair] = next
}

func (m *MarketData) applyBook(event wsEvent) {
	ts := wsTimestamp(event.Timestamp, m.now())
	book := Book{Timestamp: ts}
	for _, lvl := range event.Bids {
		price, okP := parseFloat(lvl.Price)
		size, okS := parseFloat(lvl.Size)
		if okP && okS {
			book.Bids = append(book.Bids, Level{Price: price, Size: size})
		}
	}
	for _, lvl := range event.Asks {
		price, okP := parseFloat(lvl.Price)
		size, okS := parseFloat(lvl.Size)
		if okP && okS {
			book.Asks = append(book.Asks, Level{Price: price, Size: size})
		}
	}
	normalized := book.Normalized()
	m.mu.Lock()
	m.books[event.AssetID] = normalized
	m.mu.Unlock()
}

// BookFromRecord converts a CLOB REST book into the normalized Book shape.
func BookFromRecord(record rest.BookRecord, fallback time.Time) Book {
	book := Book{Timestamp: wsTimestamp(record.Timestamp, fallback)}
	for _, lvl := range record.Bids {
		price, okP := parseFloat(lvl.Price)
		size, okS := parseFloat(lvl.Size)
		if okP && okS {
			book.Bids = append(book.Bids, Level{Price: price, Size: size})
		}
	}
	for _, lvl := range record.Asks {
		price, okP := parseFloat(lvl.Price)
		size, okS := parseFloat(lvl.Size)
		if okP && okS {
			book.Asks = append(book.Asks, Level{Price: price, Size: size})
		}
	}
	return book.Normalized()
}

func wsTimestamp(raw string, fallback time.Time) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.UnixMilli(ms)
}
