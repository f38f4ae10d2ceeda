package exchange

import (
	"fmt"
	"sync"
	"time"

	"shadowtrader/internal/asset"
	"shadowtrader/internal/candle"
	"shadowtrader/internal/events"
	"shadowtrader/internal/order"
	"shadowtrader/internal/orderbook"
	"shadowtrader/internal/utils"
)

type candleKey struct {
	pair     order.Pair
	interval time.Duration
}

// Core is the shared machinery of every exchange facade: one ledger, one
// tracker, keyed singleton registries for candle managers and orderbooks,
// and the report path every order-state change flows through. A Core is
// exclusively owned by one facade instance and lives for its lifetime.
type Core struct {
	ledger  *asset.Ledger
	tracker *order.Tracker

	mu              sync.RWMutex // guards the three registries below
	currencies      map[order.Pair]order.TradeablePair
	candleManagers  map[candleKey]*candle.Manager
	orderbooks      map[order.Pair]*orderbook.Orderbook
	generateCandles bool
	candleOpts      []candle.Option

	candleUpdates    *events.Feed[CandleUpdate]
	orderbookUpdates *events.Feed[orderbook.Snapshot]
}

func newCore(initial asset.Balances, generateCandles bool, candleOpts ...candle.Option) *Core {
	c := &Core{
		ledger:           asset.NewLedger(initial),
		tracker:          order.NewTracker(),
		currencies:       make(map[order.Pair]order.TradeablePair),
		candleManagers:   make(map[candleKey]*candle.Manager),
		orderbooks:       make(map[order.Pair]*orderbook.Orderbook),
		generateCandles:  generateCandles,
		candleOpts:       candleOpts,
		candleUpdates:    events.NewFeed[CandleUpdate](),
		orderbookUpdates: events.NewFeed[orderbook.Snapshot](),
	}
	// Every processed report drives the ledger; subscription order makes the
	// ledger see a report before any outside subscriber.
	c.tracker.Reports().Subscribe(c.ledger.ProcessReport)
	return c
}

// Reports exposes the order report feed.
func (c *Core) Reports() *events.Feed[order.Report] {
	return c.tracker.Reports()
}

// AssetUpdates exposes the balance update feed.
func (c *Core) AssetUpdates() *events.Feed[asset.Update] {
	return c.ledger.Updates()
}

// CandleUpdates exposes the merged candle feed across all managers.
func (c *Core) CandleUpdates() *events.Feed[CandleUpdate] {
	return c.candleUpdates
}

// OrderbookUpdates exposes the merged orderbook feed across all books.
func (c *Core) OrderbookUpdates() *events.Feed[orderbook.Snapshot] {
	return c.orderbookUpdates
}

// Ledger returns the facade's asset ledger.
func (c *Core) Ledger() *asset.Ledger {
	return c.ledger
}

// Tracker returns the facade's order tracker.
func (c *Core) Tracker() *order.Tracker {
	return c.tracker
}

// CandleManager returns the manager for (pair, interval), creating it on
// first use. At most one manager exists per key; callers must never
// construct managers around the registry.
func (c *Core) CandleManager(pair order.Pair, interval candle.Interval) *candle.Manager {
	key := candleKey{pair: pair, interval: interval.Duration}
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.candleManagers[key]; ok {
		return m
	}
	m := candle.NewManager(interval, c.generateCandles, c.candleOpts...)
	m.Updates().Subscribe(func(candles []candle.Candle) {
		c.candleUpdates.Publish(CandleUpdate{Pair: pair, Interval: interval, Candles: candles})
	})
	if err := m.Start(); err != nil {
		utils.GetLogger().Printf("Exchange | Failed to start candle generation for %s %s: %v", pair, interval, err)
	}
	c.candleManagers[key] = m
	return m
}

// Orderbook returns the book for pair, creating it on first use. A pair
// without loaded currency metadata is a wiring bug upstream and fails fast.
func (c *Core) Orderbook(pair order.Pair) (*orderbook.Orderbook, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.currencies[pair]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPair, pair)
	}
	if b, ok := c.orderbooks[pair]; ok {
		return b, nil
	}
	b := orderbook.New(pair)
	b.Updates().Subscribe(c.orderbookUpdates.Publish)
	c.orderbooks[pair] = b
	return b, nil
}

// OnSnapshotCandles replaces the series of (pair, interval).
func (c *Core) OnSnapshotCandles(pair order.Pair, candles []candle.Candle, interval candle.Interval) {
	c.CandleManager(pair, interval).Set(candles)
}

// OnUpdateCandles merges candles into the series of (pair, interval).
func (c *Core) OnUpdateCandles(pair order.Pair, candles []candle.Candle, interval candle.Interval) {
	c.CandleManager(pair, interval).Update(candles)
}

// OnSnapshotOrderbook replaces the book of data.Pair wholesale.
func (c *Core) OnSnapshotOrderbook(data OrderbookData) {
	b, err := c.Orderbook(data.Pair)
	if err != nil {
		utils.GetLogger().Printf("Exchange | Dropping orderbook snapshot: %v", err)
		return
	}
	b.SetOrders(data.Ask, data.Bid, data.Sequence)
}

// OnUpdateOrderbook applies a sequence-guarded delta to the book.
func (c *Core) OnUpdateOrderbook(data OrderbookData) {
	b, err := c.Orderbook(data.Pair)
	if err != nil {
		utils.GetLogger().Printf("Exchange | Dropping orderbook update: %v", err)
		return
	}
	b.AddIncrement(data.Ask, data.Bid, data.Sequence)
}

// OnReport is the single entry point for order reports, local or live.
// A malformed report is logged and dropped; it must not take down an
// otherwise-healthy session.
func (c *Core) OnReport(o order.Order) {
	if err := o.Validate(); err != nil {
		utils.GetLogger().Printf("Exchange | Dropping invalid report: %v", err)
		return
	}
	c.tracker.Process(o)
}

// OnCurrenciesLoaded registers tradeable pair metadata. It must run before
// any order or orderbook request for those pairs.
func (c *Core) OnCurrenciesLoaded(pairs []order.TradeablePair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range pairs {
		c.currencies[p.Pair] = p
	}
}

// IsPairLoaded reports whether currency metadata for pair has arrived.
func (c *Core) IsPairLoaded(pair order.Pair) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.currencies[pair]
	return ok
}

// Stop halts every candle generation timer.
func (c *Core) Stop() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.candleManagers {
		m.Stop()
	}
}
