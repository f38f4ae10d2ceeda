// Package exchange
package exchange

import (
	"errors"

	"shadowtrader/internal/asset"
	"shadowtrader/internal/candle"
	"shadowtrader/internal/events"
	"shadowtrader/internal/order"
	"shadowtrader/internal/orderbook"
)

var (
	// ErrUnknownPair is returned when a pair has no loaded currency metadata.
	ErrUnknownPair = errors.New("unknown pair")
	// ErrNoCandles is returned when an order arrives before any candle was
	// emitted for the pair, so the engine has no market time to stamp it with.
	ErrNoCandles = errors.New("no candles received for pair")
)

// CandleUpdate is the candle notification payload: the full bar series of
// one (pair, interval), newest first.
type CandleUpdate struct {
	Pair     order.Pair
	Interval candle.Interval
	Candles  []candle.Candle
}

// OrderbookData is the in-process shape a protocol adapter delivers
// orderbook snapshots and deltas in.
type OrderbookData struct {
	Pair     order.Pair
	Ask      []orderbook.Entry
	Bid      []orderbook.Entry
	Sequence int64
}

// Exchange is the only surface strategies and the orchestrator talk to.
// Whether orders are matched locally or forwarded to a live venue is an
// implementation choice made at construction time.
type Exchange interface {
	CreateOrder(pair order.Pair, price, quantity float64, side order.Side) error
	Buy(pair order.Pair, price, quantity float64) error
	Sell(pair order.Pair, price, quantity float64) error
	CancelOrder(o order.Order) error
	AdjustOrder(o order.Order, price, quantity float64) error

	CandleManager(pair order.Pair, interval candle.Interval) *candle.Manager
	Orderbook(pair order.Pair) (*orderbook.Orderbook, error)

	Reports() *events.Feed[order.Report]
	AssetUpdates() *events.Feed[asset.Update]
	CandleUpdates() *events.Feed[CandleUpdate]
	OrderbookUpdates() *events.Feed[orderbook.Snapshot]
}

// Receiver is the in-process contract a protocol adapter (or replay driver)
// must satisfy: candles arrive newest first and already numeric, reports one
// call per order-state change, and OnCurrenciesLoaded before any order for
// a pair is accepted.
type Receiver interface {
	OnSnapshotCandles(pair order.Pair, candles []candle.Candle, interval candle.Interval)
	OnUpdateCandles(pair order.Pair, candles []candle.Candle, interval candle.Interval)
	OnSnapshotOrderbook(data OrderbookData)
	OnUpdateOrderbook(data OrderbookData)
	OnReport(o order.Order)
	OnCurrenciesLoaded(pairs []order.TradeablePair)
}
