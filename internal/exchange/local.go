package exchange

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"shadowtrader/internal/asset"
	"shadowtrader/internal/candle"
	"shadowtrader/internal/order"
	"shadowtrader/internal/utils"
)

// Local is the exchange facade for replay and paper sessions: orders are
// accepted, tracked and filled in-process against the candle stream, so a
// strategy cannot distinguish a local fill from a live one.
type Local struct {
	*Core
	candleMu      sync.RWMutex
	currentCandle map[order.Pair]candle.Candle
}

// NewLocal creates a local facade seeded with initial available balances.
// generateCandles arms the flat-bar timer, wanted for paper sessions fed by
// a live stream and pointless for deterministic replay.
func NewLocal(initial asset.Balances, generateCandles bool, candleOpts ...candle.Option) *Local {
	l := &Local{
		Core:          newCore(initial, generateCandles, candleOpts...),
		currentCandle: make(map[order.Pair]candle.Candle),
	}
	l.CandleUpdates().Subscribe(l.onCandleUpdate)
	return l
}

// onCandleUpdate runs local matching for every new bar. The subscription is
// registered before any strategy's, so fills land before strategy logic
// sees the bar.
func (l *Local) onCandleUpdate(u CandleUpdate) {
	if len(u.Candles) == 0 {
		return
	}
	newest := u.Candles[0]
	l.candleMu.Lock()
	l.currentCandle[u.Pair] = newest
	l.candleMu.Unlock()
	l.processOpenOrders(u.Pair, newest)
}

// CreateOrder accepts a limit order against the local book. Insufficient
// funds mirror a venue's reject-without-side-effect: no report, no
// reservation, no error.
func (l *Local) CreateOrder(pair order.Pair, price, quantity float64, side order.Side) error {
	if !l.IsPairLoaded(pair) {
		return fmt.Errorf("%w: %s", ErrUnknownPair, pair)
	}
	current, ok := l.latestCandle(pair)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoCandles, pair)
	}

	o := order.Order{
		ID:          uuid.NewString(),
		Pair:        pair,
		Side:        side,
		Price:       price,
		Quantity:    quantity,
		Status:      order.StatusNew,
		ReportType:  order.ReportNew,
		TimeInForce: order.GoodTillCancel,
		CreatedAt:   current.Timestamp,
		UpdatedAt:   current.Timestamp,
	}
	if !l.isOrderAllowed(o) {
		utils.GetLogger().Printf("LocalExchange | Insufficient funds for %s %f@%f on %s, order dropped", side, quantity, price, pair)
		return nil
	}

	l.OnReport(o)
	return nil
}

// Buy is a convenience wrapper around CreateOrder.
func (l *Local) Buy(pair order.Pair, price, quantity float64) error {
	return l.CreateOrder(pair, price, quantity, order.Buy)
}

// Sell is a convenience wrapper around CreateOrder.
func (l *Local) Sell(pair order.Pair, price, quantity float64) error {
	return l.CreateOrder(pair, price, quantity, order.Sell)
}

// CancelOrder emits the cancel report a venue would send back. A cancel
// already in flight for the order is not sent twice.
func (l *Local) CancelOrder(o order.Order) error {
	if l.tracker.IsOrderUnconfirmed(o.ID) {
		return nil
	}
	l.tracker.SetOrderUnconfirmed(o.ID)

	canceled := o
	canceled.ReportType = order.ReportCanceled
	canceled.Status = order.StatusCanceled
	if current, ok := l.latestCandle(o.Pair); ok {
		canceled.UpdatedAt = current.Timestamp
	}
	l.OnReport(canceled)
	return nil
}

// AdjustOrder replaces an open order's price and quantity. The tracker
// guard suppresses duplicate in-flight replaces and no-op adjustments; the
// ledger check mirrors venue rejection without side effect.
func (l *Local) AdjustOrder(o order.Order, price, quantity float64) error {
	replacement := o
	replacement.ID = uuid.NewString()
	replacement.OriginalID = o.ID
	replacement.Price = price
	replacement.Quantity = quantity
	replacement.ReportType = order.ReportReplaced
	replacement.Status = order.StatusNew
	if current, ok := l.latestCandle(o.Pair); ok {
		replacement.UpdatedAt = current.Timestamp
	}

	if !l.isAdjustAllowed(o, replacement) {
		utils.GetLogger().Printf("LocalExchange | Insufficient funds to adjust %s to %f@%f, adjustment dropped", o.ID, quantity, price)
		return nil
	}
	if !l.tracker.CanAdjustOrder(o, price, quantity) {
		return nil
	}

	l.OnReport(replacement)
	return nil
}

func (l *Local) latestCandle(pair order.Pair) (candle.Candle, bool) {
	l.candleMu.RLock()
	defer l.candleMu.RUnlock()
	c, ok := l.currentCandle[pair]
	return c, ok
}

func (l *Local) isOrderAllowed(o order.Order) bool {
	if o.Side == order.Buy {
		return l.ledger.IsBuyAllowed(o)
	}
	return l.ledger.IsSellAllowed(o)
}

// isAdjustAllowed accounts for the reservation the replace will revert:
// the old order's committed amount is spendable again for the new one.
func (l *Local) isAdjustAllowed(old, replacement order.Order) bool {
	if replacement.Side == order.Buy {
		return l.ledger.Available().Get(replacement.Pair.Quote)+old.Notional() >= replacement.Notional()
	}
	return l.ledger.Available().Get(replacement.Pair.Base)+old.Quantity >= replacement.Quantity
}
