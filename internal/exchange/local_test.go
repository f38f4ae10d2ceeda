package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadowtrader/internal/asset"
	"shadowtrader/internal/candle"
	"shadowtrader/internal/order"
)

var (
	btcusd = order.Pair{Base: "BTC", Quote: "USD"}
	minute = candle.MustInterval(time.Minute)
	t0     = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

func testBar(ts time.Time, low, high, close float64) candle.Candle {
	return candle.Candle{Timestamp: ts, Open: close, High: high, Low: low, Close: close, Volume: 1}
}

// newTestLocal returns a facade pinned to t0 with BTC/USD loaded and one
// seeded bar trading around 100.
func newTestLocal(t *testing.T, initial asset.Balances) *Local {
	t.Helper()
	l := NewLocal(initial, false, candle.WithClock(func() time.Time { return t0 }))
	l.OnCurrenciesLoaded([]order.TradeablePair{{Pair: btcusd, QuantityIncrement: 0.0001, TickSize: 0.01}})
	l.OnUpdateCandles(btcusd, []candle.Candle{testBar(t0, 99, 101, 100)}, minute)
	return l
}

func TestLocal_CreateOrder(t *testing.T) {
	t.Run("Buy reserves quote and tracks the order", func(t *testing.T) {
		l := newTestLocal(t, asset.Balances{"USD": 1000})

		require.NoError(t, l.CreateOrder(btcusd, 100, 2, order.Buy))

		assert.Equal(t, 800.0, l.Ledger().Available().Get("USD"))
		assert.Equal(t, 200.0, l.Ledger().Reserved().Get("USD"))

		open := l.Tracker().OpenOrders()
		require.Len(t, open, 1)
		assert.Equal(t, order.StatusNew, open[0].Status)
		assert.Equal(t, t0, open[0].CreatedAt)
	})

	t.Run("Unknown pair is an error", func(t *testing.T) {
		l := newTestLocal(t, asset.Balances{"USD": 1000})
		err := l.CreateOrder(order.Pair{Base: "ETH", Quote: "USD"}, 100, 1, order.Buy)
		assert.ErrorIs(t, err, ErrUnknownPair)
	})

	t.Run("No candles yet is an error", func(t *testing.T) {
		l := NewLocal(asset.Balances{"USD": 1000}, false)
		l.OnCurrenciesLoaded([]order.TradeablePair{{Pair: btcusd}})
		err := l.CreateOrder(btcusd, 100, 1, order.Buy)
		assert.ErrorIs(t, err, ErrNoCandles)
	})

	t.Run("Insufficient funds drops the order without side effect", func(t *testing.T) {
		l := newTestLocal(t, asset.Balances{"USD": 100})

		require.NoError(t, l.CreateOrder(btcusd, 100, 2, order.Buy))

		assert.Empty(t, l.Tracker().OpenOrders())
		assert.Equal(t, 100.0, l.Ledger().Available().Get("USD"))
	})
}

func TestLocal_Fill(t *testing.T) {
	t.Run("Buy fills when a later bar trades below its price", func(t *testing.T) {
		l := newTestLocal(t, asset.Balances{"USD": 1000})
		require.NoError(t, l.Buy(btcusd, 100, 2))

		// Bar low 95 < 100: the buy executes.
		l.OnUpdateCandles(btcusd, []candle.Candle{testBar(t0.Add(time.Minute), 95, 99, 98)}, minute)

		assert.Empty(t, l.Tracker().OpenOrders())
		assert.Equal(t, asset.Balances{"USD": 800, "BTC": 2}, l.Ledger().Available())
		assert.Equal(t, 0.0, l.Ledger().Reserved().Get("USD"))
	})

	t.Run("Buy does not fill at or above its price", func(t *testing.T) {
		l := newTestLocal(t, asset.Balances{"USD": 1000})
		require.NoError(t, l.Buy(btcusd, 100, 2))

		// Bar low exactly 100: no trade strictly below the limit.
		l.OnUpdateCandles(btcusd, []candle.Candle{testBar(t0.Add(time.Minute), 100, 105, 104)}, minute)

		assert.Len(t, l.Tracker().OpenOrders(), 1)
	})

	t.Run("Sell fills when a later bar trades above its price", func(t *testing.T) {
		l := newTestLocal(t, asset.Balances{"BTC": 3})
		require.NoError(t, l.Sell(btcusd, 100, 2))

		l.OnUpdateCandles(btcusd, []candle.Candle{testBar(t0.Add(time.Minute), 99, 106, 105)}, minute)

		assert.Empty(t, l.Tracker().OpenOrders())
		assert.Equal(t, asset.Balances{"BTC": 1, "USD": 200}, l.Ledger().Available())
	})

	t.Run("A bar older than the order cannot fill it", func(t *testing.T) {
		l := newTestLocal(t, asset.Balances{"USD": 1000})
		require.NoError(t, l.Buy(btcusd, 100, 2))

		// Replay of a bar before the order existed must not execute it.
		l.OnUpdateCandles(btcusd, []candle.Candle{testBar(t0.Add(-time.Minute), 50, 60, 55)}, minute)

		assert.Len(t, l.Tracker().OpenOrders(), 1)
		assert.Equal(t, 800.0, l.Ledger().Available().Get("USD"))
	})

	t.Run("A bar for another pair does not fill it", func(t *testing.T) {
		ethusd := order.Pair{Base: "ETH", Quote: "USD"}
		l := newTestLocal(t, asset.Balances{"USD": 1000})
		l.OnCurrenciesLoaded([]order.TradeablePair{{Pair: ethusd}})
		require.NoError(t, l.Buy(btcusd, 100, 2))

		l.OnUpdateCandles(ethusd, []candle.Candle{testBar(t0.Add(time.Minute), 10, 20, 15)}, minute)

		assert.Len(t, l.Tracker().OpenOrders(), 1)
	})
}

func TestLocal_CancelOrder(t *testing.T) {
	t.Run("Cancel reverts the reservation and closes the order", func(t *testing.T) {
		l := newTestLocal(t, asset.Balances{"USD": 1000})
		require.NoError(t, l.Buy(btcusd, 100, 2))
		o := l.Tracker().OpenOrders()[0]

		require.NoError(t, l.CancelOrder(o))

		assert.Empty(t, l.Tracker().OpenOrders())
		assert.Equal(t, 1000.0, l.Ledger().Available().Get("USD"))
		assert.Equal(t, 0.0, l.Ledger().Reserved().Get("USD"))
	})

	t.Run("Duplicate cancel requests collapse to one report", func(t *testing.T) {
		l := newTestLocal(t, asset.Balances{"USD": 1000})
		require.NoError(t, l.Buy(btcusd, 100, 2))
		o := l.Tracker().OpenOrders()[0]

		cancels := 0
		l.Reports().Subscribe(func(rep order.Report) {
			if rep.Order.ReportType == order.ReportCanceled {
				cancels++
			}
		})

		// The report confirms the first cancel synchronously, so the second
		// request is refused by the open-set lookup instead of the in-flight
		// guard; both paths must not double-revert.
		require.NoError(t, l.CancelOrder(o))
		require.NoError(t, l.CancelOrder(o))

		assert.Equal(t, 1, cancels)
		assert.Equal(t, 1000.0, l.Ledger().Available().Get("USD"))
	})
}

func TestLocal_AdjustOrder(t *testing.T) {
	t.Run("Adjust reverts the old reservation and reserves the new", func(t *testing.T) {
		l := newTestLocal(t, asset.Balances{"USD": 1000})
		require.NoError(t, l.Buy(btcusd, 100, 2))
		o := l.Tracker().OpenOrders()[0]

		require.NoError(t, l.AdjustOrder(o, 150, 3))

		open := l.Tracker().OpenOrders()
		require.Len(t, open, 1)
		assert.NotEqual(t, o.ID, open[0].ID)
		assert.Equal(t, o.ID, open[0].OriginalID)
		assert.Equal(t, 150.0, open[0].Price)
		assert.Equal(t, 550.0, l.Ledger().Available().Get("USD"))
		assert.Equal(t, 450.0, l.Ledger().Reserved().Get("USD"))
	})

	t.Run("Unchanged price and quantity is refused", func(t *testing.T) {
		l := newTestLocal(t, asset.Balances{"USD": 1000})
		require.NoError(t, l.Buy(btcusd, 100, 2))
		o := l.Tracker().OpenOrders()[0]

		require.NoError(t, l.AdjustOrder(o, 100, 2))

		open := l.Tracker().OpenOrders()
		require.Len(t, open, 1)
		assert.Equal(t, o.ID, open[0].ID)
	})

	t.Run("Insufficient funds drops the adjustment without locking the order", func(t *testing.T) {
		l := newTestLocal(t, asset.Balances{"USD": 250})
		require.NoError(t, l.Buy(btcusd, 100, 2))
		o := l.Tracker().OpenOrders()[0]

		// 100×2 committed + 50 free cannot cover 150×3.
		require.NoError(t, l.AdjustOrder(o, 150, 3))
		require.Len(t, l.Tracker().OpenOrders(), 1)
		assert.Equal(t, o.ID, l.Tracker().OpenOrders()[0].ID)

		// The funds check ran before the in-flight guard, so a viable
		// adjustment afterwards still goes through.
		require.NoError(t, l.AdjustOrder(o, 120, 2))
		assert.Equal(t, 120.0, l.Tracker().OpenOrders()[0].Price)
	})

	t.Run("Old order's committed amount counts toward the new one", func(t *testing.T) {
		l := newTestLocal(t, asset.Balances{"USD": 200})
		require.NoError(t, l.Buy(btcusd, 100, 2))
		o := l.Tracker().OpenOrders()[0]
		require.Equal(t, 0.0, l.Ledger().Available().Get("USD"))

		// Available is 0, but the 200 the old order holds funds the new 150×1.
		require.NoError(t, l.AdjustOrder(o, 150, 1))

		assert.Equal(t, 150.0, l.Tracker().OpenOrders()[0].Price)
		assert.Equal(t, 50.0, l.Ledger().Available().Get("USD"))
		assert.Equal(t, 150.0, l.Ledger().Reserved().Get("USD"))
	})
}

func TestCore_OnReport(t *testing.T) {
	t.Run("Invalid report is dropped", func(t *testing.T) {
		l := newTestLocal(t, asset.Balances{"USD": 1000})
		l.OnReport(order.Order{ID: ""})
		assert.Empty(t, l.Tracker().OpenOrders())
	})

	t.Run("Orderbook for unloaded pair fails fast", func(t *testing.T) {
		l := NewLocal(asset.Balances{}, false)
		_, err := l.Orderbook(btcusd)
		assert.ErrorIs(t, err, ErrUnknownPair)
	})

	t.Run("Candle manager is a singleton per pair and interval", func(t *testing.T) {
		l := newTestLocal(t, asset.Balances{})
		m1 := l.CandleManager(btcusd, minute)
		m2 := l.CandleManager(btcusd, minute)
		assert.Same(t, m1, m2)

		m3 := l.CandleManager(btcusd, candle.MustInterval(5*time.Minute))
		assert.NotSame(t, m1, m3)
	})
}

// The ledger subscription is registered before any external subscriber, so
// by the time a strategy sees a report the balances already reflect it.
func TestCore_LedgerSeesReportFirst(t *testing.T) {
	l := newTestLocal(t, asset.Balances{"USD": 1000})

	var availableAtReport float64
	l.Reports().Subscribe(func(order.Report) {
		availableAtReport = l.Ledger().Available().Get("USD")
	})

	require.NoError(t, l.Buy(btcusd, 100, 2))
	assert.Equal(t, 800.0, availableAtReport)
}
