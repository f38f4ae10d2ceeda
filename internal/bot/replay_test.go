package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadowtrader/internal/asset"
	"shadowtrader/internal/candle"
	"shadowtrader/internal/order"
	"shadowtrader/internal/strategy"
)

var (
	btcusd = order.Pair{Base: "BTC", Quote: "USD"}
	minute = candle.MustInterval(time.Minute)
	start  = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

// fakeSource serves a fixed bar series regardless of the requested range.
type fakeSource struct {
	bars map[order.Pair][]candle.Candle
}

func (f fakeSource) Candles(pair order.Pair, interval candle.Interval, from, to time.Time) ([]candle.Candle, error) {
	return f.bars[pair], nil
}

// scripted fires predetermined signals keyed by bar timestamp.
type scripted struct {
	pair    order.Pair
	signals map[time.Time]strategy.Signal
}

func (s *scripted) Name() string      { return "scripted" }
func (s *scripted) Pair() order.Pair  { return s.pair }
func (s *scripted) WarmupPeriod() int { return 0 }

func (s *scripted) OnCandles(candles []candle.Candle) (strategy.Signal, error) {
	if len(candles) == 0 {
		return strategy.Signal{}, nil
	}
	if sig, ok := s.signals[candles[0].Timestamp]; ok {
		return sig, nil
	}
	return strategy.Signal{Time: candles[0].Timestamp, Action: strategy.Hold}, nil
}

func flatBars(n int, low, high, close float64) []candle.Candle {
	bars := make([]candle.Candle, n)
	for i := range bars {
		bars[i] = candle.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      close,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    1,
		}
	}
	return bars
}

func tradeable(pairs ...order.Pair) []order.TradeablePair {
	out := make([]order.TradeablePair, len(pairs))
	for i, p := range pairs {
		out[i] = order.TradeablePair{Pair: p}
	}
	return out
}

func TestRunReplay_BuyAndFill(t *testing.T) {
	// Bars trade at 100 until a dip to 95 at t+3 fills the scripted buy.
	bars := flatBars(5, 99, 101, 100)
	bars[3].Low = 95
	source := fakeSource{bars: map[order.Pair][]candle.Candle{btcusd: bars}}

	strat := &scripted{pair: btcusd, signals: map[time.Time]strategy.Signal{
		start.Add(2 * time.Minute): {Action: strategy.Buy, TriggerPrice: 100},
	}}

	local, err := RunReplay(context.Background(), source, tradeable(btcusd), minute,
		asset.Balances{"USD": 1000}, []strategy.Strategy{strat}, 2, start, start.Add(5*time.Minute), nil)
	require.NoError(t, err)

	assert.Empty(t, local.Tracker().OpenOrders())
	assert.Equal(t, asset.Balances{"USD": 800, "BTC": 2}, local.Ledger().Available())
	assert.Equal(t, 0.0, local.Ledger().Reserved().Get("USD"))
}

func TestRunReplay_OppositeSignalCancelsWorkingOrder(t *testing.T) {
	// No bar dips below 90 or rallies above 110: neither order fills.
	bars := flatBars(6, 95, 105, 100)
	source := fakeSource{bars: map[order.Pair][]candle.Candle{btcusd: bars}}

	strat := &scripted{pair: btcusd, signals: map[time.Time]strategy.Signal{
		start.Add(2 * time.Minute): {Action: strategy.Buy, TriggerPrice: 90},
		start.Add(4 * time.Minute): {Action: strategy.Sell, TriggerPrice: 110},
	}}

	local, err := RunReplay(context.Background(), source, tradeable(btcusd), minute,
		asset.Balances{"USD": 1000, "BTC": 5}, []strategy.Strategy{strat}, 2, start, start.Add(6*time.Minute), nil)
	require.NoError(t, err)

	open := local.Tracker().OpenOrders()
	require.Len(t, open, 1)
	assert.Equal(t, order.Sell, open[0].Side)
	assert.Equal(t, 110.0, open[0].Price)

	// The buy reservation came back when the sell signal canceled it.
	assert.Equal(t, 1000.0, local.Ledger().Available().Get("USD"))
	assert.Equal(t, 2.0, local.Ledger().Reserved().Get("BTC"))
}

func TestRunReplay_RepeatedSignalDoesNotStack(t *testing.T) {
	bars := flatBars(6, 95, 105, 100)
	source := fakeSource{bars: map[order.Pair][]candle.Candle{btcusd: bars}}

	strat := &scripted{pair: btcusd, signals: map[time.Time]strategy.Signal{
		start.Add(2 * time.Minute): {Action: strategy.Buy, TriggerPrice: 90},
		start.Add(3 * time.Minute): {Action: strategy.Buy, TriggerPrice: 90},
		start.Add(4 * time.Minute): {Action: strategy.Buy, TriggerPrice: 90},
	}}

	local, err := RunReplay(context.Background(), source, tradeable(btcusd), minute,
		asset.Balances{"USD": 1000}, []strategy.Strategy{strat}, 2, start, start.Add(6*time.Minute), nil)
	require.NoError(t, err)

	assert.Len(t, local.Tracker().OpenOrders(), 1)
	assert.Equal(t, 180.0, local.Ledger().Reserved().Get("USD"))
}

func TestRunReplay_MultiplePairsInterleave(t *testing.T) {
	ethusd := order.Pair{Base: "ETH", Quote: "USD"}
	source := fakeSource{bars: map[order.Pair][]candle.Candle{
		btcusd: flatBars(3, 99, 101, 100),
		ethusd: flatBars(3, 9, 11, 10),
	}}

	strat := &scripted{pair: ethusd, signals: map[time.Time]strategy.Signal{
		start.Add(1 * time.Minute): {Action: strategy.Buy, TriggerPrice: 10},
	}}

	local, err := RunReplay(context.Background(), source, tradeable(btcusd, ethusd), minute,
		asset.Balances{"USD": 100}, []strategy.Strategy{strat}, 2, start, start.Add(3*time.Minute), nil)
	require.NoError(t, err)

	// ETH bar at t+2 (low 9 < 10) fills the buy; BTC bars are untouched.
	assert.Empty(t, local.Tracker().OpenOrders())
	assert.Equal(t, asset.Balances{"USD": 80, "ETH": 2}, local.Ledger().Available())
}

func TestClock(t *testing.T) {
	c := &Clock{}
	assert.True(t, c.Now().IsZero())
	c.Set(start)
	assert.Equal(t, start, c.Now())
}
