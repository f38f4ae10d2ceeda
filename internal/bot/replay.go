package bot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"shadowtrader/internal/asset"
	"shadowtrader/internal/candle"
	"shadowtrader/internal/exchange"
	"shadowtrader/internal/order"
	"shadowtrader/internal/strategy"
	"shadowtrader/internal/utils"
)

// CandleSource supplies historical bars for replay runs.
type CandleSource interface {
	Candles(pair order.Pair, interval candle.Interval, from, to time.Time) ([]candle.Candle, error)
}

// Clock is a settable time source. The replay driver advances it to each
// bar's timestamp so the candle managers see replay time, not wall time.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type replayBar struct {
	pair order.Pair
	bar  candle.Candle
}

// RunReplay drives historical candles through a local-matching facade,
// one bar at a time in chronological order across all pairs.
func RunReplay(
	ctx context.Context,
	source CandleSource,
	pairs []order.TradeablePair,
	interval candle.Interval,
	initial asset.Balances,
	strats []strategy.Strategy,
	orderSize float64,
	from, to time.Time,
	wire func(exchange.Exchange),
) (*exchange.Local, error) {
	clock := &Clock{}
	clock.Set(from)

	local := exchange.NewLocal(initial, false, candle.WithClock(clock.Now))
	local.OnCurrenciesLoaded(pairs)
	if wire != nil {
		wire(local)
	}
	New(local, strats, orderSize)

	var bars []replayBar
	for _, tp := range pairs {
		candles, err := source.Candles(tp.Pair, interval, from, to)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s history: %w", tp.Pair, err)
		}
		utils.GetLogger().Printf("Replay | Loaded %d %s bars for %s", len(candles), interval, tp.Pair)
		for _, c := range candles {
			bars = append(bars, replayBar{pair: tp.Pair, bar: c})
		}
	}
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].bar.Timestamp.Before(bars[j].bar.Timestamp)
	})

	for _, rb := range bars {
		select {
		case <-ctx.Done():
			return local, ctx.Err()
		default:
		}
		clock.Set(rb.bar.Timestamp)
		local.OnUpdateCandles(rb.pair, []candle.Candle{rb.bar}, interval)
	}

	available := local.Ledger().Available()
	utils.GetLogger().Printf("Replay | Finished %d bars, final balances: %v", len(bars), available)
	return local, nil
}

// WallexHistory sources replay candles from the Wallex REST API.
type WallexHistory struct {
	APIKey string
}

func (w WallexHistory) Candles(pair order.Pair, interval candle.Interval, from, to time.Time) ([]candle.Candle, error) {
	return exchange.FetchWallexCandles(w.APIKey, pair, interval, from, to)
}
