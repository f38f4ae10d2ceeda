package bot

import (
	"context"
	"fmt"
	"time"

	"shadowtrader/internal/candle"
	"shadowtrader/internal/exchange"
	"shadowtrader/internal/notifier"
	"shadowtrader/internal/strategy"
	"shadowtrader/internal/utils"
)

// warmupBars is how much history each candle manager is seeded with before
// live updates start flowing.
const warmupBars = 200

// orderSyncInterval paces venue order-status checks.
const orderSyncInterval = 10 * time.Second

// LiveOptions collects everything a live session needs.
type LiveOptions struct {
	APIKey     string
	Pairs      []exchange.WatchedPair
	Interval   candle.Interval
	Strategies []strategy.Strategy
	OrderSize  float64
	Notifier   notifier.Notifier

	// MarketData picks the price feed: "wallex" (default) uses the depth
	// websocket plus REST candle polling, "binance" streams klines and
	// depth from Binance while orders still route to Wallex.
	MarketData string

	// Retention bounds each candle series; zero keeps everything.
	Retention time.Duration

	// GenerateCandles synthesizes flat bars on boundaries with no data.
	GenerateCandles bool
}

// RunLive connects a Wallex-backed facade to the venue and trades the
// configured strategies until the context is canceled.
func RunLive(ctx context.Context, opts LiveOptions, wire func(exchange.Exchange)) (*exchange.Live, error) {
	balances, err := exchange.FetchWallexBalances(opts.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balances: %w", err)
	}
	utils.GetLogger().Printf("Live | Starting with balances: %v", balances)

	live := exchange.NewWallex(opts.APIKey, balances, opts.Notifier, opts.GenerateCandles,
		candle.WithRetentionPeriod(opts.Retention))
	if err := live.LoadCurrencies(); err != nil {
		return nil, fmt.Errorf("failed to load currencies: %w", err)
	}
	for _, wp := range opts.Pairs {
		if err := live.LoadCandles(wp.Pair, opts.Interval, warmupBars); err != nil {
			return nil, fmt.Errorf("failed to warm up %s: %w", wp.Pair, err)
		}
	}

	if wire != nil {
		wire(live)
	}
	New(live, opts.Strategies, opts.OrderSize)

	if opts.MarketData == "binance" {
		stream := exchange.NewBinanceStream(live, opts.Pairs, opts.Interval)
		if err := stream.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start binance stream: %w", err)
		}
	} else {
		stream := exchange.NewWallexStream(live, opts.Pairs)
		stream.Start(ctx)
		go pollCandles(ctx, opts.APIKey, live, opts.Pairs, opts.Interval)
	}
	go pollOrderStatus(ctx, live)

	opts.Notifier.SendWithRetry(fmt.Sprintf("Trading started on %d pairs at %s", len(opts.Pairs), opts.Interval))

	<-ctx.Done()
	live.Stop()
	utils.GetLogger().Printf("Live | Shutting down")
	return live, ctx.Err()
}

// pollOrderStatus reconciles open orders against the venue on a fixed
// cadence. Neither market-data stream carries execution reports, so this
// loop is how live fills, cancels and expiries reach the tracker and
// ledger.
func pollOrderStatus(ctx context.Context, live *exchange.Live) {
	ticker := time.NewTicker(orderSyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			live.SyncOpenOrders()
		}
	}
}

// pollCandles refreshes the newest bars over REST. The depth websocket
// carries no klines, so price history advances through this loop.
func pollCandles(ctx context.Context, apiKey string, live *exchange.Live, pairs []exchange.WatchedPair, interval candle.Interval) {
	ticker := time.NewTicker(interval.Duration / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		now := time.Now().UTC()
		from := interval.PreviousBoundary(now)
		for _, wp := range pairs {
			candles, err := exchange.FetchWallexCandles(apiKey, wp.Pair, interval, from, now)
			if err != nil {
				utils.GetLogger().Printf("Live | Failed to poll %s candles: %v", wp.Pair, err)
				continue
			}
			if len(candles) > 0 {
				live.OnUpdateCandles(wp.Pair, candles, interval)
			}
		}
	}
}
