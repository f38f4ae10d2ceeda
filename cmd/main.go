package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"shadowtrader/internal/asset"
	"shadowtrader/internal/bot"
	"shadowtrader/internal/candle"
	"shadowtrader/internal/config"
	"shadowtrader/internal/db"
	"shadowtrader/internal/exchange"
	"shadowtrader/internal/journal"
	"shadowtrader/internal/notifier"
	"shadowtrader/internal/order"
	"shadowtrader/internal/strategy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	log.Println("Starting Shadow Trader in mode:", cfg.Mode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	storage := openStorage(cfg)
	defer storage.Close()

	pairs, err := cfg.TradingPairs()
	if err != nil {
		log.Fatalf("Invalid pairs: %v", err)
	}
	interval, err := candle.NewInterval(cfg.Interval)
	if err != nil {
		log.Fatalf("Invalid interval: %v", err)
	}

	strats := make([]strategy.Strategy, 0, len(pairs))
	for _, p := range pairs {
		strats = append(strats, strategy.New(cfg.Strategy, p))
	}

	var n notifier.Notifier = notifier.NopNotifier{}
	if cfg.TelegramToken != "" {
		n = notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID, cfg.NotifyRetries, cfg.NotifyDelay)
	}

	switch cfg.Mode {
	case "replay":
		runReplay(ctx, cfg, pairs, interval, strats, storage)
	case "live":
		runLive(ctx, cfg, pairs, interval, strats, storage, n)
	default:
		log.Fatalf("Unknown mode: %s", cfg.Mode)
	}
}

func openStorage(cfg config.Config) db.Storage {
	if cfg.DBConnStr == "" {
		log.Println("No database configured, journaling in memory")
		return db.NewMemory()
	}
	storage, err := db.NewPostgres(cfg.DBConnStr)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	log.Println("Connected to Postgres")
	return storage
}

// wireJournal records every order report and balance change.
func wireJournal(ex exchange.Exchange, storage db.Storage) {
	j := journal.New(storage)
	ex.Reports().Subscribe(j.OnReport)
	ex.AssetUpdates().Subscribe(j.OnAssetUpdate)
}

func runReplay(
	ctx context.Context,
	cfg config.Config,
	pairs []order.Pair,
	interval candle.Interval,
	strats []strategy.Strategy,
	storage db.Storage,
) {
	// Replay has no venue metadata, so pairs trade with open filters.
	tradeable := make([]order.TradeablePair, 0, len(pairs))
	for _, p := range pairs {
		tradeable = append(tradeable, order.TradeablePair{Pair: p})
	}

	source := bot.WallexHistory{APIKey: cfg.WallexAPIKey}
	local, err := bot.RunReplay(ctx, source, tradeable, interval, asset.Balances(cfg.InitialBalances),
		strats, cfg.OrderSize, cfg.ReplayFrom, cfg.ReplayTo, func(ex exchange.Exchange) {
			wireJournal(ex, storage)
		})
	if err != nil {
		log.Fatalf("Replay failed: %v", err)
	}
	log.Printf("Replay finished, final balances: %v", local.Ledger().Available())
}

func runLive(
	ctx context.Context,
	cfg config.Config,
	pairs []order.Pair,
	interval candle.Interval,
	strats []strategy.Strategy,
	storage db.Storage,
	n notifier.Notifier,
) {
	watched := make([]exchange.WatchedPair, 0, len(pairs))
	for _, p := range pairs {
		watched = append(watched, exchange.WatchedPair{Symbol: exchange.VenueSymbol(p), Pair: p})
	}
	opts := bot.LiveOptions{
		APIKey:          cfg.WallexAPIKey,
		Pairs:           watched,
		Interval:        interval,
		Strategies:      strats,
		OrderSize:       cfg.OrderSize,
		Notifier:        n,
		MarketData:      cfg.MarketData,
		Retention:       cfg.RetentionPeriod,
		GenerateCandles: cfg.GenerateCandles,
	}
	if _, err := bot.RunLive(ctx, opts, func(ex exchange.Exchange) {
		wireJournal(ex, storage)
	}); err != nil && err != context.Canceled {
		log.Fatalf("Live trading failed: %v", err)
	}
}
