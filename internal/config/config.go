// Package config
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"shadowtrader/internal/order"
)

/*
YAML config example:
mode: "replay"
market_data: "wallex"
wallex_api_key: "..."
db_conn_str: "host=localhost dbname=shadowtrader sslmode=disable"
pairs: ["BTC/USDT", "ETH/USDT"]
interval: "1m"
retention_period: "24h"
generate_candles: true
replay_from: "2025-01-01"
replay_to: "2025-02-01"
strategy: "sma-cross"
order_size: 0.001
telegram_token: "..."
telegram_chat_id: "..."
initial_balances:
  USDT: 1000
  BTC: 0
*/

type Config struct {
	Mode            string             `yaml:"mode"`
	MarketData      string             `yaml:"market_data"`
	WallexAPIKey    string             `yaml:"wallex_api_key"`
	DBConnStr       string             `yaml:"db_conn_str"`
	Pairs           []string           `yaml:"pairs"`
	Interval        time.Duration      `yaml:"interval"`
	RetentionPeriod time.Duration      `yaml:"retention_period"`
	GenerateCandles bool               `yaml:"generate_candles"`
	ReplayFrom      time.Time          `yaml:"replay_from"`
	ReplayTo        time.Time          `yaml:"replay_to"`
	Strategy        string             `yaml:"strategy"`
	OrderSize       float64            `yaml:"order_size"`
	TelegramToken   string             `yaml:"telegram_token"`
	TelegramChatID  string             `yaml:"telegram_chat_id"`
	NotifyRetries   int                `yaml:"notify_retries"`
	NotifyDelay     time.Duration      `yaml:"notify_delay"`
	InitialBalances map[string]float64 `yaml:"initial_balances"`
}

// TradingPairs parses the configured "BASE/QUOTE" strings.
func (c Config) TradingPairs() ([]order.Pair, error) {
	pairs := make([]order.Pair, 0, len(c.Pairs))
	for _, s := range c.Pairs {
		parts := strings.Split(s, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid pair %q (expected BASE/QUOTE)", s)
		}
		pairs = append(pairs, order.Pair{
			Base:  strings.ToUpper(strings.TrimSpace(parts[0])),
			Quote: strings.ToUpper(strings.TrimSpace(parts[1])),
		})
	}
	return pairs, nil
}

func (c Config) Validate() error {
	switch c.Mode {
	case "replay", "live":
	default:
		return fmt.Errorf("invalid mode %q (expected replay or live)", c.Mode)
	}
	if len(c.Pairs) == 0 {
		return fmt.Errorf("no trading pairs configured")
	}
	if _, err := c.TradingPairs(); err != nil {
		return err
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", c.Interval)
	}
	if c.Mode == "live" && c.WallexAPIKey == "" {
		return fmt.Errorf("wallex API key is required in live mode")
	}
	switch c.MarketData {
	case "", "wallex", "binance":
	default:
		return fmt.Errorf("invalid market data source %q (expected wallex or binance)", c.MarketData)
	}
	if c.Mode == "replay" && !c.ReplayTo.After(c.ReplayFrom) {
		return fmt.Errorf("replay range is empty: from=%s to=%s",
			c.ReplayFrom.Format("2006-01-02"), c.ReplayTo.Format("2006-01-02"))
	}
	return nil
}

// Load builds the configuration from flags, falling back to environment
// variables for secrets. A -config YAML file overrides everything.
func Load() (Config, error) {
	mode := flag.String("mode", "replay", "Mode: replay or live")
	marketData := flag.String("market-data", "wallex", "Live market data source: wallex or binance")
	pairsFlag := flag.String("pairs", "BTC/USDT", "Comma-separated trading pairs (BASE/QUOTE)")
	interval := flag.Duration("interval", time.Minute, "Candle interval (e.g., 1m, 5m, 1h)")
	retention := flag.Duration("retention", 24*time.Hour, "Candle retention period (0 keeps everything)")
	generateCandles := flag.Bool("generate-candles", true, "Synthesize flat candles when an interval passes without data")
	from := flag.String("from", time.Now().AddDate(0, -1, 0).Format("2006-01-02"), "Replay start date (YYYY-MM-DD)")
	to := flag.String("to", time.Now().Format("2006-01-02"), "Replay end date (YYYY-MM-DD)")
	strategyName := flag.String("strategy", "sma-cross", "Strategy: sma-cross, rsi, engulfing, or noop")
	orderSize := flag.Float64("order-size", 0.001, "Order size (quantity) per trade")
	telegramToken := flag.String("telegram-token", "", "Telegram bot token for notifications")
	telegramChatID := flag.String("telegram-chat", "", "Telegram chat ID for notifications")
	notifyRetries := flag.Int("notify-retries", 3, "Number of notification send attempts")
	notifyDelay := flag.Duration("notify-delay", 5*time.Second, "Delay between notification retries (e.g., 5s)")
	balancesFlag := flag.String("balances", "USDT:1000", "Comma-separated CURRENCY:AMOUNT initial balances for replay")
	configFile := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
		if fileCfg.WallexAPIKey == "" {
			fileCfg.WallexAPIKey = os.Getenv("WALLEX_API_KEY")
		}
		if fileCfg.DBConnStr == "" {
			fileCfg.DBConnStr = os.Getenv("DB_CONN_STR")
		}
		return fileCfg, fileCfg.Validate()
	}

	fromTime, err := time.Parse("2006-01-02", *from)
	if err != nil {
		return Config{}, fmt.Errorf("invalid -from date: %w", err)
	}
	toTime, err := time.Parse("2006-01-02", *to)
	if err != nil {
		return Config{}, fmt.Errorf("invalid -to date: %w", err)
	}

	balances := make(map[string]float64)
	if *balancesFlag != "" {
		for _, entry := range strings.Split(*balancesFlag, ",") {
			parts := strings.Split(entry, ":")
			if len(parts) != 2 {
				return Config{}, fmt.Errorf("invalid balance entry %q (expected CURRENCY:AMOUNT)", entry)
			}
			var amount float64
			if _, err := fmt.Sscanf(parts[1], "%f", &amount); err != nil {
				return Config{}, fmt.Errorf("invalid balance amount %q: %w", parts[1], err)
			}
			balances[strings.ToUpper(strings.TrimSpace(parts[0]))] = amount
		}
	}

	cfg := Config{
		Mode:            *mode,
		MarketData:      *marketData,
		WallexAPIKey:    os.Getenv("WALLEX_API_KEY"),
		DBConnStr:       os.Getenv("DB_CONN_STR"),
		Pairs:           strings.Split(*pairsFlag, ","),
		Interval:        *interval,
		RetentionPeriod: *retention,
		GenerateCandles: *generateCandles,
		ReplayFrom:      fromTime,
		ReplayTo:        toTime,
		Strategy:        *strategyName,
		OrderSize:       *orderSize,
		TelegramToken:   *telegramToken,
		TelegramChatID:  *telegramChatID,
		NotifyRetries:   *notifyRetries,
		NotifyDelay:     *notifyDelay,
		InitialBalances: balances,
	}
	return cfg, cfg.Validate()
}
