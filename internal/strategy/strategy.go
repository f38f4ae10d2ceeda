// Package strategy
package strategy

import (
	"time"

	"shadowtrader/internal/candle"
	"shadowtrader/internal/order"
)

type Action int8

const (
	Hold Action = 0
	Buy  Action = 1
	Sell Action = -1
)

type Signal struct {
	Time         time.Time `json:"time"`
	Action       Action    `json:"action"`
	Reason       string    `json:"reason"` // indicator/pattern/price action
	TriggerPrice float64   `json:"trigger_price"`
}

// Strategy is the interface for all trading strategies. OnCandles receives
// the full history newest-first and returns at most one signal per call.
type Strategy interface {
	Name() string
	Pair() order.Pair
	OnCandles(candles []candle.Candle) (Signal, error)
	WarmupPeriod() int
}

// New builds a strategy by name.
func New(name string, pair order.Pair) Strategy {
	switch name {
	case "sma-cross":
		return NewSMACross(pair, 10, 30)
	case "rsi":
		return NewRSIStrategy(pair, 14, 70, 30)
	case "engulfing":
		return NewEngulfing(pair, 0.2)
	default:
		return NewNoop(pair)
	}
}

// Noop never signals. Useful for recording-only runs.
type Noop struct {
	pair order.Pair
}

func NewNoop(pair order.Pair) *Noop { return &Noop{pair: pair} }

func (n *Noop) Name() string      { return "noop" }
func (n *Noop) Pair() order.Pair  { return n.pair }
func (n *Noop) WarmupPeriod() int { return 0 }

func (n *Noop) OnCandles(candles []candle.Candle) (Signal, error) {
	if len(candles) == 0 {
		return Signal{}, nil
	}
	return Signal{Time: candles[0].Timestamp, Action: Hold, Reason: "noop"}, nil
}
