package strategy

import (
	"fmt"

	"shadowtrader/internal/candle"
	"shadowtrader/internal/order"
	"shadowtrader/internal/pattern"
)

// Engulfing trades candlestick engulfing formations above a strength
// threshold.
type Engulfing struct {
	pair        order.Pair
	MinStrength float64
}

func NewEngulfing(pair order.Pair, minStrength float64) *Engulfing {
	return &Engulfing{pair: pair, MinStrength: minStrength}
}

func (s *Engulfing) Name() string      { return "Engulfing" }
func (s *Engulfing) Pair() order.Pair  { return s.pair }
func (s *Engulfing) WarmupPeriod() int { return 2 }

func (s *Engulfing) OnCandles(candles []candle.Candle) (Signal, error) {
	if len(candles) == 0 {
		return Signal{}, fmt.Errorf("Engulfing: no candles")
	}
	latest := candles[0]

	match, ok := pattern.DetectEngulfing(candles)
	if !ok || match.Strength < s.MinStrength {
		return Signal{Time: latest.Timestamp, Action: Hold, Reason: "no pattern"}, nil
	}

	action := Buy
	if match.Direction == pattern.Bearish {
		action = Sell
	}
	return Signal{
		Time:         latest.Timestamp,
		Action:       action,
		Reason:       fmt.Sprintf("%s %s (strength %.2f)", match.Direction, match.Name, match.Strength),
		TriggerPrice: latest.Close,
	}, nil
}
