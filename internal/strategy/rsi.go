package strategy

import (
	"fmt"
	"math"

	"shadowtrader/internal/candle"
	"shadowtrader/internal/indicator"
	"shadowtrader/internal/order"
)

// RSIStrategy buys oversold and sells overbought conditions.
type RSIStrategy struct {
	pair       order.Pair
	Period     int
	Overbought float64
	Oversold   float64
}

func NewRSIStrategy(pair order.Pair, period int, overbought, oversold float64) *RSIStrategy {
	return &RSIStrategy{pair: pair, Period: period, Overbought: overbought, Oversold: oversold}
}

func (s *RSIStrategy) Name() string      { return "RSI" }
func (s *RSIStrategy) Pair() order.Pair  { return s.pair }
func (s *RSIStrategy) WarmupPeriod() int { return s.Period + 1 }

func (s *RSIStrategy) OnCandles(candles []candle.Candle) (Signal, error) {
	if len(candles) == 0 {
		return Signal{}, fmt.Errorf("RSIStrategy: no candles")
	}
	latest := candles[0]
	if len(candles) <= s.Period {
		return Signal{Time: latest.Timestamp, Action: Hold, Reason: "warming up"}, nil
	}

	prices := closesAscending(candles)
	rsi := indicator.RSI(prices, s.Period)
	value := rsi[len(rsi)-1]
	if math.IsNaN(value) {
		return Signal{Time: latest.Timestamp, Action: Hold, Reason: "warming up"}, nil
	}

	switch {
	case value <= s.Oversold:
		return Signal{Time: latest.Timestamp, Action: Buy, Reason: fmt.Sprintf("RSI oversold (%.1f)", value), TriggerPrice: latest.Close}, nil
	case value >= s.Overbought:
		return Signal{Time: latest.Timestamp, Action: Sell, Reason: fmt.Sprintf("RSI overbought (%.1f)", value), TriggerPrice: latest.Close}, nil
	default:
		return Signal{Time: latest.Timestamp, Action: Hold, Reason: "RSI neutral"}, nil
	}
}

// closesAscending flips the newest-first series into the oldest-first
// price slice indicators expect.
func closesAscending(candles []candle.Candle) []float64 {
	prices := make([]float64, len(candles))
	for i, c := range candles {
		prices[len(candles)-1-i] = c.Close
	}
	return prices
}
