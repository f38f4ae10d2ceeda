package strategy

import (
	"fmt"

	"shadowtrader/internal/candle"
	"shadowtrader/internal/order"
)

// SMACross signals on fast/slow simple-moving-average crossovers.
type SMACross struct {
	pair order.Pair
	Fast int
	Slow int

	prevFast float64
	prevSlow float64
	primed   bool
}

func NewSMACross(pair order.Pair, fast, slow int) *SMACross {
	if fast >= slow {
		fast, slow = slow, fast
	}
	return &SMACross{pair: pair, Fast: fast, Slow: slow}
}

func (s *SMACross) Name() string      { return "SMA Crossover" }
func (s *SMACross) Pair() order.Pair  { return s.pair }
func (s *SMACross) WarmupPeriod() int { return s.Slow + 1 }

func (s *SMACross) OnCandles(candles []candle.Candle) (Signal, error) {
	if len(candles) == 0 {
		return Signal{}, fmt.Errorf("SMACross: no candles")
	}
	latest := candles[0]
	if len(candles) < s.Slow {
		return Signal{Time: latest.Timestamp, Action: Hold, Reason: "warming up"}, nil
	}

	fast := sma(candles, s.Fast)
	slow := sma(candles, s.Slow)
	defer func() {
		s.prevFast, s.prevSlow = fast, slow
		s.primed = true
	}()

	if !s.primed {
		return Signal{Time: latest.Timestamp, Action: Hold, Reason: "warming up"}, nil
	}

	switch {
	case s.prevFast <= s.prevSlow && fast > slow:
		return Signal{Time: latest.Timestamp, Action: Buy, Reason: "SMA crossover up", TriggerPrice: latest.Close}, nil
	case s.prevFast >= s.prevSlow && fast < slow:
		return Signal{Time: latest.Timestamp, Action: Sell, Reason: "SMA crossover down", TriggerPrice: latest.Close}, nil
	default:
		return Signal{Time: latest.Timestamp, Action: Hold, Reason: "no crossover"}, nil
	}
}

// sma averages the closes of the newest period candles (input is
// newest-first).
func sma(candles []candle.Candle, period int) float64 {
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += candles[i].Close
	}
	return sum / float64(period)
}
