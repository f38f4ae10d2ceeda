// Package pattern detects candlestick formations on bar series.
package pattern

import (
	"math"

	"shadowtrader/internal/candle"
)

type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// Match is one detected formation. Strength is in [0, 1].
type Match struct {
	Name      string
	Direction Direction
	Strength  float64
}

func body(c candle.Candle) float64 {
	return math.Abs(c.Close - c.Open)
}

func spread(c candle.Candle) float64 {
	return c.High - c.Low
}

// IsDoji reports whether the bar's body is negligible relative to its range.
func IsDoji(c candle.Candle) bool {
	s := spread(c)
	if s == 0 {
		return true
	}
	return body(c)/s <= 0.1
}

// DetectEngulfing checks the two newest bars of a newest-first series for
// an engulfing formation.
func DetectEngulfing(candles []candle.Candle) (Match, bool) {
	if len(candles) < 2 {
		return Match{}, false
	}
	current, previous := candles[0], candles[1]
	if body(previous) == 0 {
		return Match{}, false
	}

	bullish := current.Close > current.Open && previous.Close < previous.Open &&
		current.Open <= previous.Close && current.Close >= previous.Open
	bearish := current.Close < current.Open && previous.Close > previous.Open &&
		current.Open >= previous.Close && current.Close <= previous.Open

	switch {
	case bullish:
		return Match{Name: "Engulfing", Direction: Bullish, Strength: strength(current, previous)}, true
	case bearish:
		return Match{Name: "Engulfing", Direction: Bearish, Strength: strength(current, previous)}, true
	default:
		return Match{}, false
	}
}

// strength scales with how much the engulfing body exceeds the engulfed one.
func strength(current, previous candle.Candle) float64 {
	ratio := body(current) / body(previous)
	s := (ratio - 1) / 2
	return math.Max(0, math.Min(1, s))
}
