// Package candle
package candle

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Candle is one OHLCV bar; Timestamp is the bar's start instant.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Validate checks if a candle has valid data
func (c *Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return errors.New("candle timestamp is zero")
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return errors.New("candle prices must be positive")
	}
	if c.High < c.Low {
		return errors.New("candle high cannot be less than low")
	}
	if c.Open < c.Low || c.Open > c.High {
		return errors.New("candle open price must be between high and low")
	}
	if c.Close < c.Low || c.Close > c.High {
		return errors.New("candle close price must be between high and low")
	}
	if c.Volume < 0 {
		return errors.New("candle volume cannot be negative")
	}
	return nil
}

// Interval is the schedule descriptor of one bar stream: the bar length plus
// the recurrence rule that fires when a bar boundary passes. The rule drives
// synthetic bar generation when the venue stops pushing updates.
type Interval struct {
	Duration time.Duration
	Spec     string // cron spec, e.g. "@every 1m"
}

// NewInterval builds an interval whose recurrence rule fires every duration.
func NewInterval(duration time.Duration) (Interval, error) {
	if duration <= 0 {
		return Interval{}, fmt.Errorf("invalid candle interval %v", duration)
	}
	iv := Interval{
		Duration: duration,
		Spec:     fmt.Sprintf("@every %s", duration),
	}
	if _, err := cron.ParseStandard(iv.Spec); err != nil {
		return Interval{}, fmt.Errorf("invalid interval spec %q: %w", iv.Spec, err)
	}
	return iv, nil
}

// MustInterval is NewInterval for statically known durations.
func MustInterval(duration time.Duration) Interval {
	iv, err := NewInterval(duration)
	if err != nil {
		panic(err)
	}
	return iv
}

// PreviousBoundary returns the last bar boundary at or before t.
func (iv Interval) PreviousBoundary(t time.Time) time.Time {
	return t.UTC().Truncate(iv.Duration)
}

func (iv Interval) String() string {
	return iv.Duration.String()
}
