package candle

import (
	"fmt"
	"sort"
	"time"

	"shadowtrader/internal/events"
)

// Aggregate compresses bars of a source interval into bars of a larger
// target interval. The target must be an even multiple of the source; a
// remainder is a static configuration mismatch and fails the call.
// Input and output are newest first.
func Aggregate(candles []Candle, source, target Interval) ([]Candle, error) {
	if target.Duration <= source.Duration {
		return nil, fmt.Errorf("target interval %s must be larger than source %s", target, source)
	}
	if target.Duration%source.Duration != 0 {
		return nil, fmt.Errorf("target interval %s is not divisible by source interval %s", target, source)
	}
	if len(candles) == 0 {
		return nil, nil
	}

	ascending := make([]Candle, len(candles))
	copy(ascending, candles)
	sort.Slice(ascending, func(i, j int) bool {
		return ascending[i].Timestamp.Before(ascending[j].Timestamp)
	})

	buckets := make(map[time.Time][]Candle)
	for _, c := range ascending {
		bucket := target.PreviousBoundary(c.Timestamp)
		buckets[bucket] = append(buckets[bucket], c)
	}

	result := make([]Candle, 0, len(buckets))
	for bucket, group := range buckets {
		agg := Candle{
			Timestamp: bucket,
			Open:      group[0].Open,
			High:      group[0].High,
			Low:       group[0].Low,
			Close:     group[len(group)-1].Close,
		}
		for _, c := range group {
			if c.High > agg.High {
				agg.High = c.High
			}
			if c.Low < agg.Low {
				agg.Low = c.Low
			}
			agg.Volume += c.Volume
		}
		result = append(result, agg)
	}

	sortDescending(result)
	return result, nil
}

// AggregateStream republishes a manager's bars compressed to a larger
// interval. The divisibility check runs once at construction; a mismatch is
// terminal for the stream and surfaced to the caller, never retried.
type AggregateStream struct {
	source  Interval
	target  Interval
	updates *events.Feed[[]Candle]
}

// NewAggregateStream validates the compression and subscribes to manager.
func NewAggregateStream(manager *Manager, target Interval) (*AggregateStream, error) {
	source := manager.Interval()
	// Surface the mismatch before any data flows.
	if _, err := Aggregate([]Candle{}, source, target); err != nil {
		return nil, err
	}
	s := &AggregateStream{
		source:  source,
		target:  target,
		updates: events.NewFeed[[]Candle](),
	}
	manager.Updates().Subscribe(s.onCandles)
	return s, nil
}

// Updates exposes the compressed candle feed.
func (s *AggregateStream) Updates() *events.Feed[[]Candle] {
	return s.updates
}

func (s *AggregateStream) onCandles(candles []Candle) {
	aggregated, err := Aggregate(candles, s.source, s.target)
	if err != nil || len(aggregated) == 0 {
		return
	}
	s.updates.Publish(aggregated)
}
