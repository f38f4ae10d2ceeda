package candle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fiveMin := MustInterval(5 * time.Minute)

	t.Run("Rejects a target not larger than the source", func(t *testing.T) {
		_, err := Aggregate(nil, fiveMin, minute)
		assert.Error(t, err)
		_, err = Aggregate(nil, minute, minute)
		assert.Error(t, err)
	})

	t.Run("Rejects a non-divisible target", func(t *testing.T) {
		threeMin := MustInterval(3 * time.Minute)
		twoMin := MustInterval(2 * time.Minute)
		_, err := Aggregate(nil, twoMin, threeMin)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not divisible")
	})

	t.Run("Empty input with a valid compression", func(t *testing.T) {
		result, err := Aggregate(nil, minute, fiveMin)
		assert.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("Merges OHLCV per target bucket", func(t *testing.T) {
		// Five 1m bars inside one 5m bucket, newest first.
		candles := []Candle{
			{Timestamp: base.Add(4 * time.Minute), Open: 104, High: 120, Low: 103, Close: 111, Volume: 5},
			{Timestamp: base.Add(3 * time.Minute), Open: 103, High: 105, Low: 99, Close: 104, Volume: 4},
			{Timestamp: base.Add(2 * time.Minute), Open: 102, High: 104, Low: 101, Close: 103, Volume: 3},
			{Timestamp: base.Add(1 * time.Minute), Open: 101, High: 103, Low: 100, Close: 102, Volume: 2},
			{Timestamp: base, Open: 100, High: 102, Low: 98, Close: 101, Volume: 1},
		}

		result, err := Aggregate(candles, minute, fiveMin)
		require.NoError(t, err)
		require.Len(t, result, 1)

		agg := result[0]
		assert.Equal(t, base, agg.Timestamp)
		assert.Equal(t, 100.0, agg.Open)
		assert.Equal(t, 120.0, agg.High)
		assert.Equal(t, 98.0, agg.Low)
		assert.Equal(t, 111.0, agg.Close)
		assert.Equal(t, 15.0, agg.Volume)
	})

	t.Run("Buckets split on target boundaries, newest first", func(t *testing.T) {
		candles := []Candle{
			{Timestamp: base.Add(5 * time.Minute), Open: 110, High: 111, Low: 109, Close: 110, Volume: 1},
			{Timestamp: base, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1},
		}

		result, err := Aggregate(candles, minute, fiveMin)
		require.NoError(t, err)
		require.Len(t, result, 2)
		assert.Equal(t, base.Add(5*time.Minute), result[0].Timestamp)
		assert.Equal(t, base, result[1].Timestamp)
	})
}

func TestAggregateStream(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fiveMin := MustInterval(5 * time.Minute)

	t.Run("Rejects a bad compression at construction", func(t *testing.T) {
		m := NewManager(MustInterval(2*time.Minute), false)
		_, err := NewAggregateStream(m, MustInterval(3*time.Minute))
		assert.Error(t, err)
	})

	t.Run("Republishes compressed bars", func(t *testing.T) {
		m := NewManager(minute, false, WithClock(fixedClock(base.Add(time.Minute))))
		stream, err := NewAggregateStream(m, fiveMin)
		require.NoError(t, err)

		var got []Candle
		stream.Updates().Subscribe(func(candles []Candle) { got = candles })

		m.Set([]Candle{bar(base, 100), bar(base.Add(time.Minute), 101)})
		require.Len(t, got, 1)
		assert.Equal(t, base, got[0].Timestamp)
		assert.Equal(t, 101.0, got[0].Close)
	})
}
