package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadowtrader/internal/order"
)

var btcusd = order.Pair{Base: "BTC", Quote: "USD"}

func TestOrderbook_SetOrders(t *testing.T) {
	t.Run("Replaces both sides and sorts them", func(t *testing.T) {
		b := New(btcusd)
		b.SetOrders(
			[]Entry{{Price: 102, Size: 1}, {Price: 101, Size: 2}},
			[]Entry{{Price: 99, Size: 1}, {Price: 100, Size: 3}},
			1,
		)

		assert.Equal(t, []Entry{{Price: 101, Size: 2}, {Price: 102, Size: 1}}, b.Ask())
		assert.Equal(t, []Entry{{Price: 100, Size: 3}, {Price: 99, Size: 1}}, b.Bid())
		assert.Equal(t, int64(1), b.SequenceID())
	})

	t.Run("Second snapshot replaces wholesale", func(t *testing.T) {
		b := New(btcusd)
		b.SetOrders([]Entry{{Price: 101, Size: 1}}, []Entry{{Price: 100, Size: 1}}, 1)
		b.SetOrders([]Entry{{Price: 105, Size: 2}}, nil, 2)

		assert.Equal(t, []Entry{{Price: 105, Size: 2}}, b.Ask())
		assert.Empty(t, b.Bid())
	})
}

func TestOrderbook_AddIncrement(t *testing.T) {
	newBook := func() *Orderbook {
		b := New(btcusd)
		b.SetOrders(
			[]Entry{{Price: 101, Size: 1}, {Price: 102, Size: 2}},
			[]Entry{{Price: 100, Size: 1}, {Price: 99, Size: 2}},
			10,
		)
		return b
	}

	t.Run("Updates an existing level", func(t *testing.T) {
		b := newBook()
		b.AddIncrement([]Entry{{Price: 101, Size: 5}}, nil, 11)

		assert.Equal(t, []Entry{{Price: 101, Size: 5}, {Price: 102, Size: 2}}, b.Ask())
	})

	t.Run("Inserts a new level in order", func(t *testing.T) {
		b := newBook()
		b.AddIncrement(nil, []Entry{{Price: 99.5, Size: 4}}, 11)

		assert.Equal(t, []Entry{{Price: 100, Size: 1}, {Price: 99.5, Size: 4}, {Price: 99, Size: 2}}, b.Bid())
	})

	t.Run("Size zero deletes the level", func(t *testing.T) {
		b := newBook()
		b.AddIncrement([]Entry{{Price: 102, Size: 0}}, nil, 11)

		assert.Equal(t, []Entry{{Price: 101, Size: 1}}, b.Ask())
	})

	t.Run("Deleting an absent level is a no-op", func(t *testing.T) {
		b := newBook()
		b.AddIncrement([]Entry{{Price: 500, Size: 0}}, nil, 11)

		assert.Len(t, b.Ask(), 2)
		assert.Equal(t, int64(11), b.SequenceID())
	})
}

func TestOrderbook_SequenceGuard(t *testing.T) {
	t.Run("Stale sequence is dropped, book untouched", func(t *testing.T) {
		b := New(btcusd)
		b.SetOrders([]Entry{{Price: 101, Size: 1}}, nil, 10)
		b.AddIncrement([]Entry{{Price: 101, Size: 9}}, nil, 10)
		b.AddIncrement([]Entry{{Price: 101, Size: 9}}, nil, 9)

		assert.Equal(t, []Entry{{Price: 101, Size: 1}}, b.Ask())
		assert.Equal(t, int64(10), b.SequenceID())
	})

	t.Run("Dropped update publishes nothing", func(t *testing.T) {
		b := New(btcusd)
		b.SetOrders([]Entry{{Price: 101, Size: 1}}, nil, 10)

		published := 0
		b.Updates().Subscribe(func(Snapshot) { published++ })
		b.AddIncrement([]Entry{{Price: 101, Size: 9}}, nil, 5)

		assert.Equal(t, 0, published)
	})

	t.Run("Far-behind sequence is accepted as a venue reset", func(t *testing.T) {
		b := New(btcusd)
		b.SetOrders([]Entry{{Price: 101, Size: 1}}, nil, 5000)
		b.SetOrders([]Entry{{Price: 200, Size: 1}}, nil, 3)

		assert.Equal(t, []Entry{{Price: 200, Size: 1}}, b.Ask())
		assert.Equal(t, int64(3), b.SequenceID())
	})
}

func TestOrderbook_PublishesCopies(t *testing.T) {
	b := New(btcusd)
	var got Snapshot
	b.Updates().Subscribe(func(s Snapshot) { got = s })

	b.SetOrders([]Entry{{Price: 101, Size: 1}}, []Entry{{Price: 100, Size: 1}}, 1)
	require.Len(t, got.Ask, 1)

	got.Ask[0].Price = 999
	assert.Equal(t, 101.0, b.Ask()[0].Price)
	assert.Equal(t, btcusd, got.Pair)
	assert.Equal(t, int64(1), got.SequenceID)
}
