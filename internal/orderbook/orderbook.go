// Package orderbook maintains best-of-book ask/bid ladders for one pair
// from snapshots or sequence-guarded deltas.
package orderbook

import (
	"sort"
	"sync"

	"shadowtrader/internal/events"
	"shadowtrader/internal/order"
	"shadowtrader/internal/utils"
)

// sequenceResetGap is the tolerance window for detecting a venue-side
// sequence reset: a stale sequence this far behind the stored one is taken
// as a reconnect/reset and accepted with a warning.
const sequenceResetGap = 1000

// Entry is one price level.
type Entry struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Snapshot is the notification payload published after every accepted
// update: both ladders, copied, plus the sequence that produced them.
type Snapshot struct {
	Pair       order.Pair
	Ask        []Entry // ascending by price
	Bid        []Entry // descending by price
	SequenceID int64
}

// Orderbook holds the ladders of one pair. Ask is kept ascending, bid
// descending, with no duplicate price levels per side. Safe for concurrent
// use; snapshots are published outside the lock.
type Orderbook struct {
	mu         sync.RWMutex
	pair       order.Pair
	ask        []Entry
	bid        []Entry
	sequenceID int64
	updates    *events.Feed[Snapshot]
}

func New(pair order.Pair) *Orderbook {
	return &Orderbook{
		pair:    pair,
		updates: events.NewFeed[Snapshot](),
	}
}

// Updates exposes the orderbook update feed.
func (b *Orderbook) Updates() *events.Feed[Snapshot] {
	return b.updates
}

// Pair returns the book's pair.
func (b *Orderbook) Pair() order.Pair {
	return b.pair
}

// SequenceID returns the sequence of the last accepted update.
func (b *Orderbook) SequenceID() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sequenceID
}

// Ask returns a copy of the ask ladder, ascending by price.
func (b *Orderbook) Ask() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyEntries(b.ask)
}

// Bid returns a copy of the bid ladder, descending by price.
func (b *Orderbook) Bid() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyEntries(b.bid)
}

// SetOrders replaces both sides wholesale from a snapshot.
func (b *Orderbook) SetOrders(ask, bid []Entry, sequenceID int64) {
	b.mu.Lock()
	if !b.isValidSequence(sequenceID) {
		b.mu.Unlock()
		return
	}
	b.sequenceID = sequenceID
	b.ask = applyIncrement(nil, ask)
	b.bid = applyIncrement(nil, bid)
	b.sortSides()
	snap := b.snapshotLocked()
	b.mu.Unlock()
	b.updates.Publish(snap)
}

// AddIncrement applies a delta to each side independently. A level with
// size 0 is deleted.
func (b *Orderbook) AddIncrement(ask, bid []Entry, sequenceID int64) {
	b.mu.Lock()
	if !b.isValidSequence(sequenceID) {
		b.mu.Unlock()
		return
	}
	b.sequenceID = sequenceID
	b.ask = applyIncrement(b.ask, ask)
	b.bid = applyIncrement(b.bid, bid)
	b.sortSides()
	snap := b.snapshotLocked()
	b.mu.Unlock()
	b.updates.Publish(snap)
}

// isValidSequence accepts strictly increasing sequences. A sequence far
// enough behind the stored one signals a venue-side reset and is accepted
// with a warning; anything else is dropped, leaving the book untouched.
func (b *Orderbook) isValidSequence(sequenceID int64) bool {
	if sequenceID > b.sequenceID {
		return true
	}
	if b.sequenceID-sequenceID > sequenceResetGap {
		utils.GetLogger().Printf("Orderbook | %s sequence reset detected (stored %d, got %d), accepting", b.pair, b.sequenceID, sequenceID)
		return true
	}
	utils.GetLogger().Printf("Orderbook | %s dropping stale sequence %d (stored %d)", b.pair, sequenceID, b.sequenceID)
	return false
}

// applyIncrement removes any existing level at each delta's price and
// re-inserts it unless its size is 0.
func applyIncrement(side, deltas []Entry) []Entry {
	for _, delta := range deltas {
		for i, level := range side {
			if level.Price == delta.Price {
				side = append(side[:i], side[i+1:]...)
				break
			}
		}
		if delta.Size != 0 {
			side = append(side, delta)
		}
	}
	return side
}

func (b *Orderbook) sortSides() {
	sort.Slice(b.ask, func(i, j int) bool { return b.ask[i].Price < b.ask[j].Price })
	sort.Slice(b.bid, func(i, j int) bool { return b.bid[i].Price > b.bid[j].Price })
}

func (b *Orderbook) snapshotLocked() Snapshot {
	return Snapshot{
		Pair:       b.pair,
		Ask:        copyEntries(b.ask),
		Bid:        copyEntries(b.bid),
		SequenceID: b.sequenceID,
	}
}

func copyEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
