// Package asset tracks per-currency balances with escrow-based reserve
// semantics: placing an order moves the committed amount from available to
// reserved, a fill releases the reservation and credits the counter-currency,
// a cancel reverts the reservation exactly.
package asset

import (
	"sync"

	"shadowtrader/internal/events"
	"shadowtrader/internal/order"
	"shadowtrader/internal/utils"
)

// Balances maps currency to amount. Reads of unknown currencies return 0,
// which keeps the ledger arithmetic branch-free.
type Balances map[string]float64

// Get returns the balance for currency, 0 when absent.
func (b Balances) Get(currency string) float64 {
	return b[currency]
}

// Add adjusts the balance for currency by delta, inserting on first write.
func (b Balances) Add(currency string, delta float64) {
	b[currency] += delta
}

// Copy returns an independent copy of the map.
func (b Balances) Copy() Balances {
	out := make(Balances, len(b))
	for currency, amount := range b {
		out[currency] = amount
	}
	return out
}

// Update is the notification payload published after every ledger mutation.
// Both maps are copies; subscribers may retain them.
type Update struct {
	Available Balances
	Reserved  Balances
}

// Ledger owns the available and reserved balances of one exchange facade.
// Mutations arrive only through order reports; there is no polling API,
// downstream reporters observe balances through the update feed. Safe for
// concurrent use; updates are published outside the lock so subscribers
// may read the ledger from their callbacks.
type Ledger struct {
	mu        sync.RWMutex
	available Balances
	reserved  Balances
	updates   *events.Feed[Update]
}

// NewLedger creates a ledger seeded with the given available balances.
func NewLedger(initial Balances) *Ledger {
	l := &Ledger{
		available: make(Balances),
		reserved:  make(Balances),
		updates:   events.NewFeed[Update](),
	}
	for currency, amount := range initial {
		l.available[currency] = amount
	}
	return l
}

// Updates exposes the asset update feed.
func (l *Ledger) Updates() *events.Feed[Update] {
	return l.updates
}

// IsBuyAllowed reports whether the available quote balance covers the
// order's notional.
func (l *Ledger) IsBuyAllowed(o order.Order) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.available.Get(o.Pair.Quote) >= o.Notional()
}

// IsSellAllowed reports whether the available base balance covers the
// order's quantity.
func (l *Ledger) IsSellAllowed(o order.Order) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.available.Get(o.Pair.Base) >= o.Quantity
}

// committed returns the currency and amount an order locks while open:
// quote × notional for a buy, base × quantity for a sell.
func committed(o order.Order) (string, float64) {
	if o.Side == order.Buy {
		return o.Pair.Quote, o.Notional()
	}
	return o.Pair.Base, o.Quantity
}

// Reserve moves the order's committed amount from available to reserved.
func (l *Ledger) Reserve(o order.Order) {
	l.mu.Lock()
	currency, amount := committed(o)
	l.available.Add(currency, -amount)
	l.reserved.Add(currency, amount)
	update := l.snapshotLocked()
	l.mu.Unlock()
	l.updates.Publish(update)
}

// Revert undoes a Reserve exactly. Reserve followed by Revert on the same
// order is a no-op on both maps.
func (l *Ledger) Revert(o order.Order) {
	l.mu.Lock()
	currency, amount := committed(o)
	l.available.Add(currency, amount)
	l.reserved.Add(currency, -amount)
	update := l.snapshotLocked()
	l.mu.Unlock()
	l.updates.Publish(update)
}

// Release settles a completed fill: the reservation is consumed and the
// counter-currency the trade produced is credited to available.
func (l *Ledger) Release(o order.Order) {
	l.mu.Lock()
	currency, amount := committed(o)
	l.reserved.Add(currency, -amount)
	if o.Side == order.Buy {
		l.available.Add(o.Pair.Base, o.Quantity)
	} else {
		l.available.Add(o.Pair.Quote, o.Notional())
	}
	update := l.snapshotLocked()
	l.mu.Unlock()
	l.updates.Publish(update)
}

// ProcessReport maps one order report onto a ledger operation. The table is
// keyed by (reportType, status); anything not listed leaves the ledger
// untouched. Partial fills intentionally take no ledger action until a
// product decision settles proportional release.
func (l *Ledger) ProcessReport(rep order.Report) {
	o := rep.Order
	switch {
	case o.ReportType == order.ReportNew && o.Status == order.StatusNew:
		l.Reserve(o)
	case o.ReportType == order.ReportReplaced && o.Status == order.StatusNew:
		if rep.Old == nil {
			utils.GetLogger().Printf("Ledger | Replaced report %s without old order, skipping", o.ID)
			return
		}
		l.Revert(*rep.Old)
		l.Reserve(o)
	case o.ReportType == order.ReportTrade && o.Status == order.StatusFilled:
		l.Release(o)
	case o.ReportType == order.ReportCanceled,
		o.ReportType == order.ReportExpired,
		o.ReportType == order.ReportSuspended:
		l.Revert(o)
	}
}

// Available returns a copy of the available balances.
func (l *Ledger) Available() Balances {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.available.Copy()
}

// Reserved returns a copy of the reserved balances.
func (l *Ledger) Reserved() Balances {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reserved.Copy()
}

func (l *Ledger) snapshotLocked() Update {
	return Update{
		Available: l.available.Copy(),
		Reserved:  l.reserved.Copy(),
	}
}
