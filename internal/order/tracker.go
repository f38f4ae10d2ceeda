package order

import (
	"sync"

	"shadowtrader/internal/events"
	"shadowtrader/internal/utils"
)

// Report is the notification published after every processed order report.
// Old is non-nil only for replaced reports and carries the superseded order,
// letting the ledger revert the stale reservation.
type Report struct {
	Order Order
	Old   *Order
}

// Tracker is the registry of currently-open orders and in-flight order ids.
// All reports, local or live, pass through Process exactly once. Safe for
// concurrent use; reports are published outside the lock so subscribers may
// query the tracker from their callbacks.
type Tracker struct {
	mu          sync.RWMutex
	openOrders  []Order
	unconfirmed map[string]struct{}
	reports     *events.Feed[Report]
}

func NewTracker() *Tracker {
	return &Tracker{
		unconfirmed: make(map[string]struct{}),
		reports:     events.NewFeed[Report](),
	}
}

// Reports exposes the report notification feed.
func (t *Tracker) Reports() *events.Feed[Report] {
	return t.reports
}

// OpenOrders returns a copy of the open order set.
func (t *Tracker) OpenOrders() []Order {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Order, len(t.openOrders))
	copy(out, t.openOrders)
	return out
}

// SetOpenOrders replaces the open order set wholesale, e.g. when syncing
// from a venue's open-orders endpoint after a restart.
func (t *Tracker) SetOpenOrders(orders []Order) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openOrders = orders
}

// SetOrderUnconfirmed marks id as sent-but-not-yet-acknowledged, suppressing
// duplicate adjust/cancel requests while a previous one is in flight.
func (t *Tracker) SetOrderUnconfirmed(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unconfirmed[id] = struct{}{}
}

// IsOrderUnconfirmed reports whether a request for id is still in flight.
func (t *Tracker) IsOrderUnconfirmed(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.unconfirmed[id]
	return ok
}

// CanAdjustOrder is the guard consulted before sending an adjustment request.
// It refuses when a request for the order is already in flight or when price
// and quantity are unchanged; otherwise it marks the order unconfirmed and
// approves the send.
func (t *Tracker) CanAdjustOrder(o Order, newPrice, newQuantity float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.unconfirmed[o.ID]; ok {
		utils.GetLogger().Printf("Tracker | Order %s already in flight, skipping adjust", o.ID)
		return false
	}
	if o.Price == newPrice && o.Quantity == newQuantity {
		return false
	}
	t.unconfirmed[o.ID] = struct{}{}
	return true
}

// Process converts an incoming order report into a lifecycle transition on
// the open set and publishes the result. It is the single entry point for
// all reports. Removal and replacement are idempotent per id, so duplicate
// or late reports degrade to a no-op.
func (t *Tracker) Process(o Order) {
	t.mu.Lock()
	delete(t.unconfirmed, o.ID)
	if o.OriginalID != "" {
		// An adjust marks the superseded id in flight; its replacement clears it.
		delete(t.unconfirmed, o.OriginalID)
	}

	var old *Order
	switch {
	case o.ReportType == ReportReplaced:
		old = t.replaceOpenOrder(o)
	case o.ReportType == ReportNew:
		t.addOpenOrder(o)
	case o.IsTerminal():
		// A terminal report for an order that is not open is a duplicate or
		// late report; publishing it would revert a reservation twice.
		if !t.removeOpenOrder(o.ID) {
			t.mu.Unlock()
			utils.GetLogger().Printf("Tracker | Terminal report %s for unknown order, dropping", o.ID)
			return
		}
	}
	t.mu.Unlock()

	t.reports.Publish(Report{Order: o, Old: old})
}

func (t *Tracker) addOpenOrder(o Order) {
	// Keep ids unique among open orders even if a venue re-sends a new report.
	t.removeOpenOrder(o.ID)
	t.openOrders = append(t.openOrders, o)
}

func (t *Tracker) removeOpenOrder(id string) bool {
	for i, open := range t.openOrders {
		if open.ID == id {
			t.openOrders = append(t.openOrders[:i], t.openOrders[i+1:]...)
			return true
		}
	}
	return false
}

func (t *Tracker) replaceOpenOrder(o Order) *Order {
	for i, open := range t.openOrders {
		if open.ID == o.OriginalID {
			old := open
			t.openOrders[i] = o
			return &old
		}
	}
	utils.GetLogger().Printf("Tracker | Replaced report %s references unknown order %s", o.ID, o.OriginalID)
	return nil
}
