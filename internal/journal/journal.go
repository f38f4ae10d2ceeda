// Package journal persists the engine's notification fan-out: order reports
// and balance snapshots become an append-only trail reporters can query.
// The engine itself never reads the journal back; engine state is
// process-memory only.
package journal

import (
	"context"
	"time"

	"shadowtrader/internal/asset"
	"shadowtrader/internal/order"
	"shadowtrader/internal/utils"
)

// Event represents a journaled event.
type Event struct {
	Time        time.Time
	Type        string // e.g., "order", "assets", "error"
	Description string
	Data        map[string]any
}

// Storage is the sink the journaler writes to.
type Storage interface {
	SaveOrder(ctx context.Context, o order.Order) error
	LogEvent(ctx context.Context, event Event) error
}

// Journaler subscribes to an exchange facade's feeds and records every
// order report and balance change. Write failures are logged and dropped;
// journaling must never stall the trading loop.
type Journaler struct {
	storage Storage
	now     func() time.Time
}

func New(storage Storage) *Journaler {
	return &Journaler{storage: storage, now: time.Now}
}

// OnReport records one order-state change.
func (j *Journaler) OnReport(rep order.Report) {
	ctx := context.Background()
	if err := j.storage.SaveOrder(ctx, rep.Order); err != nil {
		utils.GetLogger().Printf("Journal | Failed to save order %s: %v", rep.Order.ID, err)
		return
	}
	data := map[string]any{
		"id":         rep.Order.ID,
		"pair":       rep.Order.Pair.String(),
		"side":       string(rep.Order.Side),
		"price":      rep.Order.Price,
		"quantity":   rep.Order.Quantity,
		"status":     string(rep.Order.Status),
		"reportType": string(rep.Order.ReportType),
	}
	if rep.Old != nil {
		data["replaced"] = rep.Old.ID
	}
	j.logEvent(ctx, Event{
		Time:        j.now(),
		Type:        "order",
		Description: "order_report",
		Data:        data,
	})
}

// OnAssetUpdate records a balance snapshot.
func (j *Journaler) OnAssetUpdate(update asset.Update) {
	j.logEvent(context.Background(), Event{
		Time:        j.now(),
		Type:        "assets",
		Description: "balance_update",
		Data: map[string]any{
			"available": map[string]float64(update.Available),
			"reserved":  map[string]float64(update.Reserved),
		},
	})
}

func (j *Journaler) logEvent(ctx context.Context, event Event) {
	if err := j.storage.LogEvent(ctx, event); err != nil {
		utils.GetLogger().Printf("Journal | Failed to log %s event: %v", event.Type, err)
	}
}
