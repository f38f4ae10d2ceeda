// Package db provides storage backends for the order journal.
package db

import (
	"context"

	"shadowtrader/internal/journal"
	"shadowtrader/internal/order"
)

// Storage is the full persistence surface: everything the journaler
// writes plus the read side reporters use.
type Storage interface {
	journal.Storage
	GetOrders(ctx context.Context, pair order.Pair, limit int) ([]order.Order, error)
	GetEvents(ctx context.Context, eventType string, limit int) ([]journal.Event, error)
	Close() error
}
