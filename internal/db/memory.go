package db

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"shadowtrader/internal/journal"
	"shadowtrader/internal/order"
)

// MemoryStorage is an in-memory Storage, used in tests and replay runs
// that don't need a database.
type MemoryStorage struct {
	mu sync.RWMutex

	// Orders by order ID
	orders map[string]order.Order

	// Events (append-only)
	events []journal.Event
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		orders: make(map[string]order.Order),
		events: make([]journal.Event, 0, 1024),
	}
}

// GetDB returns nil for in-memory storage (no SQL database)
func (m *MemoryStorage) GetDB() *sql.DB { return nil }

func (m *MemoryStorage) Close() error { return nil }

func (m *MemoryStorage) SaveOrder(ctx context.Context, o order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.orders[o.ID]; ok {
		existing.Status = o.Status
		existing.ReportType = o.ReportType
		existing.UpdatedAt = o.UpdatedAt
		m.orders[o.ID] = existing
		return nil
	}
	m.orders[o.ID] = o
	return nil
}

func (m *MemoryStorage) GetOrders(ctx context.Context, pair order.Pair, limit int) ([]order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var orders []order.Order
	for _, o := range m.orders {
		if o.Pair == pair {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (m *MemoryStorage) LogEvent(ctx context.Context, event journal.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryStorage) GetEvents(ctx context.Context, eventType string, limit int) ([]journal.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var events []journal.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Type == eventType {
			events = append(events, m.events[i])
			if limit > 0 && len(events) == limit {
				break
			}
		}
	}
	return events, nil
}
