package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"shadowtrader/internal/journal"
	"shadowtrader/internal/order"
)

// Transaction context key
type txKey struct{}

// WithTransaction adds a transaction to the context
func WithTransaction(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// GetTransaction retrieves a transaction from context, or returns nil if not present
func GetTransaction(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

type Default struct {
	db *sql.DB
}

// NewPostgres opens a postgres-backed journal store and ensures the schema.
func NewPostgres(connStr string) (*Default, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	p := &Default{db: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Default) GetDB() *sql.DB {
	return p.db
}

func (p *Default) Close() error {
	return p.db.Close()
}

func (p *Default) ensureSchema() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			order_id      TEXT PRIMARY KEY,
			original_id   TEXT,
			base          TEXT NOT NULL,
			quote         TEXT NOT NULL,
			side          TEXT NOT NULL,
			price         DOUBLE PRECISION NOT NULL,
			quantity      DOUBLE PRECISION NOT NULL,
			status        TEXT NOT NULL,
			report_type   TEXT NOT NULL,
			time_in_force TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS events (
			time        TIMESTAMPTZ NOT NULL,
			type        TEXT NOT NULL,
			description TEXT,
			data        JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_events_type_time ON events (type, time DESC);`)
	if err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// executeWithTransaction executes a function with proper transaction management.
// If a transaction exists in context, it uses that. Otherwise, it creates a new one.
func (p *Default) executeWithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	if tx := GetTransaction(ctx); tx != nil {
		return fn(tx)
	}

	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if fnErr := fn(tx); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction rollback failed: %w (original error: %v)", rbErr, fnErr)
		}
		return fnErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("transaction commit failed: %w", commitErr)
	}

	return nil
}

// queryWithTransaction executes a query using transaction from context if available
func (p *Default) queryWithTransaction(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if tx := GetTransaction(ctx); tx != nil {
		return tx.QueryContext(ctx, query, args...)
	}
	return p.db.QueryContext(ctx, query, args...)
}

func (p *Default) SaveOrder(ctx context.Context, o order.Order) error {
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO orders (order_id, original_id, base, quote, side, price, quantity, status, report_type, time_in_force, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (order_id) DO UPDATE SET status=EXCLUDED.status, report_type=EXCLUDED.report_type, updated_at=EXCLUDED.updated_at`,
			o.ID, o.OriginalID, o.Pair.Base, o.Pair.Quote, o.Side, o.Price, o.Quantity, o.Status, o.ReportType, o.TimeInForce, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to save order: %w", err)
		}
		return nil
	})
}

func (p *Default) GetOrders(ctx context.Context, pair order.Pair, limit int) ([]order.Order, error) {
	rows, err := p.queryWithTransaction(ctx, `SELECT order_id, original_id, base, quote, side, price, quantity, status, report_type, time_in_force, created_at, updated_at
		FROM orders WHERE base=$1 AND quote=$2 ORDER BY created_at DESC LIMIT $3`, pair.Base, pair.Quote, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	if rows == nil {
		return nil, nil
	}
	defer rows.Close()

	var orders []order.Order
	for rows.Next() {
		var o order.Order
		if err := rows.Scan(&o.ID, &o.OriginalID, &o.Pair.Base, &o.Pair.Quote, &o.Side, &o.Price, &o.Quantity, &o.Status, &o.ReportType, &o.TimeInForce, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.CreatedAt = o.CreatedAt.UTC()
		o.UpdatedAt = o.UpdatedAt.UTC()
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (p *Default) LogEvent(ctx context.Context, event journal.Event) error {
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		data, _ := json.Marshal(event.Data)
		_, err := tx.ExecContext(ctx, `INSERT INTO events (time, type, description, data) VALUES ($1,$2,$3,$4)`,
			event.Time, event.Type, event.Description, data)
		if err != nil {
			return fmt.Errorf("failed to log event: %w", err)
		}
		return nil
	})
}

func (p *Default) GetEvents(ctx context.Context, eventType string, limit int) ([]journal.Event, error) {
	rows, err := p.queryWithTransaction(ctx, `SELECT time, type, description, data FROM events WHERE type=$1 ORDER BY time DESC LIMIT $2`, eventType, limit)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		return nil, nil
	}
	defer rows.Close()
	var events []journal.Event
	for rows.Next() {
		var e journal.Event
		var data []byte
		if err := rows.Scan(&e.Time, &e.Type, &e.Description, &data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Time = e.Time.UTC()
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("failed to decode event data: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
