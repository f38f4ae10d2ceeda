// Package order
package order

import (
	"fmt"
	"time"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Status is the venue-visible state of an order.
type Status string

const (
	StatusNew             Status = "new"
	StatusPartiallyFilled Status = "partiallyFilled"
	StatusFilled          Status = "filled"
	StatusCanceled        Status = "canceled"
	StatusExpired         Status = "expired"
	StatusSuspended       Status = "suspended"
)

// ReportType classifies a single order-state change.
type ReportType string

const (
	ReportNew       ReportType = "new"
	ReportReplaced  ReportType = "replaced"
	ReportTrade     ReportType = "trade"
	ReportCanceled  ReportType = "canceled"
	ReportExpired   ReportType = "expired"
	ReportSuspended ReportType = "suspended"
	ReportStatus    ReportType = "status"
)

// TimeInForce instructs the venue how long an order stays working.
type TimeInForce string

const (
	GoodTillCancel    TimeInForce = "GTC"
	FillOrKill        TimeInForce = "FOK"
	ImmediateOrCancel TimeInForce = "IOC"
)

// Pair identifies a traded market: quantity is denominated in Base,
// notional in Quote (e.g. Base "BTC", Quote "USD").
type Pair struct {
	Base  string `json:"base" yaml:"base"`
	Quote string `json:"quote" yaml:"quote"`
}

func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// TradeablePair carries the venue metadata required before orders for the
// pair are accepted.
type TradeablePair struct {
	Pair              Pair
	QuantityIncrement float64
	TickSize          float64
}

// Order is a single order report: a snapshot of one order after one
// lifecycle transition. Orders are mutated only through report processing.
type Order struct {
	ID          string
	OriginalID  string // set on replaced reports: the order this one supersedes
	Pair        Pair
	Side        Side
	Price       float64
	Quantity    float64
	Status      Status
	ReportType  ReportType
	TimeInForce TimeInForce
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Notional returns the order value in the quote currency.
func (o Order) Notional() float64 {
	return o.Price * o.Quantity
}

// IsTerminal reports whether this report removes the order from the open set.
func (o Order) IsTerminal() bool {
	switch o.ReportType {
	case ReportCanceled, ReportExpired, ReportSuspended:
		return true
	case ReportTrade:
		return o.Status == StatusFilled
	default:
		return false
	}
}

// Validate checks the fields every report must carry.
func (o Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("order id is empty")
	}
	if o.Pair.Base == "" || o.Pair.Quote == "" {
		return fmt.Errorf("order %s has incomplete pair %q", o.ID, o.Pair)
	}
	if o.Side != Buy && o.Side != Sell {
		return fmt.Errorf("order %s has invalid side %q", o.ID, o.Side)
	}
	if o.Price <= 0 {
		return fmt.Errorf("order %s has non-positive price", o.ID)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("order %s has non-positive quantity", o.ID)
	}
	if o.ReportType == ReportReplaced && o.OriginalID == "" {
		return fmt.Errorf("replaced report for %s is missing the original id", o.ID)
	}
	return nil
}
