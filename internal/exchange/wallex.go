package exchange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	wallex "github.com/wallexchange/wallex-go"

	"shadowtrader/internal/asset"
	"shadowtrader/internal/candle"
	"shadowtrader/internal/notifier"
	"shadowtrader/internal/order"
	"shadowtrader/internal/utils"
)

// Live is the exchange facade for live sessions against Wallex: orders are
// forwarded to the venue and never matched locally, the venue's own reports
// are reconciled through the same tracker/ledger path replay uses.
type Live struct {
	*Core
	client   *wallex.Client
	notifier notifier.Notifier
}

// NewWallex creates a live facade. The ledger is seeded from initial, which
// callers usually obtain via FetchWallexBalances.
func NewWallex(apiKey string, initial asset.Balances, n notifier.Notifier, generateCandles bool, candleOpts ...candle.Option) *Live {
	return &Live{
		Core:     newCore(initial, generateCandles, candleOpts...),
		client:   wallex.New(wallex.ClientOptions{APIKey: apiKey}),
		notifier: n,
	}
}

// retry wraps a function with retry logic for transient errors, using exponential backoff and error logging.
func retry(attempts int, delay time.Duration, fn func() error) error {
	backoff := delay
	for i := 1; i <= attempts; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		utils.GetLogger().Printf("Exchange | Wallex retry attempt %d/%d failed: %v. Backing off for %v", i, attempts, err, backoff)
		time.Sleep(backoff)
		if backoff < 5*time.Minute {
			backoff *= 2
			if backoff > 5*time.Minute {
				backoff = 5 * time.Minute
			}
		}
	}
	return errors.New("all retry attempts failed")
}

// VenueSymbol is the wire form of a pair on Wallex.
func VenueSymbol(pair order.Pair) string {
	return strings.ToUpper(pair.Base + pair.Quote)
}

// LoadCurrencies fetches market metadata and registers every tradeable pair.
func (l *Live) LoadCurrencies() error {
	var markets []*wallex.Market
	err := retry(3, 2*time.Second, func() error {
		var err error
		markets, err = l.client.Markets()
		return err
	})
	if err != nil {
		return err
	}

	pairs := make([]order.TradeablePair, 0, len(markets))
	for _, m := range markets {
		pairs = append(pairs, order.TradeablePair{
			Pair:              order.Pair{Base: m.BaseAsset, Quote: m.QuoteAsset},
			QuantityIncrement: 1 / pow10(m.StepSize),
			TickSize:          1 / pow10(m.TickSize),
		})
	}
	l.OnCurrenciesLoaded(pairs)
	return nil
}

// LoadCandles fetches count bars of history and snapshots them into the
// manager for (pair, interval).
func (l *Live) LoadCandles(pair order.Pair, interval candle.Interval, count int) error {
	end := time.Now().UTC()
	start := end.Add(-interval.Duration * time.Duration(count))

	res, err := resolution(interval)
	if err != nil {
		return err
	}
	var wallexCandles []*wallex.Candle
	err = retry(3, 2*time.Second, func() error {
		var err error
		wallexCandles, err = l.client.Candles(VenueSymbol(pair), res, start, end)
		return err
	})
	if err != nil {
		return err
	}

	l.OnSnapshotCandles(pair, mapWallexCandles(wallexCandles, interval), interval)
	return nil
}

func mapWallexCandles(wallexCandles []*wallex.Candle, interval candle.Interval) []candle.Candle {
	candles := make([]candle.Candle, 0, len(wallexCandles))
	for _, wc := range wallexCandles {
		c := candle.Candle{
			Timestamp: interval.PreviousBoundary(wc.Timestamp),
			Open:      number(wc.Open),
			High:      number(wc.High),
			Low:       number(wc.Low),
			Close:     number(wc.Close),
			Volume:    number(wc.Volume),
		}
		if err := c.Validate(); err != nil {
			continue // Skip invalid candles
		}
		candles = append(candles, c)
	}
	return candles
}

// FetchWallexCandles pulls raw history for a pair without going through a
// facade. Replay runs use it to source bars.
func FetchWallexCandles(apiKey string, pair order.Pair, interval candle.Interval, from, to time.Time) ([]candle.Candle, error) {
	res, err := resolution(interval)
	if err != nil {
		return nil, err
	}
	client := wallex.New(wallex.ClientOptions{APIKey: apiKey})
	var wallexCandles []*wallex.Candle
	err = retry(3, 2*time.Second, func() error {
		var err error
		wallexCandles, err = client.Candles(VenueSymbol(pair), res, from, to)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s candles: %w", pair, err)
	}
	return mapWallexCandles(wallexCandles, interval), nil
}

// CreateOrder forwards a limit order to the venue. The venue's acceptance
// becomes the new-order report; fills arrive later through the stream.
func (l *Live) CreateOrder(pair order.Pair, price, quantity float64, side order.Side) error {
	if !l.IsPairLoaded(pair) {
		return ErrUnknownPair
	}
	params := &wallex.OrderParams{
		Symbol:   VenueSymbol(pair),
		Type:     "LIMIT",
		Side:     strings.ToUpper(string(side)),
		Price:    wallex.Number(strconv.FormatFloat(price, 'f', 8, 64)),
		Quantity: wallex.Number(strconv.FormatFloat(quantity, 'f', 8, 64)),
	}
	resp, err := l.client.PlaceOrder(params)
	if err != nil {
		l.notifier.SendWithRetry("Order submission failed: " + err.Error())
		return err
	}

	l.OnReport(order.Order{
		ID:          resp.ClientOrderID,
		Pair:        pair,
		Side:        side,
		Price:       price,
		Quantity:    quantity,
		Status:      venueStatus(resp.Status),
		ReportType:  order.ReportNew,
		TimeInForce: order.GoodTillCancel,
		CreatedAt:   resp.CreatedAt.UTC(),
		UpdatedAt:   resp.CreatedAt.UTC(),
	})
	return nil
}

// Buy is a convenience wrapper around CreateOrder.
func (l *Live) Buy(pair order.Pair, price, quantity float64) error {
	return l.CreateOrder(pair, price, quantity, order.Buy)
}

// Sell is a convenience wrapper around CreateOrder.
func (l *Live) Sell(pair order.Pair, price, quantity float64) error {
	return l.CreateOrder(pair, price, quantity, order.Sell)
}

// CancelOrder forwards a cancel request once; duplicates while the first is
// in flight are suppressed.
func (l *Live) CancelOrder(o order.Order) error {
	if l.tracker.IsOrderUnconfirmed(o.ID) {
		return nil
	}
	l.tracker.SetOrderUnconfirmed(o.ID)

	if err := l.client.CancelOrder(o.ID); err != nil {
		utils.GetLogger().Printf("Exchange | Wallex cancel of %s failed: %v", o.ID, err)
		return err
	}

	canceled := o
	canceled.ReportType = order.ReportCanceled
	canceled.Status = order.StatusCanceled
	canceled.UpdatedAt = time.Now().UTC()
	l.OnReport(canceled)
	return nil
}

// AdjustOrder emulates replace on a venue without native cancel/replace:
// cancel the old order, place the new one, report both as a single replace.
func (l *Live) AdjustOrder(o order.Order, price, quantity float64) error {
	if !l.tracker.CanAdjustOrder(o, price, quantity) {
		return nil
	}

	if err := l.client.CancelOrder(o.ID); err != nil {
		utils.GetLogger().Printf("Exchange | Wallex adjust of %s failed on cancel: %v", o.ID, err)
		return err
	}
	params := &wallex.OrderParams{
		Symbol:   VenueSymbol(o.Pair),
		Type:     "LIMIT",
		Side:     strings.ToUpper(string(o.Side)),
		Price:    wallex.Number(strconv.FormatFloat(price, 'f', 8, 64)),
		Quantity: wallex.Number(strconv.FormatFloat(quantity, 'f', 8, 64)),
	}
	resp, err := l.client.PlaceOrder(params)
	if err != nil {
		l.notifier.SendWithRetry("Order adjustment failed: " + err.Error())
		return err
	}

	replacement := o
	replacement.ID = resp.ClientOrderID
	if replacement.ID == "" {
		replacement.ID = uuid.NewString()
	}
	replacement.OriginalID = o.ID
	replacement.Price = price
	replacement.Quantity = quantity
	replacement.ReportType = order.ReportReplaced
	replacement.Status = order.StatusNew
	replacement.UpdatedAt = time.Now().UTC()
	l.OnReport(replacement)
	return nil
}

// SyncOpenOrders reconciles every open order against the venue. The depth
// websocket carries no execution reports, so fills, cancels and expiries
// are discovered here and pushed through the normal report path.
func (l *Live) SyncOpenOrders() {
	for _, o := range l.tracker.OpenOrders() {
		resp, err := l.client.Order(o.ID)
		if err != nil {
			utils.GetLogger().Printf("Exchange | Wallex status check of %s failed: %v", o.ID, err)
			continue
		}
		rep, ok := reconcileVenueStatus(o, resp.Status, time.Now().UTC())
		if !ok {
			continue
		}
		utils.GetLogger().Printf("Exchange | Order %s reconciled to %s", o.ID, resp.Status)
		l.OnReport(rep)
	}
}

// reconcileVenueStatus maps a venue-reported status onto the terminal
// report that settles the order locally. Non-terminal statuses produce no
// report; a partial fill stays open until the venue reports it filled.
func reconcileVenueStatus(o order.Order, status string, now time.Time) (order.Order, bool) {
	out := o
	out.UpdatedAt = now
	switch strings.ToUpper(status) {
	case "FILLED":
		out.ReportType = order.ReportTrade
		out.Status = order.StatusFilled
	case "CANCELED", "REJECTED":
		out.ReportType = order.ReportCanceled
		out.Status = order.StatusCanceled
	case "EXPIRED":
		out.ReportType = order.ReportExpired
		out.Status = order.StatusExpired
	default:
		return order.Order{}, false
	}
	return out, true
}

// FetchWallexBalances reads venue balances into ledger seed form.
func FetchWallexBalances(apiKey string) (asset.Balances, error) {
	client := wallex.New(wallex.ClientOptions{APIKey: apiKey})
	var wallexBalances map[string]*wallex.Balance
	err := retry(3, 2*time.Second, func() error {
		var err error
		wallexBalances, err = client.Balances()
		return err
	})
	if err != nil {
		return nil, err
	}

	balances := make(asset.Balances, len(wallexBalances))
	for currency, wb := range wallexBalances {
		balances[currency] = number(wb.Value)
	}
	return balances, nil
}

func venueStatus(s string) order.Status {
	switch strings.ToUpper(s) {
	case "FILLED":
		return order.StatusFilled
	case "PARTIALLY_FILLED":
		return order.StatusPartiallyFilled
	case "CANCELED":
		return order.StatusCanceled
	case "EXPIRED":
		return order.StatusExpired
	default:
		return order.StatusNew
	}
}

// resolution maps an interval onto Wallex's candle resolution codes. An
// interval the venue cannot serve exactly is rejected rather than rounded;
// fetching bars of a different length than the manager's key would corrupt
// the series.
func resolution(interval candle.Interval) (string, error) {
	minutes := int(interval.Duration / time.Minute)
	switch {
	case minutes == 24*60:
		return "D", nil
	case minutes >= 60 && minutes < 24*60 && minutes%60 == 0:
		return strconv.Itoa(minutes), nil
	case minutes >= 1 && minutes < 60:
		return strconv.Itoa(minutes), nil
	}
	return "", fmt.Errorf("unsupported candle resolution %s", interval)
}

func number(n wallex.Number) float64 {
	out, _ := strconv.ParseFloat(string(n), 64)
	return out
}

func pow10(n int) float64 {
	out := 1.0
	for i := 0; i < n; i++ {
		out *= 10
	}
	return out
}
