package exchange

import (
	"shadowtrader/internal/candle"
	"shadowtrader/internal/order"
	"shadowtrader/internal/utils"
)

// processOpenOrders partitions the open orders of pair into still-open and
// filled against one bar. Fills take the same report path a live venue's
// trade reports would, so downstream processing is identical.
func (l *Local) processOpenOrders(pair order.Pair, c candle.Candle) {
	var filled []order.Order
	for _, o := range l.tracker.OpenOrders() {
		if o.Pair != pair || !isOrderExecutable(o, c) {
			continue
		}
		fill := o
		fill.ReportType = order.ReportTrade
		fill.Status = order.StatusFilled
		fill.UpdatedAt = c.Timestamp
		filled = append(filled, fill)
	}

	// Report after the scan: the tracker removes each filled order from the
	// open set as its trade report goes through.
	for _, fill := range filled {
		utils.GetLogger().Printf("LocalExchange | Order %s filled at bar %s", fill.ID, c.Timestamp.Format("2006-01-02T15:04:05Z"))
		l.OnReport(fill)
	}
}

// isOrderExecutable decides whether a bar can fill an order: a buy fills
// when the bar traded below its price, a sell when the bar traded above it.
// A bar older than the order's creation cannot fill it, which protects
// against out-of-order replay filling an order before it existed.
func isOrderExecutable(o order.Order, c candle.Candle) bool {
	if c.Timestamp.Before(o.CreatedAt) {
		return false
	}
	switch o.Side {
	case order.Buy:
		return c.Low < o.Price
	case order.Sell:
		return c.High > o.Price
	default:
		return false
	}
}
