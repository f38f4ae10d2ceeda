// Package bot wires strategies to an exchange facade and turns their
// signals into limit orders.
package bot

import (
	"sync"

	"shadowtrader/internal/exchange"
	"shadowtrader/internal/order"
	"shadowtrader/internal/strategy"
	"shadowtrader/internal/utils"
)

// Bot runs one strategy per pair. It reacts to candle updates synchronously:
// by the time the facade's publish returns, the bot has already acted on
// the bar.
type Bot struct {
	exchange   exchange.Exchange
	strategies map[order.Pair]strategy.Strategy
	orderSize  float64

	mu sync.Mutex
	// open mirrors every open order on the facade, by ID, whatever placed
	// it. Adopting venue-synced orders too lets the bot manage positions
	// that survived a restart.
	open map[string]order.Order
}

func New(ex exchange.Exchange, strats []strategy.Strategy, orderSize float64) *Bot {
	b := &Bot{
		exchange:   ex,
		strategies: make(map[order.Pair]strategy.Strategy, len(strats)),
		orderSize:  orderSize,
		open:       make(map[string]order.Order),
	}
	for _, s := range strats {
		b.strategies[s.Pair()] = s
	}
	b.exchange.Reports().Subscribe(b.onReport)
	b.exchange.CandleUpdates().Subscribe(b.onCandleUpdate)
	return b
}

func (b *Bot) onReport(rep order.Report) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rep.Old != nil {
		delete(b.open, rep.Old.ID)
	}
	if rep.Order.IsTerminal() {
		delete(b.open, rep.Order.ID)
		return
	}
	if _, tracked := b.open[rep.Order.ID]; tracked || rep.Order.ReportType == order.ReportNew ||
		rep.Order.ReportType == order.ReportReplaced {
		b.open[rep.Order.ID] = rep.Order
	}
}

func (b *Bot) onCandleUpdate(u exchange.CandleUpdate) {
	strat, ok := b.strategies[u.Pair]
	if !ok {
		return
	}
	sig, err := strat.OnCandles(u.Candles)
	if err != nil {
		utils.GetLogger().Printf("Bot | %s signal error on %s: %v", strat.Name(), u.Pair, err)
		return
	}
	if sig.Action == strategy.Hold {
		return
	}
	b.act(u.Pair, sig)
}

// act cancels stale orders on the opposite side, then places a limit at the
// trigger price unless an order on the signal side is already working.
func (b *Bot) act(pair order.Pair, sig strategy.Signal) {
	side := order.Buy
	if sig.Action == strategy.Sell {
		side = order.Sell
	}

	for _, o := range b.openOrders(pair) {
		if o.Side == side {
			return // Already working this side.
		}
		if err := b.exchange.CancelOrder(o); err != nil {
			utils.GetLogger().Printf("Bot | Failed to cancel %s order %s: %v", o.Pair, o.ID, err)
			return
		}
	}

	if err := b.exchange.CreateOrder(pair, sig.TriggerPrice, b.orderSize, side); err != nil {
		utils.GetLogger().Printf("Bot | Failed to place %s %s at %.8f: %v", side, pair, sig.TriggerPrice, err)
		return
	}
	utils.GetLogger().Printf("Bot | Placed %s %s %.8f @ %.8f (%s)", side, pair, b.orderSize, sig.TriggerPrice, sig.Reason)
}

func (b *Bot) openOrders(pair order.Pair) []order.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	var orders []order.Order
	for _, o := range b.open {
		if o.Pair == pair {
			orders = append(orders, o)
		}
	}
	return orders
}
