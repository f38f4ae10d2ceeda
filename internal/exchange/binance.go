package exchange

import (
	"context"
	"strconv"
	"strings"
	"time"

	gbinance "github.com/adshao/go-binance/v2"

	"shadowtrader/internal/candle"
	"shadowtrader/internal/order"
	"shadowtrader/internal/orderbook"
	"shadowtrader/internal/utils"
)

// BinanceStream feeds a Receiver from Binance kline and partial-depth
// streams. It is a market-data adapter only; order routing stays with the
// facade it feeds.
type BinanceStream struct {
	receiver Receiver
	pairs    []WatchedPair
	interval candle.Interval
	stops    []chan struct{}
}

// NewBinanceStream creates a stream feeding receiver with bars of the
// given interval and top-of-book depth for each watched pair.
func NewBinanceStream(receiver Receiver, pairs []WatchedPair, interval candle.Interval) *BinanceStream {
	return &BinanceStream{receiver: receiver, pairs: pairs, interval: interval}
}

// Start opens one kline and one depth subscription per pair. Subscriptions
// stay up until Stop or ctx cancellation.
func (b *BinanceStream) Start(ctx context.Context) error {
	for _, p := range b.pairs {
		p := p
		_, stopKlines, err := gbinance.WsKlineServe(p.Symbol, binanceInterval(b.interval), func(event *gbinance.WsKlineEvent) {
			b.onKline(p.Pair, event)
		}, b.onStreamError)
		if err != nil {
			b.Stop()
			return err
		}
		b.stops = append(b.stops, stopKlines)

		_, stopDepth, err := gbinance.WsPartialDepthServe(p.Symbol, "20", func(event *gbinance.WsPartialDepthEvent) {
			b.onDepth(p.Pair, event)
		}, b.onStreamError)
		if err != nil {
			b.Stop()
			return err
		}
		b.stops = append(b.stops, stopDepth)
	}

	go func() {
		<-ctx.Done()
		b.Stop()
	}()
	return nil
}

// Stop closes every open subscription.
func (b *BinanceStream) Stop() {
	for _, stop := range b.stops {
		close(stop)
	}
	b.stops = nil
}

func (b *BinanceStream) onKline(pair order.Pair, event *gbinance.WsKlineEvent) {
	c := candle.Candle{
		Timestamp: time.UnixMilli(event.Kline.StartTime).UTC(),
		Open:      parseFloat(event.Kline.Open),
		High:      parseFloat(event.Kline.High),
		Low:       parseFloat(event.Kline.Low),
		Close:     parseFloat(event.Kline.Close),
		Volume:    parseFloat(event.Kline.Volume),
	}
	if err := c.Validate(); err != nil {
		utils.GetLogger().Printf("BinanceStream | Dropping invalid kline for %s: %v", pair, err)
		return
	}
	b.receiver.OnUpdateCandles(pair, []candle.Candle{c}, b.interval)
}

func (b *BinanceStream) onDepth(pair order.Pair, event *gbinance.WsPartialDepthEvent) {
	ask := make([]orderbook.Entry, 0, len(event.Asks))
	for _, level := range event.Asks {
		ask = append(ask, orderbook.Entry{Price: parseFloat(level.Price), Size: parseFloat(level.Quantity)})
	}
	bid := make([]orderbook.Entry, 0, len(event.Bids))
	for _, level := range event.Bids {
		bid = append(bid, orderbook.Entry{Price: parseFloat(level.Price), Size: parseFloat(level.Quantity)})
	}
	b.receiver.OnSnapshotOrderbook(OrderbookData{
		Pair:     pair,
		Ask:      ask,
		Bid:      bid,
		Sequence: event.LastUpdateID,
	})
}

func (b *BinanceStream) onStreamError(err error) {
	utils.GetLogger().Printf("BinanceStream | Stream error: %v", err)
}

func binanceInterval(interval candle.Interval) string {
	d := interval.Duration
	switch {
	case d >= 24*time.Hour:
		return strconv.Itoa(int(d/(24*time.Hour))) + "d"
	case d >= time.Hour:
		return strconv.Itoa(int(d/time.Hour)) + "h"
	default:
		return strconv.Itoa(int(d/time.Minute)) + "m"
	}
}

func parseFloat(s string) float64 {
	out, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return out
}
