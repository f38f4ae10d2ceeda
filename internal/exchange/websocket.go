package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"shadowtrader/internal/order"
	"shadowtrader/internal/orderbook"
	"shadowtrader/internal/utils"
)

// SubscribeMessage is used to subscribe to a channel via Socket.IO
// e.g. {"channel": "USDTTMN@buyDepth"}
type SubscribeMessage struct {
	Channel string `json:"channel"`
}

// depthEntry is one price level as Wallex broadcasts it.
type depthEntry struct {
	Price    json.Number `json:"price"`
	Quantity json.Number `json:"quantity"`
}

// WallexStream is the wire-protocol side of a live session: it owns the
// websocket connection, heartbeat and reconnect behavior, and translates
// venue depth broadcasts into Receiver calls. The core stays
// reconnect-oblivious; on reconnect the stream simply resumes feeding.
type WallexStream struct {
	receiver Receiver
	pairs    []WatchedPair

	mu       sync.Mutex
	conn     *websocket.Conn
	books    map[string]*assembledBook
	sequence int64
	closed   bool
}

// assembledBook collects the two per-side broadcasts of one symbol so the
// receiver always gets a full snapshot.
type assembledBook struct {
	ask []orderbook.Entry
	bid []orderbook.Entry
}

// WatchedPair names one market the stream subscribes to.
type WatchedPair struct {
	Symbol string // venue symbol, e.g. "USDTTMN"
	Pair   order.Pair
}

// NewWallexStream creates a stream that feeds receiver.
func NewWallexStream(receiver Receiver, pairs []WatchedPair) *WallexStream {
	return &WallexStream{
		receiver: receiver,
		pairs:    pairs,
		books:    make(map[string]*assembledBook),
	}
}

// Start runs the connect/read loop until ctx is done, reconnecting with a
// fixed delay on failure.
func (w *WallexStream) Start(ctx context.Context) {
	go func() {
		for {
			if err := w.connectAndStream(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				utils.GetLogger().Printf("WallexStream | Connection lost: %v, reconnecting in 5s", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
			}
		}
	}()
}

// connectAndStream handles a single websocket connection session.
func (w *WallexStream) connectAndStream(ctx context.Context) error {
	u := url.URL{Scheme: "wss", Host: "api.wallex.ir", Path: "/socket.io/"}
	query := u.Query()
	query.Set("EIO", "4")
	query.Set("transport", "websocket")
	u.RawQuery = query.Encode()

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.conn = c
	w.mu.Unlock()
	defer func() {
		c.Close()
		w.mu.Lock()
		w.conn = nil
		w.mu.Unlock()
	}()

	// Socket.IO connect message
	if err := c.WriteMessage(websocket.TextMessage, []byte("40")); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, message, err := c.ReadMessage()
		if err != nil {
			return err
		}
		msg := string(message)
		switch {
		case msg == "2":
			// Socket.IO ping, respond with pong
			c.WriteMessage(websocket.TextMessage, []byte("3"))
		case len(msg) >= 2 && msg[:2] == "40":
			w.subscribeAll(c)
		case len(msg) >= 2 && msg[:2] == "42":
			w.handleEvent(msg[2:])
		}
	}
}

func (w *WallexStream) subscribeAll(c *websocket.Conn) {
	for _, p := range w.pairs {
		for _, depth := range []string{"buyDepth", "sellDepth"} {
			subscribeJSON, _ := json.Marshal(SubscribeMessage{Channel: p.Symbol + "@" + depth})
			socketIOMsg := fmt.Sprintf(`42["subscribe",%s]`, string(subscribeJSON))
			if err := c.WriteMessage(websocket.TextMessage, []byte(socketIOMsg)); err != nil {
				utils.GetLogger().Printf("WallexStream | Subscribe to %s@%s failed: %v", p.Symbol, depth, err)
			}
		}
	}
}

func (w *WallexStream) handleEvent(jsonPart string) {
	var eventArray []any
	if err := json.Unmarshal([]byte(jsonPart), &eventArray); err != nil {
		return
	}
	if len(eventArray) < 3 {
		return
	}
	eventName, _ := eventArray[0].(string)
	channel, _ := eventArray[1].(string)
	if eventName != "Broadcaster" {
		return
	}

	watched, depthType, ok := w.matchChannel(channel)
	if !ok {
		return
	}

	dataJSON, _ := json.Marshal(eventArray[2])
	var levels map[string]depthEntry
	if err := json.Unmarshal(dataJSON, &levels); err != nil {
		utils.GetLogger().Printf("WallexStream | Malformed depth payload on %s: %v", channel, err)
		return
	}

	entries := make([]orderbook.Entry, 0, len(levels))
	for _, level := range levels {
		price, _ := strconv.ParseFloat(level.Price.String(), 64)
		size, _ := strconv.ParseFloat(level.Quantity.String(), 64)
		entries = append(entries, orderbook.Entry{Price: price, Size: size})
	}

	// Wallex broadcasts full per-side books without sequences. Each
	// broadcast replaces its side in the assembled book and the whole book
	// goes out as a snapshot, so levels the venue dropped disappear; a
	// local counter preserves the core's monotonicity guarantee.
	w.mu.Lock()
	book, ok := w.books[watched.Symbol]
	if !ok {
		book = &assembledBook{}
		w.books[watched.Symbol] = book
	}
	if depthType == "sellDepth" {
		book.ask = entries
	} else {
		book.bid = entries
	}
	w.sequence++
	data := OrderbookData{
		Pair:     watched.Pair,
		Ask:      append([]orderbook.Entry(nil), book.ask...),
		Bid:      append([]orderbook.Entry(nil), book.bid...),
		Sequence: w.sequence,
	}
	w.mu.Unlock()

	w.receiver.OnSnapshotOrderbook(data)
}

func (w *WallexStream) matchChannel(channel string) (WatchedPair, string, bool) {
	for _, p := range w.pairs {
		for _, depth := range []string{"buyDepth", "sellDepth"} {
			if channel == p.Symbol+"@"+depth {
				return p, depth, true
			}
		}
	}
	return WatchedPair{}, "", false
}
