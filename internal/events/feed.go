// Package events provides the typed notification feeds the engine fans out on:
// one feed per concern (order reports, candle updates, orderbook updates, asset
// updates). Delivery is synchronous and in subscription order, so a publisher
// observes all subscriber side effects before it continues. Replay depends on
// this to finish one bar completely before presenting the next.
package events

import "sync"

// Feed is a many-subscriber notification channel. Subscription is expected
// during wiring, before publishers start, but both operations are safe for
// concurrent use. Delivery itself stays synchronous on the publisher's
// goroutine.
type Feed[T any] struct {
	mu       sync.RWMutex
	handlers []func(T)
}

// NewFeed creates an empty feed.
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{}
}

// Subscribe registers a handler invoked synchronously on every publish.
func (f *Feed[T]) Subscribe(handler func(T)) {
	if handler == nil {
		return
	}
	f.mu.Lock()
	f.handlers = append(f.handlers, handler)
	f.mu.Unlock()
}

// Publish delivers value to every subscriber in registration order.
func (f *Feed[T]) Publish(value T) {
	f.mu.RLock()
	handlers := f.handlers
	f.mu.RUnlock()
	for _, h := range handlers {
		h(value)
	}
}

// SubscriberCount returns the number of registered handlers.
func (f *Feed[T]) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.handlers)
}
