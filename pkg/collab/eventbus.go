package collab

import (
	"context"
	"sync"
)

// InProcessBus is the default EventBus: synchronous, in-memory,
// fan-out to every matching subscriber on the publisher's goroutine.
// Handlers that need isolation from a slow subscriber should launch
// their own goroutine inside the handler.
type InProcessBus struct {
	mu       sync.RWMutex
	handlers map[EventDef][]EventHandler
	all      []EventHandler
}

// NewInProcessBus returns an empty bus.
func NewInProcessBus() *InProcessBus {
	return &InProcessBus{handlers: make(map[EventDef][]EventHandler)}
}

// Publish dispatches payload to every subscriber of def, then to every
// subscribeAll handler, in registration order.
func (b *InProcessBus) Publish(ctx context.Context, def EventDef, payload Payload) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers[def]...)
	all := append([]EventHandler(nil), b.all...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, def, payload)
	}
	for _, h := range all {
		h(ctx, def, payload)
	}
}

// Subscribe registers handler for a single event definition.
func (b *InProcessBus) Subscribe(def EventDef, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[def] = append(b.handlers[def], handler)
}

// SubscribeAll registers handler for every event published on the bus.
func (b *InProcessBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}
