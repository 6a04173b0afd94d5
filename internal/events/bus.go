package events

import "sync"

// Handler receives published events.
type Handler func(Event)

type subscription struct {
	id      uint64
	typ     string // empty matches every type
	handler Handler
}

// Bus fans events out to subscribers. Publish calls handlers synchronously
// in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers handler for events of one type. The returned function
// removes the subscription.
func (b *Bus) Subscribe(eventType string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, typ: eventType, handler: handler})
	return func() { b.unsubscribe(id) }
}

// SubscribeAll registers handler for every event.
func (b *Bus) SubscribeAll(handler Handler) func() {
	return b.Subscribe("", handler)
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every matching subscriber.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.typ == "" || s.typ == ev.Type {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
