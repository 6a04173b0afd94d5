package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Emitter provides non-blocking emission of events to a Bus.
//
// Design notes:
// - Emit() never blocks callers (drops when buffer is full).
// - Events are published on a single worker goroutine, in order.
// - Terminal events go through EmitWait so they are never dropped.
type Emitter struct {
	bus *Bus
	ch  chan Event

	dropped atomic.Int64

	mu        sync.RWMutex
	closed    bool
	startOnce sync.Once
	done      chan struct{}
}

// NewEmitter creates an emitter for the given bus.
func NewEmitter(bus *Bus, buffer int) *Emitter {
	if bus == nil {
		bus = NewBus()
	}
	if buffer < 1 {
		buffer = 256
	}
	return &Emitter{
		bus:  bus,
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
}

// Bus returns the bus events are published to.
func (e *Emitter) Bus() *Bus { return e.bus }

// Start launches the background publisher loop (idempotent).
func (e *Emitter) Start() {
	e.startOnce.Do(func() {
		go func() {
			defer close(e.done)
			for ev := range e.ch {
				e.bus.Publish(ev)
			}
		}()
	})
}

// Emit enqueues an event for async publish. If the buffer is full, or the
// emitter is closed, the event is dropped.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	e.Start()
	select {
	case e.ch <- ev:
	default:
		n := e.dropped.Add(1)
		// Avoid log spam: emit only for the first drop and then every 1000 drops.
		if n == 1 || n%1000 == 0 {
			slog.Default().Debug("event emitter dropped events (buffer full)", "dropped", n, "event_type", ev.Type)
		}
	}
}

// EmitWait enqueues ev, waiting for buffer space until ctx is done.
func (e *Emitter) EmitWait(ctx context.Context, ev Event) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil
	}
	e.Start()
	select {
	case e.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits until every queued event has been
// published.
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.Start()
	close(e.ch)
	e.mu.Unlock()
	<-e.done
}

// Dropped returns the number of dropped events.
func (e *Emitter) Dropped() int64 {
	return e.dropped.Load()
}
