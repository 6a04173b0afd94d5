package tui

import (
	"sync"

	"github.com/Dicklesworthstone/bigsort/internal/events"
	tea "github.com/charmbracelet/bubbletea"
)

const feedBuffer = 64

// Feed buffers bus events for the progress view. Delivery never blocks the
// publisher: when the view falls behind, progress events are dropped and a
// terminal event evicts the oldest buffered one.
type Feed struct {
	mu          sync.Mutex
	ch          chan events.Event
	closed      bool
	unsubscribe func()
}

// NewFeed subscribes to every event on bus.
func NewFeed(bus *events.Bus) *Feed {
	f := &Feed{ch: make(chan events.Event, feedBuffer)}
	f.unsubscribe = bus.SubscribeAll(f.deliver)
	return f
}

func (f *Feed) deliver(ev events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for {
		select {
		case f.ch <- ev:
			return
		default:
		}
		if !ev.Terminal() {
			return
		}
		select {
		case <-f.ch:
		default:
		}
	}
}

// Close stops receiving events and releases a pending wait.
func (f *Feed) Close() {
	f.unsubscribe()
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
}

// wait returns a command that delivers the next buffered event.
func (f *Feed) wait() tea.Cmd {
	if f == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-f.ch
		if !ok {
			return nil
		}
		return EventMsg(ev)
	}
}
