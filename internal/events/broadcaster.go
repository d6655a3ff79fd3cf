// Package events fans filesystem change notifications out to SSE subscribers.
package events

import (
	"encoding/json"
	"sync"

	"github.com/audichuang/openclaw-telegram-files/internal/clock"
	"github.com/audichuang/openclaw-telegram-files/internal/metrics"
	"github.com/audichuang/openclaw-telegram-files/pkg/protocol"
)

const (
	EventCreate = "create"
	EventModify = "modify"
	EventDelete = "delete"
	EventMkdir  = "mkdir"
	EventUpload = "upload"
)

// Event is a change published after a successful mutation.
type Event = protocol.ChangeEvent

const subscriberBuffer = 64

// Broadcaster manages SSE subscribers and publishes events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	closed      bool
	clock       clock.Clock
}

// NewBroadcaster creates a broadcaster. A nil clock uses wall time.
func NewBroadcaster(clk clock.Clock) *Broadcaster {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
		clock:       clk,
	}
}

// Subscribe adds a subscriber and returns its event channel. The caller must
// call Unsubscribe when done. After Close the returned channel is already
// closed.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subscribers[ch] = struct{}{}
	}
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(int64(n))
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(int64(n))
}

// Publish sends an event to all subscribers without blocking; slow
// consumers miss events.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = b.clock.Now().UnixMilli()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	metrics.RecordSSEEvent(event.Type)
}

// Close disconnects every subscriber. Used on shutdown so streaming handlers
// return.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
	metrics.SetSSEConnectionsActive(0)
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// MarshalEvent serializes an event to JSON.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
