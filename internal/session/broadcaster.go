package session

import (
	"sync"
	"sync/atomic"

	"github.com/factpulse/factpulse/internal/models"
	"github.com/sirupsen/logrus"
)

// Subscriber receives events for one session over a buffered channel.
type Subscriber struct {
	sessionID string
	ch        chan models.Event
}

// Events returns the subscriber's event stream. The channel is closed on
// Unsubscribe.
func (s *Subscriber) Events() <-chan models.Event {
	return s.ch
}

// Bus fans session events out to subscribers. Publish never blocks the
// pipeline: a subscriber whose buffer is full misses the event and is
// expected to recover via the result history endpoint.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscriber]struct{}
	buffer  int
	dropped int64
}

// NewBus creates a bus with the given per-subscriber buffer size.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[string]map[*Subscriber]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a listener for the session's events. Only events
// published after the call are delivered.
func (b *Bus) Subscribe(sessionID string) *Subscriber {
	sub := &Subscriber{
		sessionID: sessionID,
		ch:        make(chan models.Event, b.buffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[*Subscriber]struct{})
	}
	b.subs[sessionID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes the listener and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[sub.sessionID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.sessionID)
	}
	close(sub.ch)
}

// Publish delivers the event to every current subscriber of the session.
// Non-blocking: slow consumers drop events rather than stall publishers.
func (b *Bus) Publish(sessionID string, ev models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[sessionID] {
		select {
		case sub.ch <- ev:
		default:
			atomic.AddInt64(&b.dropped, 1)
			logrus.Warnf("Dropping %s event for slow subscriber on session %s", ev.Type, sessionID)
		}
	}
}

// Subscribers returns the current listener count for the session.
func (b *Bus) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}

// Dropped returns the total number of events discarded because a
// subscriber's buffer was full.
func (b *Bus) Dropped() int64 {
	return atomic.LoadInt64(&b.dropped)
}
