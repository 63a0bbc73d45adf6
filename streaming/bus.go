// Package streaming is the live event bus behind the client streaming API.
// Nothing is persisted: events published while nobody listens are lost.
package streaming

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Bus maps a receiver id to the channel its connections listen on.
// Lookups take the read lock; creating or removing a channel takes the write lock.
type Bus struct {
	mu       sync.RWMutex
	channels map[string]*channel
	capacity int
	log      zerolog.Logger
}

type channel struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// Subscription is one listener on a receiver's channel. Close it when done.
type Subscription struct {
	bus        *Bus
	receiverID string
	ch         *channel
	events     chan Event
	dropped    atomic.Uint64
	once       sync.Once
}

// NewBus creates a bus whose subscribers buffer up to capacity events.
func NewBus(capacity int, logger zerolog.Logger) *Bus {
	if capacity < 1 {
		capacity = 1
	}
	return &Bus{
		channels: make(map[string]*channel),
		capacity: capacity,
		log:      logger.With().Str("component", "streaming").Logger(),
	}
}

// Subscribe registers a listener for receiverID, creating its channel on first use.
func (b *Bus) Subscribe(receiverID string) *Subscription {
	s := &Subscription{bus: b, receiverID: receiverID, events: make(chan Event, b.capacity)}

	for {
		b.mu.RLock()
		ch := b.channels[receiverID]
		b.mu.RUnlock()

		if ch == nil {
			b.mu.Lock()
			if ch = b.channels[receiverID]; ch == nil {
				ch = &channel{subs: make(map[*Subscription]struct{})}
				b.channels[receiverID] = ch
			}
			b.mu.Unlock()
		}

		ch.mu.Lock()
		if ch.closed {
			// lost a race with the last subscriber leaving; look again
			ch.mu.Unlock()
			continue
		}
		ch.subs[s] = struct{}{}
		s.ch = ch
		ch.mu.Unlock()

		b.log.Debug().Str("receiver", receiverID).Msg("Streaming: subscribed")
		return s
	}
}

// Publish hands ev to every current subscriber of receiverID and returns how
// many there were. Without subscribers the event is dropped.
func (b *Bus) Publish(receiverID string, ev Event) int {
	b.mu.RLock()
	ch := b.channels[receiverID]
	b.mu.RUnlock()
	if ch == nil {
		return 0
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	for s := range ch.subs {
		s.deliver(ev)
	}
	return len(ch.subs)
}

// Channels returns the number of receivers with at least one subscriber.
func (b *Bus) Channels() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels)
}

// Subscribers returns the number of listeners on receiverID's channel.
func (b *Bus) Subscribers(receiverID string) int {
	b.mu.RLock()
	ch := b.channels[receiverID]
	b.mu.RUnlock()
	if ch == nil {
		return 0
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.subs)
}

func (b *Bus) removeIfEmpty(receiverID string, ch *channel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channels[receiverID] != ch {
		return
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(ch.subs) == 0 {
		ch.closed = true
		delete(b.channels, receiverID)
		b.log.Debug().Str("receiver", receiverID).Msg("Streaming: channel removed")
	}
}

// deliver never blocks: a full buffer loses its oldest event. Caller holds ch.mu.
func (s *Subscription) deliver(ev Event) {
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case <-s.events:
			s.dropped.Add(1)
		default:
		}
	}
}

// Events is closed once the subscription is closed.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Dropped counts events discarded because this subscriber fell behind.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscription) ReceiverID() string {
	return s.receiverID
}

// Close detaches the subscription; the channel goes away with its last subscriber.
func (s *Subscription) Close() {
	s.once.Do(func() {
		ch := s.ch
		ch.mu.Lock()
		delete(ch.subs, s)
		close(s.events)
		empty := len(ch.subs) == 0
		ch.mu.Unlock()

		if empty {
			s.bus.removeIfEmpty(s.receiverID, ch)
		}
	})
}
