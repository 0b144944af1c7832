// Package channel fans sequencer events out to subscribers such as
// Server-Sent Event streams and terminal views.
package channel

import (
	"sync"
	"sync/atomic"

	"github.com/agentflow/agentflow/internal/core/sequencer"
	imetrics "github.com/agentflow/agentflow/internal/infrastructure/metrics"
)

// Hub delivers every published event to every subscriber. Publish never
// blocks: a subscriber whose buffer is full misses the event.
// PRINCIPLES:
// - KISS: one buffered Go channel per subscriber
// - Thread-safe: Publish and Close may race with Subscribe
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	buffer  int
	limit   int
	closed  bool
	dropped atomic.Int64
}

// HubConfig sizes a Hub
type HubConfig struct {
	Buffer         int // Per-subscriber buffer
	MaxSubscribers int // 0 means unlimited
}

// NewHub creates a hub
func NewHub(config HubConfig) *Hub {
	if config.Buffer <= 0 {
		config.Buffer = 64
	}
	return &Hub{
		subs:   make(map[uint64]*Subscription),
		buffer: config.Buffer,
		limit:  config.MaxSubscribers,
	}
}

// Subscription is one subscriber's view of the hub
type Subscription struct {
	id      uint64
	ch      chan sequencer.Event
	hub     *Hub
	once    sync.Once
	dropped atomic.Int64
}

// Events is closed when the subscription or the hub is closed
func (s *Subscription) Events() <-chan sequencer.Event {
	return s.ch
}

// Dropped returns how many events this subscriber missed
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Subscribe registers a new subscriber
func (h *Hub) Subscribe() (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	if h.limit > 0 && len(h.subs) >= h.limit {
		return nil, ErrTooManyClients
	}
	h.nextID++
	s := &Subscription{id: h.nextID, ch: make(chan sequencer.Event, h.buffer), hub: h}
	h.subs[s.id] = s
	imetrics.SetHubSubscribers(len(h.subs))
	return s, nil
}

// Publish delivers ev to every subscriber without blocking. It satisfies
// sequencer.Listener.
func (h *Hub) Publish(ev sequencer.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			s.dropped.Add(1)
			h.dropped.Add(1)
			imetrics.IncHubDropped()
		}
	}
}

// Len returns the number of subscribers
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped across all subscribers
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close ends every subscription and rejects new ones
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for id, s := range h.subs {
		s.once.Do(func() { close(s.ch) })
		delete(h.subs, id)
	}
	imetrics.SetHubSubscribers(0)
	return nil
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.id]; ok {
		delete(h.subs, s.id)
		imetrics.SetHubSubscribers(len(h.subs))
	}
	s.once.Do(func() { close(s.ch) })
}
