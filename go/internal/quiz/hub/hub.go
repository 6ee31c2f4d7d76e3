package hub

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mcdev12/livequiz/go/internal/quiz/metrics"
)

// DefaultCapacity is the number of pending events each subscriber can hold
const DefaultCapacity = 32

// ErrClosed is returned by Recv once the subscription is closed and drained.
var ErrClosed = errors.New("hub: subscription closed")

// LagError reports that a subscriber fell behind and Missed of its oldest
// queued events were discarded. Receiving may continue after it.
type LagError struct {
	Missed uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("hub: subscriber lagged, missed %d events", e.Missed)
}

// Hub fans published values out to every current subscriber.
//
// Each subscriber owns a bounded queue. Publish never blocks: when a queue is
// full its oldest entry is discarded and the subscriber is told how many it
// missed on its next receive. Values published by one goroutine reach every
// subscriber in publish order.
type Hub[T any] struct {
	name     string
	capacity int

	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	closed bool
}

// New creates a hub. name labels the hub's metrics; capacity <= 0 selects DefaultCapacity.
func New[T any](name string, capacity int) *Hub[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Hub[T]{
		name:     name,
		capacity: capacity,
		subs:     make(map[*Subscription[T]]struct{}),
	}
}

// Publish queues v for every current subscriber and returns how many that was.
// With no subscribers, or after Close, v is discarded and 0 is returned.
func (h *Hub[T]) Publish(v T) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0
	}

	for s := range h.subs {
		if s.push(v) {
			metrics.HubEventsDropped.WithLabelValues(h.name).Inc()
		}
	}
	metrics.HubEventsPublished.WithLabelValues(h.name).Inc()
	return len(h.subs)
}

// Subscribe registers a new subscriber. It only sees values published after
// this call. Subscribing to a closed hub returns an already closed subscription.
func (h *Hub[T]) Subscribe() *Subscription[T] {
	s := newSubscription(h, h.capacity)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		s.closed = true
		return s
	}
	h.subs[s] = struct{}{}
	metrics.HubSubscribers.WithLabelValues(h.name).Set(float64(len(h.subs)))
	return s
}

// SubscriberCount returns the number of active subscriptions.
func (h *Hub[T]) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close stops the hub. Subscribers receive what is already queued and then ErrClosed.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		s.markClosed()
		delete(h.subs, s)
	}
	metrics.HubSubscribers.WithLabelValues(h.name).Set(0)
}

func (h *Hub[T]) unsubscribe(s *Subscription[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	metrics.HubSubscribers.WithLabelValues(h.name).Set(float64(len(h.subs)))
}
