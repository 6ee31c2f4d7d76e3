package hub

import (
	"context"
	"sync"
)

// Subscription is one subscriber's handle on a Hub: a ring buffer of pending
// values plus a count of values discarded since the last receive.
type Subscription[T any] struct {
	hub *Hub[T]

	mu     sync.Mutex
	buf    []T
	head   int
	size   int
	missed uint64
	closed bool

	// notify holds at most one wakeup for a blocked Recv
	notify chan struct{}
}

func newSubscription[T any](h *Hub[T], capacity int) *Subscription[T] {
	return &Subscription[T]{
		hub:    h,
		buf:    make([]T, capacity),
		notify: make(chan struct{}, 1),
	}
}

// Recv returns the next value.
//
// It returns a *LagError when values were discarded since the previous call;
// the following call resumes with the oldest value still queued. Once the
// subscription is closed and its queue drained it returns ErrClosed. It also
// returns early with ctx.Err() when ctx is done.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	for {
		if v, ok, err := s.tryRecv(); ok {
			return v, err
		}

		select {
		case <-s.notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Close unsubscribes from the hub. Queued values are still delivered before
// Recv reports ErrClosed. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.hub.unsubscribe(s)
	s.markClosed()
}

// Len returns the number of queued values.
func (s *Subscription[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *Subscription[T]) tryRecv() (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if s.missed > 0 {
		err := &LagError{Missed: s.missed}
		s.missed = 0
		return zero, true, err
	}
	if s.size > 0 {
		v := s.buf[s.head]
		s.buf[s.head] = zero
		s.head = (s.head + 1) % len(s.buf)
		s.size--
		return v, true, nil
	}
	if s.closed {
		return zero, true, ErrClosed
	}
	return zero, false, nil
}

// push appends v, discarding the oldest value when full. It reports whether a
// value was discarded.
func (s *Subscription[T]) push(v T) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}

	dropped := false
	if s.size == len(s.buf) {
		var zero T
		s.buf[s.head] = zero
		s.head = (s.head + 1) % len(s.buf)
		s.size--
		s.missed++
		dropped = true
	}
	s.buf[(s.head+s.size)%len(s.buf)] = v
	s.size++
	s.mu.Unlock()

	s.wake()
	return dropped
}

func (s *Subscription[T]) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription[T]) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
