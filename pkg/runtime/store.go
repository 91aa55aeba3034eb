package runtime

import (
	"sync"
)

// Store is a live, in-memory view of a read result. All data in the
// collaborative store is externally mutable, so reads never return one-shot
// snapshots: callers subscribe to the store and receive the current value
// plus every subsequent republication.
//
// A store is torn down - its backend subscription cancelled - when its
// subscriber count drops back to zero, or when Close is called.
type Store struct {
	mu      sync.Mutex
	value   any
	subs    map[int]chan any
	nextSub int
	everSub bool
	closed  bool

	// teardown cancels the backend feed keeping this store live.
	teardown func()
}

// NewStore creates a store holding an initial value. The teardown function
// may be nil for static stores (tests, one-shot results).
func NewStore(initial any, teardown func()) *Store {
	return &Store{
		value:    initial,
		subs:     make(map[int]chan any),
		teardown: teardown,
	}
}

// Get returns the store's current value.
func (s *Store) Get() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set replaces the current value and republishes it to every subscriber.
// Slow subscribers are skipped rather than blocked; they catch up on the
// next publication or via Get.
func (s *Store) Set(value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.value = value
	for _, ch := range s.subs {
		select {
		case ch <- value:
		default:
			// Drop if subscriber is slow.
		}
	}
}

// Subscribe registers a subscriber and returns its channel plus an
// unsubscribe function. When the last subscriber unsubscribes the store
// tears itself down.
func (s *Store) Subscribe() (<-chan any, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan any, 8)
	s.subs[id] = ch
	s.everSub = true

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[id]; !ok {
			s.mu.Unlock()
			return
		}
		delete(s.subs, id)
		close(ch)
		lastOut := len(s.subs) == 0 && !s.closed
		s.mu.Unlock()

		if lastOut {
			s.Close()
		}
	}

	return ch, cancel
}

// SubscriberCount returns the number of active subscribers.
func (s *Store) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close tears the store down: the backend feed is cancelled and remaining
// subscriber channels are closed. Safe to call multiple times.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	teardown := s.teardown
	s.mu.Unlock()

	if teardown != nil {
		teardown()
	}
}
