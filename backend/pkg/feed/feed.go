// Package feed is a small typed publish/subscribe primitive.
//
// A Feed never blocks its sender. Every subscription owns a bounded channel; when it is
// full the oldest queued value is discarded to make room for the new one, so a slow
// observer always ends up holding the latest value. A buffer of 1 gives pure
// latest-value semantics.
package feed

import "sync"

type Feed[T any] struct {
	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	replay bool
	last   T
	has    bool
	closed bool
}

// New returns a feed that only delivers values sent after Subscribe.
func New[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[*Subscription[T]]struct{})}
}

// NewLatest returns a feed that also hands the most recent value to new subscribers.
func NewLatest[T any]() *Feed[T] {
	f := New[T]()
	f.replay = true

	return f
}

// Subscription is one observer of a Feed.
type Subscription[T any] struct {
	feed *Feed[T]
	ch   chan T
}

// Subscribe registers an observer with the given channel capacity (minimum 1).
func (f *Feed[T]) Subscribe(buffer int) *Subscription[T] {
	if buffer < 1 {
		buffer = 1
	}

	s := &Subscription[T]{feed: f, ch: make(chan T, buffer)}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		close(s.ch)
		return s
	}

	if f.replay && f.has {
		s.ch <- f.last
	}

	f.subs[s] = struct{}{}

	return s
}

// Send delivers v to every subscriber and returns how many queued values were
// discarded to make room.
func (f *Feed[T]) Send(v T) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0
	}

	f.last, f.has = v, true

	dropped := 0

	for s := range f.subs {
		select {
		case s.ch <- v:
			continue
		default:
		}

		// Full: only Send writes to s.ch and we hold the lock, so after taking one
		// value out there is room.
		select {
		case <-s.ch:
			dropped++
		default:
		}

		s.ch <- v
	}

	return dropped
}

// Latest returns the last value sent, if any.
func (f *Feed[T]) Latest() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.last, f.has
}

// Len returns the number of live subscriptions.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.subs)
}

// Close ends every subscription. Later Sends are ignored.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}

	f.closed = true

	for s := range f.subs {
		close(s.ch)
		delete(f.subs, s)
	}
}

// C returns the receive channel. It is closed when the subscription or feed is closed.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription[T]) Close() {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()

	if _, ok := s.feed.subs[s]; !ok {
		return
	}

	delete(s.feed.subs, s)
	close(s.ch)
}
