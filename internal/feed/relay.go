package feed

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/sudarshan/internal/domain"
)

// DefaultRelayBuffer is the per-subscriber queue depth.
const DefaultRelayBuffer = 1024

// Relay fans ticks out to any number of subscribers. Publish never blocks:
// a subscriber that falls behind loses its oldest queued ticks.
type Relay struct {
	buffer int

	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
	done   chan struct{}

	dropped atomic.Uint64
}

type subscriber struct {
	ch chan domain.Tick
	// mu serialises the drop-oldest/send pair for this subscriber.
	mu sync.Mutex
}

// NewRelay creates a relay with the given per-subscriber buffer. A
// non-positive buffer uses DefaultRelayBuffer.
func NewRelay(buffer int) *Relay {
	if buffer <= 0 {
		buffer = DefaultRelayBuffer
	}
	return &Relay{
		buffer: buffer,
		subs:   make(map[*subscriber]struct{}),
		done:   make(chan struct{}),
	}
}

// Subscribe registers a new consumer. The returned channel receives every
// tick published afterwards, in publish order, and is closed when ctx is
// done or the relay is closed. Either event releases the subscription.
func (r *Relay) Subscribe(ctx context.Context) <-chan domain.Tick {
	s := &subscriber{ch: make(chan domain.Tick, r.buffer)}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		close(s.ch)
		return s.ch
	}
	r.subs[s] = struct{}{}
	r.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			r.remove(s)
		case <-r.done:
		}
	}()
	return s.ch
}

func (r *Relay) remove(s *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[s]; !ok {
		return
	}
	delete(r.subs, s)
	close(s.ch)
}

// Publish delivers tick to every current subscriber.
func (r *Relay) Publish(tick domain.Tick) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for s := range r.subs {
		if n := s.deliver(tick); n > 0 {
			r.dropped.Add(n)
		}
	}
}

// deliver queues tick, discarding the oldest queued ticks until it fits.
func (s *subscriber) deliver(tick domain.Tick) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dropped uint64
	for {
		select {
		case s.ch <- tick:
			return dropped
		default:
		}
		select {
		case <-s.ch:
			dropped++
		default:
		}
	}
}

// Subscribers returns the number of live subscribers.
func (r *Relay) Subscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Dropped returns the total number of ticks discarded for slow subscribers.
func (r *Relay) Dropped() uint64 {
	return r.dropped.Load()
}

// Close closes every subscriber channel. Later subscriptions get a closed
// channel and Publish becomes a no-op.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.done)
	for s := range r.subs {
		delete(r.subs, s)
		close(s.ch)
	}
}
