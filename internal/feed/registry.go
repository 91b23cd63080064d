package feed

import (
	"sync"

	"github.com/alanyoungcy/sudarshan/internal/domain"
)

// Registry is the ordered, de-duplicated set of instruments the feed should
// be subscribed to. It only grows.
type Registry struct {
	mu    sync.Mutex
	order []domain.Subscription
	seen  map[domain.Subscription]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{seen: make(map[domain.Subscription]struct{})}
}

// Add inserts sub and reports whether it was new.
func (r *Registry) Add(sub domain.Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(sub)
}

// AddAll inserts subs and returns the ones that were not already present,
// in the order given.
func (r *Registry) AddAll(subs []domain.Subscription) []domain.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	var added []domain.Subscription
	for _, s := range subs {
		if r.addLocked(s) {
			added = append(added, s)
		}
	}
	return added
}

func (r *Registry) addLocked(sub domain.Subscription) bool {
	if _, ok := r.seen[sub]; ok {
		return false
	}
	r.seen[sub] = struct{}{}
	r.order = append(r.order, sub)
	return true
}

// List returns a copy of the registered subscriptions in insertion order.
func (r *Registry) List() []domain.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Subscription, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
