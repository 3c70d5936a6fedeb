// Package storefront holds the observable storefront state the tracker
// snapshot is derived from.
package storefront

import (
	"sync"

	"uptain-sync/internal/aggregate"
	"uptain-sync/internal/model"
)

// Store is a concurrency-safe container for aggregate.State that notifies
// subscribers after every update.
type Store struct {
	mu     sync.RWMutex
	state  aggregate.State
	nextID int
	subs   map[int]func()
}

// NewStore creates a Store holding initial.
func NewStore(initial aggregate.State) *Store {
	return &Store{state: initial, subs: make(map[int]func())}
}

// State returns a copy of the current state.
func (s *Store) State() aggregate.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Update applies fn to the state and notifies subscribers.
// Subscribers run after the lock is released and may read the store.
func (s *Store) Update(fn func(*aggregate.State)) {
	s.mu.Lock()
	fn(&s.state)
	subs := make([]func(), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub()
	}
}

// Subscribe registers fn for change notifications.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// SetRoute records a navigation.
func (s *Store) SetRoute(path string, params, query map[string]string) {
	s.Update(func(st *aggregate.State) {
		st.Path = path
		st.RouteParams = params
		st.Query = query
	})
}

// SetProduct records the product announced by a product-loaded event.
func (s *Store) SetProduct(p *model.Product) {
	s.Update(func(st *aggregate.State) { st.LoadedProduct = p })
}

// SetCart replaces the cart.
func (s *Store) SetCart(c *model.Cart) {
	s.Update(func(st *aggregate.State) { st.Cart = c })
}

// CacheWishlist stores fetched wishlist items without notifying subscribers,
// since the snapshot that fetched them already reflects them.
func (s *Store) CacheWishlist(items []model.WishlistItem) {
	s.mu.Lock()
	s.state.Wishlist = append([]model.WishlistItem(nil), items...)
	s.mu.Unlock()
}
