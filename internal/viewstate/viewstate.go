// Package viewstate holds the per-session "active viewed role": the role whose UI a
// session is currently looking at. It never changes what a session is permitted to do.
package viewstate

import (
	"errors"
	"strings"
	"sync"

	"github.com/R3E-Network/vault_portal/internal/roles"
)

var (
	// ErrInvalidRole is returned for an unknown role tag.
	ErrInvalidRole = errors.New("invalid role")
	// ErrNotPermitted is returned when a session may not view another role.
	ErrNotPermitted = errors.New("switching view role not permitted")
	// ErrDisconnected is returned for sessions without a wallet.
	ErrDisconnected = errors.New("wallet not connected")
)

// Handler receives the new view role of a session.
type Handler func(roles.Role)

type subscription struct {
	id      uint64
	handler Handler
}

// Store is an injected observable store of view roles keyed by session address.
type Store struct {
	resolver *roles.Resolver

	mu     sync.RWMutex
	values map[string]roles.Role
	subs   map[string][]subscription
	nextID uint64
}

// NewStore creates a store. Sessions without an explicit view role see their resolved role.
func NewStore(resolver *roles.Resolver) *Store {
	return &Store{
		resolver: resolver,
		values:   make(map[string]roles.Role),
		subs:     make(map[string][]subscription),
	}
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Get returns the view role for key.
func (s *Store) Get(key string) roles.Role {
	key = normalizeKey(key)
	s.mu.RLock()
	r, ok := s.values[key]
	s.mu.RUnlock()
	if ok {
		return r
	}
	return s.resolver.Resolve(key)
}

// Set stores the view role for key and notifies subscribers.
func (s *Store) Set(key string, role roles.Role) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	key = normalizeKey(key)
	s.mu.Lock()
	s.values[key] = role
	s.mu.Unlock()

	s.notify(key, role)
	return nil
}

// Switch sets the view role on behalf of a session. Only sessions allowed to switch view
// roles may pick a role other than their own.
func (s *Store) Switch(session roles.Session, role roles.Role) error {
	if !session.Connected {
		return ErrDisconnected
	}
	if !role.Valid() {
		return ErrInvalidRole
	}
	if role != session.Role && !roles.Allowed(session, roles.ActionSwitchViewRole) {
		return ErrNotPermitted
	}
	return s.Set(session.Address, role)
}

// Clear drops the explicit view role for key and notifies subscribers with the default.
func (s *Store) Clear(key string) {
	key = normalizeKey(key)
	s.mu.Lock()
	_, had := s.values[key]
	delete(s.values, key)
	s.mu.Unlock()

	if had {
		s.notify(key, s.resolver.Resolve(key))
	}
}

// Subscribe registers a handler for changes to key. Handlers run synchronously in
// subscription order. The returned function unsubscribes and may be called at any time,
// including from inside a handler.
func (s *Store) Subscribe(key string, handler Handler) func() {
	key = normalizeKey(key)
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[key] = append(s.subs[key], subscription{id: id, handler: handler})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(key, id) })
	}
}

func (s *Store) unsubscribe(key string, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[key]
	for i, sub := range subs {
		if sub.id == id {
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(s.subs, key)
			} else {
				s.subs[key] = next
			}
			return
		}
	}
}

func (s *Store) active(key string, id uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs[key] {
		if sub.id == id {
			return true
		}
	}
	return false
}

func (s *Store) notify(key string, role roles.Role) {
	s.mu.RLock()
	snapshot := make([]subscription, len(s.subs[key]))
	copy(snapshot, s.subs[key])
	s.mu.RUnlock()

	// Handlers run outside the lock; one removed by an earlier handler is skipped.
	for _, sub := range snapshot {
		if !s.active(key, sub.id) {
			continue
		}
		sub.handler(role)
	}
}

// Subscribers returns the number of handlers registered for key.
func (s *Store) Subscribers(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[normalizeKey(key)])
}
