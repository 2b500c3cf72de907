// Package cache implements the shared TTL cache store: a dumb
// key→(payload, fetch timestamp) map. Freshness policy lives with the
// callers, because different data classes (live quotes vs. daily
// aggregates) want different TTLs over the same store.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	payload   any
	fetchedAt time.Time
}

// Store is safe for concurrent use. Writers to the same key race
// last-writer-wins: payloads are fetched-and-replaced wholesale, never
// mutated in place, so a redundant upstream fetch is the worst case.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time // injectable clock for testing
}

// New creates an empty store.
func New() *Store {
	return &Store{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the stored payload and its fetch timestamp. ok is false
// when the key has never been written or has been invalidated.
func (s *Store) Get(key string) (payload any, fetchedAt time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, time.Time{}, false
	}
	return e.payload, e.fetchedAt, true
}

// GetFresh returns the payload only when it is younger than ttl.
func (s *Store) GetFresh(key string, ttl time.Duration) (any, bool) {
	payload, fetchedAt, ok := s.Get(key)
	if !ok {
		return nil, false
	}
	if s.now().Sub(fetchedAt) >= ttl {
		return nil, false
	}
	return payload, true
}

// Put unconditionally overwrites the entry for key.
func (s *Store) Put(key string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{payload: payload, fetchedAt: s.now()}
}

// Invalidate removes one key.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]entry)
}

// Len returns the number of live entries, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// SetClock replaces the store's clock. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
