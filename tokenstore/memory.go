package tokenstore

import (
	"context"
	"sync"
)

// MemoryStore keeps the token pair in process memory. It satisfies Store for
// tests and for embedding apps that do not want tokens on disk.
type MemoryStore struct {
	mu   sync.RWMutex
	pair Pair
	set  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the requested token, or an empty string when none is stored.
func (s *MemoryStore) Get(_ context.Context, kind Kind) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.set {
		return "", nil
	}
	if kind == Refresh {
		return s.pair.Refresh, nil
	}
	return s.pair.Access, nil
}

// Set stores both tokens of the pair.
func (s *MemoryStore) Set(_ context.Context, pair Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pair = pair
	s.set = true
	return nil
}

// Clear removes both tokens.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pair = Pair{}
	s.set = false
	return nil
}
