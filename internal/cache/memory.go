package cache

import (
	"context"
	"maps"
	"sync"

	"github.com/jonathan/feed-copilot/internal/types"
)

// MemoryStore keeps the slot in memory; nothing survives a restart.
type MemoryStore struct {
	mu  sync.Mutex
	set types.CachedProfileSet
}

// NewMemoryStore creates a memory store holding a copy of initial.
func NewMemoryStore(initial types.CachedProfileSet) *MemoryStore {
	return &MemoryStore{set: maps.Clone(initial)}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context) (types.CachedProfileSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := maps.Clone(s.set)
	if out == nil {
		out = types.CachedProfileSet{}
	}
	return out, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, set types.CachedProfileSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = maps.Clone(set)
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = nil
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
