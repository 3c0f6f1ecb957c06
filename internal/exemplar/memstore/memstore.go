// Package memstore provides an in-memory implementation of
// exemplar.Store. Suitable for dev/testing.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/linnemanlabs/acuity/internal/exemplar"
)

// Store holds exemplar sets in memory, keyed by specialization.
type Store struct {
	mu   sync.RWMutex
	sets map[string]*exemplar.Set
}

// New initializes an empty in-memory Store.
func New() *Store {
	return &Store{sets: make(map[string]*exemplar.Set)}
}

// Load returns the stored set for a specialization. Sets are immutable
// once compiled, so the stored pointer is returned directly.
func (s *Store) Load(_ context.Context, specialization string) (*exemplar.Set, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sets[specialization]
	if !ok {
		return nil, false, nil
	}
	return set, true, nil
}

// Save stores a compiled set, replacing any prior record.
func (s *Store) Save(_ context.Context, set *exemplar.Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[set.Specialization] = set
	return nil
}

// List returns the specializations with a stored set, sorted.
func (s *Store) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sets))
	for id := range s.sets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
