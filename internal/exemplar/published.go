package exemplar

import (
	"sync"
	"sync/atomic"
)

// Published is the copy-on-write registry of the currently live Set
// per specialization. Publishing is a single pointer swap, so readers
// never observe a partially written set, and a reader that captured a
// Set keeps that exact snapshot even if a newer one is published
// mid-request.
type Published struct {
	mu   sync.Mutex
	sets map[string]*atomic.Pointer[Set]
}

// NewPublished creates an empty registry.
func NewPublished() *Published {
	return &Published{sets: make(map[string]*atomic.Pointer[Set])}
}

// Get returns the current Set for the specialization, if any.
func (p *Published) Get(specialization string) (*Set, bool) {
	p.mu.Lock()
	ptr, ok := p.sets[specialization]
	p.mu.Unlock()
	if !ok {
		return nil, false
	}
	set := ptr.Load()
	if set == nil {
		return nil, false
	}
	return set, true
}

// Publish atomically swaps in a newly compiled set.
func (p *Published) Publish(set *Set) {
	p.mu.Lock()
	ptr, ok := p.sets[set.Specialization]
	if !ok {
		ptr = &atomic.Pointer[Set]{}
		p.sets[set.Specialization] = ptr
	}
	p.mu.Unlock()
	ptr.Store(set)
}

// Ready reports whether a set is published for the specialization.
func (p *Published) Ready(specialization string) bool {
	_, ok := p.Get(specialization)
	return ok
}
