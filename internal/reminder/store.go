package reminder

import "sync"

// Store holds the current candidate set. Each scan replaces the whole set.
// Scans carry a monotonically increasing sequence; a slow scan that finishes
// after a newer one is discarded instead of clobbering the newer result.
type Store struct {
	mu      sync.RWMutex
	items   []Item
	lastSeq uint64
}

func NewStore() *Store {
	return &Store{}
}

// Replace installs items as the new candidate set. It returns false and
// leaves the store untouched when seq is not newer than the last accepted
// sequence.
func (s *Store) Replace(seq uint64, items []Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.lastSeq {
		return false
	}
	s.lastSeq = seq
	s.items = items
	return true
}

// Snapshot returns the current set. The slice is shared; callers must not
// modify it (items themselves are immutable).
func (s *Store) Snapshot() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items
}

// Len reports the current candidate count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
