package reminder

import (
	"sync"
	"time"
)

// ledgerRetention is how long a fired record is kept before Prune drops it.
const ledgerRetention = time.Hour

// Ledger records which (item, lead time) keys have already produced a
// notification this session. It also tracks in-flight dispatches so two
// overlapping poll ticks cannot both pass the fired check and double-send:
// TryBegin reserves the key atomically, MarkFired commits it on dispatch
// success, Abandon releases it on failure so the next tick retries.
type Ledger struct {
	mu      sync.Mutex
	fired   map[string]time.Time
	pending map[string]struct{}
}

func NewLedger() *Ledger {
	return &Ledger{
		fired:   make(map[string]time.Time),
		pending: make(map[string]struct{}),
	}
}

// HasFired reports whether key already has a committed record.
func (l *Ledger) HasFired(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.fired[key]
	return ok
}

// TryBegin reserves key for dispatch. It returns false when the key is
// already fired or another dispatch for it is in flight.
func (l *Ledger) TryBegin(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.fired[key]; ok {
		return false
	}
	if _, ok := l.pending[key]; ok {
		return false
	}
	l.pending[key] = struct{}{}
	return true
}

// MarkFired commits key at the given instant and clears any reservation.
// Overwriting an existing record is harmless.
func (l *Ledger) MarkFired(key string, when time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, key)
	l.fired[key] = when
}

// Abandon releases a reservation without recording a fire, so the key is
// eligible again on the next poll tick.
func (l *Ledger) Abandon(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, key)
}

// Prune drops every record whose sentAt is more than the retention window
// before now, and returns how many were removed.
func (l *Ledger) Prune(now time.Time) int {
	cutoff := now.Add(-ledgerRetention)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for k, sentAt := range l.fired {
		if sentAt.Before(cutoff) {
			delete(l.fired, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of committed records, for logging.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fired)
}
