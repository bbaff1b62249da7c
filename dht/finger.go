package dht

import "sync"

// FingerTable holds the BitLength successor pointers used to route
// find_successor queries in O(log n) hops. Entry i caches the successor of
// FingerStart(self, i); many low-index entries typically collapse to the
// same immediate successor on small rings.
type FingerTable struct {
	mu      sync.RWMutex
	self    Did
	entries [BitLength]*Did
	next    int // rotating cursor consumed by fix_fingers
}

// NewFingerTable returns an empty finger table for the given node.
func NewFingerTable(self Did) *FingerTable {
	return &FingerTable{self: self}
}

// Set records the successor for finger index i.
func (f *FingerTable) Set(i int, succ Did) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := succ
	f.entries[i] = &v
}

// Get returns the cached successor for finger index i, if known.
func (f *FingerTable) Get(i int) (Did, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e := f.entries[i]
	if e == nil {
		return Did{}, false
	}
	return *e, true
}

// First returns finger entry 0, the successor slot; ok is false while that
// entry is unset. Later entries are not consulted.
func (f *FingerTable) First() (Did, bool) {
	return f.Get(0)
}

// ClosestPrecedingFinger scans the table from the highest index down and
// returns the finger whose identifier lies strictly between self and
// target; falls back to self if no finger qualifies.
func (f *FingerTable) ClosestPrecedingFinger(target Did) Did {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for i := BitLength - 1; i >= 0; i-- {
		e := f.entries[i]
		if e == nil {
			continue
		}
		if InOpenInterval(*e, f.self, target) {
			return *e
		}
	}
	return f.self
}

// NextStaleIndex returns the next finger index to refresh and advances the
// internal rotation cursor, matching the classic single-entry-per-tick
// fix_fingers schedule so the whole table amortizes over BitLength ticks.
func (f *FingerTable) NextStaleIndex() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.next
	f.next = (f.next + 1) % BitLength
	return i
}

// Remove clears any finger entries pointing at did (used when a peer is
// detected dead so stale routes do not keep getting selected).
func (f *FingerTable) Remove(did Did) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.entries {
		if e != nil && *e == did {
			f.entries[i] = nil
		}
	}
}
