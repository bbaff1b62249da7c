package dht

import (
	"sync"
)

// PeerRing holds one node's view of the Chord ring: its successor,
// predecessor, and finger table. It implements the pure state-transition
// logic of find_successor/join/notify/stabilize/fix_fingers; it never
// performs network I/O itself; callers (the handler package) drive remote
// lookups via the swarm/transport layers and feed the results back in.
type PeerRing struct {
	mu          sync.RWMutex
	self        Did
	successor   Did
	predecessor *Did
	fingers     *FingerTable
}

// NewPeerRing creates a ring for self, initially its own successor
// (the one-node ring, matching a fresh or bootstrap node).
func NewPeerRing(self Did) *PeerRing {
	return &PeerRing{
		self:      self,
		successor: self,
		fingers:   NewFingerTable(self),
	}
}

// Self returns this node's identifier.
func (r *PeerRing) Self() Did { return r.self }

// Successor returns the current successor pointer.
func (r *PeerRing) Successor() Did {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.successor
}

// Predecessor returns the current predecessor, if any.
func (r *PeerRing) Predecessor() (Did, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.predecessor == nil {
		return Did{}, false
	}
	return *r.predecessor, true
}

// setSuccessor updates the successor pointer and mirrors it into finger 0.
func (r *PeerRing) setSuccessor(d Did) {
	r.successor = d
	r.fingers.Set(0, d)
}

// Join seeds this ring with a bootstrap peer as the provisional successor.
// The caller must still drive a find_successor(self) round trip through
// that peer (via FindSuccessorLocal/relay) to discover the true successor;
// Join only establishes the starting point, matching how a freshly booted
// node has nothing better to go on.
func (r *PeerRing) Join(bootstrap Did) error {
	if bootstrap == r.self {
		return ErrSelfJoin
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predecessor = nil
	r.setSuccessor(bootstrap)
	return nil
}

// FindSuccessorResult is the outcome of a single (local) find_successor
// step: either the answer is known (Found), or the query must be relayed
// onward to Next.
type FindSuccessorResult struct {
	Found bool
	// Successor is populated when Found is true.
	Successor Did
	// Next is the closest preceding finger to relay the query to when
	// Found is false.
	Next Did
}

// FindSuccessorLocal answers a find_successor(id) query using only local
// state: if id falls in (self, successor], the successor is the answer;
// otherwise the query must continue via the closest preceding finger.
func (r *PeerRing) FindSuccessorLocal(id Did) FindSuccessorResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if InHalfOpenInterval(id, r.self, r.successor) {
		return FindSuccessorResult{Found: true, Successor: r.successor}
	}
	return FindSuccessorResult{Found: false, Next: r.fingers.ClosestPrecedingFinger(id)}
}

// Notify is called when candidate claims to be this node's predecessor
// (either unsolicited, or as the reply half of stabilize). It only accepts
// the candidate if it actually lies in the open interval (predecessor,
// self); a candidate that does not is ignored rather than blindly
// installed. Returns whether the predecessor changed.
//
// This replaces the original unconditional-overwrite behavior, which let
// any notifier clobber a valid predecessor and reintroduced already-left
// nodes into the ring.
func (r *PeerRing) Notify(candidate Did) bool {
	if candidate == r.self {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.predecessor == nil || InOpenInterval(candidate, *r.predecessor, r.self) {
		p := candidate
		r.predecessor = &p
		return true
	}
	return false
}

// StabilizeResult tells the caller what to do after a stabilize round.
type StabilizeResult struct {
	// SuccessorChanged is true if x replaced the old successor.
	SuccessorChanged bool
	// NotifyTarget is always populated: stabilize always re-notifies the
	// (possibly updated) successor of this node's existence.
	NotifyTarget Did
}

// Stabilize consumes x, the predecessor reported by this node's current
// successor (fetched by the caller via a notify_predecessor/SEND round
// trip). If x lies strictly between self and the successor, it becomes the
// new successor, since it is closer. Either way the (possibly new)
// successor is returned as the notify target.
func (r *PeerRing) Stabilize(x *Did) StabilizeResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := false
	if x != nil && *x != r.self && InOpenInterval(*x, r.self, r.successor) {
		r.setSuccessor(*x)
		changed = true
	}
	return StabilizeResult{SuccessorChanged: changed, NotifyTarget: r.successor}
}

// FixFingersStep returns the next finger index to refresh and the id to
// look up for it; the caller performs find_successor(id) (locally or via
// relay) and reports the answer back through SetFinger.
func (r *PeerRing) FixFingersStep() (index int, lookup Did) {
	r.mu.RLock()
	self := r.self
	r.mu.RUnlock()
	i := r.fingers.NextStaleIndex()
	return i, FingerStart(self, i)
}

// SetFinger records the result of a completed fix_fingers lookup.
func (r *PeerRing) SetFinger(index int, succ Did) {
	r.fingers.Set(index, succ)
	if index == 0 {
		r.mu.Lock()
		r.successor = succ
		r.mu.Unlock()
	}
}

// Leave clears this node's predecessor/successor state, used when a graceful
// LeaveDHT is processed so stale routes are not kept around.
func (r *PeerRing) Leave() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predecessor = nil
	r.successor = r.self
	r.fingers = NewFingerTable(r.self)
}

// ForgetPeer removes did from the finger table and, if it was the
// predecessor, clears that pointer. Used when the swarm reports a dead
// transport so the ring stops routing through it.
func (r *PeerRing) ForgetPeer(did Did) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fingers.Remove(did)
	if r.predecessor != nil && *r.predecessor == did {
		r.predecessor = nil
	}
}
