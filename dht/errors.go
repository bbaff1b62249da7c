package dht

import "errors"

var (
	// ErrPeerRingUnexpectedAction is returned instead of panicking when a
	// relayed message carries a chord action this node does not expect to
	// handle in its current role (e.g. a REPORT with no matching pending
	// SEND). The original implementation panicked here; this ring recovers
	// and lets the caller drop or log the message.
	ErrPeerRingUnexpectedAction = errors.New("dht: unexpected chord action for current ring state")

	// ErrCannotFindSuccessor is returned when find_successor exhausts its
	// recursion/relay budget without converging on a successor.
	ErrCannotFindSuccessor = errors.New("dht: cannot find successor")

	// ErrNoSuccessor is returned when an operation requires a known
	// successor but the ring has none yet (not joined).
	ErrNoSuccessor = errors.New("dht: ring has no successor")

	// ErrAlreadyConnected indicates a connect_node handshake targeted a
	// peer the swarm already has a live transport for.
	ErrAlreadyConnected = errors.New("dht: peer already connected")

	// ErrSelfJoin is returned when a node attempts to join itself.
	ErrSelfJoin = errors.New("dht: cannot join self")
)
