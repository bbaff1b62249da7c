// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package swarm owns every Transport a node has open, keyed by peer Did
// once registered, and the inbound queue of decoded, verified payloads
// the Handler consumes.
package swarm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/ringmesh/rings/dht"
	"github.com/ringmesh/rings/internal/logger"
	"github.com/ringmesh/rings/payload"
	"github.com/ringmesh/rings/session"
	"github.com/ringmesh/rings/transport"
)

// ErrPeerNotFound is returned by SendPayload when no transport is
// registered (or pending) for a Did.
var ErrPeerNotFound = errors.New("swarm: peer not found")

// ErrAlreadyConnected is returned by NewPendingTransport when a keyed
// transport for the resolved Did already exists.
var ErrAlreadyConnected = errors.New("swarm: already connected")

// InboundMessage is one verified frame pulled off a Transport's data
// channel, ready for the Handler.
type InboundMessage struct {
	From    dht.Did
	Payload *payload.Payload
}

// Swarm is the registry of transports by peer id plus the inbound queue
// fed by their data channels. It implements transport.EventSink so a
// Transport never holds a direct back-pointer to it.
type Swarm struct {
	selfDid  dht.Did
	identity *session.Identity
	logger   logger.Logger

	mu         sync.RWMutex
	transports map[dht.Did]*transport.Transport
	pending    map[uuid.UUID]*transport.Transport
	certs      map[dht.Did]*session.SessionCertificate

	sessions *session.Manager

	inbound chan InboundMessage
}

// customMessageContextID scopes the HKDF salt custom-message sessions are
// derived under, so a session built for this purpose never collides with
// one derived for a different protocol context under the same shared
// secret.
const customMessageContextID = "rings/custom-message v1"

// New constructs an empty Swarm rooted at id's identity. Many Swarms can
// coexist in one process; nothing here is global. A nil log falls back to
// the package default logger.
func New(id *session.Identity, log logger.Logger) *Swarm {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &Swarm{
		selfDid:    id.Did(),
		identity:   id,
		logger:     log,
		transports: make(map[dht.Did]*transport.Transport),
		pending:    make(map[uuid.UUID]*transport.Transport),
		certs:      make(map[dht.Did]*session.SessionCertificate),
		sessions:   session.NewManager(),
		inbound:    make(chan InboundMessage, 256),
	}
}

// SelfDid returns this node's own identifier.
func (s *Swarm) SelfDid() dht.Did { return s.selfDid }

// Identity returns the node's signing identity.
func (s *Swarm) Identity() *session.Identity { return s.identity }

// NewPendingTransport creates a fresh Transport against iceServers and
// files it in the pending-by-uuid table; it is promoted to the keyed
// table only once the underlying ICE connection reports Connected and a
// remote Did is known (see OnRegister).
func (s *Swarm) NewPendingTransport(ctx context.Context, iceServers []webrtc.ICEServer) (*transport.Transport, error) {
	t, err := transport.New(ctx, iceServers, s)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.pending[t.ID] = t
	s.mu.Unlock()
	return t, nil
}

// Transport returns the registered transport for did, if any.
func (s *Swarm) Transport(did dht.Did) (*transport.Transport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transports[did]
	return t, ok
}

// TransportCount returns the number of peers with a registered (connected)
// transport, for health reporting.
func (s *Swarm) TransportCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transports)
}

// InboundQueueDepth returns how many decoded, verified payloads are
// currently buffered waiting for a Handler to drain them, for health
// reporting.
func (s *Swarm) InboundQueueDepth() int {
	return len(s.inbound)
}

// SendPayload looks up the transport registered for did and sends p's
// encoded frame over it, failing with ErrPeerNotFound if none is
// registered yet (a still-pending, not-yet-connected transport does not
// count).
func (s *Swarm) SendPayload(did dht.Did, p *payload.Payload) error {
	t, ok := s.Transport(did)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPeerNotFound, did)
	}
	frame, err := payload.Encode(p)
	if err != nil {
		return err
	}
	return t.Send(frame)
}

// RegisterPeerCertificate records peer's SessionCertificate, learned from
// a connect_node handshake, so later CustomMessage traffic to peer can be
// encrypted without a separate key exchange.
func (s *Swarm) RegisterPeerCertificate(peer dht.Did, cert *session.SessionCertificate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.certs[peer] = cert
}

// PeerCertificate returns the SessionCertificate previously registered for
// peer, if any.
func (s *Swarm) PeerCertificate(peer dht.Did) (*session.SessionCertificate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.certs[peer]
	return c, ok
}

// secureSessionWith derives (or reuses) the SecureSession this node shares
// with peer, requiring that peer's certificate was already registered via
// RegisterPeerCertificate.
func (s *Swarm) secureSessionWith(peer dht.Did) (session.Session, error) {
	peerCert, ok := s.PeerCertificate(peer)
	if !ok {
		return nil, fmt.Errorf("swarm: no session certificate registered for peer %s", peer)
	}
	shared, err := s.identity.SharedSecret(peerCert)
	if err != nil {
		return nil, fmt.Errorf("swarm: derive shared secret with %s: %w", peer, err)
	}
	selfCert := s.identity.Certificate()
	sess, _, _, err := s.sessions.EnsureSessionWithParams(session.Params{
		ContextID:    customMessageContextID,
		SelfEph:      selfCert.X25519PubKey,
		PeerEph:      peerCert.X25519PubKey,
		Label:        customMessageContextID,
		SharedSecret: shared,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("swarm: establish session with %s: %w", peer, err)
	}
	return sess, nil
}

// SendCustomMessage wraps data in a CustomMessage and sends it to did. When
// encrypt is true, data is sealed under the SecureSession derived from
// did's registered SessionCertificate (see RegisterPeerCertificate);
// encrypt requires that certificate to already be known, typically from
// having completed a connect_node handshake with did.
func (s *Swarm) SendCustomMessage(did dht.Did, data []byte, encrypt bool) error {
	msg := payload.CustomMessage{Data: data}
	if encrypt {
		sess, err := s.secureSessionWith(did)
		if err != nil {
			return err
		}
		ciphertext, err := sess.Encrypt(data)
		if err != nil {
			return fmt.Errorf("swarm: encrypt custom message for %s: %w", did, err)
		}
		msg.Data = ciphertext
		msg.Encrypted = true
	}
	relay := payload.NewRelayHeader(s.selfDid, did)
	p, err := payload.New(s.identity, s.selfDid, msg, relay, 0)
	if err != nil {
		return fmt.Errorf("swarm: sign custom message for %s: %w", did, err)
	}
	return s.SendPayload(did, p)
}

// DecryptCustomMessage returns msg's plaintext, decrypting it via the
// SecureSession derived from from's registered SessionCertificate if
// msg.Encrypted is set, or msg.Data unchanged otherwise.
func (s *Swarm) DecryptCustomMessage(from dht.Did, msg payload.CustomMessage) ([]byte, error) {
	if !msg.Encrypted {
		return msg.Data, nil
	}
	sess, err := s.secureSessionWith(from)
	if err != nil {
		return nil, err
	}
	plaintext, err := sess.Decrypt(msg.Data)
	if err != nil {
		return nil, fmt.Errorf("swarm: decrypt custom message from %s: %w", from, err)
	}
	return plaintext, nil
}

// PollMessage blocks until the next inbound message arrives or ctx is
// cancelled.
func (s *Swarm) PollMessage(ctx context.Context) (InboundMessage, error) {
	select {
	case m := <-s.inbound:
		return m, nil
	case <-ctx.Done():
		return InboundMessage{}, ctx.Err()
	}
}

// IterMessages calls fn for every inbound message until ctx is cancelled.
// Payloads that fail verification or have expired are logged and dropped
// rather than passed to fn, and never stop the iteration.
func (s *Swarm) IterMessages(ctx context.Context, fn func(InboundMessage)) error {
	for {
		m, err := s.PollMessage(ctx)
		if err != nil {
			return err
		}
		if _, verifyErr := m.Payload.Verify(); verifyErr != nil {
			s.logger.Warn("dropping unverifiable payload", logger.Did("from", m.From.String()), logger.Error(verifyErr))
			continue
		}
		fn(m)
	}
}

// OnRegister implements transport.EventSink. A newer transport for the
// same Did supplants and closes an older one (last-writer-wins).
func (s *Swarm) OnRegister(did dht.Did, id uuid.UUID) {
	s.mu.Lock()
	t, ok := s.pending[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)
	old, hadOld := s.transports[did]
	s.transports[did] = t
	s.mu.Unlock()

	if hadOld && old.ID != t.ID {
		s.logger.Info("supplanting transport for peer", logger.Did("peer", did.String()))
		_ = old.Close()
	}
}

// OnClosed implements transport.EventSink, removing id from whichever
// table currently holds it.
func (s *Swarm) OnClosed(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	for did, t := range s.transports {
		if t.ID == id {
			delete(s.transports, did)
			return
		}
	}
}

// OnMessage implements transport.EventSink, decoding the frame and
// enqueuing it for PollMessage/IterMessages. Decode failures are logged
// and dropped; they never poison the swarm.
func (s *Swarm) OnMessage(id uuid.UUID, data []byte) {
	p, err := payload.Decode(data)
	if err != nil {
		s.logger.Warn("dropping undecodable frame", logger.String("transport", id.String()), logger.Error(err))
		return
	}
	from, err := findDidForTransport(s, id)
	if err != nil {
		s.logger.Warn("dropping frame from unregistered transport", logger.String("transport", id.String()))
		return
	}
	s.inbound <- InboundMessage{From: from, Payload: p}
}

func findDidForTransport(s *Swarm, id uuid.UUID) (dht.Did, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for did, t := range s.transports {
		if t.ID == id {
			return did, nil
		}
	}
	return dht.Did{}, ErrPeerNotFound
}
