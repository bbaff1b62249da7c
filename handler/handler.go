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

// Package handler implements the message state machine that ties the ring
// (dht), the signed envelope (payload) and the connection registry (swarm)
// together: it decodes and verifies inbound payloads, dispatches them by
// message kind, drives the outgoing SEND/REPORT relay halves, and exposes
// the stabilize/fix_fingers maintenance ticks and the connect_node
// handshake as blocking calls a caller can drive on its own schedule.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/ringmesh/rings/dht"
	"github.com/ringmesh/rings/internal/logger"
	"github.com/ringmesh/rings/payload"
	"github.com/ringmesh/rings/session"
	"github.com/ringmesh/rings/swarm"
	"github.com/ringmesh/rings/transport"
)

// defaultRequestTimeout bounds a single find_successor/notify_predecessor
// round trip when the caller's context carries no deadline of its own.
const defaultRequestTimeout = 10 * time.Second

// Handler drives one node's ring maintenance and message dispatch. A
// Handler is always paired with exactly one PeerRing and one Swarm; neither
// is shared with another Handler.
type Handler struct {
	ring       *dht.PeerRing
	sw         *swarm.Swarm
	iceServers []webrtc.ICEServer
	logger     logger.Logger

	mu      sync.Mutex
	pending map[string]chan payload.Message

	validator Validator
	callback  Callback
}

// New builds a Handler for ring, routing through sw and using iceServers
// for any connect_node handshake this node answers or initiates. A nil log
// falls back to the package default logger.
func New(ring *dht.PeerRing, sw *swarm.Swarm, iceServers []webrtc.ICEServer, log logger.Logger) *Handler {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &Handler{
		ring:       ring,
		sw:         sw,
		iceServers: iceServers,
		logger:     log,
		pending:    make(map[string]chan payload.Message),
	}
}

// SetValidator installs the optional pre-dispatch hook; nil disables it.
func (h *Handler) SetValidator(v Validator) { h.validator = v }

// SetCallback installs the optional post-dispatch hook; nil disables it.
func (h *Handler) SetCallback(c Callback) { h.callback = c }

// Ring returns the underlying ring state, for callers that need to read
// successor/predecessor/finger state directly (health checks, CLI status).
func (h *Handler) Ring() *dht.PeerRing { return h.ring }

// Serve drains the swarm's inbound queue and dispatches every message until
// ctx is cancelled. Handling errors are logged and never stop the loop.
func (h *Handler) Serve(ctx context.Context) error {
	return h.sw.IterMessages(ctx, func(m swarm.InboundMessage) {
		if err := h.HandlePayload(ctx, m); err != nil {
			h.logger.Warn("handle payload failed", logger.Did("from", m.From.String()), logger.Error(err))
		}
	})
}

// Run drives the periodic stabilize and fix_fingers maintenance ticks until
// ctx is cancelled.
func (h *Handler) Run(ctx context.Context, stabilizeEvery, fixFingersEvery time.Duration) {
	stabilizeTicker := time.NewTicker(stabilizeEvery)
	fixFingersTicker := time.NewTicker(fixFingersEvery)
	defer stabilizeTicker.Stop()
	defer fixFingersTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stabilizeTicker.C:
			if err := h.Stabilize(ctx); err != nil {
				h.logger.Warn("stabilize failed", logger.Error(err))
			}
		case <-fixFingersTicker.C:
			if err := h.FixFingers(ctx); err != nil {
				h.logger.Warn("fix_fingers failed", logger.Error(err))
			}
		}
	}
}

// HandlePayload is the state machine's single entry point: verify, run the
// validator hook, dispatch by message kind, then run the callback hook.
// Every non-terminal message kind produces exactly one forwarded SEND or
// REPORT before returning; dropping one silently is a bug.
func (h *Handler) HandlePayload(ctx context.Context, in swarm.InboundMessage) error {
	// Verified again here (Swarm.IterMessages already verifies before
	// calling its fn) since Handler may also be driven directly off
	// Swarm.PollMessage without going through IterMessages.
	origin, err := in.Payload.Verify()
	if err != nil {
		return err
	}
	msg, err := in.Payload.Message()
	if err != nil {
		return err
	}

	if h.validator != nil {
		if err := h.validator(ctx, origin, in.Payload, msg); err != nil {
			h.logger.Warn("payload rejected by validator", logger.Did("from", origin.String()), logger.Int("kind", int(msg.Kind())), logger.Error(err))
			return err
		}
	}

	if err := h.dispatch(ctx, origin, in.Payload, msg); err != nil {
		return err
	}

	if h.callback != nil {
		h.callback(ctx, origin, in.Payload, msg)
	}
	return nil
}

func (h *Handler) dispatch(ctx context.Context, origin dht.Did, p *payload.Payload, msg payload.Message) error {
	switch m := msg.(type) {
	case payload.JoinDHT:
		return h.handleJoinDHT(p, m)
	case payload.LeaveDHT:
		h.ring.ForgetPeer(m.Node)
		return nil
	case payload.ConnectNodeSend:
		return h.handleConnectNodeSend(ctx, origin, p, m)
	case payload.ConnectNodeReport:
		return h.relayReport(p)
	case payload.AlreadyConnected:
		return h.relayReport(p)
	case payload.FindSuccessorSend:
		return h.handleFindSuccessorSend(p, m)
	case payload.FindSuccessorReport:
		return h.relayReport(p)
	case payload.NotifyPredecessorSend:
		return h.handleNotifyPredecessorSend(p, m)
	case payload.NotifyPredecessorReport:
		return h.relayReport(p)
	case payload.CustomMessage:
		// Terminal: application data addressed to this node. Nothing to
		// relay; the callback hook is the only consumer.
		return nil
	case payload.MultiCall:
		return h.handleMultiCall(ctx, origin, m)
	default:
		return fmt.Errorf("handler: unhandled message type %T", msg)
	}
}

// handleMultiCall recurses HandlePayload over every batched inner payload.
// A failing inner message is logged and counted but never aborts the rest
// of the batch.
func (h *Handler) handleMultiCall(ctx context.Context, origin dht.Did, m payload.MultiCall) error {
	var firstErr error
	for i := range m.Payloads {
		inner := &m.Payloads[i]
		if err := h.HandlePayload(ctx, swarm.InboundMessage{From: origin, Payload: inner}); err != nil {
			h.logger.Warn("multicall: inner message failed, continuing", logger.Int("index", i), logger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (h *Handler) handleJoinDHT(p *payload.Payload, m payload.JoinDHT) error {
	local := h.ring.FindSuccessorLocal(m.Node)
	if local.Found {
		return h.reportBack(p, payload.FindSuccessorReport{ID: local.Successor})
	}
	return h.relayOnward(p, local.Next)
}

func (h *Handler) handleFindSuccessorSend(p *payload.Payload, m payload.FindSuccessorSend) error {
	local := h.ring.FindSuccessorLocal(m.ID)
	// local.Successor == self only occurs when this node is its own
	// successor (a solo ring, or one not yet stabilized): there is no other
	// locally-known candidate to exclude it in favor of, so Strict does not
	// change the outcome here; it only prevents fix_fingers from treating a
	// stale finger pointing at self as a confirmed answer further up the
	// call chain.
	if local.Found {
		return h.reportBack(p, payload.FindSuccessorReport{ID: local.Successor})
	}
	return h.relayOnward(p, local.Next)
}

func (h *Handler) handleNotifyPredecessorSend(p *payload.Payload, m payload.NotifyPredecessorSend) error {
	h.ring.Notify(m.Predecessor)
	var reported dht.Did
	if pred, ok := h.ring.Predecessor(); ok {
		reported = pred
	}
	return h.reportBack(p, payload.NotifyPredecessorReport{Predecessor: reported})
}

// nextHopToward returns the peer this node should forward a message bound
// for dest through: dest's successor if the ring already knows a hop
// beyond itself, the closest preceding finger if it doesn't, or dest
// itself when the ring has no routing knowledge at all yet (a one-node
// ring answers every lookup with itself, which is never a useful hop) --
// covering the common case of connect_node against a peer known only
// out-of-band, before any ring route to it exists.
func (h *Handler) nextHopToward(dest dht.Did) dht.Did {
	local := h.ring.FindSuccessorLocal(dest)
	switch {
	case local.Found && local.Successor != h.ring.Self():
		return local.Successor
	case !local.Found:
		return local.Next
	default:
		return dest
	}
}

func (h *Handler) handleConnectNodeSend(ctx context.Context, origin dht.Did, p *payload.Payload, m payload.ConnectNodeSend) error {
	if m.Target != h.ring.Self() {
		// Not addressed to us: relay toward Target the same way a
		// find_successor SEND is forwarded, rather than answering locally.
		return h.relayOnward(p, h.nextHopToward(m.Target))
	}

	if _, ok := h.sw.Transport(origin); ok {
		return h.reportBack(p, payload.AlreadyConnected{})
	}

	var offer transport.TricklePayload
	if err := json.Unmarshal([]byte(m.Handshake), &offer); err != nil {
		return fmt.Errorf("handler: decode connect offer: %w", err)
	}

	t, err := h.sw.NewPendingTransport(ctx, h.iceServers)
	if err != nil {
		return fmt.Errorf("handler: open answering transport: %w", err)
	}
	if err := t.RegisterRemoteInfo(offer, origin); err != nil {
		t.Close()
		return fmt.Errorf("handler: register offer: %w", err)
	}
	answer, err := t.GetHandshakeInfo(ctx, transport.HandshakeAnswer)
	if err != nil {
		t.Close()
		return fmt.Errorf("handler: build answer: %w", err)
	}
	answerJSON, err := json.Marshal(answer)
	if err != nil {
		t.Close()
		return fmt.Errorf("handler: encode answer: %w", err)
	}

	if peerCert, err := session.UnmarshalCertificate(m.Certificate); err == nil {
		h.sw.RegisterPeerCertificate(origin, peerCert)
	} else {
		h.logger.Warn("connect_node send carried no usable session certificate", logger.Did("peer", origin.String()), logger.Error(err))
	}

	selfCert, err := session.MarshalCertificate(h.sw.Identity().Certificate())
	if err != nil {
		t.Close()
		return fmt.Errorf("handler: encode session certificate: %w", err)
	}

	return h.reportBack(p, payload.ConnectNodeReport{AnswerHandshake: string(answerJSON), Certificate: selfCert})
}

// relayOnward pushes self onto a SEND's from_path and forwards the same
// signed payload to target. Since the origin signature covers only
// (data, ttl, timestamp), mutating the relay header and resending via
// NewStuck keeps the existing signature valid at the next hop.
func (h *Handler) relayOnward(p *payload.Payload, target dht.Did) error {
	relay := p.Relay
	relay.PushRelay(h.ring.Self())
	return h.sendOrDrop(target, payload.NewStuck(h.ring.Self(), relay, p))
}

// reportBack flips p's SEND header into a REPORT and sends its first hop.
func (h *Handler) reportBack(p *payload.Payload, msg payload.Message) error {
	relay := p.Relay.IntoReport()
	out, err := payload.New(h.sw.Identity(), h.ring.Self(), msg, relay, 0)
	if err != nil {
		return err
	}
	return h.relayReport(out)
}

// relayReport advances a REPORT by one hop: if it still has hops left, it
// is forwarded there (recording this hop on FromPath, mirroring relayOnward,
// so the next receiver's checkRelayPath can confirm it arrived from the
// right place); once exhausted it has arrived back at its origin and is
// handed to whichever in-flight request() call is waiting on its TxID (or
// dropped, for an unsolicited report with no waiter).
func (h *Handler) relayReport(p *payload.Payload) error {
	next, err := p.Relay.NextHop()
	if err != nil {
		msg, derr := p.Message()
		if derr != nil {
			return derr
		}
		h.resolvePending(p.Relay.TxID, msg)
		return nil
	}
	p.Relay.PushRelay(h.ring.Self())
	return h.sendOrDrop(next, payload.NewStuck(h.ring.Self(), p.Relay, p))
}

func (h *Handler) resolvePending(txID string, msg payload.Message) {
	h.mu.Lock()
	ch, ok := h.pending[txID]
	h.mu.Unlock()
	if !ok {
		h.logger.Debug("report arrived with no waiter", logger.String("tx", txID), logger.Int("kind", int(msg.Kind())))
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

func (h *Handler) sendOrDrop(target dht.Did, p *payload.Payload) error {
	if target == h.ring.Self() {
		return fmt.Errorf("handler: refusing to route a message to self")
	}
	if err := h.sw.SendPayload(target, p); err != nil {
		h.logger.Warn("relay failed, dropping", logger.Did("target", target.String()), logger.Error(err))
		return err
	}
	return nil
}

// request sends msg to target as a fresh SEND and blocks for its REPORT,
// correlated by the relay header's TxID.
func (h *Handler) request(ctx context.Context, target dht.Did, msg payload.Message) (payload.Message, error) {
	relay := payload.NewRelayHeader(h.ring.Self(), target)
	p, err := payload.New(h.sw.Identity(), h.ring.Self(), msg, relay, 0)
	if err != nil {
		return nil, err
	}
	return h.sendAndAwait(ctx, relay.TxID, target, p)
}

func (h *Handler) sendAndAwait(ctx context.Context, txID string, target dht.Did, p *payload.Payload) (payload.Message, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultRequestTimeout)
		defer cancel()
	}

	ch := make(chan payload.Message, 1)
	h.mu.Lock()
	h.pending[txID] = ch
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.pending, txID)
		h.mu.Unlock()
	}()

	if err := h.sendOrDrop(target, p); err != nil {
		return nil, err
	}
	select {
	case m := <-ch:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FindSuccessor resolves the node responsible for id, relaying the query
// through the ring when it does not fall under this node's own successor.
func (h *Handler) FindSuccessor(ctx context.Context, id dht.Did, strict bool) (dht.Did, error) {
	local := h.ring.FindSuccessorLocal(id)
	// local.Successor == self only occurs when this node is its own
	// successor (a solo ring, or one not yet stabilized): there is no other
	// locally-known candidate to exclude it in favor of, so a strict lookup
	// accepts it too rather than chasing a next hop that does not exist.
	if local.Found {
		return local.Successor, nil
	}
	reply, err := h.request(ctx, local.Next, payload.FindSuccessorSend{ID: id, Strict: strict})
	if err != nil {
		return dht.Did{}, err
	}
	report, ok := reply.(payload.FindSuccessorReport)
	if !ok {
		return dht.Did{}, fmt.Errorf("handler: unexpected reply type %T for find_successor", reply)
	}
	return report.ID, nil
}

// Join seeds the ring against bootstrap and resolves this node's true
// successor via a strict find_successor(self) round trip, matching
// PeerRing.Join's contract that the caller still drives that lookup.
func (h *Handler) Join(ctx context.Context, bootstrap dht.Did) error {
	if err := h.ring.Join(bootstrap); err != nil {
		return err
	}
	succ, err := h.FindSuccessor(ctx, h.ring.Self(), true)
	if err != nil {
		return err
	}
	h.ring.SetFinger(0, succ)
	return nil
}

// Stabilize runs one stabilize round: it notifies the current successor of
// this node's existence and, in the same round trip, receives that
// successor's own predecessor back, adopting it as the new successor if it
// lies strictly closer.
func (h *Handler) Stabilize(ctx context.Context) error {
	succ := h.ring.Successor()
	if succ == h.ring.Self() {
		return nil
	}
	reply, err := h.request(ctx, succ, payload.NotifyPredecessorSend{Predecessor: h.ring.Self()})
	if err != nil {
		return err
	}
	report, ok := reply.(payload.NotifyPredecessorReport)
	if !ok {
		return fmt.Errorf("handler: unexpected reply type %T for notify_predecessor", reply)
	}
	var x *dht.Did
	if report.Predecessor != (dht.Did{}) {
		x = &report.Predecessor
	}
	h.ring.Stabilize(x)
	return nil
}

// FixFingers refreshes the next stale finger table entry.
func (h *Handler) FixFingers(ctx context.Context) error {
	index, lookup := h.ring.FixFingersStep()
	succ, err := h.FindSuccessor(ctx, lookup, true)
	if err != nil {
		return err
	}
	h.ring.SetFinger(index, succ)
	return nil
}

// ConnectNode drives a full connect_node handshake against target: it opens
// a pending transport, offers it over a SEND, and applies whatever comes
// back (an answer to register, or AlreadyConnected to reuse the existing
// transport).
func (h *Handler) ConnectNode(ctx context.Context, target dht.Did) (*transport.Transport, error) {
	if t, ok := h.sw.Transport(target); ok {
		return t, nil
	}

	t, err := h.sw.NewPendingTransport(ctx, h.iceServers)
	if err != nil {
		return nil, fmt.Errorf("handler: open initiating transport: %w", err)
	}
	offer, err := t.GetHandshakeInfo(ctx, transport.HandshakeOffer)
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("handler: build offer: %w", err)
	}
	offerJSON, err := json.Marshal(offer)
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("handler: encode offer: %w", err)
	}

	selfCert, err := session.MarshalCertificate(h.sw.Identity().Certificate())
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("handler: encode session certificate: %w", err)
	}

	relay := payload.NewRelayHeader(h.ring.Self(), target)
	p, err := payload.New(h.sw.Identity(), h.ring.Self(), payload.ConnectNodeSend{Target: target, Handshake: string(offerJSON), Certificate: selfCert}, relay, 0)
	if err != nil {
		t.Close()
		return nil, err
	}

	reply, err := h.sendAndAwait(ctx, relay.TxID, h.nextHopToward(target), p)
	if err != nil {
		t.Close()
		return nil, err
	}

	switch v := reply.(type) {
	case payload.AlreadyConnected:
		t.Close()
		if existing, ok := h.sw.Transport(target); ok {
			return existing, nil
		}
		return nil, swarm.ErrAlreadyConnected
	case payload.ConnectNodeReport:
		var answer transport.TricklePayload
		if err := json.Unmarshal([]byte(v.AnswerHandshake), &answer); err != nil {
			t.Close()
			return nil, fmt.Errorf("handler: decode connect answer: %w", err)
		}
		if err := t.RegisterRemoteInfo(answer, target); err != nil {
			t.Close()
			return nil, fmt.Errorf("handler: register answer: %w", err)
		}
		if err := t.WaitForConnected(ctx); err != nil {
			t.Close()
			return nil, err
		}
		if peerCert, err := session.UnmarshalCertificate(v.Certificate); err == nil {
			h.sw.RegisterPeerCertificate(target, peerCert)
		} else {
			h.logger.Warn("connect_node report carried no usable session certificate", logger.Did("peer", target.String()), logger.Error(err))
		}
		return t, nil
	default:
		t.Close()
		return nil, fmt.Errorf("handler: unexpected reply type %T for connect_node", reply)
	}
}
