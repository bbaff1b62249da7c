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

package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/ringmesh/rings/dht"
)

// HandshakeKind selects which half of an SDP exchange GetHandshakeInfo
// produces.
type HandshakeKind int

const (
	HandshakeOffer HandshakeKind = iota
	HandshakeAnswer
)

func (k HandshakeKind) String() string {
	if k == HandshakeAnswer {
		return "answer"
	}
	return "offer"
}

var (
	// ErrDataChannelNotReady is returned by Send when the data channel has
	// not reached the open state.
	ErrDataChannelNotReady = errors.New("transport: data channel not ready")
	// ErrConnectionFailed is returned by WaitForConnected when the peer
	// connection reaches a terminal failure state before connecting.
	ErrConnectionFailed = errors.New("transport: connection failed")
)

// MessageIncompleteError reports a short write to the data channel.
type MessageIncompleteError struct {
	Sent, Expected int
}

func (e MessageIncompleteError) Error() string {
	return fmt.Sprintf("transport: incomplete write, sent %d of %d bytes", e.Sent, e.Expected)
}

// EventSink receives the three events a Transport's pion callbacks produce.
// Implemented by the Swarm; captured at construction so a Transport never
// holds a direct back-pointer to its owner.
type EventSink interface {
	OnRegister(did dht.Did, id uuid.UUID)
	OnClosed(id uuid.UUID)
	OnMessage(id uuid.UUID, data []byte)
}

// Transport owns one peer-to-peer WebRTC connection and its single data
// channel, named "rings". Before the remote peer's Did is known it lives
// in the Swarm's pending-offers table keyed by ID; RegisterRemoteInfo and
// a Connected ICE state together promote it into the keyed transport
// table (see swarm.Swarm).
type Transport struct {
	ID uuid.UUID

	sink EventSink

	// Lock ordering is fixed: connMu -> dcMu -> candMu, matching the
	// ring's documented discipline to avoid deadlock across callbacks.
	connMu sync.Mutex
	pc     *webrtc.PeerConnection

	dcMu sync.Mutex
	dc   *webrtc.DataChannel

	candMu          sync.Mutex
	pendingLocal    []webrtc.ICECandidateInit
	gatherComplete  <-chan struct{}
	remotePubKey    []byte
	remoteDid       dht.Did
	remoteDidKnown  bool
	connectedOnce   sync.Once
	connected       chan struct{}
	failed          chan struct{}
	closeOnce       sync.Once
}

// New configures a fresh PeerConnection against iceServers and opens the
// "rings" data channel, registering callbacks that forward events to sink.
func New(ctx context.Context, iceServers []webrtc.ICEServer, sink EventSink) (*Transport, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("transport: new peer connection: %w", err)
	}

	t := &Transport{
		ID:        uuid.New(),
		sink:      sink,
		pc:        pc,
		connected: make(chan struct{}),
		failed:    make(chan struct{}),
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	t.gatherComplete = gatherComplete

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		t.candMu.Lock()
		t.pendingLocal = append(t.pendingLocal, c.ToJSON())
		t.candMu.Unlock()
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		switch state {
		case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
			t.connectedOnce.Do(func() { close(t.connected) })
			t.candMu.Lock()
			did, known := t.remoteDid, t.remoteDidKnown
			t.candMu.Unlock()
			if known {
				t.sink.OnRegister(did, t.ID)
			}
		case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateDisconnected, webrtc.ICEConnectionStateClosed:
			t.closeOnce.Do(func() { close(t.failed) })
			t.sink.OnClosed(t.ID)
		}
	})

	dc, err := pc.CreateDataChannel("rings", nil)
	if err != nil {
		return nil, fmt.Errorf("transport: create data channel: %w", err)
	}
	t.bindDataChannel(dc)

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		t.bindDataChannel(dc)
	})

	return t, nil
}

func (t *Transport) bindDataChannel(dc *webrtc.DataChannel) {
	t.dcMu.Lock()
	t.dc = dc
	t.dcMu.Unlock()

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.sink.OnMessage(t.ID, msg.Data)
	})
}

// GetHandshakeInfo creates an SDP of the requested kind, sets it as the
// local description, awaits ICE gathering completion, and returns the
// bundled TricklePayload.
func (t *Transport) GetHandshakeInfo(ctx context.Context, kind HandshakeKind) (TricklePayload, error) {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	var (
		desc webrtc.SessionDescription
		err  error
	)
	switch kind {
	case HandshakeOffer:
		desc, err = t.pc.CreateOffer(nil)
	case HandshakeAnswer:
		desc, err = t.pc.CreateAnswer(nil)
	default:
		return TricklePayload{}, fmt.Errorf("transport: unknown handshake kind %d", kind)
	}
	if err != nil {
		return TricklePayload{}, fmt.Errorf("transport: create %v: %w", kind, err)
	}
	if err := t.pc.SetLocalDescription(desc); err != nil {
		return TricklePayload{}, fmt.Errorf("transport: set local description: %w", err)
	}

	select {
	case <-t.gatherComplete:
	case <-ctx.Done():
		return TricklePayload{}, ctx.Err()
	}

	t.candMu.Lock()
	candidates := append([]webrtc.ICECandidateInit(nil), t.pendingLocal...)
	t.candMu.Unlock()

	return NewTricklePayload(*t.pc.LocalDescription(), candidates)
}

// RegisterRemoteInfo decodes a peer's TricklePayload, sets the remote
// description, and adds every gathered candidate. remoteDid is recorded so
// a subsequent Connected transition can announce it to the EventSink.
func (t *Transport) RegisterRemoteInfo(info TricklePayload, remoteDid dht.Did) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	desc, err := info.SessionDescription()
	if err != nil {
		return fmt.Errorf("transport: decode remote sdp: %w", err)
	}
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("transport: set remote description: %w", err)
	}
	for _, c := range info.Candidates {
		if err := t.pc.AddICECandidate(c); err != nil {
			return fmt.Errorf("transport: add ice candidate: %w", err)
		}
	}

	t.candMu.Lock()
	t.remoteDid = remoteDid
	t.remoteDidKnown = true
	t.candMu.Unlock()
	return nil
}

// SetRemotePublicKey records the public key recovered from the peer's
// signed handshake payload, the basis for RegisterRemoteInfo's Did.
func (t *Transport) SetRemotePublicKey(pub []byte) {
	t.candMu.Lock()
	t.remotePubKey = append([]byte(nil), pub...)
	t.candMu.Unlock()
}

// RemotePublicKey returns the peer's public key, or nil if not yet known.
func (t *Transport) RemotePublicKey() []byte {
	t.candMu.Lock()
	defer t.candMu.Unlock()
	return t.remotePubKey
}

// WaitForConnected blocks until the ICE connection reaches Connected, the
// context is cancelled, or the connection fails.
func (t *Transport) WaitForConnected(ctx context.Context) error {
	select {
	case <-t.connected:
		return nil
	case <-t.failed:
		return ErrConnectionFailed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send writes data to the "rings" data channel, failing with
// ErrDataChannelNotReady if it is not open.
func (t *Transport) Send(data []byte) error {
	t.dcMu.Lock()
	dc := t.dc
	t.dcMu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrDataChannelNotReady
	}
	return dc.Send(data)
}

// Close tears down the peer connection.
func (t *Transport) Close() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	return t.pc.Close()
}

// ConnectionState reports the transport's current ICE connection state.
func (t *Transport) ConnectionState() webrtc.ICEConnectionState {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	return t.pc.ICEConnectionState()
}

const defaultConnectTimeout = 20 * time.Second
