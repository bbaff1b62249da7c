// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package websocket implements the signaling transport over a persistent
// gorilla/websocket connection: a demo-grade carrier for exchanging
// connect_node handshake envelopes (offer/answer/trickle) between two
// nodes that have no WebRTC data channel yet.
package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ringmesh/rings/pkg/signaling/transport"
)

// WSTransport implements transport.SignalTransport over a WebSocket
// connection to a signaling relay.
//
// Example usage:
//
//	relay := websocket.NewWSTransport("wss://relay.example.com/signal")
//	ack, err := relay.Send(ctx, &transport.SignalEnvelope{
//	    ID:   uuid.NewString(),
//	    From: self.Hex(),
//	    To:   peer.Hex(),
//	    Kind: transport.KindOffer,
//	    Body: offerJSON,
//	})
type WSTransport struct {
	url          string
	conn         *websocket.Conn
	mu           sync.Mutex
	dialTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	// Ack handling
	pendingAcks map[string]chan *wireAck
	pendingMu   sync.RWMutex

	// Connection state
	connected bool
	connMu    sync.RWMutex
}

// NewWSTransport creates a new WebSocket signaling transport client.
//
// Parameters:
//   - url: The relay's WebSocket URL (e.g., "wss://relay.example.com/signal")
func NewWSTransport(url string) *WSTransport {
	return &WSTransport{
		url:          url,
		dialTimeout:  30 * time.Second,
		readTimeout:  60 * time.Second,
		writeTimeout: 30 * time.Second,
		pendingAcks:  make(map[string]chan *wireAck),
	}
}

// NewWSTransportWithTimeouts creates a WebSocket transport with custom timeouts.
func NewWSTransportWithTimeouts(url string, dialTimeout, readTimeout, writeTimeout time.Duration) *WSTransport {
	return &WSTransport{
		url:          url,
		dialTimeout:  dialTimeout,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		pendingAcks:  make(map[string]chan *wireAck),
	}
}

// Connect establishes the WebSocket connection.
func (t *WSTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return nil
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: t.dialTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("WebSocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("WebSocket dial failed: %w", err)
	}

	t.conn = conn
	t.setConnected(true)

	go t.readAcks()

	return nil
}

// Send implements the transport.SignalTransport interface.
//
// Sends env over the WebSocket connection and waits for the relay's ack.
func (t *WSTransport) Send(ctx context.Context, env *transport.SignalEnvelope) (*transport.SignalAck, error) {
	if env == nil {
		return nil, fmt.Errorf("envelope cannot be nil")
	}

	if err := t.ensureConnected(ctx); err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}

	wireEnv := toWireEnvelope(env)

	ackChan := make(chan *wireAck, 1)
	t.pendingMu.Lock()
	t.pendingAcks[env.ID] = ackChan
	t.pendingMu.Unlock()

	defer func() {
		t.pendingMu.Lock()
		delete(t.pendingAcks, env.ID)
		t.pendingMu.Unlock()
		close(ackChan)
	}()

	if err := t.writeEnvelope(wireEnv); err != nil {
		return &transport.SignalAck{
			Success:    false,
			EnvelopeID: env.ID,
			Error:      fmt.Errorf("send failed: %w", err),
		}, err
	}

	select {
	case <-ctx.Done():
		return &transport.SignalAck{
			Success:    false,
			EnvelopeID: env.ID,
			Error:      ctx.Err(),
		}, ctx.Err()
	case wireAck := <-ackChan:
		return fromWireAck(wireAck, env.ID), nil
	case <-time.After(t.readTimeout):
		return &transport.SignalAck{
			Success:    false,
			EnvelopeID: env.ID,
			Error:      fmt.Errorf("ack timeout"),
		}, fmt.Errorf("ack timeout")
	}
}

// ensureConnected checks connection and reconnects if needed
func (t *WSTransport) ensureConnected(ctx context.Context) error {
	if t.isConnected() {
		return nil
	}
	return t.Connect(ctx)
}

// writeEnvelope writes an envelope to the WebSocket
func (t *WSTransport) writeEnvelope(env *wireEnvelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return fmt.Errorf("not connected")
	}

	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if err := t.conn.WriteJSON(env); err != nil {
		t.setConnected(false)
		return fmt.Errorf("write envelope: %w", err)
	}

	return nil
}

// readAcks continuously reads relay acknowledgements from the WebSocket
func (t *WSTransport) readAcks() {
	defer t.setConnected(false)

	for {
		if !t.isConnected() {
			return
		}

		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()

		if conn == nil {
			return
		}

		if err := conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
			return
		}

		var wireAck wireAck
		if err := conn.ReadJSON(&wireAck); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				fmt.Printf("WebSocket read error: %v\n", err)
			}
			return
		}

		t.pendingMu.RLock()
		if ackChan, ok := t.pendingAcks[wireAck.EnvelopeID]; ok {
			select {
			case ackChan <- &wireAck:
			default:
				// Channel full or closed, skip
			}
		}
		t.pendingMu.RUnlock()
	}
}

// Close closes the WebSocket connection
func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}

	err := t.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)

	closeErr := t.conn.Close()
	t.conn = nil
	t.setConnected(false)

	if err != nil {
		return err
	}
	return closeErr
}

// isConnected checks connection state
func (t *WSTransport) isConnected() bool {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.connected
}

// setConnected sets connection state
func (t *WSTransport) setConnected(connected bool) {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	t.connected = connected
}

// wireEnvelope is the WebSocket wire format for transport.SignalEnvelope
type wireEnvelope struct {
	ID       string            `json:"id"`
	From     string            `json:"from"`
	To       string            `json:"to"`
	Kind     string            `json:"kind"`
	Body     []byte            `json:"body"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// wireAck is the WebSocket wire format for transport.SignalAck
type wireAck struct {
	Success    bool   `json:"success"`
	EnvelopeID string `json:"envelope_id"`
	Error      string `json:"error,omitempty"`
}

// toWireEnvelope converts transport.SignalEnvelope to WebSocket wire format
func toWireEnvelope(env *transport.SignalEnvelope) *wireEnvelope {
	return &wireEnvelope{
		ID:       env.ID,
		From:     env.From,
		To:       env.To,
		Kind:     string(env.Kind),
		Body:     env.Body,
		Metadata: env.Metadata,
	}
}

// fromWireAck converts a WebSocket wire ack to transport.SignalAck
func fromWireAck(ack *wireAck, envelopeID string) *transport.SignalAck {
	result := &transport.SignalAck{
		Success:    ack.Success,
		EnvelopeID: ack.EnvelopeID,
	}

	if result.EnvelopeID == "" {
		result.EnvelopeID = envelopeID
	}

	if ack.Error != "" {
		result.Error = fmt.Errorf("%s", ack.Error)
		result.Success = false
	}

	return result
}
