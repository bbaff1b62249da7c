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

package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ringmesh/rings/pkg/signaling/transport"
)

// EnvelopeHandler is a function that processes incoming signaling
// envelopes (offer/answer/trickle) and returns the relay's acknowledgement.
//
// This is the application-level handler, typically connect_node's
// handshake-building branch.
type EnvelopeHandler func(ctx context.Context, env *transport.SignalEnvelope) (*transport.SignalAck, error)

// WSServer provides a WebSocket relay for signaling envelopes.
//
// This server maintains persistent WebSocket connections and dispatches
// incoming envelopes through an EnvelopeHandler.
//
// Example usage:
//
//	handler := func(ctx context.Context, env *transport.SignalEnvelope) (*transport.SignalAck, error) {
//	    return connectNode.HandleSignal(ctx, env)
//	}
//
//	server := websocket.NewWSServer(handler)
//	http.Handle("/signal", server.Handler())
type WSServer struct {
	handler      EnvelopeHandler
	upgrader     websocket.Upgrader
	readTimeout  time.Duration
	writeTimeout time.Duration

	// Active connections
	connections map[*websocket.Conn]bool
	connMu      sync.RWMutex
}

// NewWSServer creates a new WebSocket signaling relay.
//
// Parameters:
//   - handler: The application-level envelope handler
func NewWSServer(handler EnvelopeHandler) *WSServer {
	return &WSServer{
		handler: handler,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: Implement proper origin checking in production
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		readTimeout:  60 * time.Second,
		writeTimeout: 30 * time.Second,
		connections:  make(map[*websocket.Conn]bool),
	}
}

// NewWSServerWithTimeouts creates a WebSocket relay with custom timeouts.
func NewWSServerWithTimeouts(handler EnvelopeHandler, readTimeout, writeTimeout time.Duration) *WSServer {
	server := NewWSServer(handler)
	server.readTimeout = readTimeout
	server.writeTimeout = writeTimeout
	return server
}

// Handler returns an http.Handler for WebSocket connections.
func (s *WSServer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, fmt.Sprintf("WebSocket upgrade failed: %v", err), http.StatusBadRequest)
			return
		}

		s.addConnection(conn)
		defer s.removeConnection(conn)
		defer func() { _ = conn.Close() }()

		s.handleConnection(r.Context(), conn)
	})
}

// handleConnection processes envelopes from a WebSocket connection
func (s *WSServer) handleConnection(ctx context.Context, conn *websocket.Conn) {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
			return
		}

		var wireEnv wireEnvelope
		if err := conn.ReadJSON(&wireEnv); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				fmt.Printf("WebSocket read error: %v\n", err)
			}
			return
		}

		env := fromWireEnvelope(&wireEnv)

		if env.ID == "" {
			s.sendErrorAck(conn, "", fmt.Errorf("envelope ID is required"))
			continue
		}
		if env.From == "" || env.To == "" {
			s.sendErrorAck(conn, env.ID, fmt.Errorf("from and to Dids are required"))
			continue
		}
		if len(env.Body) == 0 {
			s.sendErrorAck(conn, env.ID, fmt.Errorf("body is required"))
			continue
		}

		ack, err := s.handler(ctx, env)
		if err != nil {
			s.sendErrorAck(conn, env.ID, err)
			continue
		}

		s.sendSuccessAck(conn, ack)
	}
}

// fromWireEnvelope converts WebSocket wire format to transport.SignalEnvelope
func fromWireEnvelope(wire *wireEnvelope) *transport.SignalEnvelope {
	return &transport.SignalEnvelope{
		ID:       wire.ID,
		From:     wire.From,
		To:       wire.To,
		Kind:     transport.EnvelopeKind(wire.Kind),
		Body:     wire.Body,
		Metadata: wire.Metadata,
	}
}

// toWireAck converts transport.SignalAck to WebSocket wire format
func toWireAck(ack *transport.SignalAck) *wireAck {
	wire := &wireAck{
		Success:    ack.Success,
		EnvelopeID: ack.EnvelopeID,
	}

	if ack.Error != nil {
		wire.Error = ack.Error.Error()
		wire.Success = false
	}

	return wire
}

// sendSuccessAck sends a successful acknowledgement
func (s *WSServer) sendSuccessAck(conn *websocket.Conn, ack *transport.SignalAck) {
	wire := toWireAck(ack)
	s.sendAck(conn, wire)
}

// sendErrorAck sends an error acknowledgement
func (s *WSServer) sendErrorAck(conn *websocket.Conn, envelopeID string, err error) {
	wire := &wireAck{
		Success:    false,
		EnvelopeID: envelopeID,
		Error:      err.Error(),
	}
	s.sendAck(conn, wire)
}

// sendAck sends an acknowledgement over WebSocket
func (s *WSServer) sendAck(conn *websocket.Conn, ack *wireAck) {
	if err := conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		fmt.Printf("Failed to set write deadline: %v\n", err)
		return
	}

	if err := conn.WriteJSON(ack); err != nil {
		fmt.Printf("Failed to write ack: %v\n", err)
	}
}

// addConnection tracks a new connection
func (s *WSServer) addConnection(conn *websocket.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.connections[conn] = true
}

// removeConnection stops tracking a connection
func (s *WSServer) removeConnection(conn *websocket.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	delete(s.connections, conn)
}

// GetConnectionCount returns the number of active connections
func (s *WSServer) GetConnectionCount() int {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return len(s.connections)
}

// Close closes all active connections
func (s *WSServer) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	for conn := range s.connections {
		_ = conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		_ = conn.Close()
	}

	s.connections = make(map[*websocket.Conn]bool)
	return nil
}
