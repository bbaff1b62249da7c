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

// Command signalrelay is a store-and-forward hub for the out-of-band
// signaling channel nodes use to bootstrap a connect_node handshake before
// any ring-routable path to the target exists.
//
// A node dials the relay over WebSocket with its own Did in the "did"
// query parameter. Any envelope it sends addressed to another connected
// Did is forwarded to that Did's connection verbatim; envelopes for a Did
// that is not currently connected are held in a bounded mailbox and
// delivered on its next connect.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ringmesh/rings/internal/logger"
)

const mailboxCapacity = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wireEnvelope mirrors the JSON shape pkg/signaling/transport/websocket
// sends and expects on the wire.
type wireEnvelope struct {
	ID       string            `json:"id"`
	From     string            `json:"from"`
	To       string            `json:"to"`
	Kind     string            `json:"kind"`
	Body     []byte            `json:"body"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type wireAck struct {
	Success    bool   `json:"success"`
	EnvelopeID string `json:"envelope_id"`
	Error      string `json:"error,omitempty"`
}

// hub tracks the live connection for each Did and a fallback mailbox for
// Dids that are not currently connected.
type hub struct {
	mu        sync.Mutex
	conns     map[string]*websocket.Conn
	mailboxes map[string][]wireEnvelope
	logger    logger.Logger
}

func newHub(log logger.Logger) *hub {
	return &hub{
		conns:     make(map[string]*websocket.Conn),
		mailboxes: make(map[string][]wireEnvelope),
		logger:    log,
	}
}

func (h *hub) register(did string, conn *websocket.Conn) []wireEnvelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[did] = conn
	pending := h.mailboxes[did]
	delete(h.mailboxes, did)
	return pending
}

func (h *hub) unregister(did string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[did] == conn {
		delete(h.conns, did)
	}
}

// deliver forwards env to its recipient's live connection, or queues it in
// the recipient's mailbox if they are not connected. It reports whether
// the envelope reached a live connection.
func (h *hub) deliver(env wireEnvelope) bool {
	h.mu.Lock()
	conn, connected := h.conns[env.To]
	h.mu.Unlock()

	if connected {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(env); err == nil {
			return true
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	box := h.mailboxes[env.To]
	if len(box) >= mailboxCapacity {
		box = box[1:]
		h.logger.Warn("mailbox full, dropping oldest envelope", logger.String("did", env.To))
	}
	h.mailboxes[env.To] = append(box, env)
	return false
}

func (h *hub) handle(w http.ResponseWriter, r *http.Request) {
	did := r.URL.Query().Get("did")
	if did == "" {
		http.Error(w, "did query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", logger.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	pending := h.register(did, conn)
	defer h.unregister(did, conn)
	h.logger.Info("node connected", logger.String("did", did), logger.Int("pending_mail", len(pending)))

	for _, env := range pending {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		_ = conn.WriteJSON(env)
	}

	for {
		var env wireEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Info("node disconnected", logger.String("did", did), logger.Error(err))
			}
			return
		}

		ack := wireAck{EnvelopeID: env.ID}
		switch {
		case env.ID == "":
			ack.Error = "envelope id is required"
		case env.From == "" || env.To == "":
			ack.Error = "from and to Dids are required"
		case len(env.Body) == 0:
			ack.Error = "body is required"
		default:
			h.deliver(env)
			ack.Success = true
		}

		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(ack); err != nil {
			return
		}
	}
}

func (h *hub) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"connected_nodes": len(h.conns),
		"pending_mailboxes": func() map[string]int {
			m := make(map[string]int, len(h.mailboxes))
			for did, box := range h.mailboxes {
				m[did] = len(box)
			}
			return m
		}(),
	})
}

func main() {
	addr := flag.String("addr", ":9090", "listen address")
	path := flag.String("path", "/signal", "WebSocket endpoint path")
	flag.Parse()

	log := logger.GetDefaultLogger()
	h := newHub(log)

	mux := http.NewServeMux()
	mux.HandleFunc(*path, h.handle)
	mux.HandleFunc("/status", h.handleStatus)

	srv := &http.Server{Addr: *addr, Handler: mux}
	log.Info("signalrelay listening", logger.String("addr", *addr), logger.String("path", *path))
	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintf(os.Stderr, "signalrelay: %v\n", err)
		os.Exit(1)
	}
}
