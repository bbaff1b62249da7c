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

package transport

import (
	"context"
	"sync"
)

// MockTransport is a mock implementation of SignalTransport for testing.
//
// This allows tests to inject custom behavior without requiring a real
// signaling channel (WebSocket server, HTTP relay, etc.).
//
// Example usage:
//
//	mock := &transport.MockTransport{
//	    SendFunc: func(ctx context.Context, env *transport.SignalEnvelope) (*transport.SignalAck, error) {
//	        // Custom test logic
//	        return &transport.SignalAck{Success: true, EnvelopeID: env.ID}, nil
//	    },
//	}
//	ack, err := mock.Send(ctx, env)
type MockTransport struct {
	// SendFunc is the function to call when Send is invoked.
	// If nil, a default successful ack is returned.
	SendFunc func(ctx context.Context, env *SignalEnvelope) (*SignalAck, error)

	// SentEnvelopes captures every envelope passed to Send, for test
	// verification.
	SentEnvelopes []*SignalEnvelope

	// mu protects SentEnvelopes for concurrent access.
	mu sync.Mutex
}

// Send implements the SignalTransport interface.
func (m *MockTransport) Send(ctx context.Context, env *SignalEnvelope) (*SignalAck, error) {
	m.mu.Lock()
	m.SentEnvelopes = append(m.SentEnvelopes, env)
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(ctx, env)
	}

	return &SignalAck{
		Success:    true,
		EnvelopeID: env.ID,
	}, nil
}

// Reset clears the captured envelopes (useful between test cases).
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.SentEnvelopes = nil
	m.mu.Unlock()
}

// LastEnvelope returns the most recently sent envelope (or nil if none).
func (m *MockTransport) LastEnvelope() *SignalEnvelope {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.SentEnvelopes) == 0 {
		return nil
	}
	return m.SentEnvelopes[len(m.SentEnvelopes)-1]
}
