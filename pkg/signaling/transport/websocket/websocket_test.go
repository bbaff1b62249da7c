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
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ringmesh/rings/pkg/signaling/transport"
)

func TestWSTransport_Send(t *testing.T) {
	t.Run("Successful envelope send", func(t *testing.T) {
		handler := func(ctx context.Context, env *transport.SignalEnvelope) (*transport.SignalAck, error) {
			if env.ID != "test-env-123" {
				t.Errorf("Expected envelope ID 'test-env-123', got '%s'", env.ID)
			}
			if env.From != "did:rings:alice" {
				t.Errorf("Expected From 'did:rings:alice', got '%s'", env.From)
			}
			if string(env.Body) != "offer sdp" {
				t.Errorf("Expected body 'offer sdp', got '%s'", string(env.Body))
			}

			return &transport.SignalAck{
				Success:    true,
				EnvelopeID: env.ID,
			}, nil
		}

		server := NewWSServer(handler)
		testServer := httptest.NewServer(server.Handler())
		defer testServer.Close()

		wsURL := "ws" + strings.TrimPrefix(testServer.URL, "http")

		client := NewWSTransport(wsURL)
		defer client.Close()

		env := &transport.SignalEnvelope{
			ID:   "test-env-123",
			From: "did:rings:alice",
			To:   "did:rings:bob",
			Kind: transport.KindOffer,
			Body: []byte("offer sdp"),
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		ack, err := client.Send(ctx, env)
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}

		if !ack.Success {
			t.Errorf("Expected success=true, got false")
		}
		if ack.EnvelopeID != "test-env-123" {
			t.Errorf("Expected EnvelopeID 'test-env-123', got '%s'", ack.EnvelopeID)
		}
	})

	t.Run("Relay error handling", func(t *testing.T) {
		handler := func(ctx context.Context, env *transport.SignalEnvelope) (*transport.SignalAck, error) {
			return nil, fmt.Errorf("relay processing error")
		}

		server := NewWSServer(handler)
		testServer := httptest.NewServer(server.Handler())
		defer testServer.Close()

		wsURL := "ws" + strings.TrimPrefix(testServer.URL, "http")

		client := NewWSTransport(wsURL)
		defer client.Close()

		env := &transport.SignalEnvelope{
			ID:   "test-env-123",
			From: "did:rings:alice",
			To:   "did:rings:bob",
			Body: []byte("offer sdp"),
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		ack, err := client.Send(ctx, env)
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}

		if ack.Success {
			t.Errorf("Expected success=false, got true")
		}
		if ack.Error == nil {
			t.Errorf("Expected error to be set")
		} else if ack.Error.Error() != "relay processing error" {
			t.Errorf("Expected error 'relay processing error', got '%s'", ack.Error.Error())
		}
	})

	t.Run("Multiple envelopes on same connection", func(t *testing.T) {
		envelopeCount := 0
		handler := func(ctx context.Context, env *transport.SignalEnvelope) (*transport.SignalAck, error) {
			envelopeCount++
			return &transport.SignalAck{
				Success:    true,
				EnvelopeID: env.ID,
			}, nil
		}

		server := NewWSServer(handler)
		testServer := httptest.NewServer(server.Handler())
		defer testServer.Close()

		wsURL := "ws" + strings.TrimPrefix(testServer.URL, "http")

		client := NewWSTransport(wsURL)
		defer client.Close()

		for i := 1; i <= 3; i++ {
			env := &transport.SignalEnvelope{
				ID:   fmt.Sprintf("env-%d", i),
				From: "did:rings:alice",
				To:   "did:rings:bob",
				Body: []byte(fmt.Sprintf("payload %d", i)),
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			ack, err := client.Send(ctx, env)
			cancel()

			if err != nil {
				t.Fatalf("Send %d failed: %v", i, err)
			}
			if !ack.Success {
				t.Errorf("Envelope %d: expected success", i)
			}
		}

		if envelopeCount != 3 {
			t.Errorf("Expected 3 envelopes, got %d", envelopeCount)
		}
	})

	t.Run("Invalid envelope handling", func(t *testing.T) {
		handler := func(ctx context.Context, env *transport.SignalEnvelope) (*transport.SignalAck, error) {
			return &transport.SignalAck{Success: true}, nil
		}

		server := NewWSServer(handler)
		testServer := httptest.NewServer(server.Handler())
		defer testServer.Close()

		wsURL := "ws" + strings.TrimPrefix(testServer.URL, "http")

		client := NewWSTransport(wsURL)
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := client.Send(ctx, nil)
		if err == nil {
			t.Errorf("Expected error for nil envelope")
		}
	})

	t.Run("Connection timeout", func(t *testing.T) {
		client := NewWSTransportWithTimeouts("ws://localhost:19999", 100*time.Millisecond, 1*time.Second, 1*time.Second)
		defer client.Close()

		env := &transport.SignalEnvelope{
			ID:   "test-env",
			From: "did:rings:alice",
			To:   "did:rings:bob",
			Body: []byte("test"),
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		_, err := client.Send(ctx, env)
		if err == nil {
			t.Errorf("Expected connection error")
		}
	})
}

func TestWSServer_Validation(t *testing.T) {
	t.Run("Missing required fields", func(t *testing.T) {
		receivedError := false
		handler := func(ctx context.Context, env *transport.SignalEnvelope) (*transport.SignalAck, error) {
			t.Errorf("Handler should not be called for invalid envelope")
			return nil, fmt.Errorf("should not reach here")
		}

		server := NewWSServer(handler)
		testServer := httptest.NewServer(server.Handler())
		defer testServer.Close()

		wsURL := "ws" + strings.TrimPrefix(testServer.URL, "http")

		tests := []struct {
			name     string
			envelope *transport.SignalEnvelope
		}{
			{
				name: "Missing ID",
				envelope: &transport.SignalEnvelope{
					From: "did:rings:alice",
					To:   "did:rings:bob",
					Body: []byte("payload"),
				},
			},
			{
				name: "Missing From/To",
				envelope: &transport.SignalEnvelope{
					ID:   "env-123",
					Body: []byte("payload"),
				},
			},
			{
				name: "Missing Body",
				envelope: &transport.SignalEnvelope{
					ID:   "env-123",
					From: "did:rings:alice",
					To:   "did:rings:bob",
				},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				client := NewWSTransport(wsURL)
				defer client.Close()

				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()

				ack, err := client.Send(ctx, tt.envelope)
				if err != nil {
					receivedError = true
					return
				}

				if ack.Success {
					t.Errorf("Expected failure for invalid envelope")
				} else {
					receivedError = true
				}
			})
		}

		if !receivedError {
			t.Errorf("Expected at least one validation error")
		}
	})
}

func TestWSServer_ConnectionCount(t *testing.T) {
	handler := func(ctx context.Context, env *transport.SignalEnvelope) (*transport.SignalAck, error) {
		time.Sleep(100 * time.Millisecond)
		return &transport.SignalAck{Success: true, EnvelopeID: env.ID}, nil
	}

	server := NewWSServer(handler)
	testServer := httptest.NewServer(server.Handler())
	defer testServer.Close()

	wsURL := "ws" + strings.TrimPrefix(testServer.URL, "http")

	if count := server.GetConnectionCount(); count != 0 {
		t.Errorf("Expected 0 connections, got %d", count)
	}

	client := NewWSTransport(wsURL)
	defer client.Close()

	env := &transport.SignalEnvelope{
		ID:   "test-env",
		From: "did:rings:alice",
		To:   "did:rings:bob",
		Body: []byte("test"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go client.Send(ctx, env)

	time.Sleep(50 * time.Millisecond)

	if count := server.GetConnectionCount(); count != 1 {
		t.Errorf("Expected 1 connection, got %d", count)
	}
}
