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

package transport_test

import (
	"context"
	"testing"

	"github.com/ringmesh/rings/pkg/signaling/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockTransport_DefaultBehavior(t *testing.T) {
	mock := &transport.MockTransport{}

	env := &transport.SignalEnvelope{
		ID:   "test-id",
		From: "did:rings:alice",
		To:   "did:rings:bob",
		Kind: transport.KindOffer,
		Body: []byte("offer sdp"),
	}

	ack, err := mock.Send(context.Background(), env)

	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Equal(t, "test-id", ack.EnvelopeID)
}

func TestMockTransport_CustomFunction(t *testing.T) {
	called := false
	mock := &transport.MockTransport{
		SendFunc: func(ctx context.Context, env *transport.SignalEnvelope) (*transport.SignalAck, error) {
			called = true
			assert.Equal(t, "custom-id", env.ID)
			return &transport.SignalAck{
				Success:    true,
				EnvelopeID: env.ID,
			}, nil
		},
	}

	env := &transport.SignalEnvelope{
		ID:   "custom-id",
		Kind: transport.KindAnswer,
		Body: []byte("answer sdp"),
	}

	ack, err := mock.Send(context.Background(), env)

	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "custom-id", ack.EnvelopeID)
}

func TestMockTransport_CapturesEnvelopes(t *testing.T) {
	mock := &transport.MockTransport{}

	env1 := &transport.SignalEnvelope{ID: "env-1"}
	env2 := &transport.SignalEnvelope{ID: "env-2"}

	_, _ = mock.Send(context.Background(), env1)
	_, _ = mock.Send(context.Background(), env2)

	require.Len(t, mock.SentEnvelopes, 2)
	assert.Equal(t, "env-1", mock.SentEnvelopes[0].ID)
	assert.Equal(t, "env-2", mock.SentEnvelopes[1].ID)
}

func TestMockTransport_LastEnvelope(t *testing.T) {
	mock := &transport.MockTransport{}

	assert.Nil(t, mock.LastEnvelope())

	env := &transport.SignalEnvelope{ID: "last-env"}
	_, _ = mock.Send(context.Background(), env)

	last := mock.LastEnvelope()
	require.NotNil(t, last)
	assert.Equal(t, "last-env", last.ID)
}

func TestMockTransport_Reset(t *testing.T) {
	mock := &transport.MockTransport{}

	env := &transport.SignalEnvelope{ID: "test"}
	_, _ = mock.Send(context.Background(), env)

	require.Len(t, mock.SentEnvelopes, 1)

	mock.Reset()

	assert.Len(t, mock.SentEnvelopes, 0)
	assert.Nil(t, mock.LastEnvelope())
}
