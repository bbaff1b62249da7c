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

// Package transport provides a signaling-channel abstraction: the
// out-of-band path two nodes use to exchange WebRTC handshake info
// (offer/answer SDP plus trickled ICE candidates) before any data channel
// between them exists. It lets connect_node bootstrap over HTTP, gRPC, or
// WebSocket without the rest of the node depending on any of them
// directly.
package transport

import "context"

// SignalTransport sends a signaling envelope to a peer and waits for the
// channel's delivery acknowledgement.
//
// Example usage:
//
//	relay := websocket.NewWSTransport(url)
//	ack, err := relay.Send(ctx, &transport.SignalEnvelope{
//	    ID:   uuid.NewString(),
//	    From: self.Hex(),
//	    To:   target.Hex(),
//	    Kind: transport.KindOffer,
//	    Body: offerJSON,
//	})
type SignalTransport interface {
	// Send transmits env and returns the channel's acknowledgement.
	Send(ctx context.Context, env *SignalEnvelope) (*SignalAck, error)
}

// EnvelopeKind identifies what stage of the connect_node handshake an
// envelope carries.
type EnvelopeKind string

const (
	// KindOffer carries the initiating peer's SDP offer.
	KindOffer EnvelopeKind = "offer"
	// KindAnswer carries the receiving peer's SDP answer.
	KindAnswer EnvelopeKind = "answer"
	// KindTrickle carries ICE candidates discovered after the initial
	// offer/answer exchange.
	KindTrickle EnvelopeKind = "trickle"
)

// SignalEnvelope is a signaling message exchanged between two nodes,
// independent of which out-of-band channel carries it.
type SignalEnvelope struct {
	// ID uniquely identifies this envelope (a UUID), echoed back in the Ack.
	ID string

	// From and To are the hex-encoded Dids of the sender and intended
	// recipient.
	From string
	To   string

	// Kind identifies which handshake stage Body carries.
	Kind EnvelopeKind

	// Body is the JSON-encoded transport.TricklePayload for this stage.
	Body []byte

	// Metadata carries channel-specific routing hints (e.g. a relay
	// server's session id); never interpreted by SignalTransport itself.
	Metadata map[string]string
}

// SignalAck is the out-of-band channel's acknowledgement of a SignalEnvelope.
type SignalAck struct {
	// Success reports whether the envelope was accepted for delivery. It
	// says nothing about whether the receiving node accepted the
	// handshake itself; that answer arrives as a further SignalEnvelope.
	Success bool

	// EnvelopeID echoes the envelope's ID.
	EnvelopeID string

	// Error carries a channel or protocol-level failure reason.
	Error error
}
