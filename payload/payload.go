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

package payload

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/ringmesh/rings/dht"
	"github.com/ringmesh/rings/session"
)

// DefaultTTL is used by New when the caller does not specify one; it
// matches the minimum transit budget a relayed payload is expected to
// survive under.
const DefaultTTL = 60 * time.Second

// OriginVerification carries the proof that Signature over (data, ttl,
// timestamp) was produced by Certificate's session key, which is itself
// delegated from the claimed origin identity.
type OriginVerification struct {
	Certificate *session.SessionCertificate `cbor:"1,keyasint"`
	Signature   []byte                      `cbor:"2,keyasint"`
}

// Payload is the signed envelope relayed between nodes. Data, TTLMillis,
// TimestampMillis and Origin are immutable once signed; only the
// RelayHeader's from_path/to_path are rewritten as the payload (or, under
// NewStuck, its preserved signature) moves hop by hop. TTLMillis and
// TimestampMillis are wire-format milliseconds, matching the external
// schema; use TTL/Timestamp for the time.Duration/time.Time views.
type Payload struct {
	Data            Wire               `cbor:"1,keyasint"`
	Relay           RelayHeader        `cbor:"2,keyasint"`
	Origin          OriginVerification `cbor:"3,keyasint"`
	Addr            dht.Did            `cbor:"4,keyasint"`
	TTLMillis       int64              `cbor:"5,keyasint"`
	TimestampMillis int64              `cbor:"6,keyasint"`
}

// TTL returns the payload's time-to-live as a Duration.
func (p *Payload) TTL() time.Duration { return time.Duration(p.TTLMillis) * time.Millisecond }

// Timestamp returns the payload's creation time.
func (p *Payload) Timestamp() time.Time { return time.UnixMilli(p.TimestampMillis) }

var (
	// ErrVerifySignatureFailed is returned when a payload's signature does
	// not recover to its claimed origin.
	ErrVerifySignatureFailed = errors.New("payload: signature verification failed")
	// ErrPayloadExpired is returned when now > timestamp + ttl.
	ErrPayloadExpired = errors.New("payload: expired")
	// ErrInvalidRelayPath is returned when the relay path's last hop does
	// not match addr.
	ErrInvalidRelayPath = errors.New("payload: relay path does not match addr")
)

// signedMaterial is what the origin's session key signs: the message data
// plus its ttl/timestamp. The RelayHeader is deliberately excluded, since
// from_path/to_path mutate hop by hop as the same signed Payload (or, under
// NewStuck, the same preserved signature) travels the ring; path continuity
// is instead checked structurally by checkRelayPath.
func signedMaterial(data Wire, ttlMillis, timestampMillis int64) ([]byte, error) {
	dataBytes, err := cbor.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("payload: encode data for signing: %w", err)
	}
	buf := make([]byte, 0, len(dataBytes)+16)
	buf = append(buf, dataBytes...)
	buf = append(buf, []byte(fmt.Sprintf("%d:%d", ttlMillis, timestampMillis))...)
	return buf, nil
}

// New builds and signs a fresh Payload, originated by id, with a fresh
// origin signature. addr is the immediate hop (self, for a first send).
func New(id *session.Identity, addr dht.Did, msg Message, relay RelayHeader, ttl time.Duration) (*Payload, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	wire, err := EncodeMessage(msg)
	if err != nil {
		return nil, err
	}
	ttlMillis := ttl.Milliseconds()
	tsMillis := time.Now().UnixMilli()
	material, err := signedMaterial(wire, ttlMillis, tsMillis)
	if err != nil {
		return nil, err
	}
	sig, err := id.Sign(material)
	if err != nil {
		return nil, fmt.Errorf("payload: sign: %w", err)
	}
	return &Payload{
		Data:  wire,
		Relay: relay,
		Origin: OriginVerification{
			Certificate: id.Certificate(),
			Signature:   sig,
		},
		Addr:            addr,
		TTLMillis:       ttlMillis,
		TimestampMillis: tsMillis,
	}, nil
}

// NewStuck re-wraps original in a new relay envelope addressed from addr,
// preserving its data, ttl, timestamp, and origin verification unchanged.
// Used by the handler each time it relays a payload onward or back one hop:
// the origin's signature stays valid because none of the bytes it covers
// (data, ttl, timestamp) change, only the relay bookkeeping for this
// particular hop.
func NewStuck(addr dht.Did, relay RelayHeader, original *Payload) *Payload {
	return &Payload{
		Data:            original.Data,
		Relay:           relay,
		Origin:          original.Origin,
		Addr:            addr,
		TTLMillis:       original.TTLMillis,
		TimestampMillis: original.TimestampMillis,
	}
}

// Verify checks the payload's signature, expiry, and relay path
// continuity, returning the verified origin Did on success.
func (p *Payload) Verify() (dht.Did, error) {
	if time.Now().After(p.Timestamp().Add(p.TTL())) {
		return dht.Did{}, ErrPayloadExpired
	}
	if err := p.checkRelayPath(); err != nil {
		return dht.Did{}, err
	}
	material, err := signedMaterial(p.Data, p.TTLMillis, p.TimestampMillis)
	if err != nil {
		return dht.Did{}, err
	}
	origin, err := session.VerifyMessage(material, p.Origin.Signature, p.Origin.Certificate)
	if err != nil {
		return dht.Did{}, fmt.Errorf("%w: %v", ErrVerifySignatureFailed, err)
	}
	return origin, nil
}

func (p *Payload) checkRelayPath() error {
	switch p.Relay.Protocol {
	case ProtocolSend:
		last, err := p.Relay.LastHop()
		if err != nil {
			// A first-hop SEND has no prior relay; nothing to check yet.
			return nil
		}
		if last != p.Addr {
			return ErrInvalidRelayPath
		}
	case ProtocolReport:
		last, err := p.Relay.LastHop()
		if err != nil {
			// The node that turned a SEND into this REPORT hasn't forwarded
			// it anywhere yet; nothing to check until its first hop.
			return nil
		}
		if last != p.Addr {
			return ErrInvalidRelayPath
		}
	}
	return nil
}

// Message decodes the payload's tagged Data field.
func (p *Payload) Message() (Message, error) {
	return DecodeMessage(p.Data)
}
