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

// Package payload defines the signed, relayed message envelope exchanged
// between ring nodes: the tagged Message union, the RelayHeader that
// tracks a message's path as it hops across untrusted relays, and the
// Payload wrapper that carries origin-verification material.
package payload

import (
	"errors"

	"github.com/google/uuid"
	"github.com/ringmesh/rings/dht"
)

// Protocol distinguishes the two halves of a relay round trip.
type Protocol string

const (
	// ProtocolSend marks a message travelling toward Destination.
	ProtocolSend Protocol = "SEND"
	// ProtocolReport marks a reply travelling back along the reversed path.
	ProtocolReport Protocol = "REPORT"
)

// ErrEmptyPath is returned when a path operation is attempted on an empty
// from/to path deque.
var ErrEmptyPath = errors.New("payload: path is empty")

// RelayHeader carries the routing metadata needed to forward a message
// through intermediate peers and correlate its eventual reply.
//
// TxID identifies one SEND/REPORT exchange; MessageID identifies this
// specific hop's wire message (a REPORT and its triggering SEND share a
// TxID but have distinct MessageIDs). Both are always populated with a
// fresh UUID if the caller leaves them blank — an empty ID used to be
// possible in stabilize() and made message correlation ambiguous.
type RelayHeader struct {
	TxID      string   `cbor:"1,keyasint"`
	MessageID string   `cbor:"2,keyasint"`
	Protocol  Protocol `cbor:"3,keyasint"`
	// FromPath records the hops already visited, oldest first. For a SEND
	// the originator is FromPath[0]; for a REPORT it instead accumulates
	// the return trail as relayReport forwards it, so checkRelayPath can
	// confirm each hop arrived from the relay that should have sent it.
	FromPath []dht.Did `cbor:"4,keyasint"`
	// ToPath records the remaining hops a REPORT must still retrace to
	// reach its origin, nearest-hop-first from the back (see IntoReport
	// and NextHop). Unused for a SEND.
	ToPath []dht.Did `cbor:"5,keyasint"`
	// Destination is the final intended recipient of a SEND.
	Destination dht.Did `cbor:"6,keyasint"`
}

// NewRelayHeader builds a SEND header originating at self and destined for
// dest, always minting fresh correlation IDs.
func NewRelayHeader(self, dest dht.Did) RelayHeader {
	return RelayHeader{
		TxID:        uuid.NewString(),
		MessageID:   uuid.NewString(),
		Protocol:    ProtocolSend,
		FromPath:    []dht.Did{self},
		ToPath:      nil,
		Destination: dest,
	}
}

// PushRelay records that this message was forwarded by hop, appending it
// to FromPath. Used by an intermediate relay before re-sending a SEND.
func (h *RelayHeader) PushRelay(hop dht.Did) {
	h.FromPath = append(h.FromPath, hop)
}

// LastHop returns the most recent entry in FromPath, i.e. whoever directly
// delivered this message to us.
func (h *RelayHeader) LastHop() (dht.Did, error) {
	if len(h.FromPath) == 0 {
		return dht.Did{}, ErrEmptyPath
	}
	return h.FromPath[len(h.FromPath)-1], nil
}

// Origin returns the first entry in FromPath, the node that originated
// this exchange.
func (h *RelayHeader) Origin() (dht.Did, error) {
	if len(h.FromPath) == 0 {
		return dht.Did{}, ErrEmptyPath
	}
	return h.FromPath[0], nil
}

// IntoReport flips a SEND header into the REPORT travelling back to the
// origin: ToPath becomes a copy of FromPath (oldest-first, same as
// FromPath), so that NextHop's pop-from-the-back retraces the SEND path
// nearest-hop-first — the node that last forwarded the SEND is the
// REPORT's first hop, not the origin. A fresh MessageID is minted for the
// reply hop while TxID is preserved so the REPORT correlates with its
// triggering SEND.
func (h RelayHeader) IntoReport() RelayHeader {
	return RelayHeader{
		TxID:        h.TxID,
		MessageID:   uuid.NewString(),
		Protocol:    ProtocolReport,
		FromPath:    []dht.Did{},
		ToPath:      append([]dht.Did{}, h.FromPath...),
		Destination: h.Destination,
	}
}

// NextHop pops and returns the next hop a REPORT should be relayed to —
// the tail of ToPath, i.e. the nearest relay still between here and the
// origin — or ErrEmptyPath once the REPORT has reached its origin.
func (h *RelayHeader) NextHop() (dht.Did, error) {
	if len(h.ToPath) == 0 {
		return dht.Did{}, ErrEmptyPath
	}
	next := h.ToPath[len(h.ToPath)-1]
	h.ToPath = h.ToPath[:len(h.ToPath)-1]
	return next, nil
}

// Exhausted reports whether a REPORT has no further hops to traverse,
// meaning it has arrived back at its origin.
func (h *RelayHeader) Exhausted() bool {
	return h.Protocol == ProtocolReport && len(h.ToPath) == 0
}
