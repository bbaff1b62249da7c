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
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/ringmesh/rings/dht"
)

// Kind tags which variant of the Message union a Wire value holds.
type Kind uint8

const (
	KindJoinDHT Kind = iota
	KindLeaveDHT
	KindConnectNodeSend
	KindConnectNodeReport
	KindAlreadyConnected
	KindFindSuccessorSend
	KindFindSuccessorReport
	KindNotifyPredecessorSend
	KindNotifyPredecessorReport
	KindCustomMessage
	KindMultiCall
)

func (k Kind) String() string {
	switch k {
	case KindJoinDHT:
		return "JoinDHT"
	case KindLeaveDHT:
		return "LeaveDHT"
	case KindConnectNodeSend:
		return "ConnectNodeSend"
	case KindConnectNodeReport:
		return "ConnectNodeReport"
	case KindAlreadyConnected:
		return "AlreadyConnected"
	case KindFindSuccessorSend:
		return "FindSuccessorSend"
	case KindFindSuccessorReport:
		return "FindSuccessorReport"
	case KindNotifyPredecessorSend:
		return "NotifyPredecessorSend"
	case KindNotifyPredecessorReport:
		return "NotifyPredecessorReport"
	case KindCustomMessage:
		return "CustomMessage"
	case KindMultiCall:
		return "MultiCall"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Message is implemented by every variant of the protocol's tagged union.
// Each variant's Kind selects how Wire.Body is decoded.
type Message interface {
	Kind() Kind
}

// JoinDHT announces that Node wishes to join the ring via the recipient.
type JoinDHT struct {
	Node dht.Did `cbor:"1,keyasint"`
}

func (JoinDHT) Kind() Kind { return KindJoinDHT }

// LeaveDHT announces that Node is departing the ring.
type LeaveDHT struct {
	Node dht.Did `cbor:"1,keyasint"`
}

func (LeaveDHT) Kind() Kind { return KindLeaveDHT }

// ConnectNodeSend requests that a data-channel handshake be established
// with Target, carrying the initiator's encoded TricklePayload. Certificate
// is the initiator's JSON-encoded SessionCertificate
// (session.MarshalCertificate), piggybacked on the
// handshake so both sides can derive a shared secret for encrypted
// CustomMessage traffic without a separate exchange round trip.
type ConnectNodeSend struct {
	Target      dht.Did `cbor:"1,keyasint"`
	Handshake   string  `cbor:"2,keyasint"`
	Certificate []byte  `cbor:"3,keyasint"`
}

func (ConnectNodeSend) Kind() Kind { return KindConnectNodeSend }

// ConnectNodeReport carries the responder's encoded TricklePayload answer
// plus its own JSON-encoded SessionCertificate (session.MarshalCertificate).
type ConnectNodeReport struct {
	AnswerHandshake string `cbor:"1,keyasint"`
	Certificate     []byte `cbor:"2,keyasint"`
}

func (ConnectNodeReport) Kind() Kind { return KindConnectNodeReport }

// AlreadyConnected is returned in place of ConnectNodeReport when a
// transport to the sender already exists.
type AlreadyConnected struct{}

func (AlreadyConnected) Kind() Kind { return KindAlreadyConnected }

// FindSuccessorSend asks for the node responsible for ID. Strict excludes
// the asking node itself from being a valid answer (used by fix_fingers,
// which must not cache a finger pointing at self).
type FindSuccessorSend struct {
	ID     dht.Did `cbor:"1,keyasint"`
	Strict bool    `cbor:"2,keyasint"`
}

func (FindSuccessorSend) Kind() Kind { return KindFindSuccessorSend }

// FindSuccessorReport carries the resolved successor for the original ID.
type FindSuccessorReport struct {
	ID dht.Did `cbor:"1,keyasint"`
}

func (FindSuccessorReport) Kind() Kind { return KindFindSuccessorReport }

// NotifyPredecessorSend informs the recipient that Predecessor believes
// itself to precede it on the ring.
type NotifyPredecessorSend struct {
	Predecessor dht.Did `cbor:"1,keyasint"`
}

func (NotifyPredecessorSend) Kind() Kind { return KindNotifyPredecessorSend }

// NotifyPredecessorReport carries the stabilizing node's current
// predecessor back to the node that sent NotifyPredecessorSend.
type NotifyPredecessorReport struct {
	Predecessor dht.Did `cbor:"1,keyasint"`
}

func (NotifyPredecessorReport) Kind() Kind { return KindNotifyPredecessorReport }

// CustomMessage carries application-level data, opaque to the protocol.
// Encrypted indicates Data is ciphertext from a SecureSession rather than
// plaintext.
type CustomMessage struct {
	Data      []byte `cbor:"1,keyasint"`
	Encrypted bool   `cbor:"2,keyasint"`
}

func (CustomMessage) Kind() Kind { return KindCustomMessage }

// MultiCall batches several already-signed inner payloads into one wire
// frame. Each retains its own OriginVerification (typically produced by
// NewStuck, preserving the original sender's signature) rather than
// sharing the batch envelope's signature, since a batch may carry messages
// relayed on behalf of different origins.
type MultiCall struct {
	Payloads []Payload `cbor:"1,keyasint"`
}

func (MultiCall) Kind() Kind { return KindMultiCall }

// Wire is the tagged-union encoding of a Message: Kind selects the decoder
// for the CBOR-encoded Body.
type Wire struct {
	Tag  Kind            `cbor:"1,keyasint"`
	Body cbor.RawMessage `cbor:"2,keyasint"`
}

// EncodeMessage tags and CBOR-encodes m for inclusion in a Payload or a
// MultiCall batch.
func EncodeMessage(m Message) (Wire, error) {
	body, err := cbor.Marshal(m)
	if err != nil {
		return Wire{}, fmt.Errorf("payload: encode message body: %w", err)
	}
	return Wire{Tag: m.Kind(), Body: body}, nil
}

// ErrUnsupportedMessageType is returned by DecodeMessage for an unrecognized
// Kind.
type ErrUnsupportedMessageType struct{ Tag Kind }

func (e ErrUnsupportedMessageType) Error() string {
	return fmt.Sprintf("payload: unsupported message type %s", e.Tag)
}

// DecodeMessage reverses EncodeMessage, dispatching on w.Tag.
func DecodeMessage(w Wire) (Message, error) {
	var (
		m   Message
		err error
	)
	switch w.Tag {
	case KindJoinDHT:
		var v JoinDHT
		err = cbor.Unmarshal(w.Body, &v)
		m = v
	case KindLeaveDHT:
		var v LeaveDHT
		err = cbor.Unmarshal(w.Body, &v)
		m = v
	case KindConnectNodeSend:
		var v ConnectNodeSend
		err = cbor.Unmarshal(w.Body, &v)
		m = v
	case KindConnectNodeReport:
		var v ConnectNodeReport
		err = cbor.Unmarshal(w.Body, &v)
		m = v
	case KindAlreadyConnected:
		m = AlreadyConnected{}
	case KindFindSuccessorSend:
		var v FindSuccessorSend
		err = cbor.Unmarshal(w.Body, &v)
		m = v
	case KindFindSuccessorReport:
		var v FindSuccessorReport
		err = cbor.Unmarshal(w.Body, &v)
		m = v
	case KindNotifyPredecessorSend:
		var v NotifyPredecessorSend
		err = cbor.Unmarshal(w.Body, &v)
		m = v
	case KindNotifyPredecessorReport:
		var v NotifyPredecessorReport
		err = cbor.Unmarshal(w.Body, &v)
		m = v
	case KindCustomMessage:
		var v CustomMessage
		err = cbor.Unmarshal(w.Body, &v)
		m = v
	case KindMultiCall:
		var v MultiCall
		err = cbor.Unmarshal(w.Body, &v)
		m = v
	default:
		return nil, ErrUnsupportedMessageType{Tag: w.Tag}
	}
	if err != nil {
		return nil, fmt.Errorf("payload: decode message body for %s: %w", w.Tag, err)
	}
	return m, nil
}
