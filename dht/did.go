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

// Package dht implements the Chord-style ring: 160-bit node identifiers,
// modular distance arithmetic, the finger table, and the PeerRing state
// machine (find_successor, join, notify, stabilize, fix_fingers).
package dht

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"

	"github.com/mr-tron/base58"
)

// BitLength is the width of the identifier ring: 160 bits, the low 20
// bytes of a secp256k1 public key's SHA-256 digest.
const BitLength = 160

// Did is a 160-bit node identifier, the low 20 bytes of SHA-256(pubkey).
type Did [20]byte

var ringModulus = new(big.Int).Lsh(big.NewInt(1), BitLength)

// DidFromPublicKey derives a Did from a compressed secp256k1 public key.
func DidFromPublicKey(pubkey []byte) Did {
	sum := sha256.Sum256(pubkey)
	var d Did
	copy(d[:], sum[12:32])
	return d
}

// DidFromBytes validates and wraps a 20-byte identifier.
func DidFromBytes(b []byte) (Did, error) {
	var d Did
	if len(b) != len(d) {
		return d, errors.New("dht: did must be 20 bytes")
	}
	copy(d[:], b)
	return d, nil
}

// Bytes returns the identifier as a byte slice.
func (d Did) Bytes() []byte { return d[:] }

// Int returns the identifier as an unsigned big.Int in [0, 2^160).
func (d Did) Int() *big.Int { return new(big.Int).SetBytes(d[:]) }

// String renders the identifier as base58, matching wire-friendly peer IDs.
func (d Did) String() string { return base58.Encode(d[:]) }

// Hex renders the identifier as lowercase hex, useful in logs.
func (d Did) Hex() string { return hex.EncodeToString(d[:]) }

// IsZero reports whether d is the zero identifier (unset/sentinel).
func (d Did) IsZero() bool {
	for _, b := range d {
		if b != 0 {
			return false
		}
	}
	return true
}

// ParseDid decodes a base58-encoded identifier produced by String.
func ParseDid(s string) (Did, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Did{}, err
	}
	return DidFromBytes(b)
}

// Distance returns (b - a) mod 2^160, the clockwise distance from a to b.
func Distance(a, b Did) *big.Int {
	d := new(big.Int).Sub(b.Int(), a.Int())
	return d.Mod(d, ringModulus)
}

// FingerStart returns (n + 2^i) mod 2^160, the start of the i-th finger
// interval for a node with identifier n (0 <= i < BitLength).
func FingerStart(n Did, i int) Did {
	offset := new(big.Int).Lsh(big.NewInt(1), uint(i))
	sum := new(big.Int).Add(n.Int(), offset)
	sum.Mod(sum, ringModulus)
	return bigIntToDid(sum)
}

// InOpenInterval reports whether x lies strictly between a and b going
// clockwise around the ring, i.e. x in (a, b) with wraparound. a == b is
// treated as the full ring minus the endpoint.
func InOpenInterval(x, a, b Did) bool {
	if a == b {
		return x != a
	}
	dx := Distance(a, x)
	db := Distance(a, b)
	return dx.Sign() > 0 && dx.Cmp(db) < 0
}

// InHalfOpenInterval reports whether x lies in (a, b] clockwise, used when
// the successor endpoint itself is a valid match.
func InHalfOpenInterval(x, a, b Did) bool {
	return x == b || InOpenInterval(x, a, b)
}

// InClosedInterval reports whether x lies in [a, b] clockwise.
func InClosedInterval(x, a, b Did) bool {
	return x == a || InHalfOpenInterval(x, a, b)
}

func bigIntToDid(v *big.Int) Did {
	var d Did
	b := v.Bytes()
	copy(d[len(d)-len(b):], b)
	return d
}
