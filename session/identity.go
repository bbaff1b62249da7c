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

package session

import (
	"encoding/json"
	"fmt"

	sagecrypto "github.com/ringmesh/rings/crypto"
	"github.com/ringmesh/rings/crypto/keys"
	"github.com/ringmesh/rings/dht"
)

// SessionCertificate delegates signing authority from a node's long-lived
// identity key to a short-lived ephemeral session key pair, so every
// message a node sends can be signed with a key that is rotated often
// without forcing peers to re-verify against the identity key directly.
// The identity key additionally co-signs the ephemeral X25519 key used for
// per-peer ECDH, binding both ephemeral keys to one certificate.
type SessionCertificate struct {
	IdentityPubKey []byte `cbor:"1,keyasint"` // 33-byte compressed secp256k1
	SessionPubKey  []byte `cbor:"2,keyasint"` // 33-byte compressed secp256k1, recoverable-signing key
	X25519PubKey   []byte `cbor:"3,keyasint"` // 32-byte ECDH key
	Signature      []byte `cbor:"4,keyasint"` // 65-byte recoverable signature by the identity key
}

// OriginDid returns the identifier derived from the certificate's identity
// public key, i.e. the claimed origin of anything signed under it.
func (c *SessionCertificate) OriginDid() dht.Did {
	return dht.DidFromPublicKey(c.IdentityPubKey)
}

func (c *SessionCertificate) signedMaterial() []byte {
	return append(append([]byte{}, c.SessionPubKey...), c.X25519PubKey...)
}

// Verify checks the certificate's own signature: that IdentityPubKey really
// signed SessionPubKey||X25519PubKey. It does not check anything about the
// certificate's relationship to a particular message; callers use
// VerifyMessage for that.
func (c *SessionCertificate) Verify() error {
	recovered, err := keys.RecoverCompressedPubKey(c.signedMaterial(), c.Signature)
	if err != nil {
		return fmt.Errorf("session: certificate signature invalid: %w", err)
	}
	if !bytesEqual(recovered, c.IdentityPubKey) {
		return fmt.Errorf("session: certificate signature does not match identity key")
	}
	return nil
}

// Identity owns a node's long-lived secp256k1 identity key plus the
// current ephemeral session key pair (secp256k1 signing + X25519 ECDH)
// delegated from it. A fresh ephemeral pair is minted at construction and
// whenever Rotate is called; rotating invalidates the previous
// certificate, so peers must re-fetch it before their next send.
type Identity struct {
	identity sagecrypto.KeyPair // secp256k1
	session  sagecrypto.KeyPair // secp256k1, used for message signing
	ecdh     *keys.X25519KeyPair

	cert *SessionCertificate
}

// NewIdentity generates a fresh long-lived identity key and an initial
// ephemeral session certificate.
func NewIdentity() (*Identity, error) {
	idKey, err := keys.GenerateSecp256k1KeyPair()
	if err != nil {
		return nil, fmt.Errorf("session: generate identity key: %w", err)
	}
	return NewIdentityFromKeyPair(idKey)
}

// NewIdentityFromKeyPair wraps an existing identity key pair (e.g. loaded
// from disk) and mints a fresh ephemeral session certificate for it.
func NewIdentityFromKeyPair(idKey sagecrypto.KeyPair) (*Identity, error) {
	idSecp, ok := idKey.(interface {
		CompressedPublicKey() []byte
	})
	if !ok {
		return nil, fmt.Errorf("session: identity key must be secp256k1")
	}
	n := &Identity{identity: idKey}
	if err := n.rotate(idSecp.CompressedPublicKey()); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Identity) rotate(idCompressed []byte) error {
	sessionKey, err := keys.GenerateSecp256k1KeyPair()
	if err != nil {
		return fmt.Errorf("session: generate ephemeral signing key: %w", err)
	}
	ecdhKP, err := keys.GenerateX25519KeyPair()
	if err != nil {
		return fmt.Errorf("session: generate ephemeral ecdh key: %w", err)
	}
	ecdh, ok := ecdhKP.(*keys.X25519KeyPair)
	if !ok {
		return fmt.Errorf("session: unexpected x25519 key pair implementation")
	}

	sessionCompressed := sessionKey.(interface{ CompressedPublicKey() []byte }).CompressedPublicKey()
	x25519Pub := ecdh.PublicBytesKey()

	cert := &SessionCertificate{
		IdentityPubKey: idCompressed,
		SessionPubKey:  sessionCompressed,
		X25519PubKey:   x25519Pub,
	}
	sig, err := n.identity.Sign(cert.signedMaterial())
	if err != nil {
		return fmt.Errorf("session: sign certificate: %w", err)
	}
	cert.Signature = sig

	n.session = sessionKey
	n.ecdh = ecdh
	n.cert = cert
	return nil
}

// Rotate mints a new ephemeral session key pair and certificate, leaving
// the identity key untouched.
func (n *Identity) Rotate() error {
	return n.rotate(n.cert.IdentityPubKey)
}

// Did returns this node's identifier, derived from the identity public key.
func (n *Identity) Did() dht.Did {
	return n.cert.OriginDid()
}

// Certificate returns the current session certificate, to be attached to
// outgoing payloads (or exchanged once per peer and cached).
func (n *Identity) Certificate() *SessionCertificate {
	return n.cert
}

// Sign signs data with the current ephemeral session key, returning a
// 65-byte recoverable signature.
func (n *Identity) Sign(data []byte) ([]byte, error) {
	return n.session.Sign(data)
}

// SharedSecret performs X25519 ECDH against a peer's certificate, for
// deriving a SecureSession AEAD key.
func (n *Identity) SharedSecret(peerCert *SessionCertificate) ([]byte, error) {
	return n.ecdh.DeriveSharedSecretRaw(peerCert.X25519PubKey)
}

// VerifyMessage verifies that data was signed by the session key bound in
// cert, and that cert itself is validly delegated from its claimed
// identity key. Returns the verified origin Did on success.
func VerifyMessage(data, signature []byte, cert *SessionCertificate) (dht.Did, error) {
	if err := cert.Verify(); err != nil {
		return dht.Did{}, err
	}
	recovered, err := keys.RecoverCompressedPubKey(data, signature)
	if err != nil {
		return dht.Did{}, fmt.Errorf("session: message signature invalid: %w", err)
	}
	if !bytesEqual(recovered, cert.SessionPubKey) {
		return dht.Did{}, fmt.Errorf("session: message was not signed by the certificate's session key")
	}
	return cert.OriginDid(), nil
}

// MarshalCertificate serializes a certificate for the wire (used by the
// handler package when attaching certificates to ConnectNodeSend and
// ConnectNodeReport messages).
func MarshalCertificate(c *SessionCertificate) ([]byte, error) {
	return json.Marshal(c)
}

// UnmarshalCertificate parses a certificate produced by MarshalCertificate.
func UnmarshalCertificate(data []byte) (*SessionCertificate, error) {
	var c SessionCertificate
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
