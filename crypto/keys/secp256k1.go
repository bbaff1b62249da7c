package keys

import (
	"crypto"
	"crypto/sha256"
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	dcrecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	sagecrypto "github.com/ringmesh/rings/crypto"
)

// secp256k1KeyPair implements the KeyPair interface for Secp256k1 keys.
// Signatures are 65-byte recoverable ECDSA signatures (r || s || v) so a
// verifier that only holds the claimed signer's identifier can recover the
// compressed public key from the signature itself, as required by the
// ring's origin-verification scheme.
type secp256k1KeyPair struct {
	privateKey *secp256k1.PrivateKey
	publicKey  *secp256k1.PublicKey
	id         string
}

// GenerateSecp256k1KeyPair generates a new Secp256k1 key pair
func GenerateSecp256k1KeyPair() (sagecrypto.KeyPair, error) {
	privateKey, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	publicKey := privateKey.PubKey()

	// Generate ID from public key hash
	pubKeyBytes := publicKey.SerializeCompressed()
	hash := sha256.Sum256(pubKeyBytes)
	id := hex.EncodeToString(hash[:8])

	return &secp256k1KeyPair{
		privateKey: privateKey,
		publicKey:  publicKey,
		id:         id,
	}, nil
}

// Secp256k1KeyPairFromPrivate wraps a 32-byte private scalar, used when
// restoring an ephemeral session key persisted elsewhere.
func Secp256k1KeyPairFromPrivate(priv []byte) (sagecrypto.KeyPair, error) {
	privateKey := secp256k1.PrivKeyFromBytes(priv)
	publicKey := privateKey.PubKey()
	pubKeyBytes := publicKey.SerializeCompressed()
	hash := sha256.Sum256(pubKeyBytes)
	return &secp256k1KeyPair{
		privateKey: privateKey,
		publicKey:  publicKey,
		id:         hex.EncodeToString(hash[:8]),
	}, nil
}

// PublicKey returns the public key
func (kp *secp256k1KeyPair) PublicKey() crypto.PublicKey {
	return kp.publicKey.ToECDSA()
}

// PrivateKey returns the private key
func (kp *secp256k1KeyPair) PrivateKey() crypto.PrivateKey {
	return kp.privateKey.ToECDSA()
}

// Type returns the key type
func (kp *secp256k1KeyPair) Type() sagecrypto.KeyType {
	return sagecrypto.KeyTypeSecp256k1
}

// CompressedPublicKey returns the 33-byte SEC1-compressed public key.
func (kp *secp256k1KeyPair) CompressedPublicKey() []byte {
	return kp.publicKey.SerializeCompressed()
}

// PrivateKeyBytes returns the raw 32-byte private scalar.
func (kp *secp256k1KeyPair) PrivateKeyBytes() []byte {
	return kp.privateKey.Serialize()
}

// Sign signs sha256(message) and returns a 65-byte recoverable signature
// (r || s || recovery-id).
func (kp *secp256k1KeyPair) Sign(message []byte) ([]byte, error) {
	hash := sha256.Sum256(message)
	sig := dcrecdsa.SignCompact(kp.privateKey, hash[:], false)
	// dcrd places the recovery byte first (compact format); move it last
	// to match the wire r || s || v convention used throughout the ring.
	return rotateRecoveryByte(sig), nil
}

// Verify checks that signature was produced by kp's private key over
// message, by recovering the public key from the signature and comparing.
func (kp *secp256k1KeyPair) Verify(message, signature []byte) error {
	pub, err := RecoverCompressedPubKey(message, signature)
	if err != nil {
		return sagecrypto.ErrInvalidSignature
	}
	want := kp.publicKey.SerializeCompressed()
	if len(pub) != len(want) {
		return sagecrypto.ErrInvalidSignature
	}
	for i := range pub {
		if pub[i] != want[i] {
			return sagecrypto.ErrInvalidSignature
		}
	}
	return nil
}

// ID returns a unique identifier for this key pair
func (kp *secp256k1KeyPair) ID() string {
	return kp.id
}

// RecoverCompressedPubKey recovers the 33-byte compressed public key of the
// signer of sha256(message) from a 65-byte (r || s || v) signature.
func RecoverCompressedPubKey(message, signature []byte) ([]byte, error) {
	if len(signature) != 65 {
		return nil, sagecrypto.ErrInvalidSignature
	}
	hash := sha256.Sum256(message)
	compact := unrotateRecoveryByte(signature)
	pub, _, err := dcrecdsa.RecoverCompact(compact, hash[:])
	if err != nil {
		return nil, sagecrypto.ErrInvalidSignature
	}
	return pub.SerializeCompressed(), nil
}

// rotateRecoveryByte converts dcrd's compact format (v || r || s) to the
// wire convention (r || s || v).
func rotateRecoveryByte(compact []byte) []byte {
	out := make([]byte, 65)
	copy(out[:64], compact[1:])
	out[64] = compact[0]
	return out
}

// unrotateRecoveryByte is the inverse of rotateRecoveryByte.
func unrotateRecoveryByte(wire []byte) []byte {
	out := make([]byte, 65)
	out[0] = wire[64]
	copy(out[1:], wire[:64])
	return out
}
