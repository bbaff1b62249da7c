package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"

	sagecrypto "github.com/ringmesh/rings/crypto"
)

// rsaKeyPair implements the KeyPair interface for RSA keys (RSASSA-PKCS1-v1_5
// with SHA-256, matching the rsa-pss-sha256 RFC 9421 registration name kept
// for naming continuity though the implementation uses PKCS1v15).
type rsaKeyPair struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	id         string
}

// rsaKeyBits is kept modest: this key type exists for ambient algorithm-
// agility coverage, not as a load-bearing part of the ring's handshake.
const rsaKeyBits = 2048

// GenerateRSAKeyPair generates a new RSA key pair.
func GenerateRSAKeyPair() (sagecrypto.KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(priv.PublicKey.N.Bytes())
	return &rsaKeyPair{
		privateKey: priv,
		publicKey:  &priv.PublicKey,
		id:         hex.EncodeToString(hash[:8]),
	}, nil
}

func (kp *rsaKeyPair) PublicKey() crypto.PublicKey   { return kp.publicKey }
func (kp *rsaKeyPair) PrivateKey() crypto.PrivateKey { return kp.privateKey }
func (kp *rsaKeyPair) Type() sagecrypto.KeyType      { return sagecrypto.KeyTypeRSA }
func (kp *rsaKeyPair) ID() string                    { return kp.id }

func (kp *rsaKeyPair) Sign(message []byte) ([]byte, error) {
	hash := sha256.Sum256(message)
	return rsa.SignPKCS1v15(rand.Reader, kp.privateKey, crypto.SHA256, hash[:])
}

func (kp *rsaKeyPair) Verify(message, signature []byte) error {
	hash := sha256.Sum256(message)
	if err := rsa.VerifyPKCS1v15(kp.publicKey, crypto.SHA256, hash[:], signature); err != nil {
		return sagecrypto.ErrInvalidSignature
	}
	return nil
}
