package cryptoinit

import (
	"crypto/ed25519"
	"fmt"

	sagecrypto "github.com/ringmesh/rings/crypto"
	"github.com/ringmesh/rings/crypto/keys"
)

// privateKeyByter and compressedPublicKeyer are small capability
// interfaces implemented by the concrete crypto/keys key pair types; using
// duck typing here avoids exporting unexported struct internals across the
// package boundary.
type privateKeyByter interface {
	PrivateKeyBytes() []byte
}

type compressedPublicKeyer interface {
	CompressedPublicKey() []byte
}

func rawPrivateBytes(kp sagecrypto.KeyPair) ([]byte, error) {
	switch kp.Type() {
	case sagecrypto.KeyTypeEd25519:
		priv, ok := kp.PrivateKey().(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("cryptoinit: unexpected ed25519 private key type")
		}
		return []byte(priv), nil
	case sagecrypto.KeyTypeSecp256k1, sagecrypto.KeyTypeX25519:
		pb, ok := kp.(privateKeyByter)
		if !ok {
			return nil, fmt.Errorf("cryptoinit: key pair does not expose raw private bytes")
		}
		return pb.PrivateKeyBytes(), nil
	case sagecrypto.KeyTypeRSA:
		return nil, fmt.Errorf("cryptoinit: RSA raw-byte export not supported, use x509 PKCS1 directly")
	default:
		return nil, sagecrypto.ErrInvalidKeyType
	}
}

func rawPublicBytes(kp sagecrypto.KeyPair) ([]byte, error) {
	switch kp.Type() {
	case sagecrypto.KeyTypeEd25519:
		pub, ok := kp.PublicKey().(ed25519.PublicKey)
		if !ok {
			return nil, fmt.Errorf("cryptoinit: unexpected ed25519 public key type")
		}
		return []byte(pub), nil
	case sagecrypto.KeyTypeSecp256k1:
		cp, ok := kp.(compressedPublicKeyer)
		if !ok {
			return nil, fmt.Errorf("cryptoinit: key pair does not expose compressed public key")
		}
		return cp.CompressedPublicKey(), nil
	case sagecrypto.KeyTypeX25519:
		xkp, ok := kp.(*keys.X25519KeyPair)
		if !ok {
			return nil, fmt.Errorf("cryptoinit: unexpected x25519 key pair type")
		}
		return xkp.PublicBytesKey(), nil
	default:
		return nil, sagecrypto.ErrInvalidKeyType
	}
}

func keyPairFromRawPrivate(kt sagecrypto.KeyType, raw []byte) (sagecrypto.KeyPair, error) {
	switch kt {
	case sagecrypto.KeyTypeEd25519:
		if len(raw) != ed25519.SeedSize && len(raw) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("cryptoinit: bad ed25519 private key length %d", len(raw))
		}
		var priv ed25519.PrivateKey
		if len(raw) == ed25519.SeedSize {
			priv = ed25519.NewKeyFromSeed(raw)
		} else {
			priv = ed25519.PrivateKey(raw)
		}
		return keys.NewEd25519KeyPair(priv, "")
	case sagecrypto.KeyTypeSecp256k1:
		return keys.Secp256k1KeyPairFromPrivate(raw)
	default:
		return nil, fmt.Errorf("cryptoinit: import not supported for key type %s", kt)
	}
}
