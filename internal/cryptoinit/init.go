// Package cryptoinit wires the crypto/keys constructors into the crypto
// package's indirection layer (see crypto/wrappers.go). It must be
// blank-imported exactly once, from each cmd/ entrypoint, before any code
// calls crypto.GenerateKeyPair or crypto.NewManager().
package cryptoinit

import (
	stdcrypto "crypto"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"sync"

	sagecrypto "github.com/ringmesh/rings/crypto"
	"github.com/ringmesh/rings/crypto/keys"
)

func init() {
	sagecrypto.SetKeyGenerators(keys.GenerateEd25519KeyPair, keys.GenerateSecp256k1KeyPair)
	sagecrypto.SetKeyExchangeGenerators(keys.GenerateX25519KeyPair, keys.GenerateRSAKeyPair)
	sagecrypto.SetStorageConstructors(newMemoryStorage)
	sagecrypto.SetFormatConstructors(newJWKExporter, newPEMExporter, newJWKImporter, newPEMImporter)
}

// memoryKeyStorage is a process-local, non-persistent KeyStorage used as the
// default backend for sagecrypto.Manager.
type memoryKeyStorage struct {
	mu   sync.RWMutex
	keys map[string]sagecrypto.KeyPair
}

func newMemoryStorage() sagecrypto.KeyStorage {
	return &memoryKeyStorage{keys: make(map[string]sagecrypto.KeyPair)}
}

func (s *memoryKeyStorage) Store(id string, kp sagecrypto.KeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[id]; exists {
		return sagecrypto.ErrKeyExists
	}
	s.keys[id] = kp
	return nil
}

func (s *memoryKeyStorage) Load(id string) (sagecrypto.KeyPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kp, ok := s.keys[id]
	if !ok {
		return nil, sagecrypto.ErrKeyNotFound
	}
	return kp, nil
}

func (s *memoryKeyStorage) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[id]; !exists {
		return sagecrypto.ErrKeyNotFound
	}
	delete(s.keys, id)
	return nil
}

func (s *memoryKeyStorage) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.keys))
	for id := range s.keys {
		out = append(out, id)
	}
	return out, nil
}

func (s *memoryKeyStorage) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[id]
	return ok
}

// jwkDoc is a minimal JSON Web Key rendering: enough to round-trip a key
// pair's type, id, and raw private/public material within this module.
type jwkDoc struct {
	KeyType    sagecrypto.KeyType `json:"kty"`
	ID         string             `json:"kid"`
	PrivateB64 string             `json:"d,omitempty"`
	PublicB64  string             `json:"x"`
}

type jwkCodec struct{}

func newJWKExporter() sagecrypto.KeyExporter { return jwkCodec{} }
func newJWKImporter() sagecrypto.KeyImporter { return jwkCodec{} }

func (jwkCodec) Export(kp sagecrypto.KeyPair, _ sagecrypto.KeyFormat) ([]byte, error) {
	pub, err := rawPublicBytes(kp)
	if err != nil {
		return nil, err
	}
	priv, err := rawPrivateBytes(kp)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jwkDoc{
		KeyType:    kp.Type(),
		ID:         kp.ID(),
		PrivateB64: base64.RawURLEncoding.EncodeToString(priv),
		PublicB64:  base64.RawURLEncoding.EncodeToString(pub),
	})
}

func (jwkCodec) ExportPublic(kp sagecrypto.KeyPair, _ sagecrypto.KeyFormat) ([]byte, error) {
	pub, err := rawPublicBytes(kp)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jwkDoc{
		KeyType:   kp.Type(),
		ID:        kp.ID(),
		PublicB64: base64.RawURLEncoding.EncodeToString(pub),
	})
}

func (jwkCodec) Import(data []byte, _ sagecrypto.KeyFormat) (sagecrypto.KeyPair, error) {
	var doc jwkDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("jwk: %w", err)
	}
	priv, err := base64.RawURLEncoding.DecodeString(doc.PrivateB64)
	if err != nil {
		return nil, fmt.Errorf("jwk: decode private material: %w", err)
	}
	return keyPairFromRawPrivate(doc.KeyType, priv)
}

func (jwkCodec) ImportPublic(data []byte, _ sagecrypto.KeyFormat) (stdcrypto.PublicKey, error) {
	var doc jwkDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("jwk: %w", err)
	}
	return base64.RawURLEncoding.DecodeString(doc.PublicB64)
}

type pemCodec struct{}

func newPEMExporter() sagecrypto.KeyExporter { return pemCodec{} }
func newPEMImporter() sagecrypto.KeyImporter { return pemCodec{} }

func (pemCodec) Export(kp sagecrypto.KeyPair, _ sagecrypto.KeyFormat) ([]byte, error) {
	priv, err := rawPrivateBytes(kp)
	if err != nil {
		return nil, err
	}
	block := &pem.Block{
		Type: "RINGS " + string(kp.Type()) + " PRIVATE KEY",
		Headers: map[string]string{
			"Kid": kp.ID(),
		},
		Bytes: priv,
	}
	return pem.EncodeToMemory(block), nil
}

func (pemCodec) ExportPublic(kp sagecrypto.KeyPair, _ sagecrypto.KeyFormat) ([]byte, error) {
	pub, err := rawPublicBytes(kp)
	if err != nil {
		return nil, err
	}
	block := &pem.Block{
		Type:  "RINGS " + string(kp.Type()) + " PUBLIC KEY",
		Bytes: pub,
	}
	return pem.EncodeToMemory(block), nil
}

func (pemCodec) Import(data []byte, _ sagecrypto.KeyFormat) (sagecrypto.KeyPair, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("pem: no block found")
	}
	kt, err := keyTypeFromPEMHeader(block.Type)
	if err != nil {
		return nil, err
	}
	return keyPairFromRawPrivate(kt, block.Bytes)
}

func (pemCodec) ImportPublic(data []byte, _ sagecrypto.KeyFormat) (stdcrypto.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("pem: no block found")
	}
	return block.Bytes, nil
}

func keyTypeFromPEMHeader(pemType string) (sagecrypto.KeyType, error) {
	for _, kt := range []sagecrypto.KeyType{
		sagecrypto.KeyTypeEd25519, sagecrypto.KeyTypeSecp256k1,
		sagecrypto.KeyTypeX25519, sagecrypto.KeyTypeRSA,
	} {
		if pemType == "RINGS "+string(kt)+" PRIVATE KEY" {
			return kt, nil
		}
	}
	return "", fmt.Errorf("pem: unrecognized key type in header %q", pemType)
}
