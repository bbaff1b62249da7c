package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityCertificateVerifies(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)

	cert := id.Certificate()
	require.NoError(t, cert.Verify())
	assert.Equal(t, id.Did(), cert.OriginDid())
}

func TestVerifyMessageRoundTrip(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)

	msg := []byte("find_successor query payload")
	sig, err := id.Sign(msg)
	require.NoError(t, err)

	origin, err := VerifyMessage(msg, sig, id.Certificate())
	require.NoError(t, err)
	assert.Equal(t, id.Did(), origin)
}

func TestVerifyMessageRejectsTamperedPayload(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)

	msg := []byte("original")
	sig, err := id.Sign(msg)
	require.NoError(t, err)

	_, err = VerifyMessage([]byte("tampered"), sig, id.Certificate())
	assert.Error(t, err)
}

func TestVerifyMessageRejectsForgedCertificate(t *testing.T) {
	alice, err := NewIdentity()
	require.NoError(t, err)
	mallory, err := NewIdentity()
	require.NoError(t, err)

	msg := []byte("hello")
	sig, err := mallory.Sign(msg)
	require.NoError(t, err)

	// Splice mallory's signature into alice's certificate: the session key
	// recovered from the signature won't match alice's certified key.
	_, err = VerifyMessage(msg, sig, alice.Certificate())
	assert.Error(t, err)
}

func TestRotateInvalidatesOldSessionKey(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)

	msg := []byte("pre-rotate")
	sig, err := id.Sign(msg)
	require.NoError(t, err)
	oldCert := id.Certificate()

	require.NoError(t, id.Rotate())
	assert.NotEqual(t, oldCert.SessionPubKey, id.Certificate().SessionPubKey)

	// Old signature still verifies against the preserved old certificate...
	origin, err := VerifyMessage(msg, sig, oldCert)
	require.NoError(t, err)
	assert.Equal(t, id.Did(), origin)

	// ...but not against the new one, since the session key changed.
	_, err = VerifyMessage(msg, sig, id.Certificate())
	assert.Error(t, err)
}

func TestSharedSecretIsSymmetric(t *testing.T) {
	alice, err := NewIdentity()
	require.NoError(t, err)
	bob, err := NewIdentity()
	require.NoError(t, err)

	s1, err := alice.SharedSecret(bob.Certificate())
	require.NoError(t, err)
	s2, err := bob.SharedSecret(alice.Certificate())
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}
