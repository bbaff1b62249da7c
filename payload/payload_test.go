package payload

import (
	"testing"
	"time"

	"github.com/ringmesh/rings/dht"
	"github.com/ringmesh/rings/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIdentity(t *testing.T) (*session.Identity, dht.Did) {
	t.Helper()
	id, err := session.NewIdentity()
	require.NoError(t, err)
	return id, id.Did()
}

func TestPayloadNewVerifyRoundTrip(t *testing.T) {
	id, self := newTestIdentity(t)
	relay := NewRelayHeader(self, didAt(2))

	p, err := New(id, self, JoinDHT{Node: self}, relay, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL.Milliseconds(), p.TTLMillis)

	origin, err := p.Verify()
	require.NoError(t, err)
	assert.Equal(t, self, origin)
}

func TestPayloadEncodeDecodeRoundTrip(t *testing.T) {
	id, self := newTestIdentity(t)
	relay := NewRelayHeader(self, didAt(2))
	p, err := New(id, self, FindSuccessorSend{ID: didAt(5)}, relay, 30*time.Second)
	require.NoError(t, err)

	frame, err := Encode(p)
	require.NoError(t, err)

	decoded, err := Decode(frame)
	require.NoError(t, err)

	_, err = decoded.Verify()
	require.NoError(t, err)

	msg, err := decoded.Message()
	require.NoError(t, err)
	assert.Equal(t, FindSuccessorSend{ID: didAt(5)}, msg)
}

func TestPayloadEncodeToStringRoundTrip(t *testing.T) {
	id, self := newTestIdentity(t)
	relay := NewRelayHeader(self, didAt(2))
	p, err := New(id, self, AlreadyConnected{}, relay, 0)
	require.NoError(t, err)

	s, err := EncodeToString(p)
	require.NoError(t, err)

	decoded, err := DecodeFromString(s)
	require.NoError(t, err)
	_, err = decoded.Verify()
	require.NoError(t, err)
}

func TestPayloadVerifyRejectsExpired(t *testing.T) {
	id, self := newTestIdentity(t)
	relay := NewRelayHeader(self, didAt(2))
	p, err := New(id, self, AlreadyConnected{}, relay, 1*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = p.Verify()
	assert.ErrorIs(t, err, ErrPayloadExpired)
}

func TestPayloadVerifyRejectsTamperedData(t *testing.T) {
	id, self := newTestIdentity(t)
	relay := NewRelayHeader(self, didAt(2))
	p, err := New(id, self, AlreadyConnected{}, relay, 0)
	require.NoError(t, err)

	tampered, err := EncodeMessage(JoinDHT{Node: didAt(99)})
	require.NoError(t, err)
	p.Data = tampered

	_, err = p.Verify()
	assert.ErrorIs(t, err, ErrVerifySignatureFailed)
}

func TestPayloadVerifyRejectsPathMismatch(t *testing.T) {
	id, self := newTestIdentity(t)
	relay := NewRelayHeader(self, didAt(2))
	relay.PushRelay(didAt(7))

	p, err := New(id, didAt(8), AlreadyConnected{}, relay, 0)
	require.NoError(t, err)

	_, err = p.Verify()
	assert.ErrorIs(t, err, ErrInvalidRelayPath)
}

func TestNewStuckPreservesOriginVerification(t *testing.T) {
	id, self := newTestIdentity(t)
	relay := NewRelayHeader(self, didAt(2))
	original, err := New(id, self, JoinDHT{Node: self}, relay, 0)
	require.NoError(t, err)

	batchRelay := NewRelayHeader(didAt(3), didAt(4))
	stuck := NewStuck(didAt(3), batchRelay, original)

	origin, err := stuck.Verify()
	require.NoError(t, err)
	assert.Equal(t, self, origin)
	assert.Equal(t, original.Origin.Signature, stuck.Origin.Signature)
}
