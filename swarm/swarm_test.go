package swarm

import (
	"context"
	"testing"
	"time"

	"github.com/ringmesh/rings/dht"
	"github.com/ringmesh/rings/payload"
	"github.com/ringmesh/rings/session"
	"github.com/ringmesh/rings/transport"
	"github.com/stretchr/testify/require"
)

func connectSwarms(t *testing.T, a, b *Swarm) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	tA, err := a.NewPendingTransport(ctx, nil)
	require.NoError(t, err)
	tB, err := b.NewPendingTransport(ctx, nil)
	require.NoError(t, err)

	offer, err := tA.GetHandshakeInfo(ctx, transport.HandshakeOffer)
	require.NoError(t, err)
	require.NoError(t, tB.RegisterRemoteInfo(offer, a.SelfDid()))

	answer, err := tB.GetHandshakeInfo(ctx, transport.HandshakeAnswer)
	require.NoError(t, err)
	require.NoError(t, tA.RegisterRemoteInfo(answer, b.SelfDid()))

	require.NoError(t, tA.WaitForConnected(ctx))
	require.NoError(t, tB.WaitForConnected(ctx))

	require.Eventually(t, func() bool {
		_, ok := a.Transport(b.SelfDid())
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		_, ok := b.Transport(a.SelfDid())
		return ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSwarmSendPayloadAndPoll(t *testing.T) {
	idA, err := session.NewIdentity()
	require.NoError(t, err)
	idB, err := session.NewIdentity()
	require.NoError(t, err)

	a := New(idA, nil)
	b := New(idB, nil)
	connectSwarms(t, a, b)

	relay := payload.NewRelayHeader(a.SelfDid(), b.SelfDid())
	p, err := payload.New(idA, a.SelfDid(), payload.CustomMessage{Data: []byte("hello")}, relay, 0)
	require.NoError(t, err)

	require.NoError(t, a.SendPayload(b.SelfDid(), p))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := b.PollMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, a.SelfDid(), msg.From)

	decodedMsg, err := msg.Payload.Message()
	require.NoError(t, err)
	custom, ok := decodedMsg.(payload.CustomMessage)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), custom.Data)
}

func TestSendCustomMessageEncryptedRoundTrip(t *testing.T) {
	idA, err := session.NewIdentity()
	require.NoError(t, err)
	idB, err := session.NewIdentity()
	require.NoError(t, err)

	a := New(idA, nil)
	b := New(idB, nil)
	connectSwarms(t, a, b)

	// Both sides learn the other's certificate, as connect_node's handshake
	// would have delivered it.
	a.RegisterPeerCertificate(b.SelfDid(), idB.Certificate())
	b.RegisterPeerCertificate(a.SelfDid(), idA.Certificate())

	require.NoError(t, a.SendCustomMessage(b.SelfDid(), []byte("secret"), true))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := b.PollMessage(ctx)
	require.NoError(t, err)

	decodedMsg, err := msg.Payload.Message()
	require.NoError(t, err)
	custom, ok := decodedMsg.(payload.CustomMessage)
	require.True(t, ok)
	require.True(t, custom.Encrypted)
	require.NotEqual(t, []byte("secret"), custom.Data)

	plaintext, err := b.DecryptCustomMessage(msg.From, custom)
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), plaintext)
}

func TestSendCustomMessageWithoutCertificateFails(t *testing.T) {
	idA, err := session.NewIdentity()
	require.NoError(t, err)
	idB, err := session.NewIdentity()
	require.NoError(t, err)

	a := New(idA, nil)
	b := New(idB, nil)
	connectSwarms(t, a, b)

	err = a.SendCustomMessage(b.SelfDid(), []byte("secret"), true)
	require.Error(t, err)
}

func TestSendPayloadToUnknownPeerFails(t *testing.T) {
	id, err := session.NewIdentity()
	require.NoError(t, err)
	s := New(id, nil)

	relay := payload.NewRelayHeader(s.SelfDid(), dht.Did{})
	p, err := payload.New(id, s.SelfDid(), payload.AlreadyConnected{}, relay, 0)
	require.NoError(t, err)

	err = s.SendPayload(dht.Did{9, 9}, p)
	require.ErrorIs(t, err, ErrPeerNotFound)
}
