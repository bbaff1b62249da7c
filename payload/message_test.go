package payload

import (
	"testing"

	"github.com/ringmesh/rings/dht"
	"github.com/ringmesh/rings/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeMessageRoundTrip(t *testing.T) {
	cases := []Message{
		JoinDHT{Node: didAt(1)},
		LeaveDHT{Node: didAt(2)},
		ConnectNodeSend{Target: didAt(3), Handshake: "offer-string"},
		ConnectNodeReport{AnswerHandshake: "answer-string"},
		AlreadyConnected{},
		FindSuccessorSend{ID: didAt(4), Strict: true},
		FindSuccessorReport{ID: didAt(5)},
		NotifyPredecessorSend{Predecessor: didAt(6)},
		NotifyPredecessorReport{Predecessor: didAt(7)},
		CustomMessage{Data: []byte("hello"), Encrypted: false},
	}

	for _, m := range cases {
		w, err := EncodeMessage(m)
		require.NoError(t, err)
		assert.Equal(t, m.Kind(), w.Tag)

		decoded, err := DecodeMessage(w)
		require.NoError(t, err)
		assert.Equal(t, m, decoded)
	}
}

func TestDecodeMessageRejectsUnknownTag(t *testing.T) {
	w := Wire{Tag: Kind(200), Body: nil}
	_, err := DecodeMessage(w)
	require.Error(t, err)
	var unsupported ErrUnsupportedMessageType
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, Kind(200), unsupported.Tag)
}

func TestMultiCallRoundTrip(t *testing.T) {
	id, err := session.NewIdentity()
	require.NoError(t, err)
	self := id.Did()
	relay := NewRelayHeader(self, didAt(9))

	inner, err := New(id, self, JoinDHT{Node: didAt(9)}, relay, 0)
	require.NoError(t, err)

	m := MultiCall{Payloads: []Payload{*inner}}
	w, err := EncodeMessage(m)
	require.NoError(t, err)

	decoded, err := DecodeMessage(w)
	require.NoError(t, err)
	batch, ok := decoded.(MultiCall)
	require.True(t, ok)
	require.Len(t, batch.Payloads, 1)

	origin, err := batch.Payloads[0].Verify()
	require.NoError(t, err)
	assert.Equal(t, self, origin)

	innerMsg, err := batch.Payloads[0].Message()
	require.NoError(t, err)
	assert.Equal(t, JoinDHT{Node: didAt(9)}, innerMsg)
}

func didAt(b byte) dht.Did {
	var d dht.Did
	d[len(d)-1] = b
	return d
}
