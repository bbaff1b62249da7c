package dht

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDidRoundTrip(t *testing.T) {
	pub := []byte{0x02, 0x01, 0x02, 0x03}
	d := DidFromPublicKey(pub)
	s := d.String()

	parsed, err := ParseDid(s)
	require.NoError(t, err)
	assert.Equal(t, d, parsed)
}

func TestDidFromBytesRejectsWrongLength(t *testing.T) {
	_, err := DidFromBytes([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDistanceWrapsAround(t *testing.T) {
	var a, b Did
	for i := range a {
		a[i] = 0xFF
	}
	a[19] = 0xFE // a = 2^160 - 2
	b[19] = 0x02
	dist := Distance(a, b)
	assert.Equal(t, int64(4), dist.Int64())
}

func TestFingerStartWraps(t *testing.T) {
	var n Did
	for i := range n {
		n[i] = 0xFF
	}
	// n + 2^0 == n + 1, which overflows the 160-bit ring back to zero.
	start := FingerStart(n, 0)
	assert.True(t, start.IsZero())
}

func TestIntervalPredicates(t *testing.T) {
	var a, b, x Did
	a[19] = 10
	b[19] = 20
	x[19] = 15

	assert.True(t, InOpenInterval(x, a, b))
	assert.False(t, InOpenInterval(b, a, b))
	assert.True(t, InHalfOpenInterval(b, a, b))
	assert.True(t, InClosedInterval(a, a, b))

	same := a
	assert.True(t, InOpenInterval(b, same, same), "a==b interval should be the whole ring minus the endpoint")
	assert.False(t, InOpenInterval(same, same, same))
}
