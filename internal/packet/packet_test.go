package packet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsOversizedPayload(t *testing.T) {
	_, err := New(Header{}, make([]byte, MaxPayloadLen+1))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "exceeds max"))
}

func TestNewAcceptsMaxPayload(t *testing.T) {
	p, err := New(Header{SeqNum: 1}, make([]byte, MaxPayloadLen))
	require.NoError(t, err)
	assert.Len(t, p.Payload, MaxPayloadLen)
}

func TestCloneIsIndependent(t *testing.T) {
	orig, err := New(Header{SeqNum: 7}, []byte("hello"))
	require.NoError(t, err)

	clone := orig.Clone()
	clone.Payload[0] = 'H'

	assert.Equal(t, byte('h'), orig.Payload[0])
	assert.Equal(t, byte('H'), clone.Payload[0])
	assert.Equal(t, orig.Header, clone.Header)
}

func TestHasFlag(t *testing.T) {
	h := Header{Flags: FlagACK | FlagFIN}
	assert.True(t, h.HasFlag(FlagACK))
	assert.True(t, h.HasFlag(FlagFIN))
	assert.False(t, h.HasFlag(FlagSYN))
}

func TestNodeIdPeer(t *testing.T) {
	assert.Equal(t, Receiver, Sender.Peer())
	assert.Equal(t, Sender, Receiver.Peer())
}

func TestNodeIdString(t *testing.T) {
	assert.Equal(t, "sender", Sender.String())
	assert.Equal(t, "receiver", Receiver.String())
}
