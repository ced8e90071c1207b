package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ouc-computer-network/tcp-lab/internal/packet"
)

func TestFixedBridgeGeneratorSequence(t *testing.T) {
	gen := NewFixedBridgeGenerator("run")

	assert.Equal(t, "run-1", gen.Generate())
	assert.Equal(t, "run-2", gen.Generate())
}

func TestFixedBridgeGeneratorDefaultPrefix(t *testing.T) {
	gen := NewFixedBridgeGenerator("")

	assert.Equal(t, "test-bridge-1", gen.Generate())
}

func TestDrawsAreReproducible(t *testing.T) {
	a := Draws(42, 8)
	b := Draws(42, 8)

	assert.Equal(t, a, b)
	for _, v := range a {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
}

func TestDrawsDifferBySeed(t *testing.T) {
	assert.NotEqual(t, Draws(1, 4), Draws(2, 4))
}

func TestRecordingHostCapturesOperations(t *testing.T) {
	host := &RecordingHost{TimeMs: 7}

	host.SendPacket(packet.Packet{Header: packet.Header{SeqNum: 1}, Payload: []byte("x")})
	host.StartTimer(200, 1)
	host.CancelTimer(1)
	host.DeliverData([]byte("x"))
	host.Log("hello")
	host.RecordMetric("m", 3.5)

	require.Len(t, host.Sent, 1)
	assert.Equal(t, uint32(1), host.LastSent().Header.SeqNum)
	assert.Equal(t, []TimerOp{{DelayMs: 200, TimerID: 1}, {Cancel: true, TimerID: 1}}, host.TimerOps)
	assert.Equal(t, [][]byte{[]byte("x")}, host.Delivered)
	assert.Equal(t, []string{"hello"}, host.Logs)
	assert.Equal(t, []Metric{{Name: "m", Value: 3.5}}, host.Metrics)
	assert.Equal(t, int64(7), host.Now())
}

func TestRecordingHostCopiesBuffers(t *testing.T) {
	host := &RecordingHost{}
	payload := []byte("abc")

	host.SendPacket(packet.Packet{Payload: payload})
	host.DeliverData(payload)
	payload[0] = 'z'

	assert.Equal(t, []byte("abc"), host.Sent[0].Payload)
	assert.Equal(t, []byte("abc"), host.Delivered[0])
}
