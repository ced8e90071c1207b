// Package rdt1 implements the rdt1.0 reference protocols: a direct
// pass-through pair that assumes a perfect channel. No checksum, no ACKs,
// no timers. Useful for ideal-channel scenarios and as the smallest
// possible example of the hook contract.
package rdt1

import (
	"fmt"

	"github.com/ouc-computer-network/tcp-lab/internal/packet"
	"github.com/ouc-computer-network/tcp-lab/internal/protocol"
)

func init() {
	protocol.Register("rdt1", func() (protocol.Protocol, protocol.Protocol) {
		return &Sender{}, &Receiver{}
	})
}

// Sender pushes every application chunk straight onto the channel.
type Sender struct{}

func (s *Sender) Init(host protocol.HostCapability) {
	host.Log("rdt1 sender ready (ideal channel)")
}

func (s *Sender) OnAppData(host protocol.HostCapability, data []byte) {
	p, err := packet.New(packet.Header{}, data)
	if err != nil {
		host.Log(fmt.Sprintf("rdt1 sender dropping oversized chunk: %v", err))
		return
	}
	host.Log(fmt.Sprintf("rdt1 sender pushing %d bytes to channel", len(data)))
	host.SendPacket(p)
}

func (s *Sender) OnPacket(host protocol.HostCapability, p packet.Packet) {
	// rdt1 ignores all inbound frames.
}

func (s *Sender) OnTimer(host protocol.HostCapability, timerID int32) {}

// Receiver delivers every arriving payload immediately.
type Receiver struct{}

func (r *Receiver) Init(host protocol.HostCapability) {
	host.Log("rdt1 receiver ready (ideal channel)")
}

func (r *Receiver) OnAppData(host protocol.HostCapability, data []byte) {}

func (r *Receiver) OnPacket(host protocol.HostCapability, p packet.Packet) {
	host.Log(fmt.Sprintf("rdt1 receiver delivering %d bytes", len(p.Payload)))
	host.DeliverData(p.Payload)
}

func (r *Receiver) OnTimer(host protocol.HostCapability, timerID int32) {}
