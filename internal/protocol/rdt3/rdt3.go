// Package rdt3 implements the rdt3.0 reference protocols: stop-and-wait
// over a channel that may both corrupt and lose frames. Unlike rdt2.2,
// recovery is purely timeout-driven: a corrupted or duplicate ACK is
// ignored and the pending frame is retransmitted when the timer fires.
//
// The sender reports its advertised window through the window_size metric
// on every transmission, which is what window-shaped assertions evaluate
// against once students layer flow control on top.
package rdt3

import (
	"fmt"

	"github.com/ouc-computer-network/tcp-lab/internal/packet"
	"github.com/ouc-computer-network/tcp-lab/internal/protocol"
	"github.com/ouc-computer-network/tcp-lab/internal/protocol/checksum"
)

func init() {
	factory := func() (protocol.Protocol, protocol.Protocol) {
		return &Sender{}, &Receiver{}
	}
	protocol.Register("rdt3.0", factory)
	protocol.Register("rdt3", factory)
}

// RetransmitTimeoutMs is the stop-and-wait retransmission timeout.
const RetransmitTimeoutMs = 200

// windowSize is the fixed stop-and-wait window advertised in every frame.
const windowSize = 1

// Sender is a timeout-driven stop-and-wait sender with alternating
// sequence numbers 0/1.
type Sender struct {
	nextSeq     uint32
	waiting     bool
	current     packet.Packet
	retransmits int
}

func (s *Sender) Init(host protocol.HostCapability) {
	s.nextSeq = 0
	s.waiting = false
	s.retransmits = 0
}

func (s *Sender) OnAppData(host protocol.HostCapability, data []byte) {
	if s.waiting {
		host.Log("rdt3.0 sender busy: dropping application data")
		return
	}

	h := packet.Header{SeqNum: s.nextSeq, WindowSize: windowSize}
	h.Checksum = checksum.ForPacket(h, data)
	p, err := packet.New(h, data)
	if err != nil {
		host.Log(fmt.Sprintf("rdt3.0 sender dropping oversized chunk: %v", err))
		return
	}

	s.current = p
	s.waiting = true
	s.transmit(host)
}

func (s *Sender) OnPacket(host protocol.HostCapability, p packet.Packet) {
	if !s.waiting {
		return
	}

	h := p.Header
	if !checksum.Valid(p) || !h.HasFlag(packet.FlagACK) || h.AckNum != s.nextSeq {
		// Wait for the timeout; rdt3.0 does not fast-retransmit.
		return
	}

	host.Log(fmt.Sprintf("received ACK %d", s.nextSeq))
	host.CancelTimer(int32(s.nextSeq))
	s.waiting = false
	s.nextSeq = 1 - s.nextSeq
}

func (s *Sender) OnTimer(host protocol.HostCapability, timerID int32) {
	if s.waiting && timerID == int32(s.nextSeq) {
		host.Log(fmt.Sprintf("timeout, retransmitting seq %d", s.nextSeq))
		s.retransmits++
		host.RecordMetric("retransmits", float64(s.retransmits))
		s.transmit(host)
	}
}

func (s *Sender) transmit(host protocol.HostCapability) {
	host.RecordMetric("window_size", float64(s.current.Header.WindowSize))
	host.SendPacket(s.current)
	host.StartTimer(RetransmitTimeoutMs, int32(s.nextSeq))
}

// Receiver delivers in-order frames and acknowledges the last correctly
// received sequence number, identically to the rdt2.2 receiver.
type Receiver struct {
	expectedSeq uint32
}

func (r *Receiver) Init(host protocol.HostCapability) {
	r.expectedSeq = 0
}

func (r *Receiver) OnAppData(host protocol.HostCapability, data []byte) {}

func (r *Receiver) OnPacket(host protocol.HostCapability, p packet.Packet) {
	if !checksum.Valid(p) {
		host.Log("corrupted frame, re-ACKing last good seq")
		r.sendAck(host, 1-r.expectedSeq)
		return
	}

	if p.Header.SeqNum != r.expectedSeq {
		host.Log(fmt.Sprintf("duplicate seq %d, re-ACKing without delivering", p.Header.SeqNum))
		r.sendAck(host, p.Header.SeqNum)
		return
	}

	host.DeliverData(p.Payload)
	r.sendAck(host, r.expectedSeq)
	r.expectedSeq = 1 - r.expectedSeq
}

func (r *Receiver) OnTimer(host protocol.HostCapability, timerID int32) {}

func (r *Receiver) sendAck(host protocol.HostCapability, ack uint32) {
	h := packet.Header{AckNum: ack, Flags: packet.FlagACK}
	h.Checksum = checksum.ForPacket(h, nil)
	host.SendPacket(packet.Packet{Header: h})
}
