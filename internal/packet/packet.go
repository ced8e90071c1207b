// Package packet defines the wire-level value types exchanged between
// simulated endpoints: the TCP-style header, the packet envelope, and the
// two-node identity enumeration.
package packet

import "fmt"

// Flag bits for Header.Flags.
const (
	FlagFIN byte = 0x01
	FlagSYN byte = 0x02
	FlagRST byte = 0x04
	FlagPSH byte = 0x08
	FlagACK byte = 0x10
	FlagURG byte = 0x20
)

// Header carries the fields protocols use to build reliable transfer on
// top of an unreliable channel. The engine reads Flags, SeqNum, and AckNum
// only for the channel's fault-injection matching and link-event records,
// and the corruption fate XORs Checksum; it never validates any field.
// Setting and validating every field, including the checksum, is the
// protocol's responsibility.
type Header struct {
	SeqNum        uint32
	AckNum        uint32
	Flags         byte
	WindowSize    uint16
	Checksum      uint16
	UrgentPointer uint16
}

// HasFlag reports whether the given flag bit is set.
func (h Header) HasFlag(flag byte) bool {
	return h.Flags&flag != 0
}

// Packet is a value object: a header plus an immutable payload. The
// engine may clone a Packet when the channel duplicates it;
// callers must not mutate a Packet's Payload in place.
type Packet struct {
	Header  Header
	Payload []byte
}

// Clone returns a deep copy safe for independent mutation (used by the
// channel's duplicate path so the two in-flight copies don't alias).
func (p Packet) Clone() Packet {
	payload := make([]byte, len(p.Payload))
	copy(payload, p.Payload)
	return Packet{Header: p.Header, Payload: payload}
}

// MaxPayloadLen is the largest payload a Packet may carry.
const MaxPayloadLen = 65535

// New constructs a Packet, rejecting payloads that exceed MaxPayloadLen.
func New(h Header, payload []byte) (Packet, error) {
	if len(payload) > MaxPayloadLen {
		return Packet{}, fmt.Errorf("packet: payload length %d exceeds max %d", len(payload), MaxPayloadLen)
	}
	return Packet{Header: h, Payload: payload}, nil
}

// HeaderBytes is the fixed on-wire size of a Header, used by the
// channel's bandwidth-serialization delay calculation:
// 4 (seq) + 4 (ack) + 1 (flags) + 2 (window) + 2 (checksum) + 2 (urgent).
const HeaderBytes = 15

// NodeId identifies one of the two simulated endpoints.
type NodeId int

const (
	Sender NodeId = iota
	Receiver
)

func (n NodeId) String() string {
	switch n {
	case Sender:
		return "sender"
	case Receiver:
		return "receiver"
	default:
		return fmt.Sprintf("NodeId(%d)", int(n))
	}
}

// Peer returns the other endpoint.
func (n NodeId) Peer() NodeId {
	if n == Sender {
		return Receiver
	}
	return Sender
}
