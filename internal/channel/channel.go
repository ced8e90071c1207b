// Package channel implements the per-direction lossy, reordering,
// corrupting link: the six-step fixed fate-composition order that
// turns one emitted Packet into zero, one, or two PacketArrival events
// plus a LinkEventSummary trail.
package channel

import (
	"math"

	"github.com/ouc-computer-network/tcp-lab/internal/packet"
	"github.com/ouc-computer-network/tcp-lab/internal/prng"
)

// Config holds the mutable per-direction link parameters. All
// probabilities are independent draws per packet; BandwidthBps == 0
// means unlimited (no serialization delay).
type Config struct {
	BaseLatencyMs         uint32
	JitterMs              uint32
	LossProbability       float64
	CorruptionProbability float64
	ReorderProbability    float64
	DuplicateProbability  float64
	BandwidthBps          uint64
}

// Fate classifies a recorded transmission attempt.
type Fate int

const (
	Delivered Fate = iota
	Dropped
	Corrupted
	Duplicated
	Reordered
)

func (f Fate) String() string {
	switch f {
	case Delivered:
		return "delivered"
	case Dropped:
		return "dropped"
	case Corrupted:
		return "corrupted"
	case Duplicated:
		return "duplicated"
	case Reordered:
		return "reordered"
	default:
		return "unknown"
	}
}

// Summary is one immutable record of a packet's fate. ArriveTimeMs is
// only meaningful when Arrived is true.
type Summary struct {
	EmitTimeMs   int64
	ArriveTimeMs int64
	Arrived      bool
	From         packet.NodeId
	To           packet.NodeId
	Fate         Fate
	SeqNum       uint32
	AckNum       uint32
	PayloadLen   int
}

// Arrival is a packet that survived the channel and must be scheduled as
// a PacketArrival event at ArriveTimeMs.
type Arrival struct {
	ArriveTimeMs int64
	Packet       packet.Packet
}

// corruptSentinel is XORed into the checksum field when the corruption
// test fires.
const corruptSentinel = 0xFFFF

// Channel models one direction of the link (Sender→Receiver or
// Receiver→Sender). The two directions share the engine's single PRNG
// stream but never share Config.
type Channel struct {
	From   packet.NodeId
	To     packet.NodeId
	Config Config

	rng *prng.Stream

	// Deterministic fault injection: one-shot drop lists checked before
	// the probabilistic fate draws, so a scenario can guarantee exactly
	// which packet is affected.
	dropSeqOnce map[uint32]int // seq_num -> remaining uses
	dropAckOnce map[uint32]int // ack_num -> remaining uses
}

// New creates a Channel for one direction, backed by the engine's shared
// PRNG stream.
func New(from, to packet.NodeId, cfg Config, rng *prng.Stream) *Channel {
	return &Channel{
		From:        from,
		To:          to,
		Config:      cfg,
		rng:         rng,
		dropSeqOnce: make(map[uint32]int),
		dropAckOnce: make(map[uint32]int),
	}
}

// Mutate applies a channel-parameter patch, taking effect for the next
// emission; in-flight packets keep the parameters they were emitted under.
func (c *Channel) Mutate(cfg Config) {
	c.Config = cfg
}

// DropNextSeqOnce registers a one-shot deterministic drop for the next
// emitted packet whose header SeqNum equals seq.
func (c *Channel) DropNextSeqOnce(seq uint32) {
	c.dropSeqOnce[seq]++
}

// DropNextAckOnce registers a one-shot deterministic drop for the next
// emitted packet whose header AckNum equals ack (only meaningful on the
// ACK-carrying direction, but not restricted here).
func (c *Channel) DropNextAckOnce(ack uint32) {
	c.dropAckOnce[ack]++
}

// Emit runs the fixed six-step fate composition for one packet emitted
// at emitTimeMs, returning the resulting Arrival events (0, 1, or 2) and
// their Summary records (1, or 2 for a duplicate).
func (c *Channel) Emit(emitTimeMs int64, p packet.Packet) ([]Arrival, []Summary) {
	base := Summary{
		EmitTimeMs: emitTimeMs,
		From:       c.From,
		To:         c.To,
		SeqNum:     p.Header.SeqNum,
		AckNum:     p.Header.AckNum,
		PayloadLen: len(p.Payload),
	}

	// Deterministic fault injection, checked before any probabilistic draw.
	if n, ok := c.dropSeqOnce[p.Header.SeqNum]; ok && n > 0 {
		c.consumeDropSeq(p.Header.SeqNum)
		base.Fate = Dropped
		return nil, []Summary{base}
	}
	if p.Header.HasFlag(packet.FlagACK) {
		if n, ok := c.dropAckOnce[p.Header.AckNum]; ok && n > 0 {
			c.consumeDropAck(p.Header.AckNum)
			base.Fate = Dropped
			return nil, []Summary{base}
		}
	}

	// Step 1: loss.
	if c.rng.Float64() < c.Config.LossProbability {
		base.Fate = Dropped
		return nil, []Summary{base}
	}

	// Step 2: corruption.
	corrupted := c.rng.Float64() < c.Config.CorruptionProbability
	if corrupted {
		p.Header.Checksum ^= corruptSentinel
	}

	// Step 3: bandwidth serialization delay.
	var serializationDelay int64
	if c.Config.BandwidthBps > 0 {
		bits := float64(packet.HeaderBytes+len(p.Payload)) * 8 * 1000
		serializationDelay = int64(math.Ceil(bits / float64(c.Config.BandwidthBps)))
	}
	emitAfterSerialization := emitTimeMs + serializationDelay

	// Step 4: propagation delay + jitter.
	latency := c.propagationLatency()

	// Step 5: reorder.
	reordered := c.rng.Float64() < c.Config.ReorderProbability
	if reordered {
		latency += int64(2 * c.Config.BaseLatencyMs)
	}

	arriveTimeMs := emitAfterSerialization + latency

	fate := Delivered
	switch {
	case corrupted:
		fate = Corrupted
	case reordered:
		fate = Reordered
	}

	summary := base
	summary.Arrived = true
	summary.ArriveTimeMs = arriveTimeMs
	summary.Fate = fate

	arrivals := []Arrival{{ArriveTimeMs: arriveTimeMs, Packet: p}}
	summaries := []Summary{summary}

	// Step 6: duplicate.
	if c.rng.Float64() < c.Config.DuplicateProbability {
		summaries[0].Fate = Duplicated

		extraJitter := int64(0)
		if c.Config.JitterMs > 0 {
			extraJitter = c.rng.IntRange(0, int64(c.Config.JitterMs))
		}
		dupArrive := arriveTimeMs + extraJitter

		dup := base
		dup.Arrived = true
		dup.ArriveTimeMs = dupArrive
		dup.Fate = Delivered

		arrivals = append(arrivals, Arrival{ArriveTimeMs: dupArrive, Packet: p.Clone()})
		summaries = append(summaries, dup)
	}

	return arrivals, summaries
}

// propagationLatency draws u3 and computes base_latency_ms +
// round(u3 * 2*jitter_ms - jitter_ms), clamped to >= 0.
func (c *Channel) propagationLatency() int64 {
	u3 := c.rng.Float64()
	jitter := float64(c.Config.JitterMs)
	offset := math.Round(u3*2*jitter - jitter)
	latency := float64(c.Config.BaseLatencyMs) + offset
	if latency < 0 {
		latency = 0
	}
	return int64(latency)
}

func (c *Channel) consumeDropSeq(seq uint32) {
	c.dropSeqOnce[seq]--
	if c.dropSeqOnce[seq] <= 0 {
		delete(c.dropSeqOnce, seq)
	}
}

func (c *Channel) consumeDropAck(ack uint32) {
	c.dropAckOnce[ack]--
	if c.dropAckOnce[ack] <= 0 {
		delete(c.dropAckOnce, ack)
	}
}
