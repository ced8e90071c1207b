package sim

import (
	"github.com/ouc-computer-network/tcp-lab/internal/channel"
	"github.com/ouc-computer-network/tcp-lab/internal/packet"
)

// Default resource limits, applied when the corresponding Config field is
// zero. They exist so a student bug (a retransmit storm, a timer that
// re-arms forever) halts the run with a well-formed report instead of
// hanging the grader.
const (
	DefaultMaxSimTimeMs = 60_000
	DefaultMaxEvents    = 100_000
)

// Config is the full simulation configuration: the PRNG seed, the two
// resource limits, and one link configuration per direction.
type Config struct {
	Seed         uint64
	MaxSimTimeMs int64
	MaxEvents    uint64
	LinkS2R      channel.Config
	LinkR2S      channel.Config
}

// withDefaults returns cfg with zero limits replaced by the defaults.
func (c Config) withDefaults() Config {
	if c.MaxSimTimeMs == 0 {
		c.MaxSimTimeMs = DefaultMaxSimTimeMs
	}
	if c.MaxEvents == 0 {
		c.MaxEvents = DefaultMaxEvents
	}
	return c
}

// Direction identifies one of the two link directions.
type Direction int

const (
	S2R Direction = iota // Sender → Receiver
	R2S                  // Receiver → Sender
)

// From returns the emitting endpoint of the direction.
func (d Direction) From() packet.NodeId {
	if d == S2R {
		return packet.Sender
	}
	return packet.Receiver
}

func (d Direction) String() string {
	if d == S2R {
		return "s2r"
	}
	return "r2s"
}
