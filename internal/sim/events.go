package sim

import (
	"github.com/ouc-computer-network/tcp-lab/internal/channel"
	"github.com/ouc-computer-network/tcp-lab/internal/packet"
)

// Event payloads dispatched by the engine loop. The queue treats them as
// opaque; the dispatch switch in Engine.step routes on the concrete type.

// appDataEvent hands application bytes to an endpoint's OnAppData hook.
type appDataEvent struct {
	from packet.NodeId
	data []byte
}

// packetArrivalEvent delivers a frame that survived the channel to the
// destination endpoint's OnPacket hook.
type packetArrivalEvent struct {
	to  packet.NodeId
	pkt packet.Packet
}

// timerFireEvent fires a registered timer. The generation distinguishes a
// live fire from a stale event left in the heap by a cancel or replace.
type timerFireEvent struct {
	endpoint   packet.NodeId
	timerID    int32
	generation uint64
}

// channelMutationEvent applies a link-parameter patch to one direction at
// its scheduled time; the patch takes effect for the next emission.
type channelMutationEvent struct {
	direction Direction
	patch     channel.Patch
}

// waitMarkerEvent is a scenario synchronization point: dispatching it has
// no effect beyond recording that the marker was reached.
type waitMarkerEvent struct {
	id int64
}

// haltEvent aborts the run at its scheduled time.
type haltEvent struct{}
