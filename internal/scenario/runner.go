package scenario

import (
	"log/slog"

	"github.com/ouc-computer-network/tcp-lab/internal/packet"
	"github.com/ouc-computer-network/tcp-lab/internal/protocol"
	"github.com/ouc-computer-network/tcp-lab/internal/report"
	"github.com/ouc-computer-network/tcp-lab/internal/sim"
)

// Run executes a scenario against the given protocol pair and returns
// the full report with the verdict filled in.
//
// Actions are processed in script order. Timed actions (app_send,
// mutate_channel, halt) are scheduled onto the event queue; fault
// registrations apply immediately; wait_until and wait_quiescent drive
// the engine forward before the script continues. After the script is
// exhausted the engine runs to termination and the assertions are
// evaluated against the report.
func Run(scn *Scenario, pair protocol.Pair) *report.Report {
	eng := sim.New(simConfig(scn), pair.Sender, pair.Receiver)
	eng.Init()

	var markerID int64
	for _, a := range scn.Actions {
		if eng.Terminated() {
			break
		}
		switch a.Type {
		case ActionAppSend:
			eng.ScheduleAppData(a.AtMs, nodeFor(a.From), []byte(a.Bytes))
		case ActionMutateChannel:
			eng.ScheduleChannelPatch(a.AtMs, directionFor(a.Direction), a.Patch.toPatch())
		case ActionDropNextSenderSeq:
			eng.DropSenderSeqOnce(*a.Seq)
		case ActionDropNextReceiverAck:
			eng.DropReceiverAckOnce(*a.Ack)
		case ActionWaitUntil:
			markerID++
			eng.ScheduleWaitMarker(a.TMs, markerID)
			eng.RunUntilMarker(markerID)
		case ActionWaitQuiescent:
			eng.RunQuiescent(a.TimeoutMs)
		case ActionHalt:
			eng.ScheduleHalt(a.AtMs)
		}
	}

	eng.Run()

	rep := eng.Report()
	rep.Verdict = Evaluate(scn, rep)
	slog.Debug("scenario finished",
		"scenario", scn.Name,
		"termination", rep.Termination,
		"pass", rep.Verdict.Pass)
	return rep
}

// LoadAndRun resolves the scenario's builtin protocol pair and runs it.
// Returns a protocol.LoadError if the pairing cannot be materialized.
func LoadAndRun(scn *Scenario, gen protocol.BridgeIDGenerator) (*report.Report, error) {
	pair, err := protocol.Load(scn.Protocol, gen)
	if err != nil {
		return nil, err
	}
	return Run(scn, pair), nil
}

func simConfig(scn *Scenario) sim.Config {
	return sim.Config{
		Seed:         scn.Seed,
		MaxSimTimeMs: scn.MaxSimTimeMs,
		MaxEvents:    scn.MaxEvents,
		LinkS2R:      scn.LinkS2R.toConfig(),
		LinkR2S:      scn.LinkR2S.toConfig(),
	}
}

func nodeFor(name string) packet.NodeId {
	if name == "receiver" {
		return packet.Receiver
	}
	return packet.Sender
}

func directionFor(name string) sim.Direction {
	if name == "r2s" {
		return sim.R2S
	}
	return sim.S2R
}
