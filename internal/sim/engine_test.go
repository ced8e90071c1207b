package sim

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ouc-computer-network/tcp-lab/internal/channel"
	"github.com/ouc-computer-network/tcp-lab/internal/packet"
	"github.com/ouc-computer-network/tcp-lab/internal/protocol"
	"github.com/ouc-computer-network/tcp-lab/internal/report"
)

// probe is a scriptable protocol for exercising the engine: each hook
// delegates to an optional func field.
type probe struct {
	init      func(protocol.HostCapability)
	onAppData func(protocol.HostCapability, []byte)
	onPacket  func(protocol.HostCapability, packet.Packet)
	onTimer   func(protocol.HostCapability, int32)
}

func (p *probe) Init(host protocol.HostCapability) {
	if p.init != nil {
		p.init(host)
	}
}

func (p *probe) OnAppData(host protocol.HostCapability, data []byte) {
	if p.onAppData != nil {
		p.onAppData(host, data)
	}
}

func (p *probe) OnPacket(host protocol.HostCapability, pkt packet.Packet) {
	if p.onPacket != nil {
		p.onPacket(host, pkt)
	}
}

func (p *probe) OnTimer(host protocol.HostCapability, timerID int32) {
	if p.onTimer != nil {
		p.onTimer(host, timerID)
	}
}

func instance(id string, p protocol.Protocol) protocol.Instance {
	return protocol.Instance{BridgeID: id, Impl: p}
}

func perfectConfig() Config {
	return Config{
		Seed:    1,
		LinkS2R: channel.Config{BaseLatencyMs: 10},
		LinkR2S: channel.Config{BaseLatencyMs: 10},
	}
}

func TestInitCalledOncePerEndpointSenderFirst(t *testing.T) {
	var order []string
	eng := New(perfectConfig(),
		instance("s", &probe{init: func(protocol.HostCapability) { order = append(order, "sender") }}),
		instance("r", &probe{init: func(protocol.HostCapability) { order = append(order, "receiver") }}),
	)

	eng.Init()
	eng.Init() // second call is a no-op

	assert.Equal(t, []string{"sender", "receiver"}, order)
}

func TestAppDataDispatchesAtScheduledTime(t *testing.T) {
	var gotAt int64 = -1
	var gotData []byte
	eng := New(perfectConfig(),
		instance("s", &probe{onAppData: func(host protocol.HostCapability, data []byte) {
			gotAt = host.Now()
			gotData = data
		}}),
		instance("r", &probe{}),
	)

	eng.ScheduleAppData(25, packet.Sender, []byte("AB"))
	eng.Run()

	assert.Equal(t, int64(25), gotAt)
	assert.Equal(t, []byte("AB"), gotData)
	assert.Equal(t, report.TerminationCompleted, eng.Report().Termination)
}

func TestSendPacketReachesPeerAfterLatency(t *testing.T) {
	var arrivedAt int64 = -1
	var arrived packet.Packet
	eng := New(perfectConfig(),
		instance("s", &probe{onAppData: func(host protocol.HostCapability, data []byte) {
			host.SendPacket(packet.Packet{Header: packet.Header{SeqNum: 9}, Payload: data})
		}}),
		instance("r", &probe{onPacket: func(host protocol.HostCapability, pkt packet.Packet) {
			arrivedAt = host.Now()
			arrived = pkt
		}}),
	)

	eng.ScheduleAppData(0, packet.Sender, []byte("hi"))
	eng.Run()

	assert.Equal(t, int64(10), arrivedAt)
	assert.Equal(t, uint32(9), arrived.Header.SeqNum)
	assert.Equal(t, []byte("hi"), arrived.Payload)

	rep := eng.Report()
	require.Len(t, rep.LinkEvents, 1)
	assert.Equal(t, "delivered", rep.LinkEvents[0].Fate)
}

func TestEqualTimeEventsDispatchInInsertionOrder(t *testing.T) {
	var order []string
	eng := New(perfectConfig(),
		instance("s", &probe{onAppData: func(host protocol.HostCapability, data []byte) {
			order = append(order, string(data))
		}}),
		instance("r", &probe{}),
	)

	for _, chunk := range []string{"a", "b", "c", "d"} {
		eng.ScheduleAppData(5, packet.Sender, []byte(chunk))
	}
	eng.Run()

	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestZeroDelayTimerFiresAfterEnqueuedEqualTimeEvents(t *testing.T) {
	var order []string
	eng := New(perfectConfig(),
		instance("s", &probe{
			onAppData: func(host protocol.HostCapability, data []byte) {
				if string(data) == "first" {
					host.StartTimer(0, 1)
				}
				order = append(order, string(data))
			},
			onTimer: func(host protocol.HostCapability, timerID int32) {
				order = append(order, "timer")
			},
		}),
		instance("r", &probe{}),
	)

	eng.ScheduleAppData(5, packet.Sender, []byte("first"))
	eng.ScheduleAppData(5, packet.Sender, []byte("second"))
	eng.Run()

	assert.Equal(t, []string{"first", "second", "timer"}, order)
}

func TestStartTimerReplacesPriorRegistration(t *testing.T) {
	var fires []int64
	eng := New(perfectConfig(),
		instance("s", &probe{
			init: func(host protocol.HostCapability) {
				host.StartTimer(10, 1)
			},
			onAppData: func(host protocol.HostCapability, data []byte) {
				host.StartTimer(100, 1) // replaces the 10ms registration
			},
			onTimer: func(host protocol.HostCapability, timerID int32) {
				fires = append(fires, host.Now())
			},
		}),
		instance("r", &probe{}),
	)

	eng.ScheduleAppData(5, packet.Sender, nil)
	eng.Run()

	assert.Equal(t, []int64{105}, fires)
}

func TestCancelTimerPreventsFire(t *testing.T) {
	fired := false
	eng := New(perfectConfig(),
		instance("s", &probe{
			init: func(host protocol.HostCapability) {
				host.StartTimer(50, 7)
			},
			onAppData: func(host protocol.HostCapability, data []byte) {
				host.CancelTimer(7)
				host.CancelTimer(99) // unregistered id: no-op
			},
			onTimer: func(protocol.HostCapability, int32) { fired = true },
		}),
		instance("r", &probe{}),
	)

	eng.ScheduleAppData(5, packet.Sender, nil)
	eng.Run()

	assert.False(t, fired)
	assert.Equal(t, report.TerminationCompleted, eng.Report().Termination)
}

func TestTimerMayRearmSameIDFromItsOwnHook(t *testing.T) {
	var fires []int64
	eng := New(perfectConfig(),
		instance("s", &probe{
			init: func(host protocol.HostCapability) {
				host.StartTimer(10, 1)
			},
			onTimer: func(host protocol.HostCapability, timerID int32) {
				fires = append(fires, host.Now())
				if len(fires) < 3 {
					host.StartTimer(10, timerID)
				}
			},
		}),
		instance("r", &probe{}),
	)

	eng.Run()

	assert.Equal(t, []int64{10, 20, 30}, fires)
}

func TestHostMisuseIsLoggedAndSwallowed(t *testing.T) {
	eng := New(perfectConfig(),
		instance("s", &probe{init: func(host protocol.HostCapability) {
			host.StartTimer(-5, 1)
			host.DeliverData(nil)
		}}),
		instance("r", &probe{}),
	)

	eng.Run()
	rep := eng.Report()

	assert.Equal(t, report.TerminationCompleted, rep.Termination)
	assert.Empty(t, rep.Deliveries.Sender)
	require.Len(t, rep.Logs, 2)
	assert.Contains(t, rep.Logs[0].Message, string(ErrCodeNegativeTimerDelay))
	assert.Contains(t, rep.Logs[1].Message, string(ErrCodeNilDeliverData))
}

func TestOversizedSendPacketIsLoggedAndSwallowed(t *testing.T) {
	eng := New(perfectConfig(),
		instance("s", &probe{init: func(host protocol.HostCapability) {
			host.SendPacket(packet.Packet{Payload: make([]byte, packet.MaxPayloadLen+1)})
		}}),
		instance("r", &probe{}),
	)

	eng.Run()
	rep := eng.Report()

	assert.Empty(t, rep.LinkEvents)
	require.Len(t, rep.Logs, 1)
	assert.Contains(t, rep.Logs[0].Message, string(ErrCodeOversizedPayload))
}

func TestEventBudgetTermination(t *testing.T) {
	cfg := perfectConfig()
	cfg.MaxEvents = 3
	eng := New(cfg, instance("s", &probe{}), instance("r", &probe{}))

	for i := 0; i < 10; i++ {
		eng.ScheduleAppData(int64(i), packet.Sender, []byte("x"))
	}
	eng.Run()

	assert.Equal(t, report.TerminationEventBudget, eng.Report().Termination)
}

func TestSimTimeBudgetTermination(t *testing.T) {
	cfg := perfectConfig()
	cfg.MaxSimTimeMs = 100
	eng := New(cfg, instance("s", &probe{}), instance("r", &probe{}))

	eng.ScheduleAppData(50, packet.Sender, []byte("x"))
	eng.ScheduleAppData(101, packet.Sender, []byte("x"))
	eng.Run()

	assert.Equal(t, report.TerminationTimeout, eng.Report().Termination)
}

func TestHaltTermination(t *testing.T) {
	eng := New(perfectConfig(), instance("s", &probe{}), instance("r", &probe{}))

	eng.ScheduleAppData(10, packet.Sender, []byte("x"))
	eng.ScheduleHalt(5)
	eng.Run()

	assert.Equal(t, report.TerminationAborted, eng.Report().Termination)
}

func TestChannelMutationTakesEffectAtScheduledTime(t *testing.T) {
	eng := New(perfectConfig(),
		instance("s", &probe{onAppData: func(host protocol.HostCapability, data []byte) {
			host.SendPacket(packet.Packet{Payload: data})
		}}),
		instance("r", &probe{}),
	)

	loss := 1.0
	eng.ScheduleAppData(0, packet.Sender, []byte("a"))
	eng.ScheduleChannelPatch(5, S2R, channel.Patch{LossProbability: &loss})
	eng.ScheduleAppData(10, packet.Sender, []byte("b"))
	eng.Run()

	rep := eng.Report()
	require.Len(t, rep.LinkEvents, 2)
	assert.Equal(t, "delivered", rep.LinkEvents[0].Fate)
	assert.Equal(t, "dropped", rep.LinkEvents[1].Fate)
}

func TestRunUntilMarkerStopsAtMarker(t *testing.T) {
	var seen []string
	eng := New(perfectConfig(),
		instance("s", &probe{onAppData: func(host protocol.HostCapability, data []byte) {
			seen = append(seen, string(data))
		}}),
		instance("r", &probe{}),
	)

	eng.ScheduleAppData(10, packet.Sender, []byte("before"))
	eng.ScheduleWaitMarker(20, 1)
	eng.ScheduleAppData(30, packet.Sender, []byte("after"))

	eng.RunUntilMarker(1)
	assert.Equal(t, []string{"before"}, seen)
	assert.Equal(t, int64(20), eng.NowMs())

	eng.Run()
	assert.Equal(t, []string{"before", "after"}, seen)
}

func TestRunQuiescentDrainsNonTimerEventsOnly(t *testing.T) {
	timerFired := false
	eng := New(perfectConfig(),
		instance("s", &probe{
			init: func(host protocol.HostCapability) {
				host.StartTimer(1000, 1)
			},
			onTimer: func(protocol.HostCapability, int32) { timerFired = true },
		}),
		instance("r", &probe{}),
	)

	eng.ScheduleAppData(5, packet.Sender, []byte("x"))
	eng.RunQuiescent(100)

	assert.False(t, timerFired)
	assert.False(t, eng.Terminated())
	next, ok := eng.NextEventTimeMs()
	require.True(t, ok)
	assert.Equal(t, int64(1000), next)

	eng.Run()
	assert.True(t, timerFired)
}

func TestDeterministicFaultInjectionDropsExactSeq(t *testing.T) {
	eng := New(perfectConfig(),
		instance("s", &probe{onAppData: func(host protocol.HostCapability, data []byte) {
			host.SendPacket(packet.Packet{Header: packet.Header{SeqNum: 3}, Payload: data})
			host.SendPacket(packet.Packet{Header: packet.Header{SeqNum: 4}, Payload: data})
		}}),
		instance("r", &probe{}),
	)

	eng.DropSenderSeqOnce(4)
	eng.ScheduleAppData(0, packet.Sender, []byte("x"))
	eng.Run()

	rep := eng.Report()
	require.Len(t, rep.LinkEvents, 2)
	assert.Equal(t, "delivered", rep.LinkEvents[0].Fate)
	assert.Equal(t, "dropped", rep.LinkEvents[1].Fate)
	assert.Equal(t, uint32(4), rep.LinkEvents[1].Seq)
}

func TestMetricsMergeAcrossEndpoints(t *testing.T) {
	eng := New(perfectConfig(),
		instance("s", &probe{init: func(host protocol.HostCapability) {
			host.RecordMetric("shared", 1)
			host.RecordMetric("sender_only", 10)
		}}),
		instance("r", &probe{init: func(host protocol.HostCapability) {
			host.RecordMetric("shared", 2)
		}}),
	)

	eng.Run()
	rep := eng.Report()

	require.Len(t, rep.Metrics["shared"], 2)
	assert.Equal(t, float64(1), rep.Metrics["shared"][0].Value)
	assert.Equal(t, float64(2), rep.Metrics["shared"][1].Value)
	require.Len(t, rep.Metrics["sender_only"], 1)
}

// echoProtocol pairs form a chatty ping-pong bounded by a hop counter,
// exercising both directions under a jittery channel for the determinism
// check.
func echoPair(hops int) (protocol.Protocol, protocol.Protocol) {
	remaining := hops
	bounce := func(host protocol.HostCapability, pkt packet.Packet) {
		if remaining == 0 {
			return
		}
		remaining--
		host.RecordMetric("hops", float64(remaining))
		host.SendPacket(packet.Packet{Header: packet.Header{SeqNum: pkt.Header.SeqNum + 1}, Payload: pkt.Payload})
	}
	sender := &probe{
		onAppData: func(host protocol.HostCapability, data []byte) {
			host.SendPacket(packet.Packet{Payload: data})
		},
		onPacket: bounce,
	}
	receiver := &probe{
		onPacket: func(host protocol.HostCapability, pkt packet.Packet) {
			host.DeliverData(pkt.Payload)
			bounce(host, pkt)
		},
	}
	return sender, receiver
}

func TestIdenticalRunsProduceIdenticalReports(t *testing.T) {
	run := func() []byte {
		cfg := Config{
			Seed: 42,
			LinkS2R: channel.Config{
				BaseLatencyMs:         10,
				JitterMs:              4,
				LossProbability:       0.2,
				CorruptionProbability: 0.1,
				DuplicateProbability:  0.1,
			},
			LinkR2S: channel.Config{BaseLatencyMs: 8, JitterMs: 2, LossProbability: 0.1},
		}
		s, r := echoPair(12)
		eng := New(cfg, instance("s", s), instance("r", r))
		for i := 0; i < 4; i++ {
			eng.ScheduleAppData(int64(i*3), packet.Sender, []byte(fmt.Sprintf("chunk-%d", i)))
		}
		eng.Run()
		data, err := report.MarshalCanonical(eng.Report())
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return data
	}

	assert.Equal(t, string(run()), string(run()))
}

func TestTimeIsMonotonicAcrossDispatch(t *testing.T) {
	var times []int64
	record := func(host protocol.HostCapability, _ packet.Packet) {
		times = append(times, host.Now())
	}
	cfg := Config{
		Seed:    7,
		LinkS2R: channel.Config{BaseLatencyMs: 10, JitterMs: 9, DuplicateProbability: 0.5, ReorderProbability: 0.3},
		LinkR2S: channel.Config{BaseLatencyMs: 10},
	}
	eng := New(cfg,
		instance("s", &probe{onAppData: func(host protocol.HostCapability, data []byte) {
			host.SendPacket(packet.Packet{Payload: data})
		}}),
		instance("r", &probe{onPacket: record}),
	)

	for i := 0; i < 20; i++ {
		eng.ScheduleAppData(int64(i), packet.Sender, []byte("x"))
	}
	eng.Run()

	for i := 1; i < len(times); i++ {
		assert.LessOrEqual(t, times[i-1], times[i])
	}
}
