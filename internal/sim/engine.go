// Package sim implements the discrete-event simulation engine: a
// single-threaded dispatch loop driving two protocol endpoints across a
// lossy, reordering, corrupting link, with a deterministic PRNG-backed
// channel model and an explicit timer service.
//
// All mutation happens on the caller's goroutine inside the dispatch
// loop; nothing in this package is safe for concurrent use. Each run owns
// its engine (the PRNG and clock are fields, not globals) so separate
// runs can execute in parallel at the process level.
package sim

import (
	"log/slog"
	"sort"

	"github.com/ouc-computer-network/tcp-lab/internal/channel"
	"github.com/ouc-computer-network/tcp-lab/internal/packet"
	"github.com/ouc-computer-network/tcp-lab/internal/prng"
	"github.com/ouc-computer-network/tcp-lab/internal/protocol"
	"github.com/ouc-computer-network/tcp-lab/internal/queue"
	"github.com/ouc-computer-network/tcp-lab/internal/report"
	"github.com/ouc-computer-network/tcp-lab/internal/timer"
)

// endpoint is the engine-side driver for one protocol instance: its
// delivery log and metric series, alongside the protocol object itself.
// Timers live in the engine's shared registry keyed by endpoint id.
type endpoint struct {
	id       packet.NodeId
	bridgeID string
	proto    protocol.Protocol

	deliveries []report.Delivery
	metrics    map[string][]report.MetricPoint
}

// Engine orchestrates the two endpoints, the two channel directions, the
// timer registry, and the event queue, running until quiescent or until a
// resource limit halts the run.
type Engine struct {
	cfg    Config
	queue  *queue.Queue
	rng    *prng.Stream
	timers *timer.Registry

	s2r *channel.Channel
	r2s *channel.Channel

	sender   *endpoint
	receiver *endpoint

	nowMs           int64
	dispatched      uint64
	pendingNonTimer int

	linkEvents  []report.LinkEvent
	logs        []report.LogEntry
	termination string
	initialized bool
	lastMarker  int64
	markerSeen  bool
}

// New creates an engine for one run. The sender and receiver instances
// must be fresh: protocol state is per-run.
func New(cfg Config, sender, receiver protocol.Instance) *Engine {
	cfg = cfg.withDefaults()
	rng := prng.New(cfg.Seed)

	return &Engine{
		cfg:    cfg,
		queue:  queue.New(),
		rng:    rng,
		timers: timer.New(),
		s2r:    channel.New(packet.Sender, packet.Receiver, cfg.LinkS2R, rng),
		r2s:    channel.New(packet.Receiver, packet.Sender, cfg.LinkR2S, rng),
		sender: &endpoint{
			id:       packet.Sender,
			bridgeID: sender.BridgeID,
			proto:    sender.Impl,
			metrics:  make(map[string][]report.MetricPoint),
		},
		receiver: &endpoint{
			id:       packet.Receiver,
			bridgeID: receiver.BridgeID,
			proto:    receiver.Impl,
			metrics:  make(map[string][]report.MetricPoint),
		},
	}
}

// NowMs returns the current simulated time.
func (e *Engine) NowMs() int64 {
	return e.nowMs
}

// NextEventTimeMs peeks the scheduled time of the next pending event.
func (e *Engine) NextEventTimeMs() (int64, bool) {
	return e.queue.NextTimeMs()
}

// Terminated reports whether the run has reached a termination cause.
func (e *Engine) Terminated() bool {
	return e.termination != ""
}

// ScheduleAppData enqueues application bytes for the given endpoint.
func (e *Engine) ScheduleAppData(atMs int64, from packet.NodeId, data []byte) {
	e.push(atMs, appDataEvent{from: from, data: data})
}

// ScheduleChannelPatch enqueues a link-parameter mutation for one
// direction; it takes effect for emissions after its scheduled time.
func (e *Engine) ScheduleChannelPatch(atMs int64, dir Direction, patch channel.Patch) {
	e.push(atMs, channelMutationEvent{direction: dir, patch: patch})
}

// ScheduleWaitMarker enqueues a synchronization marker; see
// RunUntilMarker.
func (e *Engine) ScheduleWaitMarker(atMs int64, id int64) {
	e.push(atMs, waitMarkerEvent{id: id})
}

// ScheduleHalt enqueues an abort of the run at atMs.
func (e *Engine) ScheduleHalt(atMs int64) {
	e.push(atMs, haltEvent{})
}

// DropSenderSeqOnce registers a one-shot deterministic drop on the
// Sender→Receiver direction for the next packet with the given seq_num.
func (e *Engine) DropSenderSeqOnce(seq uint32) {
	e.s2r.DropNextSeqOnce(seq)
}

// DropReceiverAckOnce registers a one-shot deterministic drop on the
// Receiver→Sender direction for the next ACK with the given ack_num.
func (e *Engine) DropReceiverAckOnce(ack uint32) {
	e.r2s.DropNextAckOnce(ack)
}

// Init invokes the init hook on the sender, then on the receiver. Both
// may emit events, which are queued for the dispatch loop. Calling Init
// more than once is a no-op.
func (e *Engine) Init() {
	if e.initialized {
		return
	}
	e.initialized = true
	slog.Debug("initializing endpoints",
		"sender_bridge_id", e.sender.bridgeID,
		"receiver_bridge_id", e.receiver.bridgeID,
		"seed", e.cfg.Seed)
	e.runHook(e.sender, func(host protocol.HostCapability) {
		e.sender.proto.Init(host)
	})
	e.runHook(e.receiver, func(host protocol.HostCapability) {
		e.receiver.proto.Init(host)
	})
}

// Run dispatches events until the queue is drained or a limit halts the
// run, then records the termination cause.
func (e *Engine) Run() {
	e.Init()
	for e.step() {
	}
	if e.termination == "" {
		e.termination = report.TerminationCompleted
	}
	slog.Debug("simulation finished",
		"termination", e.termination,
		"events", e.dispatched,
		"sim_time_ms", e.nowMs)
}

// RunUntilMarker dispatches events until the wait marker with the given
// id has been dispatched, or the run terminates.
func (e *Engine) RunUntilMarker(id int64) {
	e.Init()
	for {
		if e.markerSeen && e.lastMarker == id {
			return
		}
		if !e.step() {
			return
		}
	}
}

// RunQuiescent dispatches events until the queue holds only timer events,
// or until simulated time advances past now + timeoutMs, or the run
// terminates. Pending timers are left in the queue for a later Run.
func (e *Engine) RunQuiescent(timeoutMs int64) {
	e.Init()
	deadline := e.nowMs + timeoutMs
	for e.pendingNonTimer > 0 {
		next, ok := e.queue.NextTimeMs()
		if !ok || next > deadline {
			return
		}
		if !e.step() {
			return
		}
	}
}

// push enqueues a payload and maintains the non-timer pending count that
// RunQuiescent's drain condition is defined over. An atMs earlier than the
// current time is moved up to the current time.
func (e *Engine) push(atMs int64, payload any) queue.Token {
	if atMs < e.nowMs {
		atMs = e.nowMs
	}
	if _, isTimer := payload.(timerFireEvent); !isTimer {
		e.pendingNonTimer++
	}
	return e.queue.Push(atMs, payload)
}

// step dispatches one event. It returns false when the run is over:
// queue drained, limit exceeded, or halt dispatched.
func (e *Engine) step() bool {
	if e.termination != "" {
		return false
	}
	if e.dispatched >= e.cfg.MaxEvents {
		e.termination = report.TerminationEventBudget
		return false
	}

	item, ok := e.queue.Pop()
	if !ok {
		return false
	}

	// Time is monotonic: the queue orders by (time, insertion_seq) and
	// every push schedules at or after the current time.
	e.nowMs = item.TimeMs
	if e.nowMs > e.cfg.MaxSimTimeMs {
		e.termination = report.TerminationTimeout
		return false
	}
	e.dispatched++

	if _, isTimer := item.Payload.(timerFireEvent); !isTimer {
		e.pendingNonTimer--
	}

	switch ev := item.Payload.(type) {
	case appDataEvent:
		ep := e.endpointFor(ev.from)
		e.runHook(ep, func(host protocol.HostCapability) {
			ep.proto.OnAppData(host, ev.data)
		})
	case packetArrivalEvent:
		ep := e.endpointFor(ev.to)
		e.runHook(ep, func(host protocol.HostCapability) {
			ep.proto.OnPacket(host, ev.pkt)
		})
	case timerFireEvent:
		// A stale fire (cancelled or replaced after this event was
		// enqueued) is dropped silently. The mapping is removed before
		// the hook runs so it may re-arm the same id.
		if e.timers.Fire(ev.endpoint, ev.timerID, ev.generation) {
			ep := e.endpointFor(ev.endpoint)
			e.runHook(ep, func(host protocol.HostCapability) {
				ep.proto.OnTimer(host, ev.timerID)
			})
		}
	case channelMutationEvent:
		ch := e.channelFor(ev.direction)
		ch.Mutate(ev.patch.Apply(ch.Config))
	case waitMarkerEvent:
		e.lastMarker = ev.id
		e.markerSeen = true
	case haltEvent:
		e.termination = report.TerminationAborted
		return false
	}
	return true
}

// runHook invokes one protocol hook under a fresh scoped capability, then
// replays the buffered actions in call order.
func (e *Engine) runHook(ep *endpoint, hook func(protocol.HostCapability)) {
	host := &hostCap{engine: e, ep: ep}
	hook(host)

	for _, a := range host.actions {
		switch a.kind {
		case actionSendPacket:
			e.emit(ep.id, a.pkt)
		case actionStartTimer:
			prevToken, hadPrev, gen := e.timers.Begin(ep.id, a.timerID)
			if hadPrev {
				e.queue.Cancel(prevToken)
			}
			tok := e.push(e.nowMs+a.delayMs, timerFireEvent{
				endpoint:   ep.id,
				timerID:    a.timerID,
				generation: gen,
			})
			e.timers.Commit(ep.id, a.timerID, tok, gen)
		case actionCancelTimer:
			if tok, hadPrev := e.timers.Cancel(ep.id, a.timerID); hadPrev {
				e.queue.Cancel(tok)
			}
		}
	}
}

// emit runs one packet through the outbound channel of the emitting
// endpoint, schedules the resulting arrivals, and records the link-event
// trail.
func (e *Engine) emit(from packet.NodeId, p packet.Packet) {
	ch := e.s2r
	if from == packet.Receiver {
		ch = e.r2s
	}

	arrivals, summaries := ch.Emit(e.nowMs, p)
	for _, a := range arrivals {
		e.push(a.ArriveTimeMs, packetArrivalEvent{to: ch.To, pkt: a.Packet})
	}
	for _, s := range summaries {
		e.linkEvents = append(e.linkEvents, toLinkEvent(s))
	}
}

func (e *Engine) endpointFor(id packet.NodeId) *endpoint {
	if id == packet.Sender {
		return e.sender
	}
	return e.receiver
}

func (e *Engine) channelFor(d Direction) *channel.Channel {
	if d == S2R {
		return e.s2r
	}
	return e.r2s
}

func (e *Engine) logRuntimeError(err *RuntimeError) {
	e.logs = append(e.logs, report.LogEntry{
		AtMs:    e.nowMs,
		From:    err.Endpoint.String(),
		Message: err.Error(),
	})
}

// Report assembles the simulation report. Call after Run; the verdict is
// left zero for the scenario runner to fill in.
func (e *Engine) Report() *report.Report {
	termination := e.termination
	if termination == "" {
		termination = report.TerminationCompleted
	}

	r := &report.Report{
		Config: report.Config{
			Seed:         e.cfg.Seed,
			MaxSimTimeMs: e.cfg.MaxSimTimeMs,
			MaxEvents:    e.cfg.MaxEvents,
			LinkS2R:      toChannelConfig(e.cfg.LinkS2R),
			LinkR2S:      toChannelConfig(e.cfg.LinkR2S),
		},
		Termination: termination,
		LinkEvents:  append([]report.LinkEvent{}, e.linkEvents...),
		Deliveries: report.Deliveries{
			Sender:   append([]report.Delivery{}, e.sender.deliveries...),
			Receiver: append([]report.Delivery{}, e.receiver.deliveries...),
		},
		Metrics: mergeMetrics(e.sender.metrics, e.receiver.metrics),
		Logs:    append([]report.LogEntry{}, e.logs...),
		Verdict: report.Verdict{Failures: []report.Failure{}},
	}
	return r
}

func toLinkEvent(s channel.Summary) report.LinkEvent {
	ev := report.LinkEvent{
		EmitMs:     s.EmitTimeMs,
		From:       s.From.String(),
		To:         s.To.String(),
		Fate:       s.Fate.String(),
		Seq:        s.SeqNum,
		Ack:        s.AckNum,
		PayloadLen: s.PayloadLen,
	}
	if s.Arrived {
		arrive := s.ArriveTimeMs
		ev.ArriveMs = &arrive
	}
	return ev
}

func toChannelConfig(c channel.Config) report.ChannelConfig {
	return report.ChannelConfig{
		BaseLatencyMs:         c.BaseLatencyMs,
		JitterMs:              c.JitterMs,
		LossProbability:       c.LossProbability,
		CorruptionProbability: c.CorruptionProbability,
		ReorderProbability:    c.ReorderProbability,
		DuplicateProbability:  c.DuplicateProbability,
		BandwidthBps:          c.BandwidthBps,
	}
}

// mergeMetrics combines the two endpoints' metric maps into the report's
// single namespace. Series sharing a name are merged in time order, with
// sender samples first on ties.
func mergeMetrics(sender, receiver map[string][]report.MetricPoint) map[string][]report.MetricPoint {
	out := make(map[string][]report.MetricPoint, len(sender)+len(receiver))
	for name, series := range sender {
		out[name] = append(out[name], series...)
	}
	for name, series := range receiver {
		if existing, shared := out[name]; shared {
			out[name] = mergeByTime(existing, series)
			continue
		}
		out[name] = append(out[name], series...)
	}
	return out
}

func mergeByTime(a, b []report.MetricPoint) []report.MetricPoint {
	merged := append(append([]report.MetricPoint{}, a...), b...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].AtMs < merged[j].AtMs
	})
	return merged
}
