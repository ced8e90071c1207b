package sim

import (
	"github.com/ouc-computer-network/tcp-lab/internal/packet"
	"github.com/ouc-computer-network/tcp-lab/internal/report"
)

// bufferedAction is one deferred host operation recorded during a hook.
// Actions replay in call order after the hook returns, which keeps the
// channel's fate draws and timer pushes in the exact order the protocol
// issued them.
type bufferedAction struct {
	kind    actionKind
	pkt     packet.Packet // sendPacket
	delayMs int64         // startTimer
	timerID int32         // startTimer, cancelTimer
}

type actionKind int

const (
	actionSendPacket actionKind = iota
	actionStartTimer
	actionCancelTimer
)

// hostCap is the HostCapability handed to a hook. It is scoped to one
// dispatch: SendPacket/StartTimer/CancelTimer buffer into actions for
// replay, while DeliverData, Log, Now, and RecordMetric take effect
// immediately against the engine's state.
type hostCap struct {
	engine  *Engine
	ep      *endpoint
	actions []bufferedAction
}

func (h *hostCap) SendPacket(p packet.Packet) {
	if len(p.Payload) > packet.MaxPayloadLen {
		h.engine.logRuntimeError(newOversizedPayloadError(h.ep.id, len(p.Payload)))
		return
	}
	h.actions = append(h.actions, bufferedAction{kind: actionSendPacket, pkt: p})
}

func (h *hostCap) StartTimer(delayMs int64, timerID int32) {
	if delayMs < 0 {
		h.engine.logRuntimeError(newNegativeTimerDelayError(h.ep.id, delayMs, timerID))
		return
	}
	h.actions = append(h.actions, bufferedAction{kind: actionStartTimer, delayMs: delayMs, timerID: timerID})
}

func (h *hostCap) CancelTimer(timerID int32) {
	h.actions = append(h.actions, bufferedAction{kind: actionCancelTimer, timerID: timerID})
}

func (h *hostCap) DeliverData(data []byte) {
	if data == nil {
		h.engine.logRuntimeError(newNilDeliverDataError(h.ep.id))
		return
	}
	h.ep.deliveries = append(h.ep.deliveries, report.Delivery{
		AtMs:  h.engine.nowMs,
		Bytes: string(data),
	})
}

func (h *hostCap) Log(message string) {
	h.engine.logs = append(h.engine.logs, report.LogEntry{
		AtMs:    h.engine.nowMs,
		From:    h.ep.id.String(),
		Message: message,
	})
}

func (h *hostCap) Now() int64 {
	return h.engine.nowMs
}

func (h *hostCap) RecordMetric(name string, value float64) {
	h.ep.metrics[name] = append(h.ep.metrics[name], report.MetricPoint{
		AtMs:  h.engine.nowMs,
		Value: value,
	})
}
