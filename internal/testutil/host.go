package testutil

import "github.com/ouc-computer-network/tcp-lab/internal/packet"

// TimerOp records one start_timer or cancel_timer call.
type TimerOp struct {
	Cancel  bool
	DelayMs int64
	TimerID int32
}

// Metric records one record_metric call.
type Metric struct {
	Name  string
	Value float64
}

// RecordingHost implements protocol.HostCapability by recording every
// operation, so protocol state machines can be unit-tested without an
// engine. TimeMs is returned by Now and may be set between hook calls.
type RecordingHost struct {
	TimeMs    int64
	Sent      []packet.Packet
	TimerOps  []TimerOp
	Delivered [][]byte
	Logs      []string
	Metrics   []Metric
}

func (h *RecordingHost) SendPacket(p packet.Packet) {
	h.Sent = append(h.Sent, p.Clone())
}

func (h *RecordingHost) StartTimer(delayMs int64, timerID int32) {
	h.TimerOps = append(h.TimerOps, TimerOp{DelayMs: delayMs, TimerID: timerID})
}

func (h *RecordingHost) CancelTimer(timerID int32) {
	h.TimerOps = append(h.TimerOps, TimerOp{Cancel: true, TimerID: timerID})
}

func (h *RecordingHost) DeliverData(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	h.Delivered = append(h.Delivered, buf)
}

func (h *RecordingHost) Log(message string) {
	h.Logs = append(h.Logs, message)
}

func (h *RecordingHost) Now() int64 {
	return h.TimeMs
}

func (h *RecordingHost) RecordMetric(name string, value float64) {
	h.Metrics = append(h.Metrics, Metric{Name: name, Value: value})
}

// LastSent returns the most recently sent packet. Panics if none was
// sent; tests should assert on len(Sent) first.
func (h *RecordingHost) LastSent() packet.Packet {
	return h.Sent[len(h.Sent)-1]
}
