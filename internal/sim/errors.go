package sim

import (
	"fmt"

	"github.com/ouc-computer-network/tcp-lab/internal/packet"
)

// RuntimeError represents a protocol misusing the host capability during
// dispatch. These are never fatal: the offending operation is ignored,
// the error is appended to the run log, and the simulation continues.
// A student bug must not brick the grader.
type RuntimeError struct {
	Code     RuntimeErrorCode
	Message  string
	Endpoint packet.NodeId
}

// RuntimeErrorCode categorizes host-misuse errors.
type RuntimeErrorCode string

const (
	// ErrCodeNegativeTimerDelay indicates start_timer with delay_ms < 0.
	ErrCodeNegativeTimerDelay RuntimeErrorCode = "NEGATIVE_TIMER_DELAY"

	// ErrCodeNilDeliverData indicates deliver_data with nil bytes.
	ErrCodeNilDeliverData RuntimeErrorCode = "NIL_DELIVER_DATA"

	// ErrCodeOversizedPayload indicates send_packet with a payload larger
	// than the wire format allows.
	ErrCodeOversizedPayload RuntimeErrorCode = "OVERSIZED_PAYLOAD"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s (endpoint=%s)", e.Code, e.Message, e.Endpoint)
}

func newNegativeTimerDelayError(endpoint packet.NodeId, delayMs int64, timerID int32) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeNegativeTimerDelay,
		Message:  fmt.Sprintf("start_timer(%d, %d) ignored: negative delay", delayMs, timerID),
		Endpoint: endpoint,
	}
}

func newNilDeliverDataError(endpoint packet.NodeId) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeNilDeliverData,
		Message:  "deliver_data(nil) ignored",
		Endpoint: endpoint,
	}
}

func newOversizedPayloadError(endpoint packet.NodeId, size int) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeOversizedPayload,
		Message:  fmt.Sprintf("send_packet ignored: payload length %d exceeds max %d", size, packet.MaxPayloadLen),
		Endpoint: endpoint,
	}
}
