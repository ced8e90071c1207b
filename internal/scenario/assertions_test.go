package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ouc-computer-network/tcp-lab/internal/report"
)

func reportWith(mutate func(*report.Report)) *report.Report {
	arrive := int64(10)
	rep := &report.Report{
		Termination: report.TerminationCompleted,
		LinkEvents: []report.LinkEvent{
			{EmitMs: 0, ArriveMs: &arrive, From: "sender", To: "receiver", Fate: "delivered", PayloadLen: 2},
		},
		Deliveries: report.Deliveries{
			Receiver: []report.Delivery{{AtMs: 10, Bytes: "AB"}},
		},
		Metrics: map[string][]report.MetricPoint{
			"retransmits": {{AtMs: 200, Value: 1}, {AtMs: 400, Value: 2}},
		},
	}
	if mutate != nil {
		mutate(rep)
	}
	return rep
}

func scenarioWith(assertions ...Assertion) *Scenario {
	return &Scenario{
		Name: "eval-test",
		Actions: []Action{
			{Type: ActionAppSend, AtMs: 0, From: "sender", Bytes: "AB"},
		},
		Assertions: assertions,
	}
}

func TestEvaluateAllPass(t *testing.T) {
	scn := scenarioWith(
		Assertion{Type: AssertDeliveredEquals, Endpoint: "receiver", Expected: "AB"},
		Assertion{Type: AssertDeliveredNoDupsNoGaps, Endpoint: "receiver"},
		Assertion{Type: AssertAtMostNRetransmissions, Direction: "s2r", N: 0},
		Assertion{Type: AssertTerminationCause, Expected: "completed"},
	)

	verdict := Evaluate(scn, reportWith(nil))

	assert.True(t, verdict.Pass)
	assert.Empty(t, verdict.Failures)
}

func TestEvaluateCollectsAllFailures(t *testing.T) {
	scn := scenarioWith(
		Assertion{Type: AssertDeliveredEquals, Endpoint: "receiver", Expected: "XY"},
		Assertion{Type: AssertTerminationCause, Expected: "timeout"},
	)

	verdict := Evaluate(scn, reportWith(nil))

	assert.False(t, verdict.Pass)
	require.Len(t, verdict.Failures, 2)
	assert.Contains(t, verdict.Failures[0].Assertion, AssertDeliveredEquals)
	assert.Contains(t, verdict.Failures[0].Detail, `"AB"`)
	assert.Contains(t, verdict.Failures[1].Assertion, AssertTerminationCause)
}

func TestDeliveredNoDupsNoGapsDetectsDuplicate(t *testing.T) {
	rep := reportWith(func(r *report.Report) {
		r.Deliveries.Receiver = append(r.Deliveries.Receiver, report.Delivery{AtMs: 20, Bytes: "AB"})
	})
	scn := scenarioWith(Assertion{Type: AssertDeliveredNoDupsNoGaps, Endpoint: "receiver"})

	verdict := Evaluate(scn, rep)

	assert.False(t, verdict.Pass)
}

func TestDeliveredNoDupsNoGapsDetectsGap(t *testing.T) {
	scn := scenarioWith(Assertion{Type: AssertDeliveredNoDupsNoGaps, Endpoint: "receiver"})
	scn.Actions = append(scn.Actions, Action{Type: ActionAppSend, AtMs: 5, From: "sender", Bytes: "CD"})

	verdict := Evaluate(scn, reportWith(nil)) // report only delivered "AB"

	assert.False(t, verdict.Pass)
}

func TestAtMostNRetransmissionsCountsBeyondMinimum(t *testing.T) {
	arrive := int64(210)
	rep := reportWith(func(r *report.Report) {
		r.LinkEvents = append(r.LinkEvents,
			report.LinkEvent{EmitMs: 100, From: "sender", To: "receiver", Fate: "dropped"},
			report.LinkEvent{EmitMs: 200, ArriveMs: &arrive, From: "sender", To: "receiver", Fate: "corrupted"},
			// Channel-made duplicates don't count against the protocol.
			report.LinkEvent{EmitMs: 300, ArriveMs: &arrive, From: "sender", To: "receiver", Fate: "duplicated"},
			// The opposite direction is not counted either.
			report.LinkEvent{EmitMs: 300, ArriveMs: &arrive, From: "receiver", To: "sender", Fate: "delivered"},
		)
	})

	pass := Evaluate(scenarioWith(Assertion{Type: AssertAtMostNRetransmissions, Direction: "s2r", N: 2}), rep)
	assert.True(t, pass.Pass, "failures: %v", pass.Failures)

	fail := Evaluate(scenarioWith(Assertion{Type: AssertAtMostNRetransmissions, Direction: "s2r", N: 1}), rep)
	assert.False(t, fail.Pass)
}

func TestMetricInRangeAggregators(t *testing.T) {
	rep := reportWith(nil) // retransmits: 1 then 2

	tests := []struct {
		aggregator string
		min, max   float64
		pass       bool
	}{
		{"last", 2, 2, true},
		{"last", 0, 1, false},
		{"max", 2, 2, true},
		{"min", 1, 1, true},
		{"mean", 1.5, 1.5, true},
		{"mean", 2, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.aggregator, func(t *testing.T) {
			verdict := Evaluate(scenarioWith(Assertion{
				Type:       AssertMetricInRange,
				Name:       "retransmits",
				Min:        &tt.min,
				Max:        &tt.max,
				Aggregator: tt.aggregator,
			}), rep)
			assert.Equal(t, tt.pass, verdict.Pass, "failures: %v", verdict.Failures)
		})
	}
}

func TestMetricInRangeMissingSeriesFails(t *testing.T) {
	verdict := Evaluate(scenarioWith(Assertion{
		Type:       AssertMetricInRange,
		Name:       "cwnd",
		Aggregator: "last",
	}), reportWith(nil))

	assert.False(t, verdict.Pass)
	require.Len(t, verdict.Failures, 1)
	assert.Contains(t, verdict.Failures[0].Detail, "never recorded")
}

func TestMetricInRangeOpenBounds(t *testing.T) {
	verdict := Evaluate(scenarioWith(Assertion{
		Type:       AssertMetricInRange,
		Name:       "retransmits",
		Aggregator: "last", // no bounds: only existence is checked
	}), reportWith(nil))

	assert.True(t, verdict.Pass)
}
