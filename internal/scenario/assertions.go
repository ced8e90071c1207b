package scenario

import (
	"fmt"

	"github.com/ouc-computer-network/tcp-lab/internal/report"
)

// Evaluate runs every assertion against the report and renders the
// verdict: Pass iff all assertions pass, otherwise the list of failures
// with explanatory detail. Assertion failures are collected, never fatal;
// the engine may have terminated on a resource limit and the assertions
// still evaluate against the partial report.
func Evaluate(scn *Scenario, rep *report.Report) report.Verdict {
	failures := []report.Failure{}
	for i, a := range scn.Assertions {
		var detail string
		switch a.Type {
		case AssertDeliveredEquals:
			detail = assertDeliveredEquals(rep, a)
		case AssertDeliveredNoDupsNoGaps:
			detail = assertDeliveredNoDupsNoGaps(scn, rep, a)
		case AssertAtMostNRetransmissions:
			detail = assertAtMostNRetransmissions(scn, rep, a)
		case AssertMetricInRange:
			detail = assertMetricInRange(rep, a)
		case AssertTerminationCause:
			detail = assertTerminationCause(rep, a)
		default:
			detail = fmt.Sprintf("unknown assertion type %q", a.Type)
		}
		if detail != "" {
			failures = append(failures, report.Failure{
				Assertion: fmt.Sprintf("%s[%d]", a.Type, i),
				Detail:    detail,
			})
		}
	}
	return report.Verdict{Pass: len(failures) == 0, Failures: failures}
}

// assertDeliveredEquals checks the concatenated delivery log against the
// expected bytes exactly.
func assertDeliveredEquals(rep *report.Report, a Assertion) string {
	got := string(rep.DeliveredBytes(a.Endpoint))
	if got != a.Expected {
		return fmt.Sprintf("%s delivered %q, expected %q", a.Endpoint, got, a.Expected)
	}
	return ""
}

// assertDeliveredNoDupsNoGaps checks that each byte handed to the peer's
// application layer via app_send appears exactly once, in order, in the
// endpoint's delivery log.
func assertDeliveredNoDupsNoGaps(scn *Scenario, rep *report.Report, a Assertion) string {
	peer := "sender"
	if a.Endpoint == "sender" {
		peer = "receiver"
	}

	var sent []byte
	for _, act := range scn.Actions {
		if act.Type == ActionAppSend && act.From == peer {
			sent = append(sent, act.Bytes...)
		}
	}

	got := rep.DeliveredBytes(a.Endpoint)
	if string(got) != string(sent) {
		return fmt.Sprintf("%s delivered %q, expected the app-sent stream %q exactly once in order", a.Endpoint, got, sent)
	}
	return ""
}

// assertAtMostNRetransmissions counts transmission attempts on the
// direction beyond the minimum required deliveries (one per app_send
// from the direction's emitting endpoint). Attempts with fate delivered,
// dropped, or corrupted count; a duplicate is the channel's doing, not
// the protocol's.
func assertAtMostNRetransmissions(scn *Scenario, rep *report.Report, a Assertion) string {
	from := "sender"
	if a.Direction == "r2s" {
		from = "receiver"
	}

	minRequired := 0
	for _, act := range scn.Actions {
		if act.Type == ActionAppSend && act.From == from {
			minRequired++
		}
	}

	transmissions := 0
	for _, ev := range rep.LinkEvents {
		if ev.From != from {
			continue
		}
		switch ev.Fate {
		case "delivered", "dropped", "corrupted":
			transmissions++
		}
	}

	retransmissions := transmissions - minRequired
	if retransmissions < 0 {
		retransmissions = 0
	}
	if retransmissions > a.N {
		return fmt.Sprintf("direction %s used %d retransmissions (%d attempts for %d required), at most %d allowed",
			a.Direction, retransmissions, transmissions, minRequired, a.N)
	}
	return ""
}

// assertMetricInRange aggregates the named metric series and checks the
// configured bounds.
func assertMetricInRange(rep *report.Report, a Assertion) string {
	series := rep.Metrics[a.Name]
	if len(series) == 0 {
		return fmt.Sprintf("metric %q was never recorded", a.Name)
	}

	var value float64
	switch a.Aggregator {
	case "last":
		value = series[len(series)-1].Value
	case "max":
		value = series[0].Value
		for _, p := range series[1:] {
			if p.Value > value {
				value = p.Value
			}
		}
	case "min":
		value = series[0].Value
		for _, p := range series[1:] {
			if p.Value < value {
				value = p.Value
			}
		}
	case "mean":
		var sum float64
		for _, p := range series {
			sum += p.Value
		}
		value = sum / float64(len(series))
	}

	if a.Min != nil && value < *a.Min {
		return fmt.Sprintf("metric %q %s=%g below minimum %g", a.Name, a.Aggregator, value, *a.Min)
	}
	if a.Max != nil && value > *a.Max {
		return fmt.Sprintf("metric %q %s=%g above maximum %g", a.Name, a.Aggregator, value, *a.Max)
	}
	return ""
}

func assertTerminationCause(rep *report.Report, a Assertion) string {
	if rep.Termination != a.Expected {
		return fmt.Sprintf("terminated with %q, expected %q", rep.Termination, a.Expected)
	}
	return ""
}
