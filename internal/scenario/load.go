package scenario

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseError reports a malformed scenario. Surfaced before engine start;
// the CLI maps it to the scenario-parse exit code.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("scenario %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("scenario: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Load reads and parses a scenario YAML file. Returns a ParseError if the
// file doesn't exist, is malformed, contains unknown fields (typos), or
// fails validation.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	scn, err := Parse(data)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return scn, nil
}

// Parse decodes scenario YAML with strict field validation (catches typos
// like "assertion:" vs "assertions:") and validates the result.
func Parse(data []byte) (*Scenario, error) {
	var scn Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scn); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := Validate(&scn); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scn, nil
}

// Validate checks required fields, recognized tags, and per-type field
// presence.
func Validate(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	for i, a := range s.Actions {
		if err := validateAction(i, &a); err != nil {
			return err
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateAction(index int, a *Action) error {
	switch a.Type {
	case ActionAppSend:
		if a.From != "sender" && a.From != "receiver" {
			return fmt.Errorf("actions[%d]: from must be \"sender\" or \"receiver\" for app_send", index)
		}
		if a.Bytes == "" {
			return fmt.Errorf("actions[%d]: bytes is required for app_send", index)
		}
	case ActionMutateChannel:
		if a.Direction != "s2r" && a.Direction != "r2s" {
			return fmt.Errorf("actions[%d]: direction must be \"s2r\" or \"r2s\" for mutate_channel", index)
		}
		if a.Patch == nil {
			return fmt.Errorf("actions[%d]: patch is required for mutate_channel", index)
		}
	case ActionWaitUntil:
		if a.TMs <= 0 {
			return fmt.Errorf("actions[%d]: t_ms must be positive for wait_until", index)
		}
	case ActionWaitQuiescent:
		if a.TimeoutMs <= 0 {
			return fmt.Errorf("actions[%d]: timeout_ms must be positive for wait_quiescent", index)
		}
	case ActionDropNextSenderSeq:
		if a.Seq == nil {
			return fmt.Errorf("actions[%d]: seq is required for drop_next_sender_seq", index)
		}
	case ActionDropNextReceiverAck:
		if a.Ack == nil {
			return fmt.Errorf("actions[%d]: ack is required for drop_next_receiver_ack", index)
		}
	case ActionHalt:
		// at_ms 0 halts immediately, which is legal.
	case "":
		return fmt.Errorf("actions[%d]: type is required", index)
	default:
		return fmt.Errorf("actions[%d]: unknown action type %q", index, a.Type)
	}

	if a.AtMs < 0 {
		return fmt.Errorf("actions[%d]: at_ms must be non-negative", index)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertDeliveredEquals:
		if a.Endpoint != "sender" && a.Endpoint != "receiver" {
			return fmt.Errorf("assertions[%d]: endpoint must be \"sender\" or \"receiver\" for delivered_equals", index)
		}
	case AssertDeliveredNoDupsNoGaps:
		if a.Endpoint != "sender" && a.Endpoint != "receiver" {
			return fmt.Errorf("assertions[%d]: endpoint must be \"sender\" or \"receiver\" for delivered_no_duplicates_no_gaps", index)
		}
	case AssertAtMostNRetransmissions:
		if a.Direction != "s2r" && a.Direction != "r2s" {
			return fmt.Errorf("assertions[%d]: direction must be \"s2r\" or \"r2s\" for at_most_n_retransmissions", index)
		}
		if a.N < 0 {
			return fmt.Errorf("assertions[%d]: n must be non-negative for at_most_n_retransmissions", index)
		}
	case AssertMetricInRange:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for metric_in_range", index)
		}
		switch a.Aggregator {
		case "last", "max", "min", "mean":
		default:
			return fmt.Errorf("assertions[%d]: aggregator must be one of last, max, min, mean", index)
		}
	case AssertTerminationCause:
		switch a.Expected {
		case "completed", "timeout", "event_budget", "aborted":
		default:
			return fmt.Errorf("assertions[%d]: expected must be a termination cause for termination_cause", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
