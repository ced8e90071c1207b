// Package scenario implements the scripted side of the lab: scenario
// files (actions plus post-run assertions), the runner that drives the
// engine through a script, and the evaluator that renders a verdict.
package scenario

import (
	"github.com/ouc-computer-network/tcp-lab/internal/channel"
)

// Action type constants.
const (
	ActionAppSend             = "app_send"
	ActionMutateChannel       = "mutate_channel"
	ActionWaitUntil           = "wait_until"
	ActionWaitQuiescent       = "wait_quiescent"
	ActionDropNextSenderSeq   = "drop_next_sender_seq"
	ActionDropNextReceiverAck = "drop_next_receiver_ack"
	ActionHalt                = "halt"
)

// Assertion type constants.
const (
	AssertDeliveredEquals        = "delivered_equals"
	AssertDeliveredNoDupsNoGaps  = "delivered_no_duplicates_no_gaps"
	AssertAtMostNRetransmissions = "at_most_n_retransmissions"
	AssertMetricInRange          = "metric_in_range"
	AssertTerminationCause       = "termination_cause"
)

// Scenario is one scripted run: engine configuration, the builtin
// protocol pairing to load, an ordered action list, and the assertions
// evaluated against the final report.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description,omitempty"`

	// Protocol names the builtin protocol pair (e.g. "rdt1", "rdt2.2",
	// "rdt3.0"). Required when running through the CLI; programmatic
	// callers may leave it empty and supply their own pair.
	Protocol string `yaml:"protocol,omitempty"`

	// Seed drives the simulation's deterministic PRNG.
	Seed uint64 `yaml:"seed"`

	// MaxSimTimeMs and MaxEvents bound the run; zero means the engine
	// default.
	MaxSimTimeMs int64  `yaml:"max_sim_time_ms,omitempty"`
	MaxEvents    uint64 `yaml:"max_events,omitempty"`

	// LinkS2R and LinkR2S configure the two channel directions.
	LinkS2R ChannelConfig `yaml:"link_s2r"`
	LinkR2S ChannelConfig `yaml:"link_r2s"`

	// Actions is the ordered script.
	Actions []Action `yaml:"actions"`

	// Assertions validate the final report.
	Assertions []Assertion `yaml:"assertions"`
}

// ChannelConfig mirrors the engine's per-direction link parameters in
// scenario-file form.
type ChannelConfig struct {
	BaseLatencyMs         uint32  `yaml:"base_latency_ms"`
	JitterMs              uint32  `yaml:"jitter_ms,omitempty"`
	LossProbability       float64 `yaml:"loss_probability,omitempty"`
	CorruptionProbability float64 `yaml:"corruption_probability,omitempty"`
	ReorderProbability    float64 `yaml:"reorder_probability,omitempty"`
	DuplicateProbability  float64 `yaml:"duplicate_probability,omitempty"`
	BandwidthBps          uint64  `yaml:"bandwidth_bps,omitempty"`
}

func (c ChannelConfig) toConfig() channel.Config {
	return channel.Config{
		BaseLatencyMs:         c.BaseLatencyMs,
		JitterMs:              c.JitterMs,
		LossProbability:       c.LossProbability,
		CorruptionProbability: c.CorruptionProbability,
		ReorderProbability:    c.ReorderProbability,
		DuplicateProbability:  c.DuplicateProbability,
		BandwidthBps:          c.BandwidthBps,
	}
}

// ChannelPatch is a partial link-parameter update for mutate_channel
// actions: absent fields keep their current value.
type ChannelPatch struct {
	BaseLatencyMs         *uint32  `yaml:"base_latency_ms,omitempty"`
	JitterMs              *uint32  `yaml:"jitter_ms,omitempty"`
	LossProbability       *float64 `yaml:"loss_probability,omitempty"`
	CorruptionProbability *float64 `yaml:"corruption_probability,omitempty"`
	ReorderProbability    *float64 `yaml:"reorder_probability,omitempty"`
	DuplicateProbability  *float64 `yaml:"duplicate_probability,omitempty"`
	BandwidthBps          *uint64  `yaml:"bandwidth_bps,omitempty"`
}

func (p ChannelPatch) toPatch() channel.Patch {
	return channel.Patch{
		BaseLatencyMs:         p.BaseLatencyMs,
		JitterMs:              p.JitterMs,
		LossProbability:       p.LossProbability,
		CorruptionProbability: p.CorruptionProbability,
		ReorderProbability:    p.ReorderProbability,
		DuplicateProbability:  p.DuplicateProbability,
		BandwidthBps:          p.BandwidthBps,
	}
}

// Action is one tagged script entry. Which fields are meaningful depends
// on Type; the loader rejects entries missing their type's required
// fields.
type Action struct {
	Type string `yaml:"type"`

	// AtMs schedules app_send, mutate_channel, and halt.
	AtMs int64 `yaml:"at_ms,omitempty"`

	// From is the emitting endpoint for app_send ("sender" | "receiver").
	From string `yaml:"from,omitempty"`

	// Bytes is the application payload for app_send.
	Bytes string `yaml:"bytes,omitempty"`

	// Direction selects the link for mutate_channel ("s2r" | "r2s").
	Direction string `yaml:"direction,omitempty"`

	// Patch carries the mutate_channel parameter update.
	Patch *ChannelPatch `yaml:"patch,omitempty"`

	// TMs is the simulated time wait_until blocks the script on.
	TMs int64 `yaml:"t_ms,omitempty"`

	// TimeoutMs bounds wait_quiescent.
	TimeoutMs int64 `yaml:"timeout_ms,omitempty"`

	// Seq registers a drop_next_sender_seq one-shot fault.
	Seq *uint32 `yaml:"seq,omitempty"`

	// Ack registers a drop_next_receiver_ack one-shot fault.
	Ack *uint32 `yaml:"ack,omitempty"`
}

// Assertion is one tagged post-run check.
type Assertion struct {
	Type string `yaml:"type"`

	// Endpoint targets delivered_equals and
	// delivered_no_duplicates_no_gaps ("sender" | "receiver").
	Endpoint string `yaml:"endpoint,omitempty"`

	// Expected holds delivered_equals bytes, or the termination_cause
	// value ("completed" | "timeout" | "event_budget" | "aborted").
	Expected string `yaml:"expected,omitempty"`

	// Direction and N parameterize at_most_n_retransmissions.
	Direction string `yaml:"direction,omitempty"`
	N         int    `yaml:"n,omitempty"`

	// Name, Min, Max, and Aggregator parameterize metric_in_range.
	// Nil Min/Max leave that bound open.
	Name       string   `yaml:"name,omitempty"`
	Min        *float64 `yaml:"min,omitempty"`
	Max        *float64 `yaml:"max,omitempty"`
	Aggregator string   `yaml:"aggregator,omitempty"`
}
