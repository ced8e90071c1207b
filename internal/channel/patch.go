package channel

// Patch is a partial Config update: nil fields keep the current value.
// Scenario channel mutations carry a Patch so a script can flip one
// probability without restating the whole link configuration.
type Patch struct {
	BaseLatencyMs         *uint32
	JitterMs              *uint32
	LossProbability       *float64
	CorruptionProbability *float64
	ReorderProbability    *float64
	DuplicateProbability  *float64
	BandwidthBps          *uint64
}

// Apply returns cfg with the patch's non-nil fields substituted.
func (p Patch) Apply(cfg Config) Config {
	if p.BaseLatencyMs != nil {
		cfg.BaseLatencyMs = *p.BaseLatencyMs
	}
	if p.JitterMs != nil {
		cfg.JitterMs = *p.JitterMs
	}
	if p.LossProbability != nil {
		cfg.LossProbability = *p.LossProbability
	}
	if p.CorruptionProbability != nil {
		cfg.CorruptionProbability = *p.CorruptionProbability
	}
	if p.ReorderProbability != nil {
		cfg.ReorderProbability = *p.ReorderProbability
	}
	if p.DuplicateProbability != nil {
		cfg.DuplicateProbability = *p.DuplicateProbability
	}
	if p.BandwidthBps != nil {
		cfg.BandwidthBps = *p.BandwidthBps
	}
	return cfg
}
