// Package timedist models a build's total duration as a set of named,
// possibly-missing phases and supports folding distributions from
// multiple builds into a running aggregate.
package timedist

// PhaseDuration is a single named time interval within a distribution.
// Duration is the sum across all merged samples; MinDuration and
// MaxDuration track the per-sample range (all values in milliseconds).
type PhaseDuration struct {
	Name        string `json:"name"`
	Duration    int64  `json:"duration_ms"`
	MinDuration int64  `json:"min_duration_ms"`
	MaxDuration int64  `json:"max_duration_ms"`
}

// TimeDistribution decomposes a total duration into named phases.
// A fresh distribution represents one build (SampleCount == 1); Merge
// folds further builds in. Phases keep insertion order.
type TimeDistribution struct {
	Label           string          `json:"label"`
	TotalDuration   int64           `json:"total_duration_ms"`
	SampleCount     int             `json:"sample_count"`
	Phases          []PhaseDuration `json:"phases"`
	UnaccountedTime int64           `json:"unaccounted_ms"`

	// MissingPhases is set when AddPhase was called with an absent
	// duration. Such a distribution is still reportable on its own but
	// must not be folded into an aggregate.
	MissingPhases bool `json:"missing_phases"`
}

// New creates a distribution for a single build with the given total
// duration in milliseconds. All time is unaccounted until phases are added.
func New(label string, totalDuration int64) *TimeDistribution {
	return &TimeDistribution{
		Label:           label,
		TotalDuration:   totalDuration,
		SampleCount:     1,
		UnaccountedTime: totalDuration,
	}
}

// AddPhase appends a named phase. A nil duration means the build did not
// report the underlying metric: the phase is omitted entirely,
// UnaccountedTime is left untouched and MissingPhases is set. Callers must
// not add the same phase name twice to one distribution; this is not
// checked here.
func (d *TimeDistribution) AddPhase(name string, duration *int64) {
	if duration == nil {
		d.MissingPhases = true

		return
	}

	d.Phases = append(d.Phases, PhaseDuration{
		Name:        name,
		Duration:    *duration,
		MinDuration: *duration,
		MaxDuration: *duration,
	})

	d.UnaccountedTime -= *duration
}

// Phase returns the summed duration of the first phase with the given
// name, or false when the phase was never recorded. Lookup is linear;
// distributions hold at most a handful of phases.
func (d *TimeDistribution) Phase(name string) (int64, bool) {
	for i := range d.Phases {
		if d.Phases[i].Name == name {
			return d.Phases[i].Duration, true
		}
	}

	return 0, false
}

// Merge folds another distribution of the same kind into this one and
// returns the result as a new distribution; neither input is mutated.
// Totals and sample counts are summed. Phases iterate from the receiver:
// same-named phases sum their durations and widen their min/max range,
// phases only present in other are dropped. The drop is a deliberate
// compatibility choice and is covered by tests.
func (d *TimeDistribution) Merge(other *TimeDistribution) *TimeDistribution {
	merged := &TimeDistribution{
		Label:         d.Label,
		TotalDuration: d.TotalDuration + other.TotalDuration,
		SampleCount:   d.SampleCount + other.SampleCount,
		Phases:        make([]PhaseDuration, 0, len(d.Phases)),
		MissingPhases: d.MissingPhases || other.MissingPhases,
	}

	for _, phase := range d.Phases {
		if theirs, ok := other.phase(phase.Name); ok {
			merged.Phases = append(merged.Phases, PhaseDuration{
				Name:        phase.Name,
				Duration:    phase.Duration + theirs.Duration,
				MinDuration: min(phase.MinDuration, theirs.MinDuration),
				MaxDuration: max(phase.MaxDuration, theirs.MaxDuration),
			})

			continue
		}

		merged.Phases = append(merged.Phases, phase)
	}

	// Rederive unaccounted time so the totalDuration − Σ phases invariant
	// holds even when the asymmetric merge dropped phases from other.
	merged.UnaccountedTime = merged.TotalDuration
	for i := range merged.Phases {
		merged.UnaccountedTime -= merged.Phases[i].Duration
	}

	return merged
}

// phase returns the full phase entry by name.
func (d *TimeDistribution) phase(name string) (PhaseDuration, bool) {
	for i := range d.Phases {
		if d.Phases[i].Name == name {
			return d.Phases[i], true
		}
	}

	return PhaseDuration{}, false
}

// AverageTotal returns the per-sample total duration.
func (d *TimeDistribution) AverageTotal() int64 {
	if d.SampleCount == 0 {
		return 0
	}

	return d.TotalDuration / int64(d.SampleCount)
}

// PhaseAverage returns the per-sample duration of a phase.
func (d *TimeDistribution) PhaseAverage(name string) (int64, bool) {
	total, ok := d.Phase(name)
	if !ok || d.SampleCount == 0 {
		return 0, ok
	}

	return total / int64(d.SampleCount), true
}

// PhasePercent returns the phase's share of the total duration. Both
// sides are pre-averaged by the sample count so that percentages stay
// consistent for merged aggregates.
func (d *TimeDistribution) PhasePercent(name string) (float64, bool) {
	avg, ok := d.PhaseAverage(name)
	if !ok {
		return 0, false
	}

	avgTotal := d.AverageTotal()
	if avgTotal == 0 {
		return 0, true
	}

	return float64(avg) * 100 / float64(avgTotal), true
}

// UnaccountedAverage returns the per-sample unaccounted time. A negative
// value means the reported phases overlap or over-report; that is a
// reportable anomaly, not an error.
func (d *TimeDistribution) UnaccountedAverage() int64 {
	if d.SampleCount == 0 {
		return 0
	}

	return d.UnaccountedTime / int64(d.SampleCount)
}

// UnaccountedPercent returns the unaccounted share of the total duration,
// averaged the same way as PhasePercent.
func (d *TimeDistribution) UnaccountedPercent() float64 {
	avgTotal := d.AverageTotal()
	if avgTotal == 0 {
		return 0
	}

	return float64(d.UnaccountedAverage()) * 100 / float64(avgTotal)
}
