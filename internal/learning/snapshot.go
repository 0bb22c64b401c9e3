package learning

// Snapshot is the persistable learning state. The window contents and the
// running statistics are both carried so that a restore is lossless without
// a rebuild.
type Snapshot struct {
	Samples        []SlopeSample   `json:"samples"`
	ResponseEvents []ResponseEvent `json:"response_events"`
	Count          int             `json:"count"`
	Mean           float64         `json:"mean"`
	M2             float64         `json:"m2"`
	Max            float64         `json:"max"`
	Ready          bool            `json:"ready"`
}

// Snapshot captures the learner's window and statistics
func (l *Learner) Snapshot() Snapshot {
	samples := make([]SlopeSample, len(l.samples))
	copy(samples, l.samples)
	events := make([]ResponseEvent, len(l.responseEvents))
	copy(events, l.responseEvents)

	return Snapshot{
		Samples:        samples,
		ResponseEvents: events,
		Count:          l.stats.count,
		Mean:           l.stats.mean,
		M2:             l.stats.m2,
		Max:            l.stats.max,
		Ready:          l.ready,
	}
}

// Restore replaces the learner's state with a previously captured snapshot
func (l *Learner) Restore(s Snapshot) {
	l.samples = make([]SlopeSample, len(s.Samples))
	copy(l.samples, s.Samples)
	l.responseEvents = make([]ResponseEvent, len(s.ResponseEvents))
	copy(l.responseEvents, s.ResponseEvents)

	l.stats = slopeStats{
		count: s.Count,
		mean:  s.Mean,
		m2:    s.M2,
		max:   s.Max,
	}
	l.ready = s.Ready
}
