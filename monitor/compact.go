package monitor

// Compact turns a raw observation log into one Sample per distinct timestamp.
// The state recorded for a timestamp is the state of the first observation
// after it, which is the state current when the clock left that timestamp.
// The last observation has nothing to look ahead to and keeps its own state.
func Compact(observations []Observation) []Sample {
	if len(observations) == 0 {
		return nil
	}

	samples := make([]Sample, 0)
	current := observations[0].Time

	for _, o := range observations[1:] {
		if o.Time == current {
			continue
		}

		samples = append(samples, Sample{
			Time:        current,
			Occupancy:   o.Occupancy,
			QueueLength: o.QueueLength,
		})
		current = o.Time
	}

	last := observations[len(observations)-1]
	samples = append(samples, Sample{
		Time:        last.Time,
		Occupancy:   last.Occupancy,
		QueueLength: last.QueueLength,
	})

	return samples
}
