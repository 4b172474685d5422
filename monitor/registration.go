package monitor

import "github.com/sarchlab/resmon/resource"

// A Registration holds everything recorded about one monitored resource.
type Registration struct {
	name     string
	capacity int
	strategy Strategy
	resource resource.Resource

	observations []Observation
	inferred     []Sample
	entities     []EntityRecord

	samples    []Sample
	cacheValid bool
}

// Name returns the name the resource is registered under.
func (reg *Registration) Name() string {
	return reg.name
}

// Capacity returns the declared capacity.
func (reg *Registration) Capacity() int {
	return reg.capacity
}

// Strategy returns how operations are turned into samples.
func (reg *Registration) Strategy() Strategy {
	return reg.strategy
}

// Resource returns the instrumented resource. It is nil for replayed data.
func (reg *Registration) Resource() resource.Resource {
	return reg.resource
}

// NumObservations returns the length of the raw observation log.
func (reg *Registration) NumObservations() int {
	return len(reg.observations)
}

// NumRecords returns the number of observations and busy-inferred samples
// recorded.
func (reg *Registration) NumRecords() int {
	return len(reg.observations) + len(reg.inferred)
}

// Entities returns the entity records.
func (reg *Registration) Entities() []EntityRecord {
	return reg.entities
}

// EntitySummary aggregates the entity records.
func (reg *Registration) EntitySummary() EntitySummary {
	return Summarize(reg.entities)
}

// currentSamples compacts the observation log if it changed since the last
// compaction.
func (reg *Registration) currentSamples() []Sample {
	if reg.strategy == StrategyBusyInferred {
		return reg.inferred
	}

	if !reg.cacheValid {
		reg.samples = Compact(reg.observations)
		reg.cacheValid = true
	}

	return reg.samples
}

func (reg *Registration) clone() *Registration {
	c := &Registration{
		name:         reg.name,
		capacity:     reg.capacity,
		strategy:     reg.strategy,
		resource:     reg.resource,
		observations: append([]Observation(nil), reg.observations...),
		inferred:     append([]Sample(nil), reg.inferred...),
		entities:     append([]EntityRecord(nil), reg.entities...),
	}

	return c
}

// Samples returns the samples of the registration, compacting the log if
// needed.
func (reg *Registration) Samples() []Sample {
	return reg.currentSamples()
}
