package monitor

import (
	"github.com/cockroachdb/errors"
	"github.com/sarchlab/resmon/resource"
	"github.com/sarchlab/resmon/timing"
)

// Phase tells whether an Observation was taken before or after the operation.
type Phase int

// The phases of an Observation.
const (
	PhasePre Phase = iota
	PhasePost
)

func (p Phase) String() string {
	if p == PhasePre {
		return "pre"
	}

	return "post"
}

// ParsePhase converts "pre" or "post" into a Phase.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "pre":
		return PhasePre, nil
	case "post":
		return PhasePost, nil
	default:
		return 0, errors.Newf("unknown phase %q", s)
	}
}

// An Observation is the state of a resource around one intercepted operation.
type Observation struct {
	Time        timing.VTimeInSec  `json:"time"`
	Occupancy   int                `json:"occupancy"`
	QueueLength int                `json:"queue_length"`
	Phase       Phase              `json:"phase"`
	Op          resource.Operation `json:"op"`
}

// A Sample is the state that holds from Time until the time of the next
// Sample.
type Sample struct {
	Time        timing.VTimeInSec `json:"time"`
	Occupancy   int               `json:"occupancy"`
	QueueLength int               `json:"queue_length"`
}

// Snapshot is the occupancy and queue length of a resource at one instant.
type Snapshot struct {
	Occupancy   int
	QueueLength int
}

func snapshotOf(r resource.Resource) Snapshot {
	return Snapshot{
		Occupancy:   r.Occupancy(),
		QueueLength: r.QueueLength(),
	}
}

// Strategy selects how a registration turns operations into samples.
type Strategy int

// The instrumentation strategies.
const (
	// StrategyDirect logs raw pre/post observations and compacts them on
	// query.
	StrategyDirect Strategy = iota

	// StrategyBusyInferred records one sample per operation, classified by
	// InferBusy.
	StrategyBusyInferred
)

func (s Strategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategyBusyInferred:
		return "busy-inferred"
	default:
		return "unknown"
	}
}

// ParseStrategy converts the output of Strategy.String back to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "direct":
		return StrategyDirect, nil
	case "busy-inferred":
		return StrategyBusyInferred, nil
	default:
		return 0, errors.Newf("unknown strategy %q", s)
	}
}
