package monitor

import (
	"github.com/cockroachdb/errors"
	"github.com/sarchlab/resmon/timing"
)

// Outcome is how an entity left a resource.
type Outcome int

// The outcomes of an entity visit.
const (
	OutcomeServed Outcome = iota
	OutcomeBalked
	OutcomeReneged
)

func (o Outcome) String() string {
	switch o {
	case OutcomeServed:
		return "served"
	case OutcomeBalked:
		return "balked"
	case OutcomeReneged:
		return "reneged"
	default:
		return "unknown"
	}
}

// ParseOutcome converts the output of Outcome.String back to an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "served":
		return OutcomeServed, nil
	case "balked":
		return OutcomeBalked, nil
	case "reneged":
		return OutcomeReneged, nil
	default:
		return 0, errors.Newf("unknown outcome %q", s)
	}
}

// An EntityRecord is one visit of an entity to a resource. Start is only
// meaningful for served entities.
type EntityRecord struct {
	Name    string            `json:"name"`
	Arrival timing.VTimeInSec `json:"arrival"`
	Start   timing.VTimeInSec `json:"start"`
	Depart  timing.VTimeInSec `json:"depart"`
	Outcome Outcome           `json:"outcome"`
}

// Wait is the time spent before being served or giving up.
func (r EntityRecord) Wait() timing.VTimeInSec {
	if r.Outcome == OutcomeServed {
		return r.Start - r.Arrival
	}

	return r.Depart - r.Arrival
}

// Sojourn is the total time between arrival and departure.
func (r EntityRecord) Sojourn() timing.VTimeInSec {
	return r.Depart - r.Arrival
}

// EntitySummary aggregates the entity records of one resource.
type EntitySummary struct {
	Served      int     `json:"served"`
	Balked      int     `json:"balked"`
	Reneged     int     `json:"reneged"`
	MeanWait    float64 `json:"mean_wait"`
	MeanSojourn float64 `json:"mean_sojourn"`
}

// Summarize counts the records per outcome. The means cover served entities
// only and are zero when nobody was served.
func Summarize(records []EntityRecord) EntitySummary {
	s := EntitySummary{}

	var wait, sojourn float64

	for _, r := range records {
		switch r.Outcome {
		case OutcomeServed:
			s.Served++
			wait += r.Wait()
			sojourn += r.Sojourn()
		case OutcomeBalked:
			s.Balked++
		case OutcomeReneged:
			s.Reneged++
		}
	}

	if s.Served > 0 {
		s.MeanWait = wait / float64(s.Served)
		s.MeanSojourn = sojourn / float64(s.Served)
	}

	return s
}
