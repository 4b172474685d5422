package monitor

import (
	"github.com/cockroachdb/errors"
	"github.com/sarchlab/resmon/timing"
)

// A SeriesPoint pairs the cumulative statistics up to Time with the
// statistics of the following step.
type SeriesPoint struct {
	Time       timing.VTimeInSec `json:"time"`
	Cumulative Stats             `json:"cumulative"`
	Interval   Stats             `json:"interval"`
}

// Series samples a resource every step until horizon. For each t = step,
// 2*step, ... below horizon, Cumulative covers [0, t) and Interval covers
// [t, t+step).
func (r *Registry) Series(
	name string,
	step, horizon timing.VTimeInSec,
) ([]SeriesPoint, error) {
	if !(step > 0) || !(horizon > step) {
		return nil, errors.Wrapf(ErrInvalidWindow,
			"step %g, horizon %g", step, horizon)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	reg, err := r.lookup(name)
	if err != nil {
		return nil, err
	}

	samples := reg.currentSamples()
	points := make([]SeriesPoint, 0)

	for i := 1; ; i++ {
		t := float64(i) * step
		if t >= horizon {
			break
		}

		cumulative, err := Integrate(samples, reg.capacity, 0, t)
		if err != nil {
			return nil, errors.Wrapf(err, "resource %s", name)
		}

		interval, err := Integrate(samples, reg.capacity, t, t+step)
		if err != nil {
			return nil, errors.Wrapf(err, "resource %s", name)
		}

		points = append(points, SeriesPoint{
			Time:       t,
			Cumulative: cumulative,
			Interval:   interval,
		})
	}

	return points, nil
}
