package monitor

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/sarchlab/resmon/timing"
)

// Stats summarizes a resource over the window [Begin, End).
type Stats struct {
	Begin          timing.VTimeInSec `json:"begin"`
	End            timing.VTimeInSec `json:"end"`
	Utilization    float64           `json:"utilization"`
	AvgQueueLength float64           `json:"avg_queue_length"`

	// OccupancyTime and QueueTime are the time integrals of occupancy and
	// queue length over the window.
	OccupancyTime float64 `json:"occupancy_time"`
	QueueTime     float64 `json:"queue_time"`
}

// Integrate computes the time-weighted utilization and average queue length
// of samples over [begin, end). Samples are assumed to be ordered by time. A
// window reaching before the first sample takes the first sample's state; a
// window reaching past the last sample holds the last sample's state.
func Integrate(
	samples []Sample,
	capacity int,
	begin, end timing.VTimeInSec,
) (Stats, error) {
	if math.IsNaN(begin) || math.IsNaN(end) || end <= begin {
		return Stats{}, errors.Wrapf(ErrInvalidWindow,
			"window [%g, %g)", begin, end)
	}

	if capacity < 1 {
		return Stats{}, errors.Wrapf(ErrInvalidCapacity,
			"capacity %d", capacity)
	}

	if len(samples) == 0 {
		return Stats{}, errors.Wrap(ErrInsufficientData, "no samples")
	}

	beginIndex := seek(samples, 0, begin)
	endIndex := seek(samples, beginIndex, end)

	var occTime, queueTime float64

	prevTime := begin
	state := samples[beginIndex]

	for i := beginIndex + 1; i <= endIndex; i++ {
		s := samples[i]
		duration := s.Time - prevTime

		occTime += float64(state.Occupancy) * duration
		queueTime += float64(state.QueueLength) * duration

		prevTime = s.Time
		state = s
	}

	duration := end - prevTime
	occTime += float64(state.Occupancy) * duration
	queueTime += float64(state.QueueLength) * duration

	length := end - begin

	return Stats{
		Begin:          begin,
		End:            end,
		Utilization:    occTime / (length * float64(capacity)),
		AvgQueueLength: queueTime / length,
		OccupancyTime:  occTime,
		QueueTime:      queueTime,
	}, nil
}

// seek returns the greatest index i >= start whose sample time is not later
// than mark. If no such sample exists, start is returned.
func seek(samples []Sample, start int, mark timing.VTimeInSec) int {
	i := start
	for i+1 < len(samples) && samples[i+1].Time <= mark {
		i++
	}

	return i
}
