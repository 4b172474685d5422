package metrics

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/eryajf/promwrite"
	"github.com/sarchlab/resmon/monitor"
	"github.com/sirupsen/logrus"
)

// Pusher sends utilization series to a Prometheus remote-write endpoint.
// Simulated time is mapped to wall-clock time as base + t * unit.
type Pusher struct {
	client   *promwrite.Client
	scenario string
	base     time.Time
	unit     time.Duration
	timeout  time.Duration
	logger   logrus.FieldLogger
}

// PusherBuilder can build Pushers.
type PusherBuilder struct {
	url      string
	scenario string
	base     time.Time
	unit     time.Duration
	timeout  time.Duration
	logger   logrus.FieldLogger
}

// MakePusherBuilder creates a PusherBuilder with default parameters.
func MakePusherBuilder() PusherBuilder {
	return PusherBuilder{
		unit:    time.Second,
		timeout: 15 * time.Second,
		logger:  logrus.StandardLogger(),
	}
}

// WithURL sets the remote-write endpoint.
func (b PusherBuilder) WithURL(url string) PusherBuilder {
	b.url = url
	return b
}

// WithScenario sets the value of the scenario label.
func (b PusherBuilder) WithScenario(scenario string) PusherBuilder {
	b.scenario = scenario
	return b
}

// WithBaseTime sets the wall-clock time of simulated time 0. It defaults to
// the time Build is called.
func (b PusherBuilder) WithBaseTime(base time.Time) PusherBuilder {
	b.base = base
	return b
}

// WithTimeUnit sets the wall-clock length of one simulated time unit.
func (b PusherBuilder) WithTimeUnit(unit time.Duration) PusherBuilder {
	b.unit = unit
	return b
}

// WithLogger sets the logger.
func (b PusherBuilder) WithLogger(logger logrus.FieldLogger) PusherBuilder {
	b.logger = logger
	return b
}

// Build creates a Pusher.
func (b PusherBuilder) Build() *Pusher {
	if b.url == "" {
		panic("remote-write url is not set")
	}

	base := b.base
	if base.IsZero() {
		base = time.Now()
	}

	return &Pusher{
		client:   promwrite.NewClient(b.url),
		scenario: b.scenario,
		base:     base,
		unit:     b.unit,
		timeout:  b.timeout,
		logger:   b.logger,
	}
}

// TimeSeries converts the series of a resource to remote-write samples.
func (p *Pusher) TimeSeries(
	resourceName string,
	points []monitor.SeriesPoint,
) []promwrite.TimeSeries {
	result := make([]promwrite.TimeSeries, 0, len(points)*4)

	for _, point := range points {
		at := p.base.Add(time.Duration(point.Time * float64(p.unit)))

		values := []struct {
			name  string
			value float64
		}{
			{"utilization_cumulative", point.Cumulative.Utilization},
			{"utilization_interval", point.Interval.Utilization},
			{"avg_queue_length_cumulative", point.Cumulative.AvgQueueLength},
			{"avg_queue_length_interval", point.Interval.AvgQueueLength},
		}

		for _, v := range values {
			result = append(result, promwrite.TimeSeries{
				Labels: []promwrite.Label{
					{Name: "__name__", Value: namespace + "_" + v.name},
					{Name: "resource", Value: resourceName},
					{Name: "scenario", Value: p.scenario},
				},
				Sample: promwrite.Sample{
					Time:  at,
					Value: v.value,
				},
			})
		}
	}

	return result
}

// Push writes the series of a resource in one request.
func (p *Pusher) Push(
	ctx context.Context,
	resourceName string,
	points []monitor.SeriesPoint,
) error {
	if len(points) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	series := p.TimeSeries(resourceName, points)

	_, err := p.client.Write(ctx, &promwrite.WriteRequest{TimeSeries: series})
	if err != nil {
		return errors.Wrapf(err, "writing series of %s", resourceName)
	}

	p.logger.WithFields(logrus.Fields{
		"resource": resourceName,
		"series":   len(series),
	}).Info("series pushed")

	return nil
}
