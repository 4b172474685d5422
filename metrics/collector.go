// Package metrics exports the statistics of monitored resources to
// Prometheus, either by being scraped or by remote write.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sarchlab/resmon/monitor"
	"github.com/sarchlab/resmon/timing"
)

const namespace = "resmon"

// Collector is a prometheus.Collector that reads a monitor.Registry on every
// scrape. Statistics cover [0, now) of the simulated clock.
type Collector struct {
	registry   *monitor.Registry
	timeTeller timing.TimeTeller

	utilization    *prometheus.Desc
	avgQueueLength *prometheus.Desc
	occupancy      *prometheus.Desc
	queueLength    *prometheus.Desc
	capacity       *prometheus.Desc
	records        *prometheus.Desc
	simTime        *prometheus.Desc
}

// NewCollector creates a Collector.
func NewCollector(
	registry *monitor.Registry,
	timeTeller timing.TimeTeller,
) *Collector {
	labels := []string{"resource"}

	return &Collector{
		registry:   registry,
		timeTeller: timeTeller,
		utilization: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "utilization"),
			"Time-weighted fraction of capacity in use since time 0.",
			labels, nil),
		avgQueueLength: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "avg_queue_length"),
			"Time-weighted average queue length since time 0.",
			labels, nil),
		occupancy: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "occupancy"),
			"Occupancy of the latest record.",
			labels, nil),
		queueLength: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "queue_length"),
			"Queue length of the latest record.",
			labels, nil),
		capacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "capacity"),
			"Declared capacity.",
			labels, nil),
		records: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "records_total"),
			"Observations and samples recorded.",
			labels, nil),
		simTime: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sim_time"),
			"Current simulated time.",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.utilization
	ch <- c.avgQueueLength
	ch <- c.occupancy
	ch <- c.queueLength
	ch <- c.capacity
	ch <- c.records
	ch <- c.simTime
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	now := c.timeTeller.Now()
	ch <- prometheus.MustNewConstMetric(c.simTime, prometheus.GaugeValue, now)

	for _, name := range c.registry.Names() {
		reg, err := c.registry.Registration(name)
		if err != nil {
			continue
		}

		ch <- prometheus.MustNewConstMetric(c.capacity,
			prometheus.GaugeValue, float64(reg.Capacity()), name)
		ch <- prometheus.MustNewConstMetric(c.records,
			prometheus.CounterValue, float64(reg.NumRecords()), name)

		samples := reg.Samples()
		if len(samples) == 0 {
			continue
		}

		last := samples[len(samples)-1]
		ch <- prometheus.MustNewConstMetric(c.occupancy,
			prometheus.GaugeValue, float64(last.Occupancy), name)
		ch <- prometheus.MustNewConstMetric(c.queueLength,
			prometheus.GaugeValue, float64(last.QueueLength), name)

		stats, err := monitor.Integrate(samples, reg.Capacity(), 0, now)
		if err != nil {
			continue
		}

		ch <- prometheus.MustNewConstMetric(c.utilization,
			prometheus.GaugeValue, stats.Utilization, name)
		ch <- prometheus.MustNewConstMetric(c.avgQueueLength,
			prometheus.GaugeValue, stats.AvgQueueLength, name)
	}
}
