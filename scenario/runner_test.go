package scenario

import (
	"context"
	"io"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/resmon/datarecording"
	"github.com/sarchlab/resmon/monitor"
	"github.com/sarchlab/resmon/simulation"
	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return logger
}

func runOnce(path string, seed uint64) *Result {
	cfg, err := Load(path)
	Expect(err).NotTo(HaveOccurred())

	result, err := NewRunner(cfg).
		WithLogger(quietLogger()).
		Run(context.Background(), seed)
	Expect(err).NotTo(HaveOccurred())

	return result
}

var _ = Describe("Runner", func() {
	It("should measure overlapping holders", func() {
		office := runOnce("testdata/overlap.yaml", 1).Station("office")

		Expect(office.HasStats).To(BeTrue())
		Expect(office.Stats.Utilization).To(BeNumerically("~", 0.75, 1e-12))
		Expect(office.Stats.AvgQueueLength).To(BeNumerically("~", 0, 1e-12))
		Expect(office.Entities.Served).To(Equal(2))
	})

	It("should measure a queue", func() {
		counter := runOnce("testdata/queue.yaml", 1).Station("counter")

		Expect(counter.Stats.Utilization).To(BeNumerically("~", 0.75, 1e-12))
		Expect(counter.Stats.AvgQueueLength).
			To(BeNumerically("~", 0.5625, 1e-12))
		Expect(counter.Entities.Served).To(Equal(3))
		Expect(counter.Entities.MeanWait).To(BeNumerically("~", 3, 1e-12))
		Expect(counter.Entities.MeanSojourn).To(BeNumerically("~", 7, 1e-12))
	})

	It("should let entities balk and renege", func() {
		office := runOnce("testdata/balking.yaml", 1).Station("office")

		Expect(office.Entities.Served).To(Equal(1))
		Expect(office.Entities.Balked).To(Equal(1))
		Expect(office.Entities.Reneged).To(Equal(1))
		Expect(office.Stats.Utilization).To(BeNumerically("~", 0.2, 1e-12))
		Expect(office.Stats.AvgQueueLength).To(BeNumerically("~", 0.1, 1e-12))
	})

	It("should route to the shortest queue", func() {
		result := runOnce("testdata/separated.yaml", 1)

		Expect(result.Station("office-1").Entities.Served).To(Equal(2))
		Expect(result.Station("office-2").Entities.Served).To(Equal(1))
	})

	It("should infer busy periods across deferred hand-offs", func() {
		office := runOnce("testdata/deferred.yaml", 1).Station("office")

		Expect(office.Stats.Utilization).To(BeNumerically("~", 0.5, 1e-12))
		Expect(office.Entities.Served).To(Equal(2))
	})

	It("should repeat a run with the same seed", func() {
		first := runOnce("testdata/network.yaml", 42)
		second := runOnce("testdata/network.yaml", 42)

		Expect(first.Stations).To(HaveLen(3))
		for i := range first.Stations {
			Expect(first.Stations[i].Stats).To(Equal(second.Stations[i].Stats))
			Expect(first.Stations[i].Entities).
				To(Equal(second.Stations[i].Entities))
		}

		gate := first.Station("gate")
		Expect(gate.HasStats).To(BeTrue())
		Expect(gate.Stats.Utilization).To(BeNumerically(">", 0))
		Expect(gate.Stats.Utilization).To(BeNumerically("<=", 1))
	})

	It("should summarize replications", func() {
		cfg, err := Load("testdata/ticket_office.yaml")
		Expect(err).NotTo(HaveOccurred())

		summary, err := NewRunner(cfg).
			WithLogger(quietLogger()).
			RunReplications(context.Background())
		Expect(err).NotTo(HaveOccurred())

		Expect(summary.Runs).To(HaveLen(3))
		Expect(summary.Stations).To(HaveLen(1))

		u := summary.Stations[0].Utilization
		Expect(summary.Stations[0].Runs).To(Equal(3))
		Expect(u.Low).To(BeNumerically("<=", u.Mean))
		Expect(u.High).To(BeNumerically(">=", u.Mean))

		office := summary.Runs[0].Station("office")
		Expect(office.Series).To(HaveLen(99))
		Expect(office.UtilizationCI).To(HaveLen(19))
		Expect(office.QueueCI).To(HaveLen(19))
	})

	It("should call the after-run functions with the live registry", func() {
		cfg, err := Load("testdata/queue.yaml")
		Expect(err).NotTo(HaveOccurred())
		cfg.Seeds = []uint64{1, 2}

		var seeds []uint64
		_, err = NewRunner(cfg).
			WithLogger(quietLogger()).
			WithAfterRun(func(s *simulation.Simulation, r *Result) error {
				seeds = append(seeds, r.Seed)

				_, err := s.Registry().Query("counter", 0, 4)
				return err
			}).
			RunReplications(context.Background())

		Expect(err).NotTo(HaveOccurred())
		Expect(seeds).To(Equal([]uint64{1, 2}))
	})

	It("should stop when the context is cancelled", func() {
		cfg, err := Load("testdata/ticket_office.yaml")
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err = NewRunner(cfg).RunReplications(ctx)
		Expect(err).To(MatchError(context.Canceled))
	})

	It("should record every seed into its own database", func() {
		cfg, err := Load("testdata/queue.yaml")
		Expect(err).NotTo(HaveOccurred())
		cfg.Seeds = []uint64{1, 2}

		prefix := filepath.Join(GinkgoT().TempDir(), "queue")
		summary, err := NewRunner(cfg).
			WithLogger(quietLogger()).
			WithSimulationBuilder(simulation.MakeBuilder().WithoutMonitoring()).
			WithOutputPrefix(prefix).
			RunReplications(context.Background())
		Expect(err).NotTo(HaveOccurred())

		Expect(summary.Stations).To(HaveLen(1))
		Expect(summary.Stations[0].Utilization.HalfWidth).To(Equal(0.0))

		reader, err := datarecording.NewReader(prefix + "_seed2.sqlite3")
		Expect(err).NotTo(HaveOccurred())
		defer reader.Close()

		registry := monitor.MakeBuilder().Build()
		Expect(datarecording.Replay(context.Background(), reader, registry)).
			To(Succeed())

		stats, err := registry.Query("counter", 0, 16)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.AvgQueueLength).To(BeNumerically("~", 0.5625, 1e-12))
	})
})
