package analysis

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/resmon/monitor"
	"go.uber.org/mock/gomock"
)

var _ = Describe("PeriodReporter", func() {
	var (
		mockCtrl *gomock.Controller
		backend  *MockBackend
		registry *monitor.Registry
		reporter *PeriodReporter
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		backend = NewMockBackend(mockCtrl)

		registry = monitor.MakeBuilder().Build()
		Expect(registry.RegisterSamples("office", 2, []monitor.Sample{
			{Time: 0, Occupancy: 1},
			{Time: 10, Occupancy: 2, QueueLength: 1},
			{Time: 20, Occupancy: 0},
		})).To(Succeed())
		Expect(registry.RegisterLog("idle", 1, nil)).To(Succeed())

		reporter = MakePeriodReporterBuilder().
			WithQuerier(registry).
			WithBackend(backend).
			WithPeriod(10).
			Build()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should not build without a backend", func() {
		Expect(func() {
			MakePeriodReporterBuilder().WithQuerier(registry).Build()
		}).To(Panic())
	})

	It("should report every period and skip idle resources", func() {
		gomock.InOrder(
			backend.EXPECT().AddDataEntry(PeriodEntry{
				Start: 0, End: 10, Where: "office",
				What: "Utilization", Value: 0.5,
			}),
			backend.EXPECT().AddDataEntry(PeriodEntry{
				Start: 0, End: 10, Where: "office",
				What: "AvgQueueLength", Value: 0, Unit: "entities",
			}),
			backend.EXPECT().AddDataEntry(PeriodEntry{
				Start: 10, End: 15, Where: "office",
				What: "Utilization", Value: 1,
			}),
			backend.EXPECT().AddDataEntry(PeriodEntry{
				Start: 10, End: 15, Where: "office",
				What: "AvgQueueLength", Value: 1, Unit: "entities",
			}),
			backend.EXPECT().Flush(),
		)

		Expect(reporter.Report(15)).To(Succeed())
	})

	It("should stop at the first failing query", func() {
		err := reporter.ReportWindow(5, 5)
		Expect(err).To(MatchError(monitor.ErrInvalidWindow))
	})
})

var _ = Describe("CSVBackend", func() {
	It("should write a header and one row per entry", func() {
		buf := new(bytes.Buffer)
		backend := NewCSVBackend(buf)

		backend.AddDataEntry(PeriodEntry{
			Start: 0, End: 2.5, Where: "office",
			What: "Utilization", Value: 0.25,
		})
		backend.Flush()

		Expect(buf.String()).To(Equal(
			"Start,End,Where,What,Value,Unit\n" +
				"0.0000000000,2.5000000000,office,Utilization,0.2500000000,\n"))
	})
})
