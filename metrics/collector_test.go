package metrics

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sarchlab/resmon/monitor"
	"go.uber.org/mock/gomock"
)

var overlapSamples = []monitor.Sample{
	{Time: 0, Occupancy: 1},
	{Time: 5, Occupancy: 2},
	{Time: 10, Occupancy: 2, QueueLength: 1},
	{Time: 10, Occupancy: 2},
	{Time: 15, Occupancy: 1},
	{Time: 20, Occupancy: 0},
}

var _ = Describe("Collector", func() {
	var (
		mockCtrl   *gomock.Controller
		timeTeller *MockTimeTeller
		registry   *monitor.Registry
		collector  *Collector
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		timeTeller = NewMockTimeTeller(mockCtrl)

		registry = monitor.MakeBuilder().Build()
		Expect(registry.RegisterSamples("office", 2, overlapSamples)).
			To(Succeed())
		Expect(registry.RegisterLog("idle", 1, nil)).To(Succeed())

		collector = NewCollector(registry, timeTeller)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should export the statistics of every resource", func() {
		timeTeller.EXPECT().Now().Return(20.0).AnyTimes()

		expected := `
# HELP resmon_capacity Declared capacity.
# TYPE resmon_capacity gauge
resmon_capacity{resource="idle"} 1
resmon_capacity{resource="office"} 2
# HELP resmon_records_total Observations and samples recorded.
# TYPE resmon_records_total counter
resmon_records_total{resource="idle"} 0
resmon_records_total{resource="office"} 6
# HELP resmon_utilization Time-weighted fraction of capacity in use since time 0.
# TYPE resmon_utilization gauge
resmon_utilization{resource="office"} 0.75
# HELP resmon_occupancy Occupancy of the latest record.
# TYPE resmon_occupancy gauge
resmon_occupancy{resource="office"} 0
`

		err := testutil.CollectAndCompare(collector, strings.NewReader(expected),
			"resmon_capacity", "resmon_records_total",
			"resmon_utilization", "resmon_occupancy")

		Expect(err).NotTo(HaveOccurred())
	})

	It("should skip utilization at time 0", func() {
		timeTeller.EXPECT().Now().Return(0.0).AnyTimes()

		Expect(testutil.CollectAndCount(collector, "resmon_utilization")).
			To(Equal(0))
		Expect(testutil.CollectAndCount(collector, "resmon_sim_time")).
			To(Equal(1))
		Expect(testutil.CollectAndCount(collector, "resmon_queue_length")).
			To(Equal(1))
	})
})
