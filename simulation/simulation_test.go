package simulation

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/resmon/datarecording"
	"github.com/sarchlab/resmon/monitor"
	"github.com/sarchlab/resmon/resource"
	"github.com/sarchlab/resmon/timing"
)

type visitEvent struct {
	*timing.EventBase
	hold timing.VTimeInSec
	req  *resource.Request
}

type visitor struct {
	engine *timing.SerialEngine
	res    resource.Resource
}

func (v *visitor) Handle(e timing.Event) error {
	evt := e.(visitEvent)
	if evt.req != nil {
		return v.res.Release(evt.req)
	}

	v.res.Request("entity", func(now timing.VTimeInSec, req *resource.Request) {
		v.engine.Schedule(visitEvent{
			EventBase: timing.NewEventBase(now+evt.hold, v),
			req:       req,
		})
	})

	return nil
}

func (v *visitor) visit(at, hold timing.VTimeInSec) {
	v.engine.Schedule(visitEvent{
		EventBase: timing.NewEventBase(at, v),
		hold:      hold,
	})
}

var _ = Describe("Builder", func() {
	It("should not set a port without monitoring", func() {
		Expect(func() {
			_, _ = MakeBuilder().WithoutMonitoring().WithMonitorPort(8080).Build()
		}).To(Panic())
	})

	It("should not set an output without recording", func() {
		Expect(func() {
			_, _ = MakeBuilder().
				WithoutMonitoring().
				WithoutRecording().
				WithOutputFileName("x").
				Build()
		}).To(Panic())
	})
})

var _ = Describe("Simulation", func() {
	var (
		path       string
		simulation *Simulation
	)

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "sim")

		var err error
		simulation, err = MakeBuilder().
			WithoutMonitoring().
			WithOutputFileName(path).
			Build()
		Expect(err).NotTo(HaveOccurred())
	})

	It("should refuse invalid capacities", func() {
		_, err := simulation.RegisterResource("office", 0)

		Expect(err).To(MatchError(monitor.ErrInvalidCapacity))
		Expect(err.Error()).To(ContainSubstring("resource office, capacity 0"))

		simulation.Terminate()
	})

	It("should monitor, record and replay a resource", func() {
		res, err := simulation.RegisterResource("office", 2)
		Expect(err).NotTo(HaveOccurred())

		v := &visitor{engine: simulation.Engine(), res: res}
		v.visit(0, 10)
		v.visit(5, 10)
		v.visit(10, 10)
		Expect(simulation.Engine().Run()).To(Succeed())

		stats, err := simulation.Query("office", 0, 20)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Utilization).To(BeNumerically("~", 0.75, 1e-12))

		simulation.SetProperty("Scenario", "overlap")
		simulation.Terminate()

		reader, err := datarecording.NewReader(path + ".sqlite3")
		Expect(err).NotTo(HaveOccurred())
		defer reader.Close()

		reader.MapTable(datarecording.TableWindowStats,
			datarecording.WindowStatsEntry{})
		rows, _, err := reader.Query(context.Background(),
			datarecording.TableWindowStats, datarecording.QueryParams{})
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(1))
		Expect(rows[0].(*datarecording.WindowStatsEntry).Utilization).
			To(BeNumerically("~", 0.75, 1e-12))

		replayed := monitor.MakeBuilder().Build()
		Expect(datarecording.Replay(context.Background(), reader, replayed)).
			To(Succeed())

		again, err := replayed.Query("office", 0, 20)
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Utilization).To(BeNumerically("~", 0.75, 1e-12))
	})
})

var _ = Describe("Simulation with monitoring", func() {
	It("should serve the registry over http", func() {
		simulation, err := MakeBuilder().
			WithoutRecording().
			WithStrategy(monitor.StrategyBusyInferred).
			WithDeferredGrant().
			WithEventTracing().
			Build()
		Expect(err).NotTo(HaveOccurred())
		defer simulation.Terminate()

		_, err = simulation.RegisterResource("clerk", 1)
		Expect(err).NotTo(HaveOccurred())

		rsp, err := http.Get(fmt.Sprintf(
			"http://localhost:%d/api/resources", simulation.MonitorPort()))
		Expect(err).NotTo(HaveOccurred())
		defer rsp.Body.Close()

		Expect(rsp.StatusCode).To(Equal(http.StatusOK))
	})
})
