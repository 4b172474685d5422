package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/resmon/hooking"
	"github.com/sarchlab/resmon/monitor"
	"github.com/sarchlab/resmon/resource"
	"github.com/sarchlab/resmon/timing"
)

var overlapSamples = []monitor.Sample{
	{Time: 0, Occupancy: 1},
	{Time: 5, Occupancy: 2},
	{Time: 10, Occupancy: 2, QueueLength: 1},
	{Time: 10, Occupancy: 2},
	{Time: 15, Occupancy: 1},
	{Time: 20, Occupancy: 0},
}

var _ = Describe("Monitor", func() {
	var (
		engine   *timing.SerialEngine
		registry *monitor.Registry
		m        *Monitor
		handler  http.Handler
	)

	get := func(url string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))

		return rec
	}

	BeforeEach(func() {
		engine = timing.NewSerialEngine()
		registry = monitor.MakeBuilder().WithTimeTeller(engine).Build()
		Expect(registry.RegisterSamples("office", 2, overlapSamples)).
			To(Succeed())
		Expect(registry.RegisterLog("idle", 1, nil)).To(Succeed())

		m = NewMonitor().WithPortNumber(0)
		m.RegisterEngine(engine)
		m.RegisterRegistry(registry)
		handler = m.Router()
	})

	It("should report the engine time", func() {
		rec := get("/api/now")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(Equal(`{"now":0.0000000000}`))
	})

	It("should list the resources", func() {
		rec := get("/api/resources")

		var infos []resourceInfo
		Expect(json.Unmarshal(rec.Body.Bytes(), &infos)).To(Succeed())
		Expect(infos).To(HaveLen(2))
		Expect(infos[0].Name).To(Equal("idle"))
		Expect(infos[1].Name).To(Equal("office"))
		Expect(infos[1].Capacity).To(Equal(2))
		Expect(infos[1].Records).To(Equal(6))
		Expect(infos[1].Instrumented).To(BeFalse())
	})

	It("should answer window queries", func() {
		rec := get("/api/resource/office/stats?begin=0&end=10")

		Expect(rec.Code).To(Equal(http.StatusOK))

		var stats monitor.Stats
		Expect(json.Unmarshal(rec.Body.Bytes(), &stats)).To(Succeed())
		Expect(stats.Utilization).To(BeNumerically("~", 0.75, 1e-12))
	})

	It("should map errors to status codes", func() {
		Expect(get("/api/resource/nobody/stats?end=10").Code).
			To(Equal(http.StatusNotFound))
		Expect(get("/api/resource/office/stats?begin=10&end=5").Code).
			To(Equal(http.StatusBadRequest))
		Expect(get("/api/resource/office/stats?end=abc").Code).
			To(Equal(http.StatusBadRequest))
		Expect(get("/api/resource/idle/stats?end=10").Code).
			To(Equal(http.StatusConflict))
	})

	It("should serve the samples", func() {
		rec := get("/api/resource/office/samples")

		var samples []monitor.Sample
		Expect(json.Unmarshal(rec.Body.Bytes(), &samples)).To(Succeed())
		Expect(samples).To(Equal(overlapSamples))

		Expect(get("/api/resource/idle/samples").Body.String()).
			To(Equal("[]"))
	})

	It("should serve the entity records", func() {
		Expect(registry.RecordEntity("office", monitor.EntityRecord{
			Name: "e0", Arrival: 0, Start: 1, Depart: 4,
		})).To(Succeed())

		rec := get("/api/resource/office/entities")

		var rsp entitiesRsp
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.Records).To(HaveLen(1))
		Expect(rsp.Summary.Served).To(Equal(1))
		Expect(rsp.Summary.MeanWait).To(BeNumerically("~", 1, 1e-12))
	})

	It("should describe replayed resources", func() {
		rec := get("/api/resource/office")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"strategy":"busy-inferred"`))
	})

	It("should serialize instrumented resources", func() {
		res := resource.MakeBuilder().
			WithEngine(engine).
			WithCapacity(1).
			Build("clerk")
		_, err := registry.Register("clerk", res, 1)
		Expect(err).NotTo(HaveOccurred())

		rec := get("/api/resource/clerk")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.Len()).To(BeNumerically(">", 0))
	})

	It("should export prometheus metrics", func() {
		rec := get("/metrics")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).
			To(ContainSubstring(`resmon_capacity{resource="office"} 2`))
	})

	It("should control the engine", func() {
		Expect(get("/api/pause").Code).To(Equal(http.StatusOK))
		Expect(get("/api/continue").Code).To(Equal(http.StatusOK))
	})

	It("should refuse engine control without an engine", func() {
		handler = NewMonitor().Router()

		Expect(get("/api/pause").Code).
			To(Equal(http.StatusServiceUnavailable))
		Expect(get("/api/resources").Code).
			To(Equal(http.StatusServiceUnavailable))
	})

	It("should list progress bars", func() {
		bar := m.CreateProgressBar("replication 1", 3)
		bar.Arrive(2)
		bar.Leave(1)

		var bars []ProgressBar
		Expect(json.Unmarshal(get("/api/progress").Body.Bytes(), &bars)).
			To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Name).To(Equal("replication 1"))
		Expect(bars[0].InProgress).To(Equal(uint64(1)))
		Expect(bars[0].Finished).To(Equal(uint64(1)))

		m.CompleteProgressBar(bar)
		Expect(get("/api/progress").Body.String()).To(Equal("[]"))
	})

	Context("when streaming", func() {
		var server *httptest.Server

		BeforeEach(func() {
			server = httptest.NewServer(handler)
		})

		AfterEach(func() {
			m.Shutdown()
			server.Close()
		})

		It("should push registry records to websocket clients", func() {
			url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/stream"
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			Expect(err).NotTo(HaveOccurred())
			defer conn.Close()

			Eventually(m.streams.numSubscribers).Should(Equal(1))

			Expect(registry.RecordEntity("office", monitor.EntityRecord{
				Name: "e1", Arrival: 2, Start: 2, Depart: 3,
			})).To(Succeed())

			Expect(conn.SetReadDeadline(time.Now().Add(5 * time.Second))).
				To(Succeed())

			var msg struct {
				Kind     string               `json:"kind"`
				Resource string               `json:"resource"`
				Item     monitor.EntityRecord `json:"item"`
			}
			Expect(conn.ReadJSON(&msg)).To(Succeed())
			Expect(msg.Kind).To(Equal("entity"))
			Expect(msg.Resource).To(Equal("office"))
			Expect(msg.Item.Name).To(Equal("e1"))
		})
	})
})

var _ = Describe("ProgressBar", func() {
	It("should not leave more entities than are in progress", func() {
		bar := &ProgressBar{Total: 2}

		bar.Arrive(1)
		bar.Leave(2)

		Expect(bar.InProgress).To(Equal(uint64(0)))
		Expect(bar.Finished).To(Equal(uint64(1)))
		Expect(bar.Done()).To(BeFalse())

		bar.Arrive(1)
		bar.Leave(1)
		Expect(bar.Done()).To(BeTrue())
	})
})

func hookCtxOf(pos *hooking.HookPos, item interface{}) hooking.HookCtx {
	return hooking.HookCtx{Pos: pos, Item: item, Detail: "office"}
}

var _ = Describe("streamHub", func() {
	It("should drop messages for clients that fall behind", func() {
		hub := newStreamHub()
		ch := hub.subscribe()

		for i := 0; i < streamBufferSize+3; i++ {
			hub.Func(hookCtxOf(monitor.HookPosSample, monitor.Sample{}))
		}

		Expect(ch).To(HaveLen(streamBufferSize))
		Expect(hub.dropped).To(Equal(uint64(3)))

		hub.unsubscribe(ch)
		Expect(hub.numSubscribers()).To(Equal(0))
	})
})
