package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/resmon/monitor"
)

var _ = Describe("Pusher", func() {
	var (
		base   time.Time
		points []monitor.SeriesPoint
	)

	BeforeEach(func() {
		base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		registry := monitor.MakeBuilder().Build()
		Expect(registry.RegisterSamples("office", 2, overlapSamples)).
			To(Succeed())

		var err error
		points, err = registry.Series("office", 5, 20)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should not build without a url", func() {
		Expect(func() { MakePusherBuilder().Build() }).To(Panic())
	})

	It("should convert series points to labeled samples", func() {
		pusher := MakePusherBuilder().
			WithURL("http://localhost:9090/api/v1/write").
			WithScenario("ticket-office").
			WithBaseTime(base).
			WithTimeUnit(time.Minute).
			Build()

		series := pusher.TimeSeries("office", points)

		Expect(series).To(HaveLen(12))
		Expect(series[0].Labels[0].Value).To(Equal("resmon_utilization_cumulative"))
		Expect(series[0].Labels[1].Value).To(Equal("office"))
		Expect(series[0].Labels[2].Value).To(Equal("ticket-office"))
		Expect(series[0].Sample.Time).To(Equal(base.Add(5 * time.Minute)))
		Expect(series[0].Sample.Value).To(BeNumerically("~", 0.5, 1e-12))
		Expect(series[1].Sample.Value).To(BeNumerically("~", 1.0, 1e-12))
	})

	It("should write to the remote endpoint", func() {
		var requests atomic.Int32
		var encoding atomic.Value

		server := httptest.NewServer(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				requests.Add(1)
				encoding.Store(r.Header.Get("Content-Encoding"))
				w.WriteHeader(http.StatusNoContent)
			}))
		defer server.Close()

		pusher := MakePusherBuilder().WithURL(server.URL).Build()

		Expect(pusher.Push(context.Background(), "office", points)).To(Succeed())
		Expect(pusher.Push(context.Background(), "office", nil)).To(Succeed())
		Expect(requests.Load()).To(Equal(int32(1)))
		Expect(encoding.Load()).To(Equal("snappy"))
	})

	It("should report a rejected write", func() {
		server := httptest.NewServer(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}))
		defer server.Close()

		pusher := MakePusherBuilder().WithURL(server.URL).Build()

		Expect(pusher.Push(context.Background(), "office", points)).
			NotTo(Succeed())
	})
})
