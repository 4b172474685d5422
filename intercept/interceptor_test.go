package intercept

import (
	"bytes"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/resmon/hooking"
	"github.com/sarchlab/resmon/resource"
	"github.com/sirupsen/logrus"
	"go.uber.org/mock/gomock"
)

type stubTimeTeller struct {
	now float64
}

func (t *stubTimeTeller) Now() float64 {
	return t.now
}

type posRecorder struct {
	calls *[]string
}

func (h posRecorder) Func(ctx hooking.HookCtx) {
	*h.calls = append(*h.calls, ctx.Pos.Name+":"+ctx.Item.(resource.Operation).String())
}

var _ = Describe("Interceptor", func() {
	var (
		mockCtrl *gomock.Controller
		inner    *MockResource
		calls    []string
	)

	before := func(r resource.Resource, op resource.Operation) interface{} {
		calls = append(calls, "before:"+op.String())
		return "ctx-" + op.String()
	}

	after := func(r resource.Resource, op resource.Operation, ctx interface{}) {
		calls = append(calls, "after:"+op.String()+":"+ctx.(string))
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		inner = NewMockResource(mockCtrl)
		calls = nil
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should surround the intercepted operation and keep its result", func() {
		req := &resource.Request{ID: "1", Owner: "a"}
		inner.EXPECT().
			Request("a", gomock.Any()).
			DoAndReturn(func(string, resource.GrantFunc) *resource.Request {
				calls = append(calls, "request")
				return req
			})

		i := Intercept(inner, resource.OpRequest, before, after)
		got := i.Request("a", nil)

		Expect(got).To(BeIdenticalTo(req))
		Expect(calls).To(Equal([]string{
			"before:request", "request", "after:request:ctx-request",
		}))
		Expect(i.Operation()).To(Equal(resource.OpRequest))
		Expect(i.Unwrap()).To(BeIdenticalTo(inner))
	})

	It("should return the error of the wrapped release", func() {
		req := &resource.Request{ID: "1"}
		inner.EXPECT().Release(req).Return(resource.ErrUnknownRequest)

		i := Intercept(inner, resource.OpRelease, before, after)
		err := i.Release(req)

		Expect(errors.Is(err, resource.ErrUnknownRequest)).To(BeTrue())
		Expect(calls).To(Equal([]string{
			"before:release", "after:release:ctx-release",
		}))
	})

	It("should forward other operations untouched", func() {
		req := &resource.Request{ID: "1"}
		inner.EXPECT().Release(req).Return(nil)
		inner.EXPECT().Occupancy().Return(3)
		inner.EXPECT().Name().Return("office")

		i := Intercept(inner, resource.OpRequest, before, after)

		Expect(i.Release(req)).To(Succeed())
		Expect(i.Occupancy()).To(Equal(3))
		Expect(i.Name()).To(Equal("office"))
		Expect(calls).To(BeEmpty())
	})

	It("should compose interceptors of different operations", func() {
		req := &resource.Request{ID: "1"}
		inner.EXPECT().Request("a", gomock.Any()).Return(req)
		inner.EXPECT().Release(req).Return(nil)

		var outerCalls []string
		outerBefore := func(r resource.Resource, op resource.Operation) interface{} {
			outerCalls = append(outerCalls, "before:"+op.String())
			return nil
		}

		r := Intercept(
			Intercept(inner, resource.OpRelease, before, after),
			resource.OpRequest, outerBefore, nil)

		Expect(r.Request("a", nil)).To(BeIdenticalTo(req))
		Expect(r.Release(req)).To(Succeed())

		Expect(outerCalls).To(Equal([]string{"before:request"}))
		Expect(calls).To(Equal([]string{
			"before:release", "after:release:ctx-release",
		}))
	})

	It("should let a panic escape without the after callback", func() {
		inner.EXPECT().
			Request("a", gomock.Any()).
			DoAndReturn(func(string, resource.GrantFunc) *resource.Request {
				panic("broken resource")
			})

		i := Intercept(inner, resource.OpRequest, before, after)

		Expect(func() { i.Request("a", nil) }).To(PanicWith("broken resource"))
		Expect(calls).To(Equal([]string{"before:request"}))
	})

	It("should invoke hooks on every layer", func() {
		req := &resource.Request{ID: "1"}
		inner.EXPECT().Request("a", gomock.Any()).Return(req)
		inner.EXPECT().Release(req).Return(nil)

		r := Intercept(
			Intercept(inner, resource.OpRelease, nil, nil),
			resource.OpRequest, nil, nil)

		var hookCalls []string
		AcceptHookAll(r, posRecorder{calls: &hookCalls})

		r.Request("a", nil)
		Expect(r.Release(req)).To(Succeed())

		Expect(hookCalls).To(Equal([]string{
			"BeforeOperation:request", "AfterOperation:request",
			"BeforeOperation:release", "AfterOperation:release",
		}))
	})

	It("should log operations through the log tracer", func() {
		req := &resource.Request{ID: "1"}
		inner.EXPECT().Request("a", gomock.Any()).Return(req)
		inner.EXPECT().Name().Return("office")
		inner.EXPECT().Occupancy().Return(1)
		inner.EXPECT().QueueLength().Return(0)

		buf := new(bytes.Buffer)
		logger := logrus.New()
		logger.SetOutput(buf)
		logger.SetLevel(logrus.DebugLevel)

		i := Intercept(inner, resource.OpRequest, nil, nil)
		i.AcceptHook(NewLogTracer(logger, &stubTimeTeller{now: 2.5}))
		i.Request("a", nil)

		Expect(buf.String()).To(ContainSubstring("resource=office"))
		Expect(buf.String()).To(ContainSubstring("occupancy=1"))
		Expect(buf.String()).To(ContainSubstring("sim_time=2.5"))
	})
})
