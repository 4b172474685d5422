package resource

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/sarchlab/resmon/timing"
)

// Builder can build FIFOResources.
type Builder struct {
	engine        timing.EventScheduler
	capacity      int
	deferredGrant bool
}

// MakeBuilder creates a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		capacity: 1,
	}
}

// WithEngine sets the engine that the resource schedules grants on.
func (b Builder) WithEngine(engine timing.EventScheduler) Builder {
	b.engine = engine
	return b
}

// WithCapacity sets the number of concurrent holders.
func (b Builder) WithCapacity(capacity int) Builder {
	b.capacity = capacity
	return b
}

// WithDeferredGrant makes a release hand the freed unit to the next waiter in
// a separate event at the same time, instead of inside the release call.
func (b Builder) WithDeferredGrant() Builder {
	b.deferredGrant = true
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.engine == nil {
		panic("engine is not set")
	}

	if b.capacity < 1 {
		panic(fmt.Sprintf("capacity must be positive, got %d", b.capacity))
	}
}

// Build creates a new FIFOResource.
func (b Builder) Build(name string) *FIFOResource {
	b.parametersMustBeValid()

	return &FIFOResource{
		name:          name,
		engine:        b.engine,
		capacity:      b.capacity,
		deferredGrant: b.deferredGrant,
	}
}

type grantEvent struct {
	*timing.EventBase
	req *Request
}

type handoffEvent struct {
	*timing.EventBase
}

// FIFOResource is a Resource that serves waiters in arrival order.
type FIFOResource struct {
	name          string
	engine        timing.EventScheduler
	capacity      int
	deferredGrant bool

	users          []*Request
	queue          []*Request
	handoffPending bool
}

// Name returns the name of the resource.
func (r *FIFOResource) Name() string {
	return r.name
}

// Capacity returns the maximum number of concurrent holders.
func (r *FIFOResource) Capacity() int {
	return r.capacity
}

// Occupancy returns the number of current holders.
func (r *FIFOResource) Occupancy() int {
	return len(r.users)
}

// QueueLength returns the number of waiting requests.
func (r *FIFOResource) QueueLength() int {
	return len(r.queue)
}

// Request claims one unit. The request is granted immediately only if nobody
// is waiting and a unit is free; otherwise it joins the tail of the queue.
func (r *FIFOResource) Request(owner string, onGrant GrantFunc) *Request {
	req := &Request{
		ID:       timing.GenerateID(),
		Owner:    owner,
		IssuedAt: r.engine.Now(),
		onGrant:  onGrant,
	}

	if len(r.queue) == 0 && len(r.users) < r.capacity {
		r.grant(req)
		return req
	}

	r.queue = append(r.queue, req)

	return req
}

// Release returns a granted unit or withdraws a waiting request.
func (r *FIFOResource) Release(req *Request) error {
	if req == nil {
		return errors.Wrapf(ErrUnknownRequest, "nil request on %s", r.name)
	}

	if i := indexOf(r.users, req); i >= 0 {
		r.users = append(r.users[:i], r.users[i+1:]...)
		req.released = true
		r.slotFreed()

		return nil
	}

	if i := indexOf(r.queue, req); i >= 0 {
		r.queue = append(r.queue[:i], r.queue[i+1:]...)
		req.released = true

		return nil
	}

	return errors.Wrapf(ErrUnknownRequest, "request %s on %s", req.ID, r.name)
}

// Handle delivers grants and deferred hand-offs.
func (r *FIFOResource) Handle(e timing.Event) error {
	switch evt := e.(type) {
	case grantEvent:
		if evt.req.onGrant != nil && !evt.req.released {
			evt.req.onGrant(evt.Time(), evt.req)
		}
	case handoffEvent:
		r.handoffPending = false
		r.admitWaiting()
	default:
		return errors.Newf("%s cannot handle event %T", r.name, e)
	}

	return nil
}

func (r *FIFOResource) slotFreed() {
	if !r.deferredGrant {
		r.admitWaiting()
		return
	}

	if len(r.queue) == 0 || r.handoffPending {
		return
	}

	r.handoffPending = true
	r.engine.Schedule(handoffEvent{timing.NewEventBase(r.engine.Now(), r)})
}

func (r *FIFOResource) admitWaiting() {
	for len(r.queue) > 0 && len(r.users) < r.capacity {
		req := r.queue[0]
		r.queue = r.queue[1:]
		r.grant(req)
	}
}

func (r *FIFOResource) grant(req *Request) {
	now := r.engine.Now()

	r.users = append(r.users, req)
	req.granted = true
	req.GrantedAt = now

	r.engine.Schedule(grantEvent{
		EventBase: timing.NewEventBase(now, r),
		req:       req,
	})
}

func indexOf(list []*Request, req *Request) int {
	for i, r := range list {
		if r == req {
			return i
		}
	}

	return -1
}
