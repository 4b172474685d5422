// Package resource provides a capacity-limited resource with a FIFO wait
// queue. Waiting entities are resumed through a continuation when they are
// granted, rather than blocking.
package resource

import (
	"github.com/cockroachdb/errors"
	"github.com/sarchlab/resmon/timing"
)

// Operation names an operation that a Resource exposes.
type Operation int

// The operations of a Resource. OpRequest is the acquire operation.
const (
	OpRequest Operation = iota
	OpRelease
)

func (o Operation) String() string {
	switch o {
	case OpRequest:
		return "request"
	case OpRelease:
		return "release"
	default:
		return "unknown"
	}
}

// ParseOperation converts the name produced by Operation.String back into an
// Operation.
func ParseOperation(s string) (Operation, error) {
	switch s {
	case "request":
		return OpRequest, nil
	case "release":
		return OpRelease, nil
	default:
		return 0, errors.Newf("unknown operation %q", s)
	}
}

// ErrUnknownRequest is returned when releasing a request that the resource
// does not hold or queue.
var ErrUnknownRequest = errors.New("unknown request")

// GrantFunc is the continuation of a waiting entity. It is invoked once, in
// its own event, at the time the request is granted.
type GrantFunc func(now timing.VTimeInSec, req *Request)

// A Request is a claim on one unit of a Resource.
type Request struct {
	ID        string
	Owner     string
	IssuedAt  timing.VTimeInSec
	GrantedAt timing.VTimeInSec

	granted  bool
	released bool
	onGrant  GrantFunc
}

// Granted tells if the request has been given a unit of the resource.
func (r *Request) Granted() bool {
	return r.granted
}

// Released tells if the request has been released or withdrawn.
func (r *Request) Released() bool {
	return r.released
}

// A Resource is a shared resource with a bounded number of concurrent holders
// and a FIFO queue of waiters.
type Resource interface {
	// Name returns the name of the resource.
	Name() string

	// Capacity returns the maximum number of concurrent holders.
	Capacity() int

	// Occupancy returns the number of current holders.
	Occupancy() int

	// QueueLength returns the number of waiting requests.
	QueueLength() int

	// Request claims one unit on behalf of owner. onGrant runs when the unit
	// is granted.
	Request(owner string, onGrant GrantFunc) *Request

	// Release returns a granted unit, or withdraws a request that is still
	// waiting.
	Release(req *Request) error
}
