// Package monitor records the state of instrumented resources and answers
// utilization and queue-length queries over arbitrary windows of simulated
// time.
package monitor

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sarchlab/resmon/hooking"
	"github.com/sarchlab/resmon/intercept"
	"github.com/sarchlab/resmon/resource"
	"github.com/sarchlab/resmon/timing"
	"github.com/sirupsen/logrus"
)

// HookPosObservation triggers when an observation is appended to a log. The
// hook Item is the Observation and the Detail is the resource name.
var HookPosObservation = &hooking.HookPos{Name: "Observation"}

// HookPosSample triggers when a busy-inferred sample is recorded. The hook
// Item is the Sample and the Detail is the resource name.
var HookPosSample = &hooking.HookPos{Name: "Sample"}

// HookPosEntity triggers when an entity record is added. The hook Item is the
// EntityRecord and the Detail is the resource name.
var HookPosEntity = &hooking.HookPos{Name: "Entity"}

// A Registry owns the logs of all monitored resources.
type Registry struct {
	hooking.HookableBase

	lock            sync.Mutex
	timeTeller      timing.TimeTeller
	defaultStrategy Strategy
	logger          logrus.FieldLogger
	registrations   map[string]*Registration
}

// Register instruments res with the default strategy of the registry. The
// returned resource must be used in place of res for the operations to be
// recorded.
func (r *Registry) Register(
	name string,
	res resource.Resource,
	capacity int,
) (resource.Resource, error) {
	return r.RegisterWithStrategy(name, res, capacity, r.defaultStrategy)
}

// RegisterWithStrategy instruments res with the given strategy.
func (r *Registry) RegisterWithStrategy(
	name string,
	res resource.Resource,
	capacity int,
	strategy Strategy,
) (resource.Resource, error) {
	if res == nil {
		return nil, errors.Newf("resource %s is nil", name)
	}

	if r.timeTeller == nil {
		return nil, errors.New("registry has no time teller")
	}

	reg, err := r.add(name, capacity, strategy)
	if err != nil {
		return nil, err
	}

	var instrumented resource.Resource

	switch strategy {
	case StrategyDirect:
		instrumented = intercept.Intercept(
			intercept.Intercept(res, resource.OpRequest,
				r.snapshot, r.directAfter(reg)),
			resource.OpRelease, r.snapshot, r.directAfter(reg))
	case StrategyBusyInferred:
		instrumented = intercept.Intercept(
			intercept.Intercept(res, resource.OpRequest,
				r.snapshot, r.inferredAfter(reg)),
			resource.OpRelease, r.snapshot, r.inferredAfter(reg))
	default:
		r.remove(name)
		return nil, errors.Newf("unknown strategy %d", strategy)
	}

	r.lock.Lock()
	reg.resource = instrumented
	r.lock.Unlock()

	return instrumented, nil
}

// RegisterLog registers a recorded observation log that has no live
// resource behind it.
func (r *Registry) RegisterLog(
	name string,
	capacity int,
	observations []Observation,
) error {
	reg, err := r.add(name, capacity, StrategyDirect)
	if err != nil {
		return err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	reg.observations = append(reg.observations, observations...)

	return nil
}

// RegisterSamples registers an already compacted or inferred sample sequence
// that has no live resource behind it.
func (r *Registry) RegisterSamples(
	name string,
	capacity int,
	samples []Sample,
) error {
	reg, err := r.add(name, capacity, StrategyBusyInferred)
	if err != nil {
		return err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	reg.inferred = append(reg.inferred, samples...)

	return nil
}

func (r *Registry) add(
	name string,
	capacity int,
	strategy Strategy,
) (*Registration, error) {
	if capacity < 1 {
		return nil, errors.Wrapf(ErrInvalidCapacity,
			"resource %s, capacity %d", name, capacity)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, found := r.registrations[name]; found {
		return nil, errors.Wrapf(ErrAlreadyRegistered, "resource %s", name)
	}

	reg := &Registration{
		name:     name,
		capacity: capacity,
		strategy: strategy,
	}
	r.registrations[name] = reg

	r.logger.WithFields(logrus.Fields{
		"resource": name,
		"capacity": capacity,
		"strategy": strategy,
	}).Debug("resource registered")

	return reg, nil
}

func (r *Registry) remove(name string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.registrations, name)
}

func (r *Registry) snapshot(
	res resource.Resource,
	_ resource.Operation,
) interface{} {
	return snapshotOf(res)
}

func (r *Registry) directAfter(reg *Registration) intercept.AfterFunc {
	return func(res resource.Resource, op resource.Operation, ctx interface{}) {
		before := ctx.(Snapshot)
		after := snapshotOf(res)
		now := r.timeTeller.Now()

		pre := Observation{
			Time:        now,
			Occupancy:   before.Occupancy,
			QueueLength: before.QueueLength,
			Phase:       PhasePre,
			Op:          op,
		}
		post := Observation{
			Time:        now,
			Occupancy:   after.Occupancy,
			QueueLength: after.QueueLength,
			Phase:       PhasePost,
			Op:          op,
		}

		r.lock.Lock()
		reg.observations = append(reg.observations, pre, post)
		reg.cacheValid = false
		r.lock.Unlock()

		r.invoke(HookPosObservation, pre, reg.name)
		r.invoke(HookPosObservation, post, reg.name)
	}
}

func (r *Registry) inferredAfter(reg *Registration) intercept.AfterFunc {
	return func(res resource.Resource, op resource.Operation, ctx interface{}) {
		before := ctx.(Snapshot)
		occupancy, queueLength := InferBusy(op, before, snapshotOf(res))

		s := Sample{
			Time:        r.timeTeller.Now(),
			Occupancy:   occupancy,
			QueueLength: queueLength,
		}

		r.lock.Lock()
		reg.inferred = append(reg.inferred, s)
		r.lock.Unlock()

		r.invoke(HookPosSample, s, reg.name)
	}
}

func (r *Registry) invoke(pos *hooking.HookPos, item interface{}, name string) {
	if r.NumHooks() == 0 {
		return
	}

	r.InvokeHook(hooking.HookCtx{
		Domain: r,
		Pos:    pos,
		Item:   item,
		Detail: name,
	})
}

// Query returns the utilization and the average queue length of the named
// resource over [begin, end).
func (r *Registry) Query(
	name string,
	begin, end timing.VTimeInSec,
) (Stats, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	reg, err := r.lookup(name)
	if err != nil {
		return Stats{}, err
	}

	stats, err := Integrate(reg.currentSamples(), reg.capacity, begin, end)
	if err != nil {
		return Stats{}, errors.Wrapf(err, "resource %s", name)
	}

	return stats, nil
}

// RecordEntity adds the record of one entity visit to the named resource.
func (r *Registry) RecordEntity(name string, record EntityRecord) error {
	r.lock.Lock()

	reg, err := r.lookup(name)
	if err != nil {
		r.lock.Unlock()
		return err
	}

	reg.entities = append(reg.entities, record)
	r.lock.Unlock()

	r.invoke(HookPosEntity, record, name)

	return nil
}

// Names returns the names of all registered resources in sorted order.
func (r *Registry) Names() []string {
	r.lock.Lock()
	defer r.lock.Unlock()

	names := make([]string, 0, len(r.registrations))
	for name := range r.registrations {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Registration returns a copy of the named registration, taken at the time
// of the call.
func (r *Registry) Registration(name string) (*Registration, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	reg, err := r.lookup(name)
	if err != nil {
		return nil, err
	}

	return reg.clone(), nil
}

// Samples returns the samples the queries of the named resource integrate.
func (r *Registry) Samples(name string) ([]Sample, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	reg, err := r.lookup(name)
	if err != nil {
		return nil, err
	}

	return append([]Sample(nil), reg.currentSamples()...), nil
}

// Observations returns the raw observation log of the named resource. It is
// empty for busy-inferred registrations.
func (r *Registry) Observations(name string) ([]Observation, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	reg, err := r.lookup(name)
	if err != nil {
		return nil, err
	}

	return append([]Observation(nil), reg.observations...), nil
}

func (r *Registry) lookup(name string) (*Registration, error) {
	reg, found := r.registrations[name]
	if !found {
		return nil, errors.Wrapf(ErrNotFound, "resource %s", name)
	}

	return reg, nil
}
