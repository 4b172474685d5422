package scenario

import (
	"fmt"
	"math/rand/v2"

	"github.com/sarchlab/resmon/monitor"
	"github.com/sarchlab/resmon/monitoring"
	"github.com/sarchlab/resmon/resource"
	"github.com/sarchlab/resmon/simulation"
	"github.com/sarchlab/resmon/timing"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"
)

type arrivalEvent struct {
	*timing.EventBase
	scripted *Scripted
}

type serviceDoneEvent struct {
	*timing.EventBase
	e *entity
}

type renegeEvent struct {
	*timing.EventBase
	e *entity
}

type station struct {
	cfg     *Station
	res     resource.Resource
	service distuv.Exponential
}

func (st *station) serviceTime(e *entity) timing.VTimeInSec {
	if e.scripted != nil && e.step < len(e.scripted.Service) {
		return e.scripted.Service[e.step]
	}

	if st.cfg.MeanService == 0 {
		return 0
	}

	return st.service.Rand()
}

func (st *station) inSystem() int {
	return st.res.Occupancy() + st.res.QueueLength()
}

type entity struct {
	name     string
	scripted *Scripted
	step     int

	at      *station
	arrival timing.VTimeInSec
	start   timing.VTimeInSec
	req     *resource.Request
}

// model is one run of a scenario. It is the handler of all the events of
// the run.
type model struct {
	cfg    *Config
	sim    *simulation.Simulation
	engine *timing.SerialEngine
	logger logrus.FieldLogger

	stations  []*station
	byName    map[string]*station
	arrivals  distuv.Exponential
	routing   *rand.Rand
	generated int

	bar *monitoring.ProgressBar
}

func newModel(
	cfg *Config,
	s *simulation.Simulation,
	seed uint64,
	logger logrus.FieldLogger,
) (*model, error) {
	m := &model{
		cfg:     cfg,
		sim:     s,
		engine:  s.Engine(),
		logger:  logger,
		byName:  make(map[string]*station),
		routing: rand.New(newSource(seed, "routing")),
	}

	if cfg.Arrivals.MeanInterarrival > 0 {
		m.arrivals = distuv.Exponential{
			Rate: 1 / cfg.Arrivals.MeanInterarrival,
			Src:  newSource(seed, "arrivals"),
		}
	}

	for i := range cfg.Stations {
		stCfg := &cfg.Stations[i]

		res, err := s.RegisterResource(stCfg.Name, stCfg.Capacity)
		if err != nil {
			return nil, err
		}

		st := &station{cfg: stCfg, res: res}
		if stCfg.MeanService > 0 {
			st.service = distuv.Exponential{
				Rate: 1 / stCfg.MeanService,
				Src:  newSource(seed, "station/"+stCfg.Name),
			}
		}

		m.stations = append(m.stations, st)
		m.byName[stCfg.Name] = st
	}

	return m, nil
}

func (m *model) expectedEntities() uint64 {
	if m.cfg.Arrivals.MeanInterarrival > 0 && m.cfg.Arrivals.Limit == 0 {
		return 0
	}

	n := len(m.cfg.Entities)
	if m.cfg.Arrivals.MeanInterarrival > 0 {
		n += m.cfg.Arrivals.Limit
	}

	return uint64(n)
}

func (m *model) run() error {
	if mon := m.sim.Monitor(); mon != nil {
		m.bar = mon.CreateProgressBar(m.cfg.Name, m.expectedEntities())
		defer mon.CompleteProgressBar(m.bar)
	}

	for i := range m.cfg.Entities {
		e := &m.cfg.Entities[i]
		if e.Arrival >= m.cfg.Horizon {
			continue
		}

		m.engine.Schedule(arrivalEvent{
			EventBase: timing.NewEventBase(e.Arrival, m),
			scripted:  e,
		})
	}

	if m.cfg.Arrivals.MeanInterarrival > 0 {
		m.engine.Schedule(arrivalEvent{
			EventBase: timing.NewEventBase(0, m),
		})
	}

	return m.engine.RunUntil(m.cfg.Horizon)
}

// Handle processes the events of the run.
func (m *model) Handle(evt timing.Event) error {
	switch e := evt.(type) {
	case arrivalEvent:
		m.handleArrival(e)
	case serviceDoneEvent:
		return m.handleServiceDone(e)
	case renegeEvent:
		return m.handleRenege(e)
	default:
		panic(fmt.Sprintf("cannot handle event of type %T", evt))
	}

	return nil
}

func (m *model) handleArrival(evt arrivalEvent) {
	now := evt.Time()

	e := &entity{scripted: evt.scripted}
	if evt.scripted != nil {
		e.name = evt.scripted.Name
	} else {
		e.name = fmt.Sprintf("Entity#%d", m.generated)
		m.generated++
		m.scheduleNextArrival(now)
	}

	if m.bar != nil {
		m.bar.Arrive(1)
	}

	m.enter(now, e)
}

func (m *model) scheduleNextArrival(now timing.VTimeInSec) {
	limit := m.cfg.Arrivals.Limit
	if limit > 0 && m.generated >= limit {
		return
	}

	next := now + m.arrivals.Rand()
	if next >= m.cfg.Horizon {
		return
	}

	m.engine.Schedule(arrivalEvent{
		EventBase: timing.NewEventBase(next, m),
	})
}

func (m *model) choose(step Step) *station {
	switch {
	case step.Station != "":
		return m.byName[step.Station]
	case len(step.ShortestQueue) > 0:
		var best *station
		for _, name := range step.ShortestQueue {
			st := m.byName[name]
			if best == nil || st.inSystem() < best.inSystem() {
				best = st
			}
		}

		return best
	default:
		total := 0.0
		for _, b := range step.Branches {
			total += b.Weight
		}

		u := m.routing.Float64() * total
		for _, b := range step.Branches {
			u -= b.Weight
			if u < 0 {
				return m.byName[b.Station]
			}
		}

		return m.byName[step.Branches[len(step.Branches)-1].Station]
	}
}

func (m *model) enter(now timing.VTimeInSec, e *entity) {
	st := m.choose(m.cfg.Route[e.step])
	e.at = st
	e.arrival = now

	log := m.logger.WithFields(logrus.Fields{
		"sim_time":  now,
		"entity":    e.name,
		"station":   st.cfg.Name,
		"occupancy": st.res.Occupancy(),
		"queue":     st.res.QueueLength(),
	})

	if st.cfg.QueueLimit > 0 && st.res.QueueLength() >= st.cfg.QueueLimit {
		log.Debug("queue is full, balking")
		m.record(e, monitor.EntityRecord{
			Name:    e.name,
			Arrival: now,
			Depart:  now,
			Outcome: monitor.OutcomeBalked,
		})
		m.leave(e)

		return
	}

	log.Debug("joining queue")

	e.req = st.res.Request(e.name,
		func(now timing.VTimeInSec, _ *resource.Request) {
			m.startService(now, e)
		})

	if st.cfg.WaitLimit > 0 && !e.req.Granted() {
		m.engine.Schedule(renegeEvent{
			EventBase: timing.NewEventBase(now+st.cfg.WaitLimit, m),
			e:         e,
		})
	}
}

func (m *model) startService(now timing.VTimeInSec, e *entity) {
	e.start = now
	service := e.at.serviceTime(e)

	m.logger.WithFields(logrus.Fields{
		"sim_time": now,
		"entity":   e.name,
		"station":  e.at.cfg.Name,
		"waited":   now - e.arrival,
		"service":  service,
	}).Debug("service started")

	m.engine.Schedule(serviceDoneEvent{
		EventBase: timing.NewEventBase(now+service, m),
		e:         e,
	})
}

func (m *model) handleServiceDone(evt serviceDoneEvent) error {
	now := evt.Time()
	e := evt.e

	err := e.at.res.Release(e.req)
	if err != nil {
		return err
	}

	m.record(e, monitor.EntityRecord{
		Name:    e.name,
		Arrival: e.arrival,
		Start:   e.start,
		Depart:  now,
		Outcome: monitor.OutcomeServed,
	})

	e.step++
	if e.step < len(m.cfg.Route) {
		m.enter(now, e)
		return nil
	}

	m.leave(e)

	return nil
}

func (m *model) handleRenege(evt renegeEvent) error {
	now := evt.Time()
	e := evt.e

	if e.req.Granted() || e.req.Released() {
		return nil
	}

	err := e.at.res.Release(e.req)
	if err != nil {
		return err
	}

	m.logger.WithFields(logrus.Fields{
		"sim_time": now,
		"entity":   e.name,
		"station":  e.at.cfg.Name,
	}).Debug("waited too long, reneging")

	m.record(e, monitor.EntityRecord{
		Name:    e.name,
		Arrival: e.arrival,
		Depart:  now,
		Outcome: monitor.OutcomeReneged,
	})
	m.leave(e)

	return nil
}

func (m *model) record(e *entity, rec monitor.EntityRecord) {
	err := m.sim.RecordEntity(e.at.cfg.Name, rec)
	if err != nil {
		panic(err)
	}
}

func (m *model) leave(e *entity) {
	if m.bar != nil {
		m.bar.Leave(1)
	}

	m.logger.WithFields(logrus.Fields{
		"entity": e.name,
	}).Trace("left the system")
}
