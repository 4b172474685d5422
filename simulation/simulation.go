// Package simulation assembles an engine, a monitor registry, the data
// recorder and the monitoring server into one object that scenarios and
// programs can build on.
package simulation

import (
	"github.com/cockroachdb/errors"
	"github.com/sarchlab/resmon/datarecording"
	"github.com/sarchlab/resmon/intercept"
	"github.com/sarchlab/resmon/monitor"
	"github.com/sarchlab/resmon/monitoring"
	"github.com/sarchlab/resmon/resource"
	"github.com/sarchlab/resmon/timing"
	"github.com/sirupsen/logrus"
)

// A Simulation provides the services required to run a monitored simulation.
type Simulation struct {
	id            string
	deferredGrant bool
	traceOps      bool
	logger        logrus.FieldLogger

	engine   *timing.SerialEngine
	registry *monitor.Registry

	dataRecorder    datarecording.DataRecorder
	monitorRecorder *datarecording.MonitorRecorder
	execRecorder    *datarecording.ExecRecorder

	monitor     *monitoring.Monitor
	monitorPort int
}

// ID returns the unique ID of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// Engine returns the engine used in the simulation.
func (s *Simulation) Engine() *timing.SerialEngine {
	return s.engine
}

// Registry returns the registry that holds the logs of all the resources.
func (s *Simulation) Registry() *monitor.Registry {
	return s.registry
}

// DataRecorder returns the data recorder, or nil when recording is off.
func (s *Simulation) DataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// Monitor returns the monitoring server, or nil when monitoring is off.
func (s *Simulation) Monitor() *monitoring.Monitor {
	return s.monitor
}

// MonitorPort returns the port of the monitoring server, or 0 when
// monitoring is off.
func (s *Simulation) MonitorPort() int {
	return s.monitorPort
}

// Logger returns the logger of the simulation.
func (s *Simulation) Logger() logrus.FieldLogger {
	return s.logger
}

// RegisterResource creates a FIFO resource driven by the engine of the
// simulation and registers it with the default strategy. The returned
// resource is the instrumented one.
func (s *Simulation) RegisterResource(
	name string,
	capacity int,
) (resource.Resource, error) {
	if capacity < 1 {
		return nil, errors.Wrapf(monitor.ErrInvalidCapacity,
			"resource %s, capacity %d", name, capacity)
	}

	b := resource.MakeBuilder().
		WithEngine(s.engine).
		WithCapacity(capacity)
	if s.deferredGrant {
		b = b.WithDeferredGrant()
	}

	return s.RegisterExternal(name, b.Build(name), capacity)
}

// RegisterExternal registers a resource that the caller built.
func (s *Simulation) RegisterExternal(
	name string,
	res resource.Resource,
	capacity int,
) (resource.Resource, error) {
	instrumented, err := s.registry.Register(name, res, capacity)
	if err != nil {
		return nil, err
	}

	if s.traceOps {
		intercept.AcceptHookAll(instrumented,
			intercept.NewLogTracer(s.logger, s.engine))
	}

	reg, err := s.registry.Registration(name)
	if err != nil {
		return nil, err
	}

	if s.monitorRecorder != nil {
		s.monitorRecorder.RecordResource(name, capacity, reg.Strategy())
	}

	return instrumented, nil
}

// RecordEntity adds an entity record to the named resource.
func (s *Simulation) RecordEntity(
	name string,
	record monitor.EntityRecord,
) error {
	return s.registry.RecordEntity(name, record)
}

// Query answers a window query and, when recording, persists the result.
func (s *Simulation) Query(
	name string,
	begin, end timing.VTimeInSec,
) (monitor.Stats, error) {
	stats, err := s.registry.Query(name, begin, end)
	if err != nil {
		return monitor.Stats{}, err
	}

	if s.monitorRecorder != nil {
		s.monitorRecorder.RecordStats(name, stats)
	}

	return stats, nil
}

// SetProperty records one property of the run in the exec_info table.
func (s *Simulation) SetProperty(name, value string) {
	if s.execRecorder != nil {
		s.execRecorder.Property(name, value)
	}
}

// Terminate flushes the recorded data and stops the monitoring server.
func (s *Simulation) Terminate() {
	if s.execRecorder != nil {
		s.execRecorder.End()
	}

	if s.dataRecorder != nil {
		err := s.dataRecorder.Close()
		if err != nil {
			s.logger.WithError(err).Error("closing data recorder")
		}
	}

	if s.monitor != nil {
		s.monitor.Shutdown()
	}
}
