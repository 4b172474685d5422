package simulation

import (
	"github.com/rs/xid"
	"github.com/sarchlab/resmon/datarecording"
	"github.com/sarchlab/resmon/monitor"
	"github.com/sarchlab/resmon/monitoring"
	"github.com/sarchlab/resmon/timing"
	"github.com/sirupsen/logrus"
)

// Builder can be used to build a simulation.
type Builder struct {
	strategy       monitor.Strategy
	deferredGrant  bool
	recordingOn    bool
	outputFileName string
	clickHouse     *datarecording.ClickHouseOptions
	monitorOn      bool
	monitorPort    int
	traceEvents    bool
	logger         logrus.FieldLogger
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		strategy:    monitor.StrategyDirect,
		recordingOn: true,
		monitorOn:   true,
	}
}

// WithStrategy sets how registered resources are monitored.
func (b Builder) WithStrategy(s monitor.Strategy) Builder {
	b.strategy = s
	return b
}

// WithDeferredGrant makes the resources hand released slots to waiters in a
// separate event at the same instant.
func (b Builder) WithDeferredGrant() Builder {
	b.deferredGrant = true
	return b
}

// WithoutRecording disables the database.
func (b Builder) WithoutRecording() Builder {
	b.recordingOn = false
	return b
}

// WithOutputFileName sets the custom output file name for the data recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

// WithClickHouse records into a ClickHouse server instead of SQLite.
func (b Builder) WithClickHouse(opts datarecording.ClickHouseOptions) Builder {
	b.clickHouse = &opts
	return b
}

// WithoutMonitoring sets the simulation to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithEventTracing logs every event and every resource operation at trace
// and debug level.
func (b Builder) WithEventTracing() Builder {
	b.traceEvents = true
	return b
}

// WithLogger sets the logger shared by all the parts of the simulation.
func (b Builder) WithLogger(logger logrus.FieldLogger) Builder {
	b.logger = logger
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}

	if !b.recordingOn && (b.outputFileName != "" || b.clickHouse != nil) {
		panic("output cannot be set when recording is disabled")
	}
}

// Build builds the simulation. It fails only if the ClickHouse server cannot
// be reached.
func (b Builder) Build() (*Simulation, error) {
	b.parametersMustBeValid()

	logger := b.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Simulation{
		id:            xid.New().String(),
		deferredGrant: b.deferredGrant,
		logger:        logger,
	}

	s.engine = timing.NewSerialEngine()
	s.registry = monitor.MakeBuilder().
		WithTimeTeller(s.engine).
		WithStrategy(b.strategy).
		WithLogger(logger).
		Build()

	if b.traceEvents {
		s.engine.AcceptHook(timing.NewEventLogger(logger))
		s.traceOps = true
	}

	if b.recordingOn {
		err := s.startRecording(b)
		if err != nil {
			return nil, err
		}
	}

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor().
			WithLogger(logger).
			WithPortNumber(b.monitorPort)
		s.monitor.RegisterEngine(s.engine)
		s.monitor.RegisterRegistry(s.registry)
		s.monitorPort = s.monitor.StartServer()
	}

	return s, nil
}

func (s *Simulation) startRecording(b Builder) error {
	if b.clickHouse != nil {
		r, err := datarecording.NewClickHouseRecorder(*b.clickHouse)
		if err != nil {
			return err
		}

		s.dataRecorder = r
	} else {
		outputPath := b.outputFileName
		if outputPath == "" {
			outputPath = "resmon_" + s.id
		}

		s.dataRecorder = datarecording.New(outputPath)
	}

	s.monitorRecorder = datarecording.NewMonitorRecorder(s.dataRecorder)
	s.registry.AcceptHook(s.monitorRecorder)

	s.execRecorder = datarecording.NewExecRecorder(s.dataRecorder)
	s.execRecorder.Start()
	s.execRecorder.Property("Simulation ID", s.id)
	s.execRecorder.Property("Strategy", b.strategy.String())

	return nil
}
