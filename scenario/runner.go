package scenario

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"github.com/cockroachdb/errors"
	"github.com/sarchlab/resmon/analysis"
	"github.com/sarchlab/resmon/monitor"
	"github.com/sarchlab/resmon/simulation"
	"github.com/sirupsen/logrus"
)

// StationResult is what one run measured at one station.
type StationResult struct {
	Name     string                `json:"name"`
	Capacity int                   `json:"capacity"`
	Stats    monitor.Stats         `json:"stats"`
	HasStats bool                  `json:"has_stats"`
	Entities monitor.EntitySummary `json:"entities"`

	Series        []monitor.SeriesPoint `json:"series,omitempty"`
	UtilizationCI []analysis.Interval   `json:"utilization_ci,omitempty"`
	QueueCI       []analysis.Interval   `json:"queue_ci,omitempty"`
}

// Result is the outcome of one run of a scenario with one seed.
type Result struct {
	Scenario     string          `json:"scenario"`
	Seed         uint64          `json:"seed"`
	SimulationID string          `json:"simulation_id"`
	Horizon      float64         `json:"horizon"`
	Stations     []StationResult `json:"stations"`
}

// Station returns the result of the named station, or nil.
func (r *Result) Station(name string) *StationResult {
	for i := range r.Stations {
		if r.Stations[i].Name == name {
			return &r.Stations[i]
		}
	}

	return nil
}

// StationSummary holds the confidence intervals across runs of one station.
type StationSummary struct {
	Name           string            `json:"name"`
	Runs           int               `json:"runs"`
	Utilization    analysis.Interval `json:"utilization"`
	AvgQueueLength analysis.Interval `json:"avg_queue_length"`
	MeanWait       analysis.Interval `json:"mean_wait"`
}

// Summary is the outcome of running a scenario once per seed.
type Summary struct {
	Scenario string           `json:"scenario"`
	Runs     []*Result        `json:"runs"`
	Stations []StationSummary `json:"stations"`
}

// A Runner runs a scenario.
type Runner struct {
	cfg          *Config
	builder      simulation.Builder
	outputPrefix string
	logger       logrus.FieldLogger
	afterRun     []AfterRunFunc
}

// AfterRunFunc inspects a finished run before its simulation is terminated.
type AfterRunFunc func(s *simulation.Simulation, result *Result) error

// NewRunner creates a Runner that neither records nor serves its runs.
func NewRunner(cfg *Config) *Runner {
	return &Runner{
		cfg: cfg,
		builder: simulation.MakeBuilder().
			WithoutMonitoring().
			WithoutRecording(),
		logger: logrus.StandardLogger(),
	}
}

// WithSimulationBuilder sets the builder of the simulation of every run. The
// strategy and hand-off mode of the scenario are applied on top of it.
func (r *Runner) WithSimulationBuilder(b simulation.Builder) *Runner {
	r.builder = b
	return r
}

// WithOutputPrefix names the database of each run after the prefix and the
// seed. The simulation builder must have recording on.
func (r *Runner) WithOutputPrefix(prefix string) *Runner {
	r.outputPrefix = prefix
	return r
}

// WithAfterRun adds a function that is called after every run.
func (r *Runner) WithAfterRun(f AfterRunFunc) *Runner {
	r.afterRun = append(r.afterRun, f)
	return r
}

// WithLogger sets the logger of the runs.
func (r *Runner) WithLogger(logger logrus.FieldLogger) *Runner {
	r.logger = logger
	return r
}

// SimulationBuilder applies the strategy and the hand-off mode of the
// scenario to b.
func (c *Config) SimulationBuilder(b simulation.Builder) simulation.Builder {
	strategy, _ := monitor.ParseStrategy(c.Strategy)
	b = b.WithStrategy(strategy)

	if c.DeferredGrant {
		b = b.WithDeferredGrant()
	}

	return b
}

// Run builds a simulation, runs the scenario with seed and terminates the
// simulation.
func (r *Runner) Run(ctx context.Context, seed uint64) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := r.cfg.SimulationBuilder(r.builder).WithLogger(r.logger)
	if r.outputPrefix != "" {
		b = b.WithOutputFileName(fmt.Sprintf("%s_seed%d", r.outputPrefix, seed))
	}

	s, err := b.Build()
	if err != nil {
		return nil, err
	}
	defer s.Terminate()

	result, err := r.RunSimulation(s, seed)
	if err != nil {
		return nil, err
	}

	for _, f := range r.afterRun {
		if err := f(s, result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// RunSimulation runs the scenario on a simulation that the caller built and
// will terminate.
func (r *Runner) RunSimulation(
	s *simulation.Simulation,
	seed uint64,
) (*Result, error) {
	s.SetProperty("Scenario", r.cfg.Name)
	s.SetProperty("Seed", fmt.Sprintf("%d", seed))

	m, err := newModel(r.cfg, s, seed, r.logger)
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"scenario": r.cfg.Name,
		"seed":     seed,
	}).Info("running scenario")

	err = m.run()
	if err != nil {
		return nil, err
	}

	return r.collect(s, seed)
}

func (r *Runner) collect(
	s *simulation.Simulation,
	seed uint64,
) (*Result, error) {
	result := &Result{
		Scenario:     r.cfg.Name,
		Seed:         seed,
		SimulationID: s.ID(),
		Horizon:      r.cfg.Horizon,
	}

	for _, st := range r.cfg.Stations {
		sr, err := r.collectStation(s, st)
		if err != nil {
			return nil, err
		}

		result.Stations = append(result.Stations, sr)
	}

	return result, nil
}

func (r *Runner) collectStation(
	s *simulation.Simulation,
	st Station,
) (StationResult, error) {
	sr := StationResult{Name: st.Name, Capacity: st.Capacity}

	reg, err := s.Registry().Registration(st.Name)
	if err != nil {
		return sr, err
	}
	sr.Entities = reg.EntitySummary()

	stats, err := s.Query(st.Name, 0, r.cfg.Horizon)
	switch {
	case errors.Is(err, monitor.ErrInsufficientData):
		return sr, nil
	case err != nil:
		return sr, err
	}

	sr.Stats = stats
	sr.HasStats = true

	report := r.cfg.Report
	if report.Step == 0 || report.Step >= r.cfg.Horizon {
		return sr, nil
	}

	sr.Series, err = s.Registry().Series(st.Name, report.Step, r.cfg.Horizon)
	if err != nil {
		return sr, err
	}

	if report.Batch == 0 {
		return sr, nil
	}

	utilization := make([]float64, 0, len(sr.Series))
	queue := make([]float64, 0, len(sr.Series))
	for _, p := range sr.Series {
		utilization = append(utilization, p.Cumulative.Utilization)
		queue = append(queue, p.Cumulative.AvgQueueLength)
	}

	sr.UtilizationCI, err = analysis.BatchIntervals(
		utilization, report.Batch, report.Level)
	if err != nil {
		return sr, err
	}

	sr.QueueCI, err = analysis.BatchIntervals(
		queue, report.Batch, report.Level)
	if err != nil {
		return sr, err
	}

	return sr, nil
}

// RunReplications runs the scenario once for every seed. With two or more
// seeds, the summary carries a confidence interval per station.
func (r *Runner) RunReplications(ctx context.Context) (*Summary, error) {
	summary := &Summary{Scenario: r.cfg.Name}

	for _, seed := range r.cfg.Seeds {
		result, err := r.Run(ctx, seed)
		if err != nil {
			return nil, errors.Wrapf(err, "seed %d", seed)
		}

		summary.Runs = append(summary.Runs, result)
	}

	if len(summary.Runs) < 2 {
		return summary, nil
	}

	for _, st := range r.cfg.Stations {
		ss, ok, err := r.summarizeStation(summary.Runs, st.Name)
		if err != nil {
			return nil, err
		}

		if ok {
			summary.Stations = append(summary.Stations, ss)
		}
	}

	return summary, nil
}

func (r *Runner) summarizeStation(
	runs []*Result,
	name string,
) (StationSummary, bool, error) {
	var utilization, queue, wait []float64

	for _, run := range runs {
		sr := run.Station(name)
		if sr == nil || !sr.HasStats {
			continue
		}

		utilization = append(utilization, sr.Stats.Utilization)
		queue = append(queue, sr.Stats.AvgQueueLength)
		wait = append(wait, sr.Entities.MeanWait)
	}

	if len(utilization) < 2 {
		return StationSummary{}, false, nil
	}

	ss := StationSummary{Name: name, Runs: len(utilization)}
	level := r.cfg.Report.Level

	var err error
	if ss.Utilization, err = analysis.ConfidenceInterval(utilization, level); err != nil {
		return ss, false, err
	}

	if ss.AvgQueueLength, err = analysis.ConfidenceInterval(queue, level); err != nil {
		return ss, false, err
	}

	if ss.MeanWait, err = analysis.ConfidenceInterval(wait, level); err != nil {
		return ss, false, err
	}

	return ss, true, nil
}

// newSource derives the random stream of one part of a run from the seed and
// the name of the part.
func newSource(seed uint64, part string) *rand.PCG {
	h := fnv.New64a()
	_, _ = h.Write([]byte(part))

	return rand.NewPCG(seed, h.Sum64())
}
