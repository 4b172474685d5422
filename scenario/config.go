// Package scenario runs queueing scenarios described in YAML files on top of
// a monitored simulation. A scenario names a set of stations, how entities
// arrive and the route every entity takes through the stations.
package scenario

import (
	"math"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/sarchlab/resmon/monitor"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned for scenario files that cannot be run.
var ErrInvalidConfig = errors.New("invalid scenario")

// Config is the content of a scenario file.
type Config struct {
	Name          string       `yaml:"name"`
	Horizon       float64      `yaml:"horizon"`
	Seeds         []uint64     `yaml:"seeds"`
	Strategy      string       `yaml:"strategy"`
	DeferredGrant bool         `yaml:"deferred_grant"`
	Stations      []Station    `yaml:"stations"`
	Arrivals      Arrivals     `yaml:"arrivals"`
	Route         []Step       `yaml:"route"`
	Entities      []Scripted   `yaml:"entities"`
	Report        ReportConfig `yaml:"report"`
}

// A Station is a resource that entities queue for.
type Station struct {
	Name        string  `yaml:"name"`
	Capacity    int     `yaml:"capacity"`
	MeanService float64 `yaml:"mean_service"`

	// QueueLimit makes arriving entities balk when that many entities are
	// already waiting. Zero means no limit.
	QueueLimit int `yaml:"queue_limit"`

	// WaitLimit makes waiting entities renege after waiting that long. Zero
	// means entities wait forever.
	WaitLimit float64 `yaml:"wait_limit"`
}

// Arrivals describes the generated entities. Inter-arrival times are
// exponentially distributed. A zero MeanInterarrival disables the generator.
type Arrivals struct {
	MeanInterarrival float64 `yaml:"mean_interarrival"`
	Limit            int     `yaml:"limit"`
}

// A Step is one hop of the route. Exactly one of its fields is set.
type Step struct {
	Station       string   `yaml:"station,omitempty"`
	ShortestQueue []string `yaml:"shortest_queue,omitempty"`
	Branches      []Branch `yaml:"branches,omitempty"`
}

// A Branch is picked with a probability proportional to its weight.
type Branch struct {
	Station string  `yaml:"station"`
	Weight  float64 `yaml:"weight"`
}

// Scripted is an entity with a fixed arrival time. Service lists the service
// time of each step; steps beyond the list draw a random service time.
type Scripted struct {
	Name    string    `yaml:"name"`
	Arrival float64   `yaml:"arrival"`
	Service []float64 `yaml:"service"`
}

// ReportConfig selects the statistics computed after every run.
type ReportConfig struct {
	// Step is the spacing of the utilization series. Zero disables series.
	Step float64 `yaml:"step"`

	// Batch is the number of consecutive series points per confidence
	// interval. Zero disables batching.
	Batch int `yaml:"batch"`

	Level float64 `yaml:"level"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading scenario %s", path)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "scenario %s", path)
	}

	return cfg, nil
}

// Parse decodes and validates a scenario.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}

	err := yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, errors.WithSecondaryError(
			errors.Wrapf(ErrInvalidConfig, "decoding: %v", err), err)
	}

	cfg.applyDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Seeds) == 0 {
		c.Seeds = []uint64{1}
	}

	if c.Report.Level == 0 {
		c.Report.Level = 0.95
	}
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidConfig, format, args...)
}

// Validate checks that the scenario can be run.
func (c *Config) Validate() error {
	if c.Name == "" {
		return invalid("missing name")
	}

	if !(c.Horizon > 0) || math.IsInf(c.Horizon, 0) {
		return invalid("horizon %v must be positive", c.Horizon)
	}

	if _, err := monitor.ParseStrategy(c.Strategy); err != nil {
		return invalid("%v", err)
	}

	if err := c.validateStations(); err != nil {
		return err
	}

	if err := c.validateRoute(); err != nil {
		return err
	}

	if c.Arrivals.MeanInterarrival < 0 || c.Arrivals.Limit < 0 {
		return invalid("arrivals must not be negative")
	}

	if c.Arrivals.MeanInterarrival == 0 && len(c.Entities) == 0 {
		return invalid("no arrivals and no scripted entities")
	}

	for _, e := range c.Entities {
		if e.Arrival < 0 {
			return invalid("entity %s arrives before time 0", e.Name)
		}

		for _, s := range e.Service {
			if s < 0 {
				return invalid("entity %s has a negative service time", e.Name)
			}
		}
	}

	if c.Report.Step < 0 || c.Report.Batch < 0 || c.Report.Batch == 1 {
		return invalid("report step must be positive and batch at least 2")
	}

	if c.Report.Level <= 0 || c.Report.Level >= 1 {
		return invalid("report level %v must be in (0, 1)", c.Report.Level)
	}

	return nil
}

func (c *Config) validateStations() error {
	if len(c.Stations) == 0 {
		return invalid("no stations")
	}

	seen := make(map[string]bool)
	for _, s := range c.Stations {
		if s.Name == "" {
			return invalid("station without a name")
		}

		if seen[s.Name] {
			return invalid("station %s declared twice", s.Name)
		}
		seen[s.Name] = true

		if s.Capacity < 1 {
			return invalid("station %s has capacity %d", s.Name, s.Capacity)
		}

		if s.MeanService < 0 || s.QueueLimit < 0 || s.WaitLimit < 0 {
			return invalid("station %s has negative parameters", s.Name)
		}
	}

	return nil
}

func (c *Config) validateRoute() error {
	if len(c.Route) == 0 {
		return invalid("empty route")
	}

	for i, step := range c.Route {
		set := 0
		if step.Station != "" {
			set++
		}
		if len(step.ShortestQueue) > 0 {
			set++
		}
		if len(step.Branches) > 0 {
			set++
		}

		if set != 1 {
			return invalid("route step %d must name exactly one choice", i)
		}

		for _, name := range step.stations() {
			if c.station(name) == nil {
				return invalid("route step %d: unknown station %s", i, name)
			}
		}

		for _, b := range step.Branches {
			if !(b.Weight > 0) {
				return invalid("route step %d: branch %s needs a positive weight",
					i, b.Station)
			}
		}
	}

	return nil
}

func (c *Config) station(name string) *Station {
	for i := range c.Stations {
		if c.Stations[i].Name == name {
			return &c.Stations[i]
		}
	}

	return nil
}

func (s Step) stations() []string {
	switch {
	case s.Station != "":
		return []string{s.Station}
	case len(s.ShortestQueue) > 0:
		return s.ShortestQueue
	default:
		names := make([]string, 0, len(s.Branches))
		for _, b := range s.Branches {
			names = append(names, b.Station)
		}

		return names
	}
}
