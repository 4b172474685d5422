package monitor

import (
	"github.com/sarchlab/resmon/timing"
	"github.com/sirupsen/logrus"
)

// Builder can build registries.
type Builder struct {
	timeTeller timing.TimeTeller
	strategy   Strategy
	logger     logrus.FieldLogger
}

// MakeBuilder creates a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		strategy: StrategyDirect,
		logger:   logrus.StandardLogger(),
	}
}

// WithTimeTeller sets the clock that stamps observations. It is required for
// registering live resources.
func (b Builder) WithTimeTeller(tt timing.TimeTeller) Builder {
	b.timeTeller = tt
	return b
}

// WithStrategy sets the default strategy of Register.
func (b Builder) WithStrategy(s Strategy) Builder {
	b.strategy = s
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l logrus.FieldLogger) Builder {
	b.logger = l
	return b
}

// Build creates a Registry.
func (b Builder) Build() *Registry {
	logger := b.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Registry{
		timeTeller:      b.timeTeller,
		defaultStrategy: b.strategy,
		logger:          logger,
		registrations:   make(map[string]*Registration),
	}
}
