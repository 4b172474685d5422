package intercept

import (
	"github.com/sarchlab/resmon/hooking"
	"github.com/sarchlab/resmon/resource"
	"github.com/sarchlab/resmon/timing"
	"github.com/sirupsen/logrus"
)

// LogTracer writes one debug line per completed operation.
type LogTracer struct {
	logger     logrus.FieldLogger
	timeTeller timing.TimeTeller
}

// NewLogTracer creates a LogTracer.
func NewLogTracer(
	logger logrus.FieldLogger,
	timeTeller timing.TimeTeller,
) *LogTracer {
	return &LogTracer{
		logger:     logger,
		timeTeller: timeTeller,
	}
}

// Func logs the state of the resource after the operation.
func (t *LogTracer) Func(ctx hooking.HookCtx) {
	if ctx.Pos != HookPosAfterOperation {
		return
	}

	r, ok := ctx.Domain.(resource.Resource)
	if !ok {
		return
	}

	t.logger.WithFields(logrus.Fields{
		"sim_time":  t.timeTeller.Now(),
		"resource":  r.Name(),
		"op":        ctx.Item,
		"occupancy": r.Occupancy(),
		"queue":     r.QueueLength(),
	}).Debug("resource operation")
}
