package timing

import (
	"github.com/sarchlab/resmon/hooking"
)

// TimeTeller can be used to get the current time.
type TimeTeller interface {
	Now() VTimeInSec
}

// EventScheduler can be used to schedule future events.
type EventScheduler interface {
	TimeTeller

	Schedule(e Event)
}

// An Engine is a unit that keeps the discrete event simulation run.
type Engine interface {
	hooking.Hookable
	EventScheduler

	// Run will process all the events until the simulation finishes
	Run() error

	// RunUntil processes all the events scheduled strictly before t and then
	// advances the clock to t.
	RunUntil(t VTimeInSec) error

	// Pause will pause the simulation until continue is called.
	Pause()

	// Continue will continue the paused simulation
	Continue()
}
