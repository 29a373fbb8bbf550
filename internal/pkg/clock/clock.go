// Package clock implements Clock, the Activity subtype spec.md §5's
// TimeLord/MemPool neighbor in original_source/src/sst/core/clock.h:
// a periodic Action that calls a registered handler every fixed period
// and, so long as the handler keeps returning true, reinserts itself
// into its thread's TimeVortex to fire again one period later.
package clock

import (
	logging "github.com/ipfs/go-log"

	"github.com/filecoin-project/vortex-sync/internal/pkg/activity"
)

var log = logging.Logger("sync.clock")

// Handler is called on every tick with the cycle count this Clock has
// fired at. Returning false cancels the Clock: it is not reinserted
// into the TimeVortex again, matching Clock::execute's handler-driven
// cancellation in the source.
type Handler func(cycle uint64) bool

// Vortex is the narrow slice of timevortex.TimeVortex a Clock needs to
// reinsert itself after firing.
type Vortex interface {
	Insert(a *activity.Activity)
}

// Clock is a periodic Activity: constructed with a period and a handler,
// it fires the handler every period cycles until the handler cancels it.
type Clock struct {
	activity.Activity

	period  uint64
	cycle   uint64
	handler Handler
	vortex  Vortex
}

// New constructs a Clock that first fires at startTime+period and keeps
// firing every period cycles thereafter until handler returns false.
func New(vortex Vortex, period, startTime uint64, priorityTag uint32, handler Handler) *Clock {
	c := &Clock{period: period, handler: handler, vortex: vortex}
	c.PriorityOrder = activity.NewPriorityOrder(activity.PriorityClock, priorityTag)
	c.Handler = c
	c.DeliveryTime = startTime + period
	return c
}

// Execute invokes the registered handler for the current cycle and, if
// it asks to continue, reinserts this Clock one period further out.
func (c *Clock) Execute() error {
	c.cycle++
	if !c.handler(c.cycle) {
		log.Debugf("clock: handler canceled clock at cycle=%d", c.cycle)
		return nil
	}
	c.DeliveryTime += c.period
	c.vortex.Insert(&c.Activity)
	return nil
}

// Start inserts this Clock into its TimeVortex for its first firing.
// Callers must call Start exactly once, after construction.
func (c *Clock) Start() {
	c.vortex.Insert(&c.Activity)
}
