// Package oneshot implements OneShot, the single-fire Activity subtype
// from original_source/src/sst/core/oneshot.h: scheduled for one delivery
// time, it calls every registered handler exactly once and is never
// reinserted, unlike clock.Clock's repeating schedule. The source's
// comment that OneShot "cannot be canceled" carries over unchanged: once
// constructed there is no way to prevent its handlers from firing.
package oneshot

import (
	"github.com/filecoin-project/vortex-sync/internal/pkg/activity"
)

// Handler is called with no arguments when a OneShot fires, matching
// SSTHandlerBaseNoArgs<void> in the source.
type Handler func()

// OneShot is an Activity that fires once, at a fixed delivery time,
// calling every handler registered on it before being dropped by its
// TimeVortex like any other delivered Activity.
type OneShot struct {
	activity.Activity

	handlers []Handler
}

// New constructs a OneShot due to fire at deliveryTime.
func New(deliveryTime uint64, priorityTag uint32) *OneShot {
	o := &OneShot{}
	o.PriorityOrder = activity.NewPriorityOrder(activity.PriorityOneShot, priorityTag)
	o.Handler = o
	o.DeliveryTime = deliveryTime
	return o
}

// RegisterHandler adds a handler to be called when this OneShot fires.
// Handlers run in registration order.
func (o *OneShot) RegisterHandler(h Handler) {
	o.handlers = append(o.handlers, h)
}

// Execute calls every registered handler once, in registration order.
func (o *OneShot) Execute() error {
	for _, h := range o.handlers {
		h()
	}
	return nil
}
