package activity

import "math"

// StopAction is the sentinel Activity pre-seeded into every TimeVortex at
// construction. Its delivery time is the maximum representable cycle, so
// real activities always sort ahead of it; popping it signals that the
// TimeVortex has otherwise run dry and the thread's main loop should
// terminate cleanly.
type StopAction struct {
	Activity
	Reason string
}

// NewStopAction builds the sentinel with the PriorityStopAction class (after
// ThreadSync and Sync, ahead of Clock through Exit), and a delivery time
// effectively unreachable by real activity scheduling.
func NewStopAction(reason string) *StopAction {
	sa := &StopAction{Reason: reason}
	sa.DeliveryTime = math.MaxUint64
	sa.PriorityOrder = NewPriorityOrder(PriorityStopAction, 0)
	sa.Handler = sa
	return sa
}

// Execute is a no-op; the TimeVortex owner inspects the popped value's
// dynamic type to detect the sentinel instead of relying on side effects.
func (s *StopAction) Execute() error { return nil }
