// Package activity defines the base entity scheduled into a TimeVortex and
// the fixed priority classes used to break ties between activities that
// share a delivery time.
package activity

// Priority is a fixed integer priority class. Smaller values are delivered
// first when delivery times tie.
type Priority uint32

// Priority classes, in ascending (earlier-delivered) order. Values leave
// room between classes for future insertions without renumbering.
const (
	PriorityThreadSync Priority = 20
	PrioritySync       Priority = 30
	PriorityStopAction Priority = 40
	PriorityClock      Priority = 50
	PriorityEvent      Priority = 60
	PriorityBarrier    Priority = 70
	PriorityOneShot    Priority = 80
	PriorityStatistics Priority = 90
	PriorityFinalEvent Priority = 95
	PriorityExit       Priority = 99
)

// Activity is anything that can be scheduled into a TimeVortex. QueueOrder
// is assigned by the TimeVortex at insertion time and must not be set by
// callers.
type Activity struct {
	DeliveryTime uint64
	// PriorityOrder packs the 32-bit priority class into the high bits and
	// a 32-bit order tag (e.g. a Link's tag) into the low bits, so a
	// single integer comparison captures both tie-break levels.
	PriorityOrder uint64
	QueueOrder    uint64

	// Handler identifies what should run when this Activity is popped.
	// The sync core never interprets it; each Activity subtype closes
	// over whatever it needs to execute itself.
	Handler Executable
}

// Executable is implemented by every concrete Activity subtype (Event,
// SyncManager, StopAction, ExitAction, ...). Keeping this the only virtual
// dispatch point matches the Design Notes guidance to collapse the
// Activity/Event/Action inheritance hierarchy into tagged data plus a
// single trait-object method.
type Executable interface {
	Execute() error
}

// NewPriorityOrder packs a priority class and an order tag (typically a
// Link's wire-up tag) into the single comparison key used for tie-breaking.
func NewPriorityOrder(p Priority, orderTag uint32) uint64 {
	return uint64(p)<<32 | uint64(orderTag)
}

// Less implements the strict (delivery_time, priority_order, queue_order)
// lexicographic ordering predicate, smaller first.
func Less(a, b *Activity) bool {
	if a.DeliveryTime != b.DeliveryTime {
		return a.DeliveryTime < b.DeliveryTime
	}
	if a.PriorityOrder != b.PriorityOrder {
		return a.PriorityOrder < b.PriorityOrder
	}
	return a.QueueOrder < b.QueueOrder
}
