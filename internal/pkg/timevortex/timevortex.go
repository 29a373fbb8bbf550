// Package timevortex implements the per-thread ordering substrate: a
// priority queue of Activities delivered in strict (delivery_time,
// priority_order, queue_order) ascending order. The implementation follows
// the same container/heap pattern the teacher's syncer.TargetQueue uses
// over chain tipsets, generalized from "highest chain height first" to the
// sync core's full three-level tie-break.
package timevortex

import (
	"container/heap"

	logging "github.com/ipfs/go-log"
	"github.com/pkg/errors"

	"github.com/filecoin-project/vortex-sync/internal/pkg/activity"
	"github.com/filecoin-project/vortex-sync/internal/pkg/syncerr"
)

var log = logging.Logger("sync.vortex")

// rawHeap is the container/heap.Interface implementation backing a
// TimeVortex. It is not safe for concurrent use; spec requires exactly one
// thread touch a given TimeVortex.
type rawHeap []*activity.Activity

func (h rawHeap) Len() int { return len(h) }

func (h rawHeap) Less(i, j int) bool { return activity.Less(h[i], h[j]) }

func (h rawHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *rawHeap) Push(x interface{}) {
	*h = append(*h, x.(*activity.Activity))
}

func (h *rawHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// TimeVortex is the per-thread ordered queue of pending Activities.
type TimeVortex struct {
	h          rawHeap
	nextOrder  uint64
	lastPopped uint64
	havePopped bool
	stop       *activity.StopAction
}

// New constructs an empty TimeVortex pre-seeded with the StopAction
// sentinel described in spec.md §4.1.
func New() *TimeVortex {
	tv := &TimeVortex{stop: activity.NewStopAction("event queue empty")}
	heap.Init(&tv.h)
	tv.Insert(&tv.stop.Activity)
	return tv
}

// Insert assigns a fresh queue_order and inserts the Activity. Callers must
// not set QueueOrder themselves; it is overwritten here.
func (tv *TimeVortex) Insert(a *activity.Activity) {
	a.QueueOrder = tv.nextOrder
	tv.nextOrder++
	heap.Push(&tv.h, a)
}

// Front peeks at, without removing, the minimum Activity.
func (tv *TimeVortex) Front() *activity.Activity {
	if tv.h.Len() == 0 {
		return nil
	}
	return tv.h[0]
}

// Empty reports whether the vortex holds no activities at all. The
// StopAction sentinel counts as an activity, so Empty stays false until the
// sentinel itself has been popped.
func (tv *TimeVortex) Empty() bool {
	return tv.h.Len() == 0
}

// Pop removes and returns the minimum Activity. It enforces the
// monotonicity invariant: a popped delivery_time may never be smaller than
// the previous pop's delivery_time. A violation indicates a bug in a
// producer and is reported as syncerr.ErrInvariant with the call-site
// activity attached to the message, matching the fatal-logger contract in
// spec.md §7.
func (tv *TimeVortex) Pop() (*activity.Activity, error) {
	if tv.h.Len() == 0 {
		log.Errorf("TimeVortex.Pop called on an empty vortex with no StopAction sentinel present")
		return nil, errors.Wrap(syncerr.ErrInvariant, "timevortex: pop on empty vortex")
	}
	a := heap.Pop(&tv.h).(*activity.Activity)
	if tv.havePopped && a.DeliveryTime < tv.lastPopped {
		log.Errorf("TimeVortex.Pop invariant violation: delivery_time %d < last popped %d", a.DeliveryTime, tv.lastPopped)
		return nil, errors.Wrapf(syncerr.ErrInvariant, "timevortex: delivery_time %d precedes last popped %d", a.DeliveryTime, tv.lastPopped)
	}
	tv.lastPopped = a.DeliveryTime
	tv.havePopped = true
	return a, nil
}

// Len returns the number of pending activities, including the StopAction
// sentinel.
func (tv *TimeVortex) Len() int { return tv.h.Len() }

// IsStopAction reports whether a popped Activity is the vortex's own
// sentinel, so a caller's main loop can terminate cleanly rather than
// trying to execute it.
func IsStopAction(a *activity.Activity) bool {
	_, ok := a.Handler.(*activity.StopAction)
	return ok
}
