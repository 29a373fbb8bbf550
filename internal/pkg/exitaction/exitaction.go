// Package exitaction implements ExitAction: the reference-counted
// termination detector. Every primary component holds a reference; when
// the per-thread count reaches zero and the rank-sync allreduce of every
// rank's count also reaches zero, the simulation ends.
package exitaction

import (
	"sync"

	logging "github.com/ipfs/go-log"

	"github.com/filecoin-project/vortex-sync/internal/pkg/activity"
)

var log = logging.Logger("sync.exit")

// ExitAction is a per-thread Activity; its reference count is reduced via
// MPI_Allreduce(SUM) at each rank-sync, never mutated mid-sync.
type ExitAction struct {
	activity.Activity

	mu       sync.Mutex
	refCount int64
	endTime  uint64
	ended    bool
}

// New constructs an ExitAction seeded with the given number of primary
// component references.
func New(initialRefCount int64) *ExitAction {
	ea := &ExitAction{refCount: initialRefCount}
	ea.PriorityOrder = activity.NewPriorityOrder(activity.PriorityExit, 0)
	ea.Handler = ea
	return ea
}

// Execute is a no-op; ExitAction participates in the rank-sync allreduce
// rather than running scheduled work of its own.
func (ea *ExitAction) Execute() error { return nil }

// Decrement reduces the local reference count by one, recording endTime
// the first time the count reaches zero so a later global convergence can
// report when this thread's obligations were actually discharged.
func (ea *ExitAction) Decrement(currentTime uint64) int64 {
	ea.mu.Lock()
	defer ea.mu.Unlock()
	ea.refCount--
	if ea.refCount == 0 && !ea.ended {
		ea.ended = true
		ea.endTime = currentTime
		log.Infof("exitaction: local reference count reached zero at t=%d", currentTime)
	}
	return ea.refCount
}

// LocalCount returns the current local reference count, the value a
// RankSync round folds into its MPI_Allreduce(SUM).
func (ea *ExitAction) LocalCount() int64 {
	ea.mu.Lock()
	defer ea.mu.Unlock()
	return ea.refCount
}

// EndTime returns the simulated time at which this thread's local count
// reached zero, and whether it has happened yet.
func (ea *ExitAction) EndTime() (uint64, bool) {
	ea.mu.Lock()
	defer ea.mu.Unlock()
	return ea.endTime, ea.ended
}

// GlobalExitCount is the reduced sum of every rank's local reference
// count; termination occurs when it reaches zero.
type GlobalExitCount int64

// ShouldTerminate reports whether the reduced count signals termination.
func (c GlobalExitCount) ShouldTerminate() bool { return c <= 0 }
