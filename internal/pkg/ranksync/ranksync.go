// Package ranksync implements RankSync: the per-rank cross-process
// exchanger. Two concrete designs are provided, both satisfying the same
// RankSync contract -- serial-skip (thread 0 does all transport work) and
// parallel-skip (serialization and dispatch are split across threads with
// lock-free bounded queues).
package ranksync

import (
	"sync"

	"github.com/filecoin-project/vortex-sync/internal/pkg/link"
	"github.com/filecoin-project/vortex-sync/internal/pkg/syncqueue"
	"github.com/filecoin-project/vortex-sync/internal/pkg/wire"
)

// RemoteThread identifies a peer thread on a remote rank.
type RemoteThread struct {
	Rank   int
	Thread uint32
}

// SignalKind names one of the three in-band signals a thread may raise.
type SignalKind int

const (
	SignalEndSim SignalKind = iota
	SignalUserStatus
	SignalAlarm
)

// Signals accumulates the three in-band signal flags a rank has observed
// locally, ready for the MPI_Allreduce(MAX) described in spec.md §4.5.3.
// Once set, a flag is never cleared: signals are never dropped.
type Signals struct {
	mu         sync.Mutex
	endSim     bool
	userStatus bool
	alarm      bool

	// consumedEndSim/UserStatus/Alarm track whether a RealTimeAction has
	// already fired for a flag, so Consume reports each flag's rise
	// exactly once even though the flag itself stays set forever.
	consumedEndSim     bool
	consumedUserStatus bool
	consumedAlarm      bool
}

// Set raises one of the three flags.
func (s *Signals) Set(kind SignalKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case SignalEndSim:
		s.endSim = true
	case SignalUserStatus:
		s.userStatus = true
	case SignalAlarm:
		s.alarm = true
	}
}

// Snapshot returns the local flags as the 3-tuple the Allreduce reduces,
// with each flag represented as 0 or 1.
func (s *Signals) Snapshot() [3]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return [3]uint64{b2u(s.endSim), b2u(s.userStatus), b2u(s.alarm)}
}

// Merge folds a reduced 3-tuple back into the local flags, so every rank
// observes every other rank's signals after the round's allreduce.
func (s *Signals) Merge(reduced [3]uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endSim = s.endSim || reduced[0] != 0
	s.userStatus = s.userStatus || reduced[1] != 0
	s.alarm = s.alarm || reduced[2] != 0
}

// Consume reports, for each of the three flags, whether it has risen since
// the last call to Consume -- i.e. it is currently set but a RealTimeAction
// has not yet fired for it -- and marks it as consumed. A flag itself is
// never cleared (signals are never dropped), but the rising edge is only
// reported once so a SyncManager round doesn't re-invoke end-of-run or
// status-print every subsequent round.
func (s *Signals) Consume() (endSimRose, userStatusRose, alarmRose bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	endSimRose = s.endSim && !s.consumedEndSim
	userStatusRose = s.userStatus && !s.consumedUserStatus
	alarmRose = s.alarm && !s.consumedAlarm
	s.consumedEndSim = s.consumedEndSim || s.endSim
	s.consumedUserStatus = s.consumedUserStatus || s.userStatus
	s.consumedAlarm = s.consumedAlarm || s.alarm
	return
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// RankSync is the common contract both the serial-skip and parallel-skip
// designs satisfy.
type RankSync interface {
	// Execute runs one exchange round for the calling thread. Only
	// thread 0 performs transport work in the serial variant; every
	// thread participates in the parallel variant. currentTime and
	// localNextEventTime are this thread's view of simulated time.
	Execute(threadID uint32, currentTime, localNextEventTime uint64) error

	// NextSyncTime reports when this rank should next run a rank-sync,
	// shared by every thread on the rank.
	NextSyncTime() uint64
	// MaxPeriod returns the global minimum-partition latency (the
	// lookahead across any rank-crossing link).
	MaxPeriod() uint64

	// RegisterLink installs the Link a remote thread's events for tag
	// should be redelivered onto, and returns the outbound SyncQueue a
	// local Link destined for that remote thread should send into.
	RegisterLink(remote RemoteThread, tag uint32, l *link.Link) *syncqueue.SyncQueue

	// SetSignal raises one of the three in-band signals locally; it
	// becomes globally visible by the end of the next rank-sync round.
	SetSignal(kind SignalKind)
	// Signals returns the accumulated, globally-merged signal state as
	// of the last completed round.
	Signals() *Signals

	// ReduceExit folds this rank's local ExitAction reference count into
	// the cluster-wide MPI_Allreduce(SUM) described in spec.md §4.6's
	// termination check. Only the calling thread's rank participates;
	// the caller (SyncManager) is responsible for calling this from
	// thread 0 only, after the round's other collectives have returned.
	ReduceExit(localCount int64) (int64, error)
}

// remoteOutbound holds the outbound SyncQueue for one peer rank; the peer's
// last advertised receive capacity is recorded inside that SyncQueue.
type remoteOutbound struct {
	queue *syncqueue.SyncQueue
}

func newRemoteOutbound(serializer wire.Serializer) *remoteOutbound {
	return &remoteOutbound{queue: syncqueue.New(serializer)}
}
