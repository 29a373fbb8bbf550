// Package syncmanager implements SyncManager: the per-thread Activity that
// drives the whole synchronization core. One SyncManager runs per thread; it
// alternates between THREAD rounds (cross-thread exchange within the rank)
// and RANK rounds (cross-rank exchange plus the global exit check), always
// re-inserting itself into its thread's TimeVortex so the simulation's own
// event loop keeps driving synchronization forward, per spec.md §4.6.
package syncmanager

import (
	logging "github.com/ipfs/go-log"
	"github.com/pkg/errors"

	"github.com/filecoin-project/vortex-sync/internal/pkg/activity"
	"github.com/filecoin-project/vortex-sync/internal/pkg/barrier"
	"github.com/filecoin-project/vortex-sync/internal/pkg/exitaction"
	"github.com/filecoin-project/vortex-sync/internal/pkg/metrics"
	"github.com/filecoin-project/vortex-sync/internal/pkg/ranksync"
	"github.com/filecoin-project/vortex-sync/internal/pkg/rtaction"
	"github.com/filecoin-project/vortex-sync/internal/pkg/syncerr"
	"github.com/filecoin-project/vortex-sync/internal/pkg/threadsync"
	"github.com/filecoin-project/vortex-sync/internal/pkg/timevortex"
)

var log = logging.Logger("sync.manager")

// syncKind selects which of the two rounds next_sync_type names, matching
// spec.md §4.6's RANK/THREAD switch.
type syncKind int

const (
	syncRank syncKind = iota
	syncThread
)

// LocalNextEventTime reports the thread's own TimeVortex's next delivery
// time, the value a rank-sync round folds into its MPI_Allreduce(MIN).
type LocalNextEventTime func() uint64

// SyncManager is a per-thread Activity reinserted into its thread's
// TimeVortex after every round.
type SyncManager struct {
	activity.Activity

	threadID uint32
	isLeader bool // threadID == 0 on this rank

	vortex   *timevortex.TimeVortex
	threads  *threadsync.ThreadSync
	ranks    ranksync.RankSync
	exit     *exitaction.ExitAction
	actions  *rtaction.Registry
	nextTime LocalNextEventTime

	// rankBar rendezvouses every thread on the rank around the RANK-round
	// steps that must happen exactly once (the leader's transport work,
	// the leader's exit check), per spec.md §4.6.
	rankBar *barrier.Barrier

	// globalExit is populated by the leader after every RANK round's
	// allreduce and read by every thread's termination check.
	globalExit *exitaction.GlobalExitCount

	next       syncKind
	terminated bool
}

// Terminated reports whether the last Execute call observed global
// termination and therefore did not reinsert this SyncManager into its
// TimeVortex.
func (sm *SyncManager) Terminated() bool { return sm.terminated }

// Config bundles the collaborators a SyncManager needs. All fields are
// required except ActionRegistry, which defaults to an empty one.
type Config struct {
	ThreadID         uint32
	Vortex           *timevortex.TimeVortex
	ThreadSync       *threadsync.ThreadSync
	RankSync         ranksync.RankSync
	Exit             *exitaction.ExitAction
	ActionRegistry   *rtaction.Registry
	RankBarrier      *barrier.Barrier
	NextLocalEventAt LocalNextEventTime
}

// New constructs a SyncManager for one thread; it does not insert it into
// vortex, which the caller does before the first round. The caller is also
// responsible for constructing
// one rankBar shared by every thread on the rank and one globalExit shared
// the same way.
func New(cfg Config, globalExit *exitaction.GlobalExitCount) (*SyncManager, error) {
	if cfg.Vortex == nil || cfg.ThreadSync == nil || cfg.RankSync == nil || cfg.Exit == nil || cfg.RankBarrier == nil || cfg.NextLocalEventAt == nil {
		return nil, errors.Wrap(syncerr.ErrConfiguration, "syncmanager: incomplete Config")
	}
	actions := cfg.ActionRegistry
	if actions == nil {
		actions = rtaction.NewRegistry()
	}
	sm := &SyncManager{
		threadID:   cfg.ThreadID,
		isLeader:   cfg.ThreadID == 0,
		vortex:     cfg.Vortex,
		threads:    cfg.ThreadSync,
		ranks:      cfg.RankSync,
		exit:       cfg.Exit,
		actions:    actions,
		nextTime:   cfg.NextLocalEventAt,
		rankBar:    cfg.RankBarrier,
		globalExit: globalExit,
	}
	sm.PriorityOrder = activity.NewPriorityOrder(activity.PrioritySync, cfg.ThreadID)
	sm.Handler = sm
	sm.next = sm.computeNextKind()
	sm.DeliveryTime = sm.nextDeliveryTime()
	return sm, nil
}

func (sm *SyncManager) computeNextKind() syncKind {
	if sm.ranks.NextSyncTime() <= sm.threads.NextSyncTime() {
		return syncRank
	}
	return syncThread
}

func (sm *SyncManager) nextDeliveryTime() uint64 {
	if sm.next == syncRank {
		return sm.ranks.NextSyncTime()
	}
	return sm.threads.NextSyncTime()
}

// Execute runs exactly one round -- RANK or THREAD, whichever is due -- then
// reinserts this SyncManager into its TimeVortex for the following round.
// It satisfies activity.Executable so the thread's own event loop drives it
// like any other scheduled Activity.
func (sm *SyncManager) Execute() error {
	var err error
	switch sm.next {
	case syncRank:
		err = sm.runRankRound()
	case syncThread:
		err = sm.runThreadRound()
	}
	if err != nil {
		return err
	}
	if sm.shouldTerminate() {
		log.Infof("syncmanager: thread=%d terminating", sm.threadID)
		sm.terminated = true
		return nil
	}

	sm.next = sm.computeNextKind()
	sm.DeliveryTime = sm.nextDeliveryTime()
	sm.vortex.Insert(&sm.Activity)
	return nil
}

// runRankRound implements the RANK branch of spec.md §4.6: barrier;
// thread_sync->before(); barrier; rank_sync->execute(thread_id); barrier;
// thread_sync->after(); barrier; thread-0 checks Exit; barrier.
func (sm *SyncManager) runRankRound() error {
	currentTime := sm.currentTime()

	sm.rankBar.Wait()
	if err := sm.threads.Before(currentTime); err != nil {
		return err
	}
	sm.rankBar.Wait()

	if err := sm.ranks.Execute(sm.threadID, currentTime, sm.nextTime()); err != nil {
		return err
	}
	sm.rankBar.Wait()

	sm.threads.After(currentTime, sm.nextTime())
	sm.rankBar.Wait()

	if sm.isLeader {
		reduced, err := sm.ranks.ReduceExit(sm.exit.LocalCount())
		if err == nil {
			*sm.globalExit = exitaction.GlobalExitCount(reduced)
		} else {
			log.Errorf("syncmanager: exit allreduce failed: %s", err)
		}
		sm.invokeSignals()
	}
	sm.rankBar.Wait()
	return nil
}

// runThreadRound implements the THREAD branch: thread_sync->execute(), then
// thread 0 invokes pending signal actions. It makes no exit check of its own;
// Execute's shouldTerminate check afterwards uses the global exit count from
// the most recent rank round, not the purely local reference count.
func (sm *SyncManager) runThreadRound() error {
	if err := sm.threads.Execute(sm.currentTime(), sm.nextTime()); err != nil {
		return err
	}
	if sm.isLeader {
		sm.invokeSignals()
	}
	return nil
}

func (sm *SyncManager) currentTime() uint64 {
	return sm.DeliveryTime
}

func (sm *SyncManager) shouldTerminate() bool {
	return sm.vortex.Empty() || (sm.globalExit != nil && sm.globalExit.ShouldTerminate() && sm.exit.LocalCount() <= 0)
}

// invokeSignals fires the registered RealTimeActions for any signal whose
// rising edge hasn't been handled yet. SIGINT/SIGTERM raise endSim and drive
// EndOfRun; SIGUSR1 raises userStatus and drives StatusPrint; SIGUSR2 and
// SIGALRM both raise alarm, which this sync core treats as driving both
// Checkpoint and Heartbeat -- the source never disambiguated the two under
// a single flag, so both fire together, recorded as an Open Question
// decision in DESIGN.md rather than an arbitrary single choice.
func (sm *SyncManager) invokeSignals() {
	endSim, userStatus, alarm := sm.ranks.Signals().Consume()
	if endSim {
		metrics.SignalsObserved.WithLabelValues(rtaction.EndOfRun.String()).Inc()
		sm.actions.Invoke(rtaction.EndOfRun)
	}
	if userStatus {
		metrics.SignalsObserved.WithLabelValues(rtaction.StatusPrint.String()).Inc()
		sm.actions.Invoke(rtaction.StatusPrint)
	}
	if alarm {
		metrics.SignalsObserved.WithLabelValues(rtaction.Checkpoint.String()).Inc()
		metrics.SignalsObserved.WithLabelValues(rtaction.Heartbeat.String()).Inc()
		sm.actions.Invoke(rtaction.Checkpoint)
		sm.actions.Invoke(rtaction.Heartbeat)
	}
}
