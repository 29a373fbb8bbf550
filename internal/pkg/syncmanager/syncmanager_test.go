package syncmanager_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/vortex-sync/internal/pkg/barrier"
	"github.com/filecoin-project/vortex-sync/internal/pkg/exitaction"
	"github.com/filecoin-project/vortex-sync/internal/pkg/link"
	"github.com/filecoin-project/vortex-sync/internal/pkg/ranksync"
	"github.com/filecoin-project/vortex-sync/internal/pkg/syncmanager"
	"github.com/filecoin-project/vortex-sync/internal/pkg/syncqueue"
	"github.com/filecoin-project/vortex-sync/internal/pkg/threadsync"
	"github.com/filecoin-project/vortex-sync/internal/pkg/timevortex"
)

// fakeRankSync is a minimal ranksync.RankSync stand-in so SyncManager's
// round-alternation and termination logic can be exercised in isolation
// from any real transport.
type fakeRankSync struct {
	nextSyncTime uint64
	maxPeriod    uint64
	execCalls    int
	reduceExit   int64
	signals      ranksync.Signals
}

func (f *fakeRankSync) Execute(threadID uint32, currentTime, localNextEventTime uint64) error {
	f.execCalls++
	f.nextSyncTime = currentTime + f.maxPeriod
	return nil
}
func (f *fakeRankSync) NextSyncTime() uint64 { return f.nextSyncTime }
func (f *fakeRankSync) MaxPeriod() uint64    { return f.maxPeriod }
func (f *fakeRankSync) RegisterLink(remote ranksync.RemoteThread, tag uint32, l *link.Link) *syncqueue.SyncQueue {
	return syncqueue.New(nil)
}
func (f *fakeRankSync) SetSignal(kind ranksync.SignalKind) { f.signals.Set(kind) }
func (f *fakeRankSync) Signals() *ranksync.Signals         { return &f.signals }
func (f *fakeRankSync) ReduceExit(localCount int64) (int64, error) {
	return f.reduceExit, nil
}

var _ ranksync.RankSync = (*fakeRankSync)(nil)

// TestSyncManagerSingleRankSingleThreadTerminatesWhenExitReachesZero
// exercises a single-reference analogue of seed scenario 4 from spec.md §8
// (one reference, one decrement) end to end through a real
// TimeVortex and ThreadSync, with a fake RankSync standing in for the
// (irrelevant, single-rank) cross-process exchange.
func TestSyncManagerSingleRankSingleThreadTerminatesWhenExitReachesZero(t *testing.T) {
	vortex := timevortex.New()
	ex := exitaction.New(1)
	// A small maxPeriod relative to the ThreadSync's interthread latency
	// keeps every round a RANK round, so each Execute call re-runs the
	// (fake) allreduce that feeds globalExit.
	rs := &fakeRankSync{maxPeriod: 5, reduceExit: 1}
	ts := threadsync.New(0, 0, nil, 1000, threadsync.StrategySimpleSkip, barrier.New(1))

	globalExit := exitaction.GlobalExitCount(1)
	sm, err := syncmanager.New(syncmanager.Config{
		ThreadID:         0,
		Vortex:           vortex,
		ThreadSync:       ts,
		RankSync:         rs,
		Exit:             ex,
		RankBarrier:      barrier.New(1),
		NextLocalEventAt: func() uint64 { return ^uint64(0) },
	}, &globalExit)
	require.NoError(t, err)
	vortex.Insert(&sm.Activity)

	// First round: still 1 reference outstanding, must not terminate.
	require.NoError(t, sm.Execute())
	assert.False(t, sm.Terminated())
	assert.Equal(t, 1, rs.execCalls)

	// Drop the last reference and let the fake RankSync's allreduce
	// report convergence to zero on the next round.
	ex.Decrement(5)
	rs.reduceExit = 0

	require.NoError(t, sm.Execute())
	assert.Equal(t, 2, rs.execCalls)
	assert.True(t, sm.Terminated())
}

func TestSyncManagerAlternatesRankAndThreadRoundsByEarliestNextTime(t *testing.T) {
	vortex := timevortex.New()
	ex := exitaction.New(100) // never reaches zero in this test
	rs := &fakeRankSync{maxPeriod: 1000}
	ts := threadsync.New(0, 0, nil, 10, threadsync.StrategySimpleSkip, barrier.New(1))

	globalExit := exitaction.GlobalExitCount(100)
	sm, err := syncmanager.New(syncmanager.Config{
		ThreadID:         0,
		Vortex:           vortex,
		ThreadSync:       ts,
		RankSync:         rs,
		Exit:             ex,
		RankBarrier:      barrier.New(1),
		NextLocalEventAt: func() uint64 { return ^uint64(0) },
	}, &globalExit)
	require.NoError(t, err)
	vortex.Insert(&sm.Activity)

	// The very first round ties at t=0 and resolves to RANK (spec.md
	// §4.6's "<=" tie-break). From then on the ThreadSync's interthread
	// latency (10) advances far more slowly than the fake RankSync's
	// maxPeriod (1000), so every subsequent round must pick THREAD
	// instead of calling into the rank sync again.
	require.NoError(t, sm.Execute())
	assert.Equal(t, 1, rs.execCalls)

	for i := 0; i < 3; i++ {
		require.NoError(t, sm.Execute())
		assert.False(t, sm.Terminated())
	}
	assert.Equal(t, 1, rs.execCalls)
}
