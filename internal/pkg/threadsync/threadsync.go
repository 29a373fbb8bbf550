// Package threadsync implements ThreadSync: the cross-thread exchanger
// owned by a single thread, one per thread on a rank, holding one outbound
// SyncQueue per other thread on the same rank and the link-name (tag)
// table used to redeliver events directly into a peer thread's incoming
// queue once all threads on the rank are blocked at the barrier.
package threadsync

import (
	"sort"
	"sync"

	logging "github.com/ipfs/go-log"
	"github.com/pkg/errors"

	"github.com/filecoin-project/vortex-sync/internal/pkg/barrier"
	"github.com/filecoin-project/vortex-sync/internal/pkg/link"
	"github.com/filecoin-project/vortex-sync/internal/pkg/syncerr"
	"github.com/filecoin-project/vortex-sync/internal/pkg/syncqueue"
)

var log = logging.Logger("sync.threadsync")

// Strategy selects how after() advances next_sync_time. Both are
// permitted by spec.md §4.4 but must be chosen consistently within a
// rank; which one the source actually prefers is recorded as an Open
// Question in DESIGN.md rather than guessed.
type Strategy int

const (
	// StrategySimpleSkip sets next_sync_time = current_time + latency.
	StrategySimpleSkip Strategy = iota
	// StrategySkipAhead sets
	// next_sync_time = max(local_next_activity_time, current_time) + latency.
	StrategySkipAhead
)

// ThreadSync is owned by exactly one thread.
type ThreadSync struct {
	rankID   uint32
	threadID uint32

	mu       sync.Mutex
	outbound map[uint32]*syncqueue.SyncQueue // keyed by peer thread id
	links    map[uint32]*link.Link           // keyed by link tag ("name")

	interthreadMinLatency uint64
	strategy              Strategy
	nextSyncTime          uint64

	bar *barrier.Barrier
}

// New constructs a ThreadSync for threadID on rankID, with one outbound
// queue for every other thread in peerThreadIDs, sharing bar with every
// other ThreadSync on the same rank.
func New(rankID, threadID uint32, peerThreadIDs []uint32, interthreadMinLatency uint64, strategy Strategy, bar *barrier.Barrier) *ThreadSync {
	ts := &ThreadSync{
		rankID:                rankID,
		threadID:              threadID,
		outbound:              make(map[uint32]*syncqueue.SyncQueue, len(peerThreadIDs)),
		links:                 make(map[uint32]*link.Link),
		interthreadMinLatency: interthreadMinLatency,
		strategy:              strategy,
		bar:                   bar,
	}
	for _, peer := range peerThreadIDs {
		ts.outbound[peer] = syncqueue.New(nil) // never serialized; same process
	}
	return ts
}

// RegisterLink installs a destination Link under its tag, matching the
// external link-registration API's "name" (spec.md §6 uses the Link's
// per-rank tag as its name).
func (ts *ThreadSync) RegisterLink(tag uint32, l *link.Link) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.links[tag] = l
}

// GetQueueForThread returns the outbound SyncQueue targeting peer.
func (ts *ThreadSync) GetQueueForThread(peer uint32) *syncqueue.SyncQueue {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.outbound[peer]
}

// NextSyncTime reports when this ThreadSync should next run.
func (ts *ThreadSync) NextSyncTime() uint64 {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.nextSyncTime
}

// Before drains every outbound queue and redelivers each event directly
// onto its destination Link. It must only be called once every producer
// on the rank has already blocked at the barrier.
func (ts *ThreadSync) Before(currentTime uint64) error {
	ts.mu.Lock()
	peers := make([]uint32, 0, len(ts.outbound))
	for p := range ts.outbound {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	ts.mu.Unlock()

	for _, peer := range peers {
		q := ts.GetQueueForThread(peer)
		events := q.Drain()
		for _, ev := range events {
			ts.mu.Lock()
			destLink, ok := ts.links[uint32(ev.DeliveryInfo.LinkID)]
			ts.mu.Unlock()
			if !ok {
				log.Errorf("threadsync: rank=%d thread=%d received event for unknown link tag=%d from peer=%d", ts.rankID, ts.threadID, ev.DeliveryInfo.LinkID, peer)
				return errors.Wrapf(syncerr.ErrConfiguration, "threadsync: unknown destination link tag=%d (asymmetric wire-up)", ev.DeliveryInfo.LinkID)
			}
			if ev.DeliveryTime < currentTime {
				return errors.Wrapf(syncerr.ErrInvariant, "threadsync: event delivery_time %d precedes current_time %d", ev.DeliveryTime, currentTime)
			}
			delay := ev.DeliveryTime - currentTime
			if err := destLink.Send(currentTime, delay, ev); err != nil {
				return err
			}
		}
		q.Clear()
	}
	return nil
}

// After computes the new next_sync_time from the configured strategy.
func (ts *ThreadSync) After(currentTime, localNextActivityTime uint64) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	switch ts.strategy {
	case StrategySkipAhead:
		base := currentTime
		if localNextActivityTime > base {
			base = localNextActivityTime
		}
		ts.nextSyncTime = base + ts.interthreadMinLatency
	default:
		ts.nextSyncTime = currentTime + ts.interthreadMinLatency
	}
}

// Execute runs one full round: barrier, before(), barrier, after(),
// barrier, matching spec.md §4.4.
func (ts *ThreadSync) Execute(currentTime, localNextActivityTime uint64) error {
	ts.bar.Wait()
	if err := ts.Before(currentTime); err != nil {
		return err
	}
	ts.bar.Wait()
	ts.After(currentTime, localNextActivityTime)
	ts.bar.Wait()
	return nil
}
