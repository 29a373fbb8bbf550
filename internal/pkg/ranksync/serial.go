package ranksync

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	logging "github.com/ipfs/go-log"
	"github.com/pkg/errors"

	"github.com/filecoin-project/vortex-sync/internal/pkg/barrier"
	"github.com/filecoin-project/vortex-sync/internal/pkg/event"
	"github.com/filecoin-project/vortex-sync/internal/pkg/link"
	"github.com/filecoin-project/vortex-sync/internal/pkg/metrics"
	"github.com/filecoin-project/vortex-sync/internal/pkg/syncerr"
	"github.com/filecoin-project/vortex-sync/internal/pkg/syncqueue"
	"github.com/filecoin-project/vortex-sync/internal/pkg/transport"
	"github.com/filecoin-project/vortex-sync/internal/pkg/wire"
)

var log = logging.Logger("sync.ranksync")

const (
	tagNormal = 1
	tagGrow   = 2

	// defaultRecvCap is the initial receive buffer capacity assumed for
	// a peer before any grow message has been exchanged.
	defaultRecvCap = 4096
	// maxRecvCap bounds how far a receive buffer may grow before a
	// resize is treated as an overflow (spec.md §7).
	maxRecvCap = 64 << 20
)

// Serial implements the serial-skip RankSync design: thread 0 performs
// every transport call, matching spec.md §4.5.1.
type Serial struct {
	mu sync.Mutex

	rankID     int
	tr         transport.Transport
	serializer wire.Serializer
	maxPeriod  uint64

	nextRankSyncTime uint64

	outbound   map[int]*syncqueue.SyncQueue // keyed by peer rank
	recvCap    map[int]uint32               // last agreed receive capacity per peer
	links      map[uint32]*link.Link        // keyed by link tag
	signals    *Signals
	threadsBar *barrier.Barrier // parties = threads per rank
}

// NewSerial constructs a serial-skip RankSync for this rank. threadsPerRank
// is how many local threads call Execute each round; only thread 0 does
// transport work, the rest wait at an internal barrier.
func NewSerial(tr transport.Transport, serializer wire.Serializer, maxPeriod uint64, threadsPerRank int) *Serial {
	return &Serial{
		rankID:     tr.Rank(),
		tr:         tr,
		serializer: serializer,
		maxPeriod:  maxPeriod,
		outbound:   make(map[int]*syncqueue.SyncQueue),
		recvCap:    make(map[int]uint32),
		links:      make(map[uint32]*link.Link),
		signals:    &Signals{},
		threadsBar: barrier.New(threadsPerRank),
	}
}

// RegisterLink implements RankSync.
func (s *Serial) RegisterLink(remote RemoteThread, tag uint32, l *link.Link) *syncqueue.SyncQueue {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[tag] = l
	q, ok := s.outbound[remote.Rank]
	if !ok {
		q = syncqueue.New(s.serializer)
		q.RecordRemoteCapacity(defaultRecvCap)
		s.outbound[remote.Rank] = q
		s.recvCap[remote.Rank] = defaultRecvCap
	}
	return q
}

// NextSyncTime implements RankSync.
func (s *Serial) NextSyncTime() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRankSyncTime
}

// MaxPeriod implements RankSync.
func (s *Serial) MaxPeriod() uint64 { return s.maxPeriod }

// SetSignal implements RankSync.
func (s *Serial) SetSignal(kind SignalKind) { s.signals.Set(kind) }

// Signals implements RankSync.
func (s *Serial) Signals() *Signals { return s.signals }

// ReduceExit implements RankSync.
func (s *Serial) ReduceExit(localCount int64) (int64, error) {
	reduced, err := s.tr.AllreduceSum(context.Background(), localCount)
	if err != nil {
		return 0, errors.Wrap(syncerr.ErrTransport, err.Error())
	}
	return reduced, nil
}

// Execute runs one exchange round. Only threadID == 0 performs transport;
// every other thread blocks at the internal thread barrier until it's
// done.
func (s *Serial) Execute(threadID uint32, currentTime, localNextEventTime uint64) error {
	if threadID != 0 {
		s.threadsBar.Wait()
		return nil
	}
	defer s.threadsBar.Wait()
	return s.executeAsLeader(context.Background(), currentTime, localNextEventTime)
}

func (s *Serial) peers() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	peers := make([]int, 0, len(s.outbound))
	for r := range s.outbound {
		peers = append(peers, r)
	}
	sort.Ints(peers)
	return peers
}

func (s *Serial) executeAsLeader(ctx context.Context, currentTime, localNextEventTime uint64) error {
	start := time.Now()
	rankLabel := strconv.Itoa(s.rankID)
	defer func() {
		metrics.ExchangeDuration.WithLabelValues(rankLabel, "serial").Observe(time.Since(start).Seconds())
	}()

	peers := s.peers()

	// Step 1+2: post sends (with grow messages where needed) and post
	// the matching receives.
	sendHandles := make([]transport.Handle, 0, len(peers)*2)
	recvHandles := make(map[int]transport.Handle, len(peers))

	for _, peer := range peers {
		q := s.outbound[peer]
		payload, err := q.GetData()
		if err != nil {
			return errors.Wrapf(err, "ranksync: serialize outbound queue for peer %d", peer)
		}
		header, err := wire.DecodeHeader(payload)
		if err != nil {
			return err
		}
		metrics.EventsExchanged.WithLabelValues(rankLabel, "sent").Add(float64(header.Count))

		if header.Mode == wire.ModeGrow {
			growHandle, err := s.tr.ISend(ctx, peer, tagNormal, wire.EncodeHeader(header))
			if err != nil {
				return errors.Wrap(syncerr.ErrTransport, err.Error())
			}
			dataHandle, err := s.tr.ISend(ctx, peer, tagGrow, payload)
			if err != nil {
				return errors.Wrap(syncerr.ErrTransport, err.Error())
			}
			sendHandles = append(sendHandles, growHandle, dataHandle)
		} else {
			h, err := s.tr.ISend(ctx, peer, tagNormal, payload)
			if err != nil {
				return errors.Wrap(syncerr.ErrTransport, err.Error())
			}
			sendHandles = append(sendHandles, h)
		}
		q.RecordRemoteCapacity(header.BufferSize)

		s.mu.Lock()
		recvCap := s.recvCap[peer]
		s.mu.Unlock()
		rh, err := s.tr.IRecv(ctx, peer, tagNormal, int(recvCap)+wire.HeaderSize)
		if err != nil {
			return errors.Wrap(syncerr.ErrTransport, err.Error())
		}
		recvHandles[peer] = rh
	}

	// Step 3: wait on receives, handling the grow path.
	for _, peer := range peers {
		buf, err := s.recvOne(ctx, peer, recvHandles[peer])
		if err != nil {
			return err
		}

		header, events, err := syncqueue.Decode(s.serializer, buf)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.recvCap[peer] = header.BufferSize
		s.mu.Unlock()
		metrics.EventsExchanged.WithLabelValues(rankLabel, "received").Add(float64(len(events)))

		// Step 4: dispatch every received event onto its local
		// destination Link.
		if err := s.dispatch(currentTime, events); err != nil {
			return err
		}
	}

	// Step 5: wait on sends and clear outbound queues.
	if err := s.tr.WaitAll(sendHandles); err != nil {
		return errors.Wrap(syncerr.ErrTransport, err.Error())
	}
	for _, peer := range peers {
		s.outbound[peer].Clear()
	}

	// Step 6: allreduce the local next-event time to compute the new
	// round time.
	reducedMin, err := s.tr.AllreduceMin(ctx, localNextEventTime)
	if err != nil {
		return errors.Wrap(syncerr.ErrTransport, err.Error())
	}
	s.mu.Lock()
	s.nextRankSyncTime = reducedMin + s.maxPeriod
	s.mu.Unlock()

	// Step 7: exchange pending signals.
	reducedSignals, err := s.tr.AllreduceMax3(ctx, s.signals.Snapshot())
	if err != nil {
		return errors.Wrap(syncerr.ErrTransport, err.Error())
	}
	s.signals.Merge(reducedSignals)

	return nil
}

// recvOne waits for a normal-tag receive to complete, then handles the
// grow path: if the header signals mode==1, it posts a second, larger
// receive on the grow tag for the real payload.
func (s *Serial) recvOne(ctx context.Context, peer int, rh transport.Handle) ([]byte, error) {
	if err := rh.Wait(); err != nil {
		return nil, errors.Wrap(syncerr.ErrTransport, err.Error())
	}
	buf := rh.Bytes()
	header, err := wire.DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if header.Mode != wire.ModeGrow {
		return buf, nil
	}

	if header.BufferSize > maxRecvCap {
		return nil, errors.Wrapf(syncerr.ErrOverflow, "ranksync: peer %d requested buffer %d exceeds cap %d", peer, header.BufferSize, maxRecvCap)
	}

	growHandle, err := s.tr.IRecv(ctx, peer, tagGrow, int(header.BufferSize)+wire.HeaderSize)
	if err != nil {
		return nil, errors.Wrap(syncerr.ErrTransport, err.Error())
	}
	if err := growHandle.Wait(); err != nil {
		return nil, errors.Wrap(syncerr.ErrTransport, err.Error())
	}
	return growHandle.Bytes(), nil
}

func (s *Serial) dispatch(currentTime uint64, events []*event.Event) error {
	for _, ev := range events {
		s.mu.Lock()
		destLink, ok := s.links[uint32(ev.DeliveryInfo.LinkID)]
		s.mu.Unlock()
		if !ok {
			log.Errorf("ranksync: rank=%d received event for unknown link tag=%d", s.rankID, ev.DeliveryInfo.LinkID)
			return errors.Wrapf(syncerr.ErrConfiguration, "ranksync: unknown destination link tag=%d (asymmetric wire-up)", ev.DeliveryInfo.LinkID)
		}
		if ev.DeliveryTime < currentTime {
			return errors.Wrapf(syncerr.ErrInvariant, "ranksync: event delivery_time %d precedes current_time %d", ev.DeliveryTime, currentTime)
		}
		delay := ev.DeliveryTime - currentTime
		if err := destLink.Send(currentTime, delay, ev); err != nil {
			return err
		}
	}
	return nil
}

var _ RankSync = (*Serial)(nil)
