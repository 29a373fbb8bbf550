package ranksync

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/filecoin-project/vortex-sync/internal/pkg/barrier"
	"github.com/filecoin-project/vortex-sync/internal/pkg/event"
	"github.com/filecoin-project/vortex-sync/internal/pkg/link"
	"github.com/filecoin-project/vortex-sync/internal/pkg/metrics"
	"github.com/filecoin-project/vortex-sync/internal/pkg/syncerr"
	"github.com/filecoin-project/vortex-sync/internal/pkg/syncqueue"
	"github.com/filecoin-project/vortex-sync/internal/pkg/transport"
	"github.com/filecoin-project/vortex-sync/internal/pkg/wire"
)

// pollInterval is how long a drain worker waits on an empty bounded queue
// before checking again, standing in for the pause instruction spec.md §5
// describes for the parallel-skip variant's busy-wait.
const pollInterval = time.Millisecond

type serializeJob struct {
	peer int
}

type sendJob struct {
	peer    int
	tag     int
	header  wire.Header
	payload []byte
}

type recvJob struct {
	peer   int
	buffer []byte
}

// Parallel implements the parallel-skip RankSync design: serialization and
// dispatch are split across threads using bounded lock-free queues,
// matching spec.md §4.5.2. Thread 0 still owns every MPI call; the other
// threads help with serialization and deserialization.
type Parallel struct {
	mu sync.Mutex

	rankID     int
	tr         transport.Transport
	serializer wire.Serializer
	maxPeriod  uint64

	nextRankSyncTime uint64

	outbound map[int]*syncqueue.SyncQueue
	recvCap  map[int]uint32
	links    map[uint32]*link.Link
	signals  *Signals

	numThreads int

	startBar *barrier.Barrier // serialize-start
	doneBar  *barrier.Barrier // slave-exchange-done
	allBar   *barrier.Barrier // all-done
}

// NewParallel constructs a parallel-skip RankSync for this rank with
// numThreads local worker threads (including thread 0).
func NewParallel(tr transport.Transport, serializer wire.Serializer, maxPeriod uint64, numThreads int) *Parallel {
	return &Parallel{
		rankID:     tr.Rank(),
		tr:         tr,
		serializer: serializer,
		maxPeriod:  maxPeriod,
		outbound:   make(map[int]*syncqueue.SyncQueue),
		recvCap:    make(map[int]uint32),
		links:      make(map[uint32]*link.Link),
		signals:    &Signals{},
		numThreads: numThreads,
		startBar:   barrier.New(numThreads),
		doneBar:    barrier.New(numThreads),
		allBar:     barrier.New(numThreads),
	}
}

// RegisterLink implements RankSync.
func (p *Parallel) RegisterLink(remote RemoteThread, tag uint32, l *link.Link) *syncqueue.SyncQueue {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.links[tag] = l
	q, ok := p.outbound[remote.Rank]
	if !ok {
		q = syncqueue.New(p.serializer)
		q.RecordRemoteCapacity(defaultRecvCap)
		p.outbound[remote.Rank] = q
		p.recvCap[remote.Rank] = defaultRecvCap
	}
	return q
}

// NextSyncTime implements RankSync.
func (p *Parallel) NextSyncTime() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextRankSyncTime
}

// MaxPeriod implements RankSync.
func (p *Parallel) MaxPeriod() uint64 { return p.maxPeriod }

// SetSignal implements RankSync.
func (p *Parallel) SetSignal(kind SignalKind) { p.signals.Set(kind) }

// Signals implements RankSync.
func (p *Parallel) Signals() *Signals { return p.signals }

// ReduceExit implements RankSync.
func (p *Parallel) ReduceExit(localCount int64) (int64, error) {
	reduced, err := p.tr.AllreduceSum(context.Background(), localCount)
	if err != nil {
		return 0, errors.Wrap(syncerr.ErrTransport, err.Error())
	}
	return reduced, nil
}

func (p *Parallel) peers() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	peers := make([]int, 0, len(p.outbound))
	for r := range p.outbound {
		peers = append(peers, r)
	}
	return peers
}

// Execute runs one exchange round. Every thread participates: thread 0
// drives the MPI calls while every thread (including thread 0, once it has
// posted everything) helps serialize outbound payloads and deserialize
// inbound ones.
func (p *Parallel) Execute(threadID uint32, currentTime, localNextEventTime uint64) error {
	start := time.Now()
	rankLabel := strconv.Itoa(p.rankID)
	if threadID == 0 {
		defer func() {
			metrics.ExchangeDuration.WithLabelValues(rankLabel, "parallel").Observe(time.Since(start).Seconds())
		}()
	}

	ctx := context.Background()
	peers := p.peers()
	n := len(peers)

	serializeQ := queue.NewRingBuffer(uint64(n + 1))
	sendQ := queue.NewRingBuffer(uint64(n + 1))
	recvQ := queue.NewRingBuffer(uint64(n + 1))

	var recvHandles map[int]transport.Handle
	var firstErr error

	if threadID == 0 {
		recvHandles = make(map[int]transport.Handle, n)
		for _, peer := range peers {
			p.mu.Lock()
			capacity := p.recvCap[peer]
			p.mu.Unlock()
			h, err := p.tr.IRecv(ctx, peer, tagNormal, int(capacity)+wire.HeaderSize)
			if err != nil {
				firstErr = errors.Wrap(syncerr.ErrTransport, err.Error())
			}
			recvHandles[peer] = h
		}
		for _, peer := range peers {
			if err := serializeQ.Put(serializeJob{peer: peer}); err != nil {
				firstErr = err
			}
		}
	}

	p.startBar.Wait()

	// Each calling thread contributes exactly one serialize/deserialize
	// worker goroutine of its own; with numThreads callers, that
	// reproduces the "every thread helps" fan-out of spec.md §4.5.2
	// without the leader spawning redundant extra workers.
	const helpers = 1

	var processedSerialize int64
	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < helpers; i++ {
		g.Go(func() error {
			for atomic.LoadInt64(&processedSerialize) < int64(n) {
				item, err := serializeQ.Poll(pollInterval)
				if err != nil {
					continue
				}
				job := item.(serializeJob)
				q := p.outbound[job.peer]
				payload, err := q.GetData()
				if err != nil {
					return errors.Wrapf(err, "ranksync: serialize outbound queue for peer %d", job.peer)
				}
				header, err := wire.DecodeHeader(payload)
				if err != nil {
					return err
				}
				if err := sendQ.Put(sendJob{peer: job.peer, tag: tagNormal, header: header, payload: payload}); err != nil {
					return err
				}
				q.RecordRemoteCapacity(header.BufferSize)
				metrics.EventsExchanged.WithLabelValues(rankLabel, "sent").Add(float64(header.Count))
				atomic.AddInt64(&processedSerialize, 1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && firstErr == nil {
		firstErr = err
	}

	var sendHandles []transport.Handle
	if threadID == 0 {
		for processed := 0; processed < n; {
			item, err := sendQ.Poll(pollInterval)
			if err != nil {
				continue
			}
			job := item.(sendJob)
			if job.header.Mode == wire.ModeGrow {
				gh, err := p.tr.ISend(ctx, job.peer, tagNormal, wire.EncodeHeader(job.header))
				if err != nil && firstErr == nil {
					firstErr = errors.Wrap(syncerr.ErrTransport, err.Error())
				}
				dh, err := p.tr.ISend(ctx, job.peer, tagGrow, job.payload)
				if err != nil && firstErr == nil {
					firstErr = errors.Wrap(syncerr.ErrTransport, err.Error())
				}
				sendHandles = append(sendHandles, gh, dh)
			} else {
				h, err := p.tr.ISend(ctx, job.peer, job.tag, job.payload)
				if err != nil && firstErr == nil {
					firstErr = errors.Wrap(syncerr.ErrTransport, err.Error())
				}
				sendHandles = append(sendHandles, h)
			}
			processed++
		}

		for _, peer := range peers {
			buf, err := p.recvOne(ctx, peer, recvHandles[peer])
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if err := recvQ.Put(recvJob{peer: peer, buffer: buf}); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	p.doneBar.Wait()

	var processedDeserialize int64
	g2, _ := errgroup.WithContext(ctx)
	for i := 0; i < helpers; i++ {
		g2.Go(func() error {
			for atomic.LoadInt64(&processedDeserialize) < int64(n) {
				item, err := recvQ.Poll(pollInterval)
				if err != nil {
					continue
				}
				job := item.(recvJob)
				_, events, err := syncqueue.Decode(p.serializer, job.buffer)
				if err != nil {
					return err
				}
				if err := p.dispatch(currentTime, events); err != nil {
					return err
				}
				atomic.AddInt64(&processedDeserialize, 1)
			}
			return nil
		})
	}
	if err := g2.Wait(); err != nil && firstErr == nil {
		firstErr = err
	}

	if threadID == 0 {
		if err := p.tr.WaitAll(sendHandles); err != nil && firstErr == nil {
			firstErr = errors.Wrap(syncerr.ErrTransport, err.Error())
		}
		for _, peer := range peers {
			p.outbound[peer].Clear()
		}

		reducedMin, err := p.tr.AllreduceMin(ctx, localNextEventTime)
		if err != nil && firstErr == nil {
			firstErr = errors.Wrap(syncerr.ErrTransport, err.Error())
		}
		p.mu.Lock()
		p.nextRankSyncTime = reducedMin + p.maxPeriod
		p.mu.Unlock()

		reducedSignals, err := p.tr.AllreduceMax3(ctx, p.signals.Snapshot())
		if err != nil && firstErr == nil {
			firstErr = errors.Wrap(syncerr.ErrTransport, err.Error())
		}
		p.signals.Merge(reducedSignals)
	}

	p.allBar.Wait()
	return firstErr
}

func (p *Parallel) recvOne(ctx context.Context, peer int, rh transport.Handle) ([]byte, error) {
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
	gh, err := p.tr.IRecv(ctx, peer, tagGrow, int(header.BufferSize)+wire.HeaderSize)
	if err != nil {
		return nil, errors.Wrap(syncerr.ErrTransport, err.Error())
	}
	if err := gh.Wait(); err != nil {
		return nil, errors.Wrap(syncerr.ErrTransport, err.Error())
	}
	p.mu.Lock()
	p.recvCap[peer] = header.BufferSize
	p.mu.Unlock()
	return gh.Bytes(), nil
}

func (p *Parallel) dispatch(currentTime uint64, events []*event.Event) error {
	for _, ev := range events {
		p.mu.Lock()
		destLink, ok := p.links[uint32(ev.DeliveryInfo.LinkID)]
		p.mu.Unlock()
		if !ok {
			log.Errorf("ranksync: rank=%d received event for unknown link tag=%d", p.rankID, ev.DeliveryInfo.LinkID)
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

var _ RankSync = (*Parallel)(nil)
