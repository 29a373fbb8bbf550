// Package local implements an in-process Transport standing in for an MPI
// binding: every "rank" is a goroutine group in the same process, talking
// over buffered channels instead of sockets. This is the transport every
// test in this module uses, and the boundary a real MPI implementation
// would replace without touching RankSync itself.
package local

import (
	"context"
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/filecoin-project/vortex-sync/internal/pkg/syncerr"
	"github.com/filecoin-project/vortex-sync/internal/pkg/transport"
)

type chanKey struct {
	src, dst, tag int
}

// Cluster wires together N in-process ranks, fully connected, and hosts
// the rendezvous state backing Allreduce.
type Cluster struct {
	n int

	mu    sync.Mutex
	chans map[chanKey]chan []byte

	minR  *reducer
	max3R *reducer
	sumR  *reducer
}

// NewCluster builds a fully-connected cluster of n ranks.
func NewCluster(n int) *Cluster {
	return &Cluster{
		n:     n,
		chans: make(map[chanKey]chan []byte),
		minR:  newReducer(n),
		max3R: newReducer(n),
		sumR:  newReducer(n),
	}
}

// Transport returns the Transport handle for the given rank, 0 <= rank < n.
func (c *Cluster) Transport(rank int) transport.Transport {
	peers := make([]int, 0, c.n-1)
	for r := 0; r < c.n; r++ {
		if r != rank {
			peers = append(peers, r)
		}
	}
	return &rankTransport{cluster: c, rank: rank, peers: peers}
}

func (c *Cluster) chanFor(key chanKey) chan []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.chans[key]
	if !ok {
		ch = make(chan []byte, 64)
		c.chans[key] = ch
	}
	return ch
}

type rankTransport struct {
	cluster *Cluster
	rank    int
	peers   []int
}

func (rt *rankTransport) Rank() int    { return rt.rank }
func (rt *rankTransport) Peers() []int { return append([]int(nil), rt.peers...) }

type handle struct {
	mu        sync.Mutex
	completed bool
	err       error
	data      []byte
	doneCh    chan struct{}
}

func newHandle() *handle {
	return &handle{doneCh: make(chan struct{})}
}

func (h *handle) complete(data []byte, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.completed {
		return
	}
	h.completed = true
	h.data = data
	h.err = err
	close(h.doneCh)
}

func (h *handle) Wait() error {
	<-h.doneCh
	return h.err
}

func (h *handle) Bytes() []byte {
	<-h.doneCh
	return h.data
}

func (h *handle) Test() (bool, error) {
	select {
	case <-h.doneCh:
		return true, h.err
	default:
		return false, nil
	}
}

func (rt *rankTransport) ISend(ctx context.Context, peer int, tag int, data []byte) (transport.Handle, error) {
	ch := rt.cluster.chanFor(chanKey{src: rt.rank, dst: peer, tag: tag})
	h := newHandle()
	go func() {
		select {
		case ch <- data:
			h.complete(nil, nil)
		case <-ctx.Done():
			h.complete(nil, errors.Wrap(syncerr.ErrTransport, "local transport: send cancelled"))
		}
	}()
	return h, nil
}

func (rt *rankTransport) IRecv(ctx context.Context, peer int, tag int, bufSize int) (transport.Handle, error) {
	ch := rt.cluster.chanFor(chanKey{src: peer, dst: rt.rank, tag: tag})
	h := newHandle()
	go func() {
		select {
		case data := <-ch:
			h.complete(data, nil)
		case <-ctx.Done():
			h.complete(nil, errors.Wrap(syncerr.ErrTransport, "local transport: recv cancelled"))
		}
	}()
	return h, nil
}

func (rt *rankTransport) WaitAll(handles []transport.Handle) error {
	var first error
	for _, h := range handles {
		if err := h.Wait(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (rt *rankTransport) AllreduceMin(ctx context.Context, local uint64) (uint64, error) {
	res := rt.cluster.minR.reduce(local, uint64(math.MaxUint64), func(a, b interface{}) interface{} {
		av, bv := a.(uint64), b.(uint64)
		if bv < av {
			return bv
		}
		return av
	})
	return res.(uint64), nil
}

func (rt *rankTransport) AllreduceMax3(ctx context.Context, local [3]uint64) ([3]uint64, error) {
	res := rt.cluster.max3R.reduce(local, [3]uint64{0, 0, 0}, func(a, b interface{}) interface{} {
		av, bv := a.([3]uint64), b.([3]uint64)
		var out [3]uint64
		for i := range out {
			out[i] = av[i]
			if bv[i] > out[i] {
				out[i] = bv[i]
			}
		}
		return out
	})
	return res.([3]uint64), nil
}

func (rt *rankTransport) AllreduceSum(ctx context.Context, local int64) (int64, error) {
	res := rt.cluster.sumR.reduce(local, int64(0), func(a, b interface{}) interface{} {
		return a.(int64) + b.(int64)
	})
	return res.(int64), nil
}

// reducer is a generic cyclic Allreduce rendezvous for a fixed party
// count, shared by every rank's calls for one reduction kind.
type reducer struct {
	mu         sync.Mutex
	cond       *sync.Cond
	parties    int
	arrived    int
	acc        interface{}
	generation uint64
	result     interface{}
}

func newReducer(parties int) *reducer {
	r := &reducer{parties: parties}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *reducer) reduce(value, identity interface{}, combine func(a, b interface{}) interface{}) interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	gen := r.generation
	if r.arrived == 0 {
		r.acc = identity
	}
	r.acc = combine(r.acc, value)
	r.arrived++

	if r.arrived == r.parties {
		r.result = r.acc
		r.arrived = 0
		r.generation++
		r.cond.Broadcast()
		return r.result
	}
	for gen == r.generation {
		r.cond.Wait()
	}
	return r.result
}
