// Package transport abstracts the MPI collectives the RankSync variants in
// spec.md §4.5 need: non-blocking point-to-point send/recv, Waitall, and
// Allreduce. No MPI binding appears anywhere in the retrieved corpus, so
// this interface is the boundary a real cgo/OpenMPI implementation would
// satisfy; transport/local provides an in-process implementation used by
// every test and by single-host deployments.
package transport

import "context"

// Handle represents an in-flight non-blocking send or receive.
type Handle interface {
	// Wait blocks until the operation completes and returns any error
	// observed. For a receive handle, the received bytes (if any) are
	// available via Bytes() only after Wait returns nil.
	Wait() error
	// Bytes returns the payload of a completed receive. It is only valid
	// after Wait has returned nil for a receive handle.
	Bytes() []byte
	// Test reports whether the operation has already completed, without
	// blocking. Neither RankSync variant calls it; both complete their
	// handles with Wait.
	Test() (bool, error)
}

// Transport is implemented once per process (rank) and shared by every
// thread that participates in the RankSync exchange.
type Transport interface {
	// Rank returns this process's rank id.
	Rank() int
	// Peers returns the ranks this rank shares at least one cross-rank
	// link with, i.e. the set it exchanges with each round (spec.md §3).
	Peers() []int

	// ISend posts a non-blocking send of data to peer on tag.
	ISend(ctx context.Context, peer int, tag int, data []byte) (Handle, error)
	// IRecv posts a non-blocking receive from peer on tag into a buffer
	// of capacity bufSize.
	IRecv(ctx context.Context, peer int, tag int, bufSize int) (Handle, error)

	// WaitAll blocks until every handle completes, returning the first
	// error observed, if any.
	WaitAll(handles []Handle) error

	// AllreduceMin reduces a per-rank uint64 to its global minimum, used
	// to compute the next rank-sync time from the local next-event time.
	AllreduceMin(ctx context.Context, local uint64) (uint64, error)
	// AllreduceMax3 reduces a per-rank 3-tuple of signal flags
	// (endSim, userStatus, alarm) with MPI_MAX semantics.
	AllreduceMax3(ctx context.Context, local [3]uint64) ([3]uint64, error)
	// AllreduceSum reduces a per-rank int64, used for the Exit action's
	// reference count.
	AllreduceSum(ctx context.Context, local int64) (int64, error)
}
