// Package syncerr defines the sentinel error kinds used across the
// synchronization core, matching the taxonomy in the system design: a
// wire-up-time Configuration error, a Transport error from a collective
// exchange, an Overflow on a receive buffer resize, an Invariant violation
// from a producer bug, and an operator-issued Signal shutdown.
package syncerr

import "github.com/pkg/errors"

var (
	// ErrConfiguration signals an asymmetric wire-up or an illegal
	// zero-latency cross-boundary link, detected before the first sync.
	ErrConfiguration = errors.New("sync: configuration error")

	// ErrTransport signals a failed send/recv/collective during an
	// exchange round.
	ErrTransport = errors.New("sync: transport error")

	// ErrOverflow signals a receive buffer resize beyond the
	// implementation-chosen cap.
	ErrOverflow = errors.New("sync: receive buffer overflow")

	// ErrInvariant signals a TimeVortex ordering invariant violation,
	// indicating a bug in a producer.
	ErrInvariant = errors.New("sync: invariant violation")

	// ErrSignalShutdown is not itself fatal; it funnels an operator
	// shutdown request into the RealTimeAction path.
	ErrSignalShutdown = errors.New("sync: signal shutdown requested")
)
