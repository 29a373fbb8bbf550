// Package link implements Link: the static, directed edge connecting two
// components, and the sole legal producer of cross-boundary traffic. A
// Link resolves, once at wire-up, whether its destination is local to the
// sending thread, on another thread of the same rank, or on another rank
// entirely, and dispatches accordingly on every subsequent Send.
package link

import (
	logging "github.com/ipfs/go-log"
	"github.com/pkg/errors"

	"github.com/filecoin-project/vortex-sync/internal/pkg/activity"
	"github.com/filecoin-project/vortex-sync/internal/pkg/event"
	"github.com/filecoin-project/vortex-sync/internal/pkg/syncerr"
	"github.com/filecoin-project/vortex-sync/internal/pkg/timelord"
	"github.com/filecoin-project/vortex-sync/internal/pkg/timevortex"
)

var log = logging.Logger("sync.link")

// Destination classifies where a Link's traffic goes, decided once at
// finalizeConfiguration and never revisited on the send hot path.
type Destination int

const (
	// DestinationLocal delivers directly into the destination component's
	// incoming queue on the same thread.
	DestinationLocal Destination = iota
	// DestinationThread crosses a thread boundary on the same rank via a
	// ThreadSync SyncQueue.
	DestinationThread
	// DestinationRank crosses a rank boundary via a RankSync SyncQueue.
	DestinationRank
)

// ActivityQueue is the narrow interface every kind of destination queue
// satisfies: a local component's incoming queue, a ThreadSync SyncQueue, or
// a RankSync SyncQueue. syncqueue.SyncQueue implements it directly.
type ActivityQueue interface {
	Push(e *event.Event)
}

// VortexQueue adapts a TimeVortex into an ActivityQueue for
// DestinationLocal links. spec.md §4.2 requires a local send to be
// "inserted into the destination component's incoming queue with
// delivery_time = current_time + latency + delay" -- a deferred, ordered
// insertion, not an immediate callback. Push defers delivery by
// inserting the event into the owning thread's TimeVortex at the
// delivery_time Send already computed; the event reaches sink only once
// that TimeVortex pops it in its turn and calls Event.Execute, exactly
// like a cross-boundary arrival or any other scheduled Activity.
type VortexQueue struct {
	vortex *timevortex.TimeVortex
	sink   event.Sink
}

// NewVortexQueue builds a VortexQueue that defers delivery into sink
// through vortex.
func NewVortexQueue(vortex *timevortex.TimeVortex, sink event.Sink) *VortexQueue {
	return &VortexQueue{vortex: vortex, sink: sink}
}

// Push implements ActivityQueue.
func (q *VortexQueue) Push(e *event.Event) {
	e.LocalSink = q.sink
	q.vortex.Insert(&e.Activity)
}

// Link is immutable once FinalizeConfiguration has run.
type Link struct {
	// Latency is the minimum cycles a send on this Link takes. It must be
	// >= 1 for any Link whose Destination is not DestinationLocal, and
	// contributes to the global lookahead computation.
	Latency uint64
	// DefaultTimeBase records the component's own time base in cycles.
	// Send does not apply it: the delay passed to Send is already in cycles.
	DefaultTimeBase uint64
	// Tag is a per-rank unique id assigned at wire-up, used both for
	// deterministic cross-boundary ordering (as the order tag) and to
	// name this Link during rank-sync wire-up handshakes.
	Tag uint32

	destination Destination
	sendQueue   ActivityQueue
	handlerID   uint64 // valid when destination == DestinationLocal
	peerLinkID  uint64 // valid when destination != DestinationLocal

	finalized bool
}

// NewLocal constructs a Link destined for a local handler.
func NewLocal(latency, timeBase uint64, tag uint32, queue ActivityQueue, handlerID uint64) *Link {
	return &Link{
		Latency:         latency,
		DefaultTimeBase: timeBase,
		Tag:             tag,
		destination:     DestinationLocal,
		sendQueue:       queue,
		handlerID:       handlerID,
	}
}

// NewCrossBoundary constructs a Link crossing a thread or rank boundary.
// kind must be DestinationThread or DestinationRank.
func NewCrossBoundary(kind Destination, latency, timeBase uint64, tag uint32, queue ActivityQueue, peerLinkID uint64) *Link {
	return &Link{
		Latency:         latency,
		DefaultTimeBase: timeBase,
		Tag:             tag,
		destination:     kind,
		sendQueue:       queue,
		peerLinkID:      peerLinkID,
	}
}

// NewLocalWithUnit is NewLocal, but resolves timeUnit (e.g. "1ns")
// through the process-global timelord.Global registry instead of
// taking an already-resolved DefaultTimeBase, mirroring how a component
// built against TimeLord names its Link's time base by unit string
// rather than by a precomputed factor.
func NewLocalWithUnit(latency uint64, timeUnit string, tag uint32, queue ActivityQueue, handlerID uint64) (*Link, error) {
	tb, err := timelord.Global().GetTimeBase(timeUnit)
	if err != nil {
		return nil, err
	}
	return NewLocal(latency, tb, tag, queue, handlerID), nil
}

// NewCrossBoundaryWithUnit is NewCrossBoundary, resolving timeUnit
// through timelord.Global the same way NewLocalWithUnit does.
func NewCrossBoundaryWithUnit(kind Destination, latency uint64, timeUnit string, tag uint32, queue ActivityQueue, peerLinkID uint64) (*Link, error) {
	tb, err := timelord.Global().GetTimeBase(timeUnit)
	if err != nil {
		return nil, err
	}
	return NewCrossBoundary(kind, latency, tb, tag, queue, peerLinkID), nil
}

// FinalizeConfiguration locks the Link against further mutation and
// enforces the zero-latency cross-boundary contract. It must be called
// exactly once, before the first Send, for every Link in the topology.
func (l *Link) FinalizeConfiguration() error {
	if l.finalized {
		return nil
	}
	if l.destination != DestinationLocal && l.Latency == 0 {
		log.Errorf("link: zero-latency cross-boundary link, tag=%d", l.Tag)
		return errors.Wrapf(syncerr.ErrConfiguration, "link tag=%d: cross-boundary latency must be >= 1", l.Tag)
	}
	l.finalized = true
	return nil
}

// Destination reports the resolved destination class.
func (l *Link) Destination() Destination { return l.destination }

// Send resolves the event's delivery_info and delivery_time and appends it
// to the destination queue. delay is added on top of the Link's own
// latency; for cross-boundary sends, latency+delay must be at least 1.
func (l *Link) Send(currentTime, delay uint64, e *event.Event) error {
	if !l.finalized {
		return errors.Wrap(syncerr.ErrConfiguration, "link: Send called before FinalizeConfiguration")
	}
	if l.destination != DestinationLocal && l.Latency+delay == 0 {
		log.Errorf("link: rejecting zero-latency cross-boundary send, tag=%d", l.Tag)
		return errors.Wrapf(syncerr.ErrConfiguration, "link tag=%d: send with latency+delay == 0 across a boundary", l.Tag)
	}

	e.DeliveryTime = currentTime + l.Latency + delay
	e.LinkID = uint64(l.Tag)
	e.PriorityOrder = activity.NewPriorityOrder(activity.PriorityEvent, l.Tag)
	e.Handler = e

	switch l.destination {
	case DestinationLocal:
		e.DeliveryInfo = event.DeliveryInfo{Kind: event.DeliveryLocal, HandlerID: l.handlerID}
	case DestinationThread, DestinationRank:
		e.DeliveryInfo = event.DeliveryInfo{Kind: event.DeliveryRemote, LinkID: l.peerLinkID}
	}

	l.sendQueue.Push(e)
	return nil
}
