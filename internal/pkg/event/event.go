// Package event implements Event, the Activity subtype carrying a
// component-to-component message across a Link.
package event

import "github.com/filecoin-project/vortex-sync/internal/pkg/activity"

// DeliveryKind distinguishes the two shapes a delivery_info can take. This
// is the tagged-union replacement for the source's uintptr_t that
// reinterpreted either a handler pointer or a peer-link pointer, per the
// Design Notes.
type DeliveryKind int

const (
	// DeliveryLocal means DeliveryInfo names the receiving handler directly.
	DeliveryLocal DeliveryKind = iota
	// DeliveryRemote means DeliveryInfo names the peer Link on the
	// destination side; it is resolved to a local Link only after the
	// event has crossed a thread or rank boundary.
	DeliveryRemote
)

// DeliveryInfo is resolved once, at Link construction time, into either a
// local handler id or a remote link id -- never both, and never
// reinterpreted at runtime the way a raw pointer would be.
type DeliveryInfo struct {
	Kind      DeliveryKind
	HandlerID uint64 // valid when Kind == DeliveryLocal
	LinkID    uint64 // valid when Kind == DeliveryRemote
}

// Sink is the narrow interface a TimeVortex-scheduled Event delivers
// itself to once popped at its delivery_time. A DestinationLocal Link
// routes through a TimeVortex-backed queue adapter (see
// link.VortexQueue) that sets LocalSink to the actual destination
// component's incoming queue before inserting the event, so Execute can
// complete the hand-off deferred until the correct simulated time.
type Sink interface {
	Push(e *Event)
}

// Event is an Activity carrying an opaque payload between components. The
// payload is never inspected by the sync core; it is only moved, and, when
// crossing a rank boundary, serialized through the wire package's
// Serializer interface.
type Event struct {
	activity.Activity
	DeliveryInfo DeliveryInfo
	Payload      []byte

	// LinkID identifies the Link this event travelled on, so the order
	// tag used for tie-breaking (activity.PriorityOrder's low bits) can
	// be recovered after a cross-boundary hop.
	LinkID uint64

	// LocalSink is set when a DestinationLocal Link enqueues this event
	// into a TimeVortex rather than delivering it synchronously; Execute
	// uses it to complete delivery once the TimeVortex pops the event at
	// its delivery_time. Left nil for events that never pass through
	// that path.
	LocalSink Sink
}

// Execute delivers the event to its LocalSink, if one was set by a
// TimeVortex-backed queue adapter; otherwise it is a no-op, matching an
// Event delivered by some other means. It exists so Event satisfies
// activity.Executable.
func (e *Event) Execute() error {
	if e.LocalSink != nil {
		e.LocalSink.Push(e)
	}
	return nil
}
