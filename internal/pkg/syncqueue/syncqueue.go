// Package syncqueue implements SyncQueue: the activity queue that buffers
// outbound cross-boundary events until the owning thread drains it during
// an exchange. A SyncQueue is only ever drained by its owner; producers
// append between barriers and never race the owner, matching the
// invariant in spec.md §3.
package syncqueue

import (
	"sync"

	logging "github.com/ipfs/go-log"

	"github.com/filecoin-project/vortex-sync/internal/pkg/event"
	"github.com/filecoin-project/vortex-sync/internal/pkg/wire"
)

var log = logging.Logger("sync.syncqueue")

// SyncQueue buffers pending cross-boundary events and produces the
// header-prefixed wire payload on demand. ThreadSync queues are drained
// in-process and never serialize; RankSync queues serialize through
// getData before a send.
type SyncQueue struct {
	mu       sync.Mutex
	pending  []*event.Event
	sizeHint int

	serializer wire.Serializer
	// lastAdvertisedRemoteSize is the receive buffer capacity the remote
	// peer is known to have provisioned, used to decide whether this
	// round needs a grow message (spec.md §4.5.1).
	lastAdvertisedRemoteSize uint32
}

// New constructs an empty SyncQueue using the given Serializer for
// getData(). ThreadSync queues may pass nil; they never call GetData.
func New(serializer wire.Serializer) *SyncQueue {
	return &SyncQueue{serializer: serializer}
}

// Push appends an event to the pending vector and updates a byte-size
// estimate. GetData does not use that estimate; it decides on a grow message
// from the actual serialized length.
func (q *SyncQueue) Push(e *event.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, e)
	q.sizeHint += len(e.Payload) + 64 // rough per-event framing overhead
}

// Len returns the number of pending events.
func (q *SyncQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain removes and returns every pending event, in insertion order,
// without serializing. ThreadSync's before() uses this path: events
// crossing only a thread boundary are passed by pointer, never
// serialized.
func (q *SyncQueue) Drain() []*event.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	q.sizeHint = 0
	return out
}

// GetData serializes the pending vector into a header-prefixed byte
// buffer and returns it. It does not clear the queue; callers call Clear
// once the transport has accepted the payload for sending.
func (q *SyncQueue) GetData() ([]byte, error) {
	q.mu.Lock()
	pending := append([]*event.Event(nil), q.pending...)
	lastRemote := q.lastAdvertisedRemoteSize
	q.mu.Unlock()

	payload, err := q.serializer.Encode(pending)
	if err != nil {
		return nil, err
	}

	mode := wire.ModeNormal
	if uint32(len(payload)) > lastRemote {
		mode = wire.ModeGrow
	}

	header := wire.EncodeHeader(wire.Header{
		Mode:       mode,
		Count:      uint32(len(pending)),
		BufferSize: uint32(len(payload)),
	})
	return append(header, payload...), nil
}

// Clear empties the pending vector. Buffer capacity backing the slice may
// be retained by the runtime's allocator; callers should not assume the
// underlying array is released.
func (q *SyncQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = q.pending[:0]
	q.sizeHint = 0
}

// RecordRemoteCapacity updates the last agreed receive-buffer capacity on
// the remote side, so the next GetData call knows whether a grow message
// is required.
func (q *SyncQueue) RecordRemoteCapacity(size uint32) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastAdvertisedRemoteSize = size
}

// Decode reconstructs the event batch carried in a header-prefixed wire
// payload received from a peer.
func Decode(serializer wire.Serializer, buf []byte) (wire.Header, []*event.Event, error) {
	header, err := wire.DecodeHeader(buf)
	if err != nil {
		log.Errorf("syncqueue: malformed header: %s", err)
		return wire.Header{}, nil, err
	}
	events, err := serializer.Decode(buf[wire.HeaderSize:])
	if err != nil {
		return wire.Header{}, nil, err
	}
	return header, events, nil
}
