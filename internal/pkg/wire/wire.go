// Package wire implements the cross-rank wire format: a fixed
// {mode, count, buffer_size} header followed by an opaque serialized
// activity vector, and the pluggable, versioned Serializer the sync core
// calls through without ever inspecting payload bytes (Design Notes'
// replacement for Boost serialization).
package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"

	"github.com/filecoin-project/vortex-sync/internal/pkg/event"
	"github.com/filecoin-project/vortex-sync/internal/pkg/mempool"
)

// eventPoolMaxLocal bounds how many *event.Event values a serializer's
// pool keeps on its own freelist before spilling the rest to mempool's
// shared, lock-guarded overflow -- the per-thread-pool-with-overflow
// policy spec.md §5 names as MemPool.
const eventPoolMaxLocal = 64

// Mode values carried in the header. ModeGrow signals that the sender's
// buffer grew past what the receiver last agreed to, and that the real
// payload follows on the secondary tag.
const (
	ModeNormal uint32 = 0
	ModeGrow   uint32 = 1
)

// HeaderSize is the on-wire size in bytes of Header, fixed regardless of
// payload contents.
const HeaderSize = 12

// Header prefixes every rank-to-rank payload.
type Header struct {
	Mode       uint32
	Count      uint32
	BufferSize uint32
}

// EncodeHeader writes the fixed-size header in a stable byte order.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Mode)
	binary.BigEndian.PutUint32(buf[4:8], h.Count)
	binary.BigEndian.PutUint32(buf[8:12], h.BufferSize)
	return buf
}

// DecodeHeader reads a fixed-size header from the front of buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, errors.Errorf("wire: short header, got %d bytes want %d", len(buf), HeaderSize)
	}
	return Header{
		Mode:       binary.BigEndian.Uint32(buf[0:4]),
		Count:      binary.BigEndian.Uint32(buf[4:8]),
		BufferSize: binary.BigEndian.Uint32(buf[8:12]),
	}, nil
}

// wireEvent is the flattened, codec-friendly projection of an event.Event.
// It exists so the msgpack handle never has to reflect across the
// activity.Activity/Executable interface boundary.
type wireEvent struct {
	DeliveryTime  uint64
	PriorityOrder uint64
	QueueOrder    uint64
	DeliveryKind  int
	HandlerID     uint64
	LinkID        uint64
	Payload       []byte
}

// Serializer is the interface the sync core calls through to turn a batch
// of events into bytes and back, without ever inspecting the bytes it
// produces. An event type registers its own Serializer; the default here
// uses msgpack via ugorji/go/codec.
type Serializer interface {
	Encode(events []*event.Event) ([]byte, error)
	Decode(buf []byte) ([]*event.Event, error)
}

// MsgpackSerializer is the default Serializer, stable for a given build and
// deterministic given identical input, as required by spec.md §4.3.
type MsgpackSerializer struct {
	handle codec.MsgpackHandle

	// pool backs every *event.Event Decode allocates. A serializer is
	// only ever driven by one rank-sync leader thread at a time, so
	// this is exactly the single-owner pool the resource model calls
	// for -- no lock needed on the fast path, with mempool's shared
	// overflow absorbing any burst.
	pool *mempool.Pool
}

// NewMsgpackSerializer constructs the default wire serializer.
func NewMsgpackSerializer() *MsgpackSerializer {
	s := &MsgpackSerializer{}
	s.handle.Canonical = true
	s.pool = mempool.New(func() interface{} { return &event.Event{} }, eventPoolMaxLocal)
	return s
}

// Release returns a decoded Event to the pool backing this serializer's
// Decode calls. A caller that knows a decoded Event has reached the end
// of its life (delivered and fully consumed by its destination handler)
// may call this to let a later Decode reuse its backing allocation
// instead of growing the heap.
func (s *MsgpackSerializer) Release(e *event.Event) {
	s.pool.Put(e)
}

// Encode serializes a batch of events deterministically.
func (s *MsgpackSerializer) Encode(events []*event.Event) ([]byte, error) {
	wev := make([]wireEvent, len(events))
	for i, e := range events {
		wev[i] = wireEvent{
			DeliveryTime:  e.DeliveryTime,
			PriorityOrder: e.PriorityOrder,
			QueueOrder:    e.QueueOrder,
			DeliveryKind:  int(e.DeliveryInfo.Kind),
			HandlerID:     e.DeliveryInfo.HandlerID,
			LinkID:        e.DeliveryInfo.LinkID,
			Payload:       e.Payload,
		}
	}
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, &s.handle)
	if err := enc.Encode(wev); err != nil {
		return nil, errors.Wrap(err, "wire: encode event batch")
	}
	return buf.Bytes(), nil
}

// Decode reconstructs a batch of events from bytes produced by Encode.
func (s *MsgpackSerializer) Decode(buf []byte) ([]*event.Event, error) {
	var wev []wireEvent
	dec := codec.NewDecoder(bytes.NewReader(buf), &s.handle)
	if err := dec.Decode(&wev); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "wire: decode event batch")
	}
	out := make([]*event.Event, len(wev))
	for i, w := range wev {
		e := s.pool.Get().(*event.Event)
		*e = event.Event{
			DeliveryInfo: event.DeliveryInfo{
				Kind:      event.DeliveryKind(w.DeliveryKind),
				HandlerID: w.HandlerID,
				LinkID:    w.LinkID,
			},
			Payload: w.Payload,
			LinkID:  w.LinkID,
		}
		e.DeliveryTime = w.DeliveryTime
		e.PriorityOrder = w.PriorityOrder
		e.QueueOrder = w.QueueOrder
		e.Handler = e
		out[i] = e
	}
	return out, nil
}
