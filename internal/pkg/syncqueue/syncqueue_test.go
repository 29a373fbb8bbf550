package syncqueue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/vortex-sync/internal/pkg/event"
	"github.com/filecoin-project/vortex-sync/internal/pkg/syncqueue"
	"github.com/filecoin-project/vortex-sync/internal/pkg/wire"
)

func TestEmptyQueueGetDataStillProducesZeroCountHeader(t *testing.T) {
	q := syncqueue.New(wire.NewMsgpackSerializer())
	// RankSync's RegisterLink seeds every outbound queue with the initial
	// receive capacity; without it any non-empty payload would exceed 0.
	q.RecordRemoteCapacity(4096)
	buf, err := q.GetData()
	require.NoError(t, err)

	h, err := wire.DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), h.Count)
	assert.Equal(t, wire.ModeNormal, h.Mode)
}

func TestGetDataSignalsGrowWhenPayloadExceedsAdvertisedCapacity(t *testing.T) {
	q := syncqueue.New(wire.NewMsgpackSerializer())
	q.RecordRemoteCapacity(4)

	q.Push(&event.Event{Payload: make([]byte, 256)})
	buf, err := q.GetData()
	require.NoError(t, err)

	h, err := wire.DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, wire.ModeGrow, h.Mode)
	assert.Equal(t, uint32(1), h.Count)
}

func TestGetDataStaysNormalWithinAdvertisedCapacity(t *testing.T) {
	q := syncqueue.New(wire.NewMsgpackSerializer())
	// Establish a generous capacity first so the small payload below
	// fits well within it, so no grow message is needed.
	q.RecordRemoteCapacity(1 << 16)
	q.Push(&event.Event{Payload: []byte("small")})

	buf, err := q.GetData()
	require.NoError(t, err)
	h, err := wire.DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, wire.ModeNormal, h.Mode)
}

func TestClearEmptiesPendingVector(t *testing.T) {
	q := syncqueue.New(nil)
	q.Push(&event.Event{})
	q.Push(&event.Event{})
	require.Equal(t, 2, q.Len())

	q.Clear()
	assert.Equal(t, 0, q.Len())
}

func TestDrainReturnsAndClearsPendingInInsertionOrder(t *testing.T) {
	q := syncqueue.New(nil)
	first := &event.Event{}
	second := &event.Event{}
	q.Push(first)
	q.Push(second)

	drained := q.Drain()
	require.Len(t, drained, 2)
	assert.True(t, first == drained[0])
	assert.True(t, second == drained[1])
	assert.Equal(t, 0, q.Len())
}

func TestGetDataDoesNotClearQueue(t *testing.T) {
	q := syncqueue.New(wire.NewMsgpackSerializer())
	q.Push(&event.Event{Payload: []byte("x")})

	_, err := q.GetData()
	require.NoError(t, err)
	assert.Equal(t, 1, q.Len())
}
