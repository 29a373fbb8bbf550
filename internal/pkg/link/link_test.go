package link_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/vortex-sync/internal/pkg/event"
	"github.com/filecoin-project/vortex-sync/internal/pkg/link"
	"github.com/filecoin-project/vortex-sync/internal/pkg/timelord"
	"github.com/filecoin-project/vortex-sync/internal/pkg/timevortex"
)

type recordingQueue struct {
	pushed []*event.Event
}

func (q *recordingQueue) Push(e *event.Event) { q.pushed = append(q.pushed, e) }

func TestZeroLatencyCrossBoundaryLinkFailsFinalization(t *testing.T) {
	q := &recordingQueue{}
	l := link.NewCrossBoundary(link.DestinationThread, 0, 1, 7, q, 1)
	err := l.FinalizeConfiguration()
	require.Error(t, err)
}

func TestZeroLatencyLocalLinkFinalizesFine(t *testing.T) {
	q := &recordingQueue{}
	l := link.NewLocal(0, 1, 1, q, 42)
	require.NoError(t, l.FinalizeConfiguration())
}

func TestSendAcceptsLatencyOnePlusZeroDelayAcrossBoundary(t *testing.T) {
	q := &recordingQueue{}
	l := link.NewCrossBoundary(link.DestinationRank, 1, 1, 3, q, 9)
	require.NoError(t, l.FinalizeConfiguration())

	// Latency is 1 here so a zero-delay send is legal; force the
	// zero case by constructing a fresh link with latency 0 isn't
	// possible past FinalizeConfiguration, so instead assert the
	// legal boundary: latency 1 + delay 0 sends fine.
	ev := &event.Event{}
	require.NoError(t, l.Send(100, 0, ev))
	assert.Equal(t, uint64(101), ev.DeliveryTime)
}

func TestLocalSendSetsHandlerDeliveryInfo(t *testing.T) {
	q := &recordingQueue{}
	l := link.NewLocal(5, 1, 11, q, 77)
	require.NoError(t, l.FinalizeConfiguration())

	ev := &event.Event{}
	require.NoError(t, l.Send(10, 2, ev))

	assert.Equal(t, uint64(17), ev.DeliveryTime) // 10 + latency(5) + delay(2)
	assert.Equal(t, event.DeliveryLocal, ev.DeliveryInfo.Kind)
	assert.Equal(t, uint64(77), ev.DeliveryInfo.HandlerID)
	require.Len(t, q.pushed, 1)
	assert.True(t, ev == q.pushed[0])
}

func TestCrossBoundarySendSetsPeerLinkDeliveryInfoAndOrderTag(t *testing.T) {
	q := &recordingQueue{}
	l := link.NewCrossBoundary(link.DestinationRank, 3, 1, 21, q, 99)
	require.NoError(t, l.FinalizeConfiguration())

	ev := &event.Event{}
	require.NoError(t, l.Send(0, 4, ev))

	assert.Equal(t, uint64(7), ev.DeliveryTime)
	assert.Equal(t, event.DeliveryRemote, ev.DeliveryInfo.Kind)
	assert.Equal(t, uint64(99), ev.DeliveryInfo.LinkID)
	assert.Equal(t, uint64(21), ev.LinkID)
}

func TestSendBeforeFinalizeConfigurationFails(t *testing.T) {
	q := &recordingQueue{}
	l := link.NewLocal(1, 1, 1, q, 1)
	err := l.Send(0, 0, &event.Event{})
	require.Error(t, err)
}

func TestNewLocalWithUnitResolvesDefaultTimeBaseThroughTimeLord(t *testing.T) {
	require.NoError(t, timelord.Global().Init("1ps"))

	q := &recordingQueue{}
	l, err := link.NewLocalWithUnit(0, "1ns", 1, q, 1)
	require.NoError(t, err)

	require.NoError(t, l.FinalizeConfiguration())
	assert.EqualValues(t, 1000, l.DefaultTimeBase)
}

func TestVortexQueueDefersLocalDeliveryToPopTime(t *testing.T) {
	vortex := timevortex.New()
	sink := &recordingQueue{}

	l := link.NewLocal(5, 1, 1, link.NewVortexQueue(vortex, sink), 42)
	require.NoError(t, l.FinalizeConfiguration())

	ev := &event.Event{}
	require.NoError(t, l.Send(10, 2, ev))

	// Pushed into the vortex, not delivered to sink yet: a local send
	// must be deferred, ordered delivery, not an immediate callback.
	assert.Empty(t, sink.pushed)
	assert.False(t, vortex.Empty())

	for {
		a, err := vortex.Pop()
		require.NoError(t, err)
		if timevortex.IsStopAction(a) {
			t.Fatal("StopAction popped before the event it was seeded ahead of")
		}
		require.NoError(t, a.Handler.Execute())
		break
	}

	require.Len(t, sink.pushed, 1)
	assert.True(t, ev == sink.pushed[0])
	assert.Equal(t, uint64(17), ev.DeliveryTime) // 10 + latency(5) + delay(2)
}

func TestNewCrossBoundaryWithUnitRejectsUnrecognizedUnit(t *testing.T) {
	require.NoError(t, timelord.Global().Init("1ps"))

	q := &recordingQueue{}
	_, err := link.NewCrossBoundaryWithUnit(link.DestinationRank, 1, "1fortnight", 1, q, 1)
	require.Error(t, err)
}
