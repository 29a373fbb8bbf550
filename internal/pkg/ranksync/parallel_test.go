package ranksync_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/vortex-sync/internal/pkg/event"
	"github.com/filecoin-project/vortex-sync/internal/pkg/link"
	"github.com/filecoin-project/vortex-sync/internal/pkg/ranksync"
	"github.com/filecoin-project/vortex-sync/internal/pkg/transport/local"
	"github.com/filecoin-project/vortex-sync/internal/pkg/wire"
)

// TestParallelExecuteDeliversCrossRankEvent is the Parallel-variant analogue
// of TestSerialExecuteDeliversCrossRankEvent: one thread per rank (the
// degenerate case of the bounded-queue fan-out, n=1), still exercising the
// full serialize -> send -> receive -> deserialize -> dispatch path.
func TestParallelExecuteDeliversCrossRankEvent(t *testing.T) {
	cluster := local.NewCluster(2)
	serializer := wire.NewMsgpackSerializer()

	rs0 := ranksync.NewParallel(cluster.Transport(0), serializer, 10, 1)
	rs1 := ranksync.NewParallel(cluster.Transport(1), serializer, 10, 1)

	sink := &sinkQueue{}
	destLink := link.NewLocal(0, 1, 1, sink, 1)
	require.NoError(t, destLink.FinalizeConfiguration())
	rs1.RegisterLink(ranksync.RemoteThread{Rank: 0, Thread: 0}, 1, destLink)

	outQ := rs0.RegisterLink(ranksync.RemoteThread{Rank: 1, Thread: 0}, 1, nil)
	srcLink := link.NewCrossBoundary(link.DestinationRank, 10, 1, 1, outQ, 1)
	require.NoError(t, srcLink.FinalizeConfiguration())

	ev := &event.Event{Payload: []byte("parallel-payload")}
	require.NoError(t, srcLink.Send(0, 0, ev))

	var wg sync.WaitGroup
	wg.Add(2)
	var err0, err1 error
	go func() {
		defer wg.Done()
		err0 = rs0.Execute(0, 0, 10)
	}()
	go func() {
		defer wg.Done()
		err1 = rs1.Execute(0, 0, ^uint64(0))
	}()
	wg.Wait()

	require.NoError(t, err0)
	require.NoError(t, err1)

	require.Len(t, sink.received, 1)
	assert.EqualValues(t, 10, sink.received[0].DeliveryTime)
	assert.Equal(t, []byte("parallel-payload"), sink.received[0].Payload)
}
