package local_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/vortex-sync/internal/pkg/transport/local"
)

func TestAllreduceMinReturnsGlobalMinimumToEveryRank(t *testing.T) {
	cluster := local.NewCluster(3)
	locals := []uint64{100, 50, 75}

	results := make([]uint64, 3)
	var wg sync.WaitGroup
	wg.Add(3)
	for r := 0; r < 3; r++ {
		r := r
		go func() {
			defer wg.Done()
			tr := cluster.Transport(r)
			v, err := tr.AllreduceMin(context.Background(), locals[r])
			require.NoError(t, err)
			results[r] = v
		}()
	}
	wg.Wait()

	for _, v := range results {
		assert.EqualValues(t, 50, v)
	}
}

func TestAllreduceSumAddsEveryRanksContribution(t *testing.T) {
	cluster := local.NewCluster(4)
	results := make([]int64, 4)
	var wg sync.WaitGroup
	wg.Add(4)
	for r := 0; r < 4; r++ {
		r := r
		go func() {
			defer wg.Done()
			tr := cluster.Transport(r)
			v, err := tr.AllreduceSum(context.Background(), int64(r+1))
			require.NoError(t, err)
			results[r] = v
		}()
	}
	wg.Wait()

	for _, v := range results {
		assert.EqualValues(t, 10, v) // 1+2+3+4
	}
}

func TestISendIRecvRoundTripsBytesBetweenRanks(t *testing.T) {
	cluster := local.NewCluster(2)
	tr0 := cluster.Transport(0)
	tr1 := cluster.Transport(1)

	sendH, err := tr0.ISend(context.Background(), 1, 7, []byte("hello"))
	require.NoError(t, err)
	recvH, err := tr1.IRecv(context.Background(), 0, 7, 64)
	require.NoError(t, err)

	require.NoError(t, sendH.Wait())
	require.NoError(t, recvH.Wait())
	assert.Equal(t, []byte("hello"), recvH.Bytes())
}

func TestReducerSupportsRepeatedGenerationsSequentially(t *testing.T) {
	cluster := local.NewCluster(2)
	tr0 := cluster.Transport(0)
	tr1 := cluster.Transport(1)

	for i := 0; i < 3; i++ {
		var a, b uint64
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); a, _ = tr0.AllreduceMin(context.Background(), 10) }()
		go func() { defer wg.Done(); b, _ = tr1.AllreduceMin(context.Background(), 20) }()
		wg.Wait()
		assert.EqualValues(t, 10, a)
		assert.EqualValues(t, 10, b)
	}
}
