package clock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/vortex-sync/internal/pkg/clock"
	"github.com/filecoin-project/vortex-sync/internal/pkg/timevortex"
)

func TestClockFiresEveryPeriodUntilHandlerCancels(t *testing.T) {
	tv := timevortex.New()

	var fired []uint64
	c := clock.New(tv, 10, 0, 1, func(cycle uint64) bool {
		fired = append(fired, cycle)
		return cycle < 3
	})
	c.Start()

	for i := 0; i < 3; i++ {
		a, err := tv.Pop()
		require.NoError(t, err)
		require.NoError(t, a.Handler.Execute())
	}

	assert.Equal(t, []uint64{1, 2, 3}, fired)
	assert.EqualValues(t, 30, c.DeliveryTime)

	// The handler canceled on cycle 3, so nothing further is scheduled;
	// the vortex should now hold only its StopAction sentinel.
	assert.Equal(t, 1, tv.Len())
	assert.True(t, timevortex.IsStopAction(tv.Front()))
}

func TestClockFirstFireIsAtStartTimePlusPeriod(t *testing.T) {
	tv := timevortex.New()
	c := clock.New(tv, 5, 100, 1, func(uint64) bool { return true })
	assert.EqualValues(t, 105, c.DeliveryTime)
}
