package oneshot_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/vortex-sync/internal/pkg/oneshot"
	"github.com/filecoin-project/vortex-sync/internal/pkg/timevortex"
)

func TestOneShotCallsEveryHandlerOnceInRegistrationOrder(t *testing.T) {
	o := oneshot.New(15, 1)

	var calls []int
	o.RegisterHandler(func() { calls = append(calls, 1) })
	o.RegisterHandler(func() { calls = append(calls, 2) })

	require.NoError(t, o.Execute())
	assert.Equal(t, []int{1, 2}, calls)

	// A second Execute call would fire both handlers again; the
	// TimeVortex never pops the same Activity twice, so in practice
	// this only happens once per OneShot's single scheduled delivery.
	require.NoError(t, o.Execute())
	assert.Equal(t, []int{1, 2, 1, 2}, calls)
}

func TestOneShotIsDeliveredAtItsFixedTime(t *testing.T) {
	tv := timevortex.New()
	o := oneshot.New(15, 1)
	tv.Insert(&o.Activity)

	a, err := tv.Pop()
	require.NoError(t, err)
	assert.EqualValues(t, 15, a.DeliveryTime)
	assert.Same(t, o, a.Handler)
}
