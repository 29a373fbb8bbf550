package exitaction_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/vortex-sync/internal/pkg/exitaction"
)

// TestExitActionReachesZeroAfterThreeDecrements exercises seed scenario 4
// from spec.md §8: a ref count of 3, decremented once at t=5, t=10, t=15,
// ending at t=15.
func TestExitActionReachesZeroAfterThreeDecrements(t *testing.T) {
	ea := exitaction.New(3)

	assert.EqualValues(t, 2, ea.Decrement(5))
	_, ended := ea.EndTime()
	assert.False(t, ended)

	assert.EqualValues(t, 1, ea.Decrement(10))
	_, ended = ea.EndTime()
	assert.False(t, ended)

	assert.EqualValues(t, 0, ea.Decrement(15))
	endTime, ended := ea.EndTime()
	require.True(t, ended)
	assert.EqualValues(t, 15, endTime)
}

func TestExitActionRecordsEndTimeOnlyOnce(t *testing.T) {
	ea := exitaction.New(1)
	ea.Decrement(5)
	endTime, ended := ea.EndTime()
	require.True(t, ended)
	assert.EqualValues(t, 5, endTime)

	// A further decrement past zero must not overwrite the recorded
	// end time with a later timestamp.
	ea.Decrement(99)
	endTime, ended = ea.EndTime()
	require.True(t, ended)
	assert.EqualValues(t, 5, endTime)
}

func TestGlobalExitCountShouldTerminate(t *testing.T) {
	assert.True(t, exitaction.GlobalExitCount(0).ShouldTerminate())
	assert.True(t, exitaction.GlobalExitCount(-1).ShouldTerminate())
	assert.False(t, exitaction.GlobalExitCount(1).ShouldTerminate())
}
