package timelord_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/vortex-sync/internal/pkg/timelord"
)

func TestGetTimeBaseResolvesKnownUnits(t *testing.T) {
	r := &timelord.Registry{}
	require.NoError(t, r.Init("1ps"))

	ns, err := r.GetTimeBase("1ns")
	require.NoError(t, err)
	assert.EqualValues(t, 1000, ns)

	us, err := r.GetNano()
	require.NoError(t, err)
	assert.EqualValues(t, 1000, us)
}

func TestGetTimeBaseRejectsUnknownUnit(t *testing.T) {
	r := &timelord.Registry{}
	require.NoError(t, r.Init("1ps"))

	_, err := r.GetTimeBase("1fortnight")
	require.Error(t, err)
}

func TestInitIsIdempotentForTheSameCoreUnit(t *testing.T) {
	r := &timelord.Registry{}
	require.NoError(t, r.Init("1ps"))
	require.NoError(t, r.Init("1ps"))
}

func TestInitRejectsChangingTheCoreUnitAfterFreeze(t *testing.T) {
	r := &timelord.Registry{}
	require.NoError(t, r.Init("1ps"))
	require.Error(t, r.Init("1ns"))
}

func TestGlobalReturnsTheSameRegistryEveryCall(t *testing.T) {
	assert.Same(t, timelord.Global(), timelord.Global())
}

func TestGetTimeBaseIsRelativeToANonPicosecondCoreUnit(t *testing.T) {
	r := &timelord.Registry{}
	require.NoError(t, r.Init("1ns"))

	// With a core unit of 1ns, asking for "1us" must resolve to 1000 --
	// not the raw 1,000,000-picosecond absolute factor -- since every
	// factor this registry hands out is denominated in its own core
	// unit, not in picoseconds.
	us, err := r.GetTimeBase("1us")
	require.NoError(t, err)
	assert.EqualValues(t, 1000, us)

	ns, err := r.GetTimeBase("1ns")
	require.NoError(t, err)
	assert.EqualValues(t, 1, ns)
}

func TestGetTimeBaseBeforeInitFails(t *testing.T) {
	r := &timelord.Registry{}
	_, err := r.GetTimeBase("1ns")
	require.Error(t, err)
}
