package rtaction_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/filecoin-project/vortex-sync/internal/pkg/rtaction"
)

func TestInvokeRunsRegisteredCallback(t *testing.T) {
	r := rtaction.NewRegistry()
	called := false
	r.Register(rtaction.Checkpoint, func() { called = true })

	r.Invoke(rtaction.Checkpoint)
	assert.True(t, called)
}

func TestInvokeWithoutRegistrationDoesNotPanic(t *testing.T) {
	r := rtaction.NewRegistry()
	assert.NotPanics(t, func() { r.Invoke(rtaction.EndOfRun) })
}

func TestRegisterReplacesPreviousCallback(t *testing.T) {
	r := rtaction.NewRegistry()
	firstCalled, secondCalled := false, false
	r.Register(rtaction.Heartbeat, func() { firstCalled = true })
	r.Register(rtaction.Heartbeat, func() { secondCalled = true })

	r.Invoke(rtaction.Heartbeat)
	assert.False(t, firstCalled)
	assert.True(t, secondCalled)
}

func TestKindStringNamesEveryKind(t *testing.T) {
	assert.Equal(t, "end-of-run", rtaction.EndOfRun.String())
	assert.Equal(t, "status-print", rtaction.StatusPrint.String())
	assert.Equal(t, "checkpoint", rtaction.Checkpoint.String())
	assert.Equal(t, "heartbeat", rtaction.Heartbeat.String())
}
