package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAction_KeyDefaultsToKind(t *testing.T) {
	a := Start("ORDER.getList", Object{"page": Int(1)})
	assert.Equal(t, "ORDER.getList", a.Key())

	keyed := StartKeyed("ORDER.getList", "tab-2", nil)
	assert.Equal(t, "tab-2", keyed.Key())
}

func TestAction_OutcomesKeepCorrelation(t *testing.T) {
	start := StartKeyed("AUTH.login", "k1", Object{"username": String("u")})

	ok := Success(start, Object{"token": String("t")})
	assert.Equal(t, PhaseSuccess, ok.Phase)
	assert.Equal(t, "k1", ok.Key())
	assert.Equal(t, Kind("AUTH.login"), ok.Kind)
	assert.Nil(t, ok.Reply)

	fail := Failure(start, Object{"status": Int(401)})
	assert.Equal(t, PhaseError, fail.Phase)
	assert.Equal(t, "k1", fail.Key())
}

func TestAction_Type(t *testing.T) {
	assert.Equal(t, "AUTH.login.cancel", Cancel("AUTH.login", "").Type())
}

func TestPhase(t *testing.T) {
	assert.True(t, PhaseStart.Valid())
	assert.False(t, Phase("done").Valid())
	assert.False(t, PhaseStart.Terminal())
	assert.True(t, PhaseCancel.Terminal())
	assert.True(t, PhaseError.Terminal())
}

func TestKind(t *testing.T) {
	k := NewKind("ORDER", "updateStatus")
	assert.Equal(t, Kind("ORDER.updateStatus"), k)
	assert.Equal(t, "ORDER", k.Prefix())
}

func TestOutcome_OK(t *testing.T) {
	assert.True(t, Outcome{Phase: PhaseSuccess}.OK())
	assert.False(t, Outcome{Phase: PhaseError}.OK())
}
