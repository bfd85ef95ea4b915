package controlcenter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hyperion-cluster/hyperion/internal/controlcenter"
)

func TestStartUnknownComponentReturnsFalse(t *testing.T) {
	cc := controlcenter.NewReference(map[string]bool{"web": true})
	assert.False(t, cc.Start("nope", false))
	assert.True(t, cc.Start("web", false))
}

func TestRunsOnMasterDistinguishesComponents(t *testing.T) {
	cc := controlcenter.NewReference(map[string]bool{"web": true, "db": false})
	assert.True(t, cc.RunsOnMaster("web"))
	assert.False(t, cc.RunsOnMaster("db"))
	assert.True(t, cc.StartCloneSessionLocal("web"))
	assert.False(t, cc.StartCloneSessionLocal("db"))
}

func TestHostStateRoundTrip(t *testing.T) {
	cc := controlcenter.NewReference(nil)
	now := time.Now()
	cc.SetHostState("h1", controlcenter.HostState{LastSeen: now, State: "CONNECTED"})

	states := cc.HostStates()
	assert.Equal(t, "CONNECTED", states["h1"].State)

	states["h1"] = controlcenter.HostState{State: "MUTATED"}
	assert.Equal(t, "CONNECTED", cc.HostStates()["h1"].State, "snapshot mutation must not leak back")
}

func TestHostForComponentResolvesKnownOnly(t *testing.T) {
	cc := controlcenter.NewReference(map[string]bool{"web": true})
	host, ok := cc.HostForComponent("web")
	assert.True(t, ok)
	assert.Equal(t, "localhost", host)

	_, ok = cc.HostForComponent("nope")
	assert.False(t, ok)
}

func TestMarkHostDisconnectedZeroesLastSeen(t *testing.T) {
	cc := controlcenter.NewReference(nil)
	cc.SetHostState("h1", controlcenter.HostState{State: "CONNECTED", LastSeen: time.Now()})
	cc.MarkHostDisconnected("h1")
	state := cc.HostStates()["h1"]
	assert.Equal(t, "DISCONNECTED", state.State)
	assert.True(t, state.LastSeen.IsZero())
}

func TestConfSnapshotIsACopy(t *testing.T) {
	cc := controlcenter.NewReference(nil)
	cc.SetConf(map[string]string{"k": "v"})

	snap := cc.ConfSnapshot()
	snap["k"] = "mutated"
	assert.Equal(t, "v", cc.ConfSnapshot()["k"])
}
