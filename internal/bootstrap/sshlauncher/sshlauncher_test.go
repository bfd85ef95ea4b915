package sshlauncher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hyperion-cluster/hyperion/internal/bootstrap"
)

func TestSlaveCommandWithoutSourceScript(t *testing.T) {
	l := &Launcher{}
	cmd := l.slaveCommand("master-host", 4242)
	assert.Equal(t, "hyperion slave --master master-host --port 4242", cmd)
}

func TestSlaveCommandSourcesScriptFirst(t *testing.T) {
	l := &Launcher{SourceScript: "/etc/hyperion/env.sh"}
	cmd := l.slaveCommand("master-host", 4242)
	assert.Equal(t, "source /etc/hyperion/env.sh && hyperion slave --master master-host --port 4242", cmd)
}

func TestDefaultPortFallsBackTo22(t *testing.T) {
	l := &Launcher{}
	assert.Equal(t, 22, l.port())
	l.Port = 2222
	assert.Equal(t, 2222, l.port())
}

func TestStartSlaveFailsFastWhenHostUnreachable(t *testing.T) {
	l := New("nobody", nil)
	l.Port = 1 // nothing listens here
	err := l.StartSlave(context.Background(), "127.0.0.1", "master", 4242)
	assert.Error(t, err)
}

func TestValidateCommandWithoutSourceScript(t *testing.T) {
	l := &Launcher{}
	assert.Equal(t, "hyperion validate", l.validateCommand())
}

func TestValidateCommandSourcesScriptFirst(t *testing.T) {
	l := &Launcher{SourceScript: "/etc/hyperion/env.sh"}
	assert.Equal(t, "source /etc/hyperion/env.sh && hyperion validate", l.validateCommand())
}

func TestReciprocalCommandDialsBackToMasterHostname(t *testing.T) {
	l := &Launcher{MasterHostname: "master-host"}
	assert.Equal(t, "ssh -o BatchMode=yes -o ConnectTimeout=5 master-host echo test", l.reciprocalCommand())
}

func TestValidateOnSlaveFailsFastWhenHostUnreachable(t *testing.T) {
	l := New("nobody", nil)
	l.Port = 1 // nothing listens here
	status, err := l.ValidateOnSlave(context.Background(), "127.0.0.1")
	assert.Error(t, err)
	assert.Equal(t, bootstrap.StatusUnreachable, status)
}
