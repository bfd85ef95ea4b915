package uiserver_test

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperion-cluster/hyperion/internal/controlcenter"
	"github.com/hyperion-cluster/hyperion/internal/events"
	"github.com/hyperion-cluster/hyperion/internal/uiserver"
	"github.com/hyperion-cluster/hyperion/internal/util/testutil"
	"github.com/hyperion-cluster/hyperion/internal/wire"
)

type fakeSlave struct {
	calledHost, calledComp string
	err                    error
}

func (f *fakeSlave) StartCloneSession(host, compID string) error {
	f.calledHost, f.calledComp = host, compID
	return f.err
}

func newServer(t *testing.T, cc controlcenter.ControlCenter, slave uiserver.SlaveDelegate) (*uiserver.Server, *events.Queue, context.CancelFunc) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	notify := events.NewQueue()
	s := uiserver.New(ln, cc, slave, notify, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)
	go s.FanOut(ctx)

	return s, notify, cancel
}

func dial(t *testing.T, s *uiserver.Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendAction(t *testing.T, conn net.Conn, action string, args []any) {
	t.Helper()
	frame, err := wire.Encode(action, args)
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)
}

func readEnvelope(t *testing.T, conn net.Conn) wire.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	body, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	env, err := wire.Decode(body)
	require.NoError(t, err)
	return env
}

func TestGetHostStatesReturnsSingleResponseToSenderOnly(t *testing.T) {
	cc := controlcenter.NewReference(nil)
	cc.SetHostState("h1", controlcenter.HostState{State: "CONNECTED"})
	s, _, _ := newServer(t, cc, nil)

	a := dial(t, s)
	b := dial(t, s)

	sendAction(t, a, "get_host_states", nil)
	env := readEnvelope(t, a)
	assert.Equal(t, "get_host_states_response", env.Action)
	states := env.Args[0].(map[string]controlcenter.HostState)
	assert.Equal(t, "CONNECTED", states["h1"].State)

	b.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, err := wire.ReadFrame(b)
	assert.Error(t, err, "second client must not receive the single-routed response")
}

func TestQueueEventFanOutReachesEveryUIClientAndUpdatesHostState(t *testing.T) {
	cc := controlcenter.NewReference(nil)
	cc.SetHostState("h1", controlcenter.HostState{State: "CONNECTED"})
	s, notify, _ := newServer(t, cc, nil)

	a := dial(t, s)
	b := dial(t, s)
	testutil.RequireEventually(t, func() bool { return s.Registry.Len() == 2 }, "clients never registered")

	notify.Push(events.DisconnectEvent{HostName: "h1"})

	envA := readEnvelope(t, a)
	envB := readEnvelope(t, b)
	assert.Equal(t, "queue_event", envA.Action)
	assert.Equal(t, "queue_event", envB.Action)

	testutil.RequireEventually(t, func() bool {
		return cc.HostStates()["h1"].State == "DISCONNECTED"
	}, "host state was never marked disconnected")
}

func TestStartUnknownComponentIsDroppedSilently(t *testing.T) {
	cc := controlcenter.NewReference(map[string]bool{"web": true})
	s, _, _ := newServer(t, cc, nil)
	a := dial(t, s)

	sendAction(t, a, "start", []any{"missing"})

	a.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, err := wire.ReadFrame(a)
	assert.Error(t, err, "start has no response type; nothing should arrive")
}

func TestStartCloneSessionLocalWhenComponentRunsOnMaster(t *testing.T) {
	cc := controlcenter.NewReference(map[string]bool{"web": true})
	slave := &fakeSlave{}
	s, _, _ := newServer(t, cc, slave)
	a := dial(t, s)

	sendAction(t, a, "start_clone_session", []any{"web"})

	testutil.RequireEventually(t, func() bool {
		return slave.calledComp == "" // never delegated
	}, "local component must not be delegated to the slave server")
}

func TestStartCloneSessionDelegatesToSlaveWhenRemote(t *testing.T) {
	cc := controlcenter.NewReference(map[string]bool{"db": false})
	slave := &fakeSlave{}
	s, _, _ := newServer(t, cc, slave)
	a := dial(t, s)

	sendAction(t, a, "start_clone_session", []any{"db"})

	testutil.RequireEventually(t, func() bool {
		return slave.calledComp == "db"
	}, "remote component should be delegated to the slave server")
	assert.Equal(t, "localhost", slave.calledHost)
}

func TestQuitInvokesShutdownHook(t *testing.T) {
	cc := controlcenter.NewReference(nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	notify := events.NewQueue()
	s := uiserver.New(ln, cc, nil, notify, nil)
	var called atomic.Bool
	s.Shutdown = func() { called.Store(true) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	a := dial(t, s)
	sendAction(t, a, "quit", nil)

	testutil.RequireEventually(t, func() bool { return called.Load() }, "quit never invoked the shutdown hook")
}

func TestStartCloneSessionDelegateErrorIsLoggedNotPropagated(t *testing.T) {
	cc := controlcenter.NewReference(map[string]bool{"db": false})
	slave := &fakeSlave{err: errors.New("not reachable")}
	s, _, _ := newServer(t, cc, slave)
	a := dial(t, s)

	assert.NotPanics(t, func() {
		sendAction(t, a, "start_clone_session", []any{"db"})
	})
	testutil.RequireEventually(t, func() bool { return slave.calledComp == "db" }, "delegate was never invoked")
}
