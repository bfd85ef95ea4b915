package registry_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperion-cluster/hyperion/internal/registry"
)

func pipeConn(t *testing.T) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return server
}

func TestRegisterAssignsDistinctIDs(t *testing.T) {
	r := registry.New()
	c1 := r.Register(pipeConn(t))
	c2 := r.Register(pipeConn(t))
	assert.NotEqual(t, c1.ID, c2.ID)
	assert.Equal(t, 2, r.Len())
}

func TestSetIdentityAndGet(t *testing.T) {
	r := registry.New()
	c := r.Register(pipeConn(t))
	r.SetIdentity(c, "worker-1")

	got, ok := r.Get("worker-1")
	require.True(t, ok)
	assert.Equal(t, c.ID, got.ID)
	assert.True(t, r.IsOnline("worker-1"))
}

func TestReconnectUnderSameHostnameReplacesOldConn(t *testing.T) {
	r := registry.New()
	old := r.Register(pipeConn(t))
	r.SetIdentity(old, "worker-1")

	fresh := r.Register(pipeConn(t))
	r.SetIdentity(fresh, "worker-1")

	got, ok := r.Get("worker-1")
	require.True(t, ok)
	assert.Equal(t, fresh.ID, got.ID)

	// Unregistering the stale old connection must not evict the fresh
	// one now sharing its hostname.
	r.Unregister(old)
	got, ok = r.Get("worker-1")
	require.True(t, ok)
	assert.Equal(t, fresh.ID, got.ID)
}

func TestUnregisterRemovesIdentity(t *testing.T) {
	r := registry.New()
	c := r.Register(pipeConn(t))
	r.SetIdentity(c, "worker-1")

	r.Unregister(c)
	_, ok := r.Get("worker-1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestUnregisterClosesQueue(t *testing.T) {
	r := registry.New()
	c := r.Register(pipeConn(t))
	r.Unregister(c)

	_, ok := c.Queue.Pop()
	assert.False(t, ok)
}

func TestBroadcastEnqueuesOnEveryConnection(t *testing.T) {
	r := registry.New()
	c1 := r.Register(pipeConn(t))
	c2 := r.Register(pipeConn(t))

	r.Broadcast([]byte("hello"))

	frame, ok := c1.Queue.TryPop()
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), frame)

	frame, ok = c2.Queue.TryPop()
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), frame)
}

func TestConnectionsReturnsSnapshot(t *testing.T) {
	r := registry.New()
	r.Register(pipeConn(t))
	r.Register(pipeConn(t))

	snap := r.Connections()
	assert.Len(t, snap, 2)

	r.Register(pipeConn(t))
	assert.Len(t, snap, 2, "earlier snapshot must not observe later registrations")
}

func TestMarkGracefulIsObservable(t *testing.T) {
	r := registry.New()
	c := r.Register(pipeConn(t))
	assert.False(t, c.Graceful())
	c.MarkGraceful()
	assert.True(t, c.Graceful())
}

func TestQueuePushPopOrderAndEmpty(t *testing.T) {
	q := registry.NewQueue()
	assert.True(t, q.Empty())

	q.Push([]byte("a"))
	q.Push([]byte("b"))
	assert.False(t, q.Empty())

	frame, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, []byte("a"), frame)

	frame, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, []byte("b"), frame)

	assert.True(t, q.Empty())
}

func TestQueueCloseUnblocksPop(t *testing.T) {
	q := registry.NewQueue()
	done := make(chan struct{})
	var ok bool
	go func() {
		_, ok = q.Pop()
		close(done)
	}()

	q.Close()
	<-done
	assert.False(t, ok)
}
