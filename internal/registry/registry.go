// Package registry tracks the live TCP connections held by a server
// (UI-facing or slave-facing), the outbound queue attached to each, and
// the optional hostname identity a slave connection adopts after its
// handshake completes. It is the Go analogue of the teacher's
// workermgr.Manager, generalized from a single caller-defined worker
// identity to the two concurrent registries spec.md §4.2 calls for.
package registry

import (
	"net"
	"sync"
)

// Conn is one registered connection: the socket itself plus the
// per-connection outbound queue its writer goroutine drains. ID is a
// monotonically increasing handle minted by the registry, stable for
// the connection's lifetime and never reused, so it is safe to use as
// a map key even across a hostname re-registering under the same
// identity after a reconnect.
type Conn struct {
	ID   uint64
	Net  net.Conn
	Queue *Queue

	mu          sync.RWMutex
	identity    string
	hasIdentity bool
	graceful    bool
}

// MarkGraceful records that this connection is closing because its
// peer sent "unsubscribe", not because of EOF or an I/O error. Servers
// consult this from their reactor's OnClose hook to decide whether an
// uncommanded-death event (e.g. SlaveDisconnectEvent) should fire.
func (c *Conn) MarkGraceful() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.graceful = true
}

// Graceful reports whether MarkGraceful was called.
func (c *Conn) Graceful() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.graceful
}

// Identity returns the hostname a slave connection registered via
// SetIdentity, if any.
func (c *Conn) Identity() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity, c.hasIdentity
}

// Send enqueues a framed message for delivery by the connection's
// writer goroutine. Safe for concurrent use by many callers.
func (c *Conn) Send(frame []byte) {
	c.Queue.Push(frame)
}

// Registry is a thread-safe set of live connections, with an optional
// secondary index from hostname identity to connection. A UI server
// registry never calls SetIdentity; a slave server registry sets it
// once the auth handshake (spec.md §4.6) completes.
type Registry struct {
	mu      sync.RWMutex
	nextID  uint64
	conns   map[uint64]*Conn
	byIdent map[string]*Conn
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		conns:   make(map[uint64]*Conn),
		byIdent: make(map[string]*Conn),
	}
}

// Register adds a newly accepted connection and returns its handle.
func (r *Registry) Register(nc net.Conn) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c := &Conn{ID: r.nextID, Net: nc, Queue: NewQueue()}
	r.conns[c.ID] = c
	return c
}

// Unregister removes a connection and, if it had adopted an identity,
// clears the reverse index entry too — but only when that entry still
// points at this connection, so a fresher reconnect under the same
// hostname is never evicted by a slow-to-notice stale teardown.
func (r *Registry) Unregister(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c.ID)
	if ident, ok := c.Identity(); ok {
		if cur, exists := r.byIdent[ident]; exists && cur.ID == c.ID {
			delete(r.byIdent, ident)
		}
	}
	c.Queue.Close()
}

// SetIdentity records the hostname a slave claimed during its
// handshake, replacing any previous connection registered under that
// same hostname (a reconnect). The caller is expected to have already
// dealt with the old connection (logging, SlaveDisconnectEvent) before
// calling this, per spec.md §4.9's state machine.
func (r *Registry) SetIdentity(c *Conn, hostname string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.mu.Lock()
	c.identity = hostname
	c.hasIdentity = true
	c.mu.Unlock()
	r.byIdent[hostname] = c
}

// Get returns the connection registered for a hostname identity.
func (r *Registry) Get(hostname string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byIdent[hostname]
	return c, ok
}

// IsOnline reports whether a hostname currently has a live connection.
func (r *Registry) IsOnline(hostname string) bool {
	_, ok := r.Get(hostname)
	return ok
}

// Connections returns a snapshot of every currently registered
// connection. The slice is a copy; mutating it does not affect the
// registry.
func (r *Registry) Connections() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Broadcast enqueues frame on every currently registered connection's
// outbound queue. Used by the UI server's event fan-out loop
// (spec.md §4.5) and by slave-wide operations like kill_slaves.
func (r *Registry) Broadcast(frame []byte) {
	for _, c := range r.Connections() {
		c.Send(frame)
	}
}

// Len reports the number of live connections, for metrics gauges.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
