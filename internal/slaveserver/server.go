// Package slaveserver implements the back-facing TCP server slaves
// authenticate to: it forwards slave events onto a shared notify
// queue, issues per-slave outbound commands, and performs the
// bounded-wait check_component health check (spec.md §4.6).
package slaveserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hyperion-cluster/hyperion/internal/connstate"
	"github.com/hyperion-cluster/hyperion/internal/dispatch"
	"github.com/hyperion-cluster/hyperion/internal/events"
	"github.com/hyperion-cluster/hyperion/internal/metrics"
	"github.com/hyperion-cluster/hyperion/internal/reactor"
	"github.com/hyperion-cluster/hyperion/internal/registry"
	"github.com/hyperion-cluster/hyperion/internal/util/sanitize"
	"github.com/hyperion-cluster/hyperion/internal/wire"
)

// maxHostnameLength bounds a slave-claimed hostname before it is used
// as a registry identity key and a logsink file-name component.
const maxHostnameLength = 253

// LogSink receives already-structured log records forwarded from a
// slave's log-record frames (spec.md §4.7), keyed by the connection's
// peer IP rather than its authenticated hostname — a log record can
// arrive before auth completes. internal/logsink supplies the default
// rotating-file implementation.
type LogSink interface {
	Deliver(ip string, rec wire.LogRecord)
}

// Server is the slave-facing TCP server.
type Server struct {
	Registry *registry.Registry
	Notify   *events.Queue
	Pending  *PendingChecks
	LogSink  LogSink
	Logger   *slog.Logger

	dispatcher *dispatch.Dispatcher
	reactor    *reactor.Reactor

	mu     sync.Mutex
	states map[uint64]*connstate.Machine
}

// New builds a slave server bound to ln. notify is the shared queue
// the UI server drains for fan-out.
func New(ln net.Listener, notify *events.Queue, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	reg := registry.New()
	s := &Server{
		Registry: reg,
		Notify:   notify,
		Pending:  NewPendingChecks(),
		Logger:   logger,
		states:   make(map[uint64]*connstate.Machine),
	}

	d := dispatch.New(reg, logger)
	d.SpecialCase = s.handleAuth
	d.Register("queue_event", 1, dispatch.NoResponse, s.handleQueueEvent)
	s.dispatcher = d

	re := reactor.New("slave", ln, reg, s.handleFrame, logger)
	re.OnAccept = s.onAccept
	re.OnClose = s.onClose
	s.reactor = re
	return s
}

// Addr returns the listener's bound address, including the OS-chosen
// port when the server was started on port 0.
func (s *Server) Addr() net.Addr {
	return s.reactor.Listener.Addr()
}

// Run drives the accept loop until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.reactor.Run(ctx)
}

// handleFrame routes a decoded frame to the log sink when it carries
// no action (a log-record frame, spec.md §4.7), or otherwise to the
// dispatcher's handler table. Log records are routed by peer IP, not
// by authenticated identity, since a record can arrive before auth
// completes and a log-record frame carries no hostname of its own.
func (s *Server) handleFrame(c *registry.Conn, env wire.Envelope) {
	if env.IsLogRecord() {
		if s.LogSink == nil {
			return
		}
		s.LogSink.Deliver(remoteIP(c), *env.Log)
		return
	}
	s.dispatcher.Dispatch(c, env)
}

func (s *Server) onAccept(c *registry.Conn) {
	s.mu.Lock()
	m := connstate.New()
	_, _ = m.To(connstate.Pending)
	s.states[c.ID] = m
	s.mu.Unlock()
}

func (s *Server) onClose(c *registry.Conn) {
	s.mu.Lock()
	m, ok := s.states[c.ID]
	delete(s.states, c.ID)
	s.mu.Unlock()
	if !ok || c.Graceful() {
		return
	}
	if m.Current() != connstate.Active {
		return
	}
	tr, err := m.To(connstate.Dead)
	if err != nil {
		s.Logger.Warn("invalid state transition on close", "conn_id", c.ID, "error", err)
		return
	}
	if tr == connstate.EmitDisconnect {
		hostname, _ := c.Identity()
		s.Notify.Push(events.SlaveDisconnectEvent{HostName: hostname, Port: remotePort(c)})
	}
}

// handleAuth is the slave server's only SpecialCase: it records the
// connection's claimed hostname identity and transitions PENDING to
// ACTIVE, synthesizing a SlaveReconnectEvent, without invoking a
// registered handler or emitting a response.
func (s *Server) handleAuth(c *registry.Conn, env wire.Envelope) bool {
	if env.Action != "auth" {
		return false
	}
	if len(env.Args) < 1 {
		s.Logger.Error("auth dropped: missing hostname", "conn_id", c.ID)
		return true
	}
	hostname, ok := env.Args[0].(string)
	if !ok {
		s.Logger.Error("auth dropped: hostname not a string", "conn_id", c.ID)
		return true
	}
	hostname = sanitize.Hostname(hostname, maxHostnameLength)
	if hostname == "" {
		s.Logger.Error("auth dropped: hostname empty after sanitization", "conn_id", c.ID)
		return true
	}

	s.Registry.SetIdentity(c, hostname)

	s.mu.Lock()
	m, ok := s.states[c.ID]
	s.mu.Unlock()
	if !ok {
		return true
	}
	tr, err := m.To(connstate.Active)
	if err != nil {
		s.Logger.Warn("auth on unexpected state", "conn_id", c.ID, "error", err)
		return true
	}
	if tr == connstate.EmitReconnect {
		s.Notify.Push(events.SlaveReconnectEvent{HostName: hostname, Port: remotePort(c)})
	}
	return true
}

// remotePort extracts the numeric port of c's remote address, or 0 if
// the address has no parseable port.
func remotePort(c *registry.Conn) int {
	_, portStr, err := net.SplitHostPort(c.Net.RemoteAddr().String())
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}

// remoteIP extracts the host part of c's remote address, the key the
// log sink is registered under.
func remoteIP(c *registry.Conn) string {
	host, _, err := net.SplitHostPort(c.Net.RemoteAddr().String())
	if err != nil {
		return c.Net.RemoteAddr().String()
	}
	return host
}

// handleQueueEvent appends a slave-forwarded event to the notify
// queue and, for CheckEvent, fulfills any outstanding check_component
// bounded wait for that comp_id.
func (s *Server) handleQueueEvent(c *registry.Conn, args []any) (any, error) {
	ev, ok := args[0].(events.Event)
	if !ok {
		return nil, fmt.Errorf("queue_event: arg is not an events.Event: %T", args[0])
	}
	s.Notify.Push(ev)
	if ce, ok := ev.(events.CheckEvent); ok {
		s.Pending.Complete(ce.CompID, ce.CheckState)
	}
	return nil, nil
}

// connByHostname scans the registry for the connection currently
// authenticated under hostname.
func (s *Server) connByHostname(hostname string) (*registry.Conn, bool) {
	return s.Registry.Get(hostname)
}

func (s *Server) sendAction(hostname, action string, args []any) error {
	c, ok := s.connByHostname(hostname)
	if !ok {
		return ErrSlaveNotReachable
	}
	frame, err := wire.Encode(action, args)
	if err != nil {
		return fmt.Errorf("slaveserver: encoding %s: %w", action, err)
	}
	c.Send(frame)
	return nil
}

// StartComponent fire-and-forget enqueues start(comp_id, force) on the
// slave registered for host.
func (s *Server) StartComponent(host, compID string, force bool) error {
	return s.sendAction(host, "start", []any{compID, force})
}

// StopComponent fire-and-forget enqueues stop(comp_id) on host's slave.
func (s *Server) StopComponent(host, compID string) error {
	return s.sendAction(host, "stop", []any{compID})
}

// StartCloneSession fire-and-forget enqueues start_clone_session(comp_id)
// on host's slave.
func (s *Server) StartCloneSession(host, compID string) error {
	return s.sendAction(host, "start_clone_session", []any{compID})
}

// CheckComponent is the bounded-wait RPC of spec.md §4.6: it clears
// any previous waiter for compID, enqueues check(comp_id) on host's
// slave, and waits up to wait+1s for a CheckEvent to answer it. On
// expiry it returns UNREACHABLE and cancels the waiter so a
// late-arriving CheckEvent is silently dropped rather than delivered
// to a channel nobody reads from anymore.
func (s *Server) CheckComponent(ctx context.Context, host, compID string, wait time.Duration) (events.CheckState, error) {
	start := time.Now()
	if _, ok := s.connByHostname(host); !ok {
		return events.Unreachable, ErrSlaveNotReachable
	}

	ch := s.Pending.Register(compID)
	if err := s.sendAction(host, "check", []any{compID}); err != nil {
		s.Pending.Cancel(compID)
		return events.Unreachable, err
	}

	timer := time.NewTimer(wait + time.Second)
	defer timer.Stop()

	select {
	case state := <-ch:
		metrics.CheckComponentDuration.WithLabelValues("answered").Observe(time.Since(start).Seconds())
		return state, nil
	case <-timer.C:
		s.Pending.Cancel(compID)
		metrics.CheckComponentDuration.WithLabelValues("timed_out").Observe(time.Since(start).Seconds())
		return events.Unreachable, nil
	case <-ctx.Done():
		s.Pending.Cancel(compID)
		metrics.CheckComponentDuration.WithLabelValues("timed_out").Observe(time.Since(start).Seconds())
		return events.Unreachable, ctx.Err()
	}
}

// KillSlaves broadcasts "quit" (full=true) or "suspend" to every
// registered slave.
func (s *Server) KillSlaves(full bool) {
	action := "suspend"
	if full {
		action = "quit"
	}
	frame, err := wire.Encode(action, nil)
	if err != nil {
		s.Logger.Error("failed to encode broadcast action", "action", action, "error", err)
		return
	}
	s.Registry.Broadcast(frame)
}

// KillSlaveOnHost enqueues "quit" for the slave registered under host,
// tolerating a host that is not currently connected.
func (s *Server) KillSlaveOnHost(host string) {
	if err := s.sendAction(host, "quit", nil); err != nil {
		s.Logger.Debug("kill_slave_on_host: host not reachable", "host", host)
	}
}

// IsOnline reports whether host currently has a live, authenticated
// connection — used by the bootstrap's reconnect pre-check.
func (s *Server) IsOnline(host string) bool {
	return s.Registry.IsOnline(host)
}

// ReplayCustomMessages enqueues each of msgs verbatim on host's
// connection, used by the bootstrap path to replay buffered actions
// onto a freshly (re)authenticated slave.
func (s *Server) ReplayCustomMessages(host string, msgs [][]byte) error {
	c, ok := s.connByHostname(host)
	if !ok {
		return ErrSlaveNotReachable
	}
	for _, m := range msgs {
		c.Send(m)
	}
	return nil
}
