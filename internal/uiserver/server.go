// Package uiserver implements the front-facing TCP server UI clients
// connect to: it answers configuration/host queries, delegates
// component lifecycle actions to a ControlCenter, and fans slave
// events out to every connected UI client (spec.md §4.5).
package uiserver

import (
	"context"
	"log/slog"
	"net"

	"github.com/hyperion-cluster/hyperion/internal/controlcenter"
	"github.com/hyperion-cluster/hyperion/internal/dispatch"
	"github.com/hyperion-cluster/hyperion/internal/events"
	"github.com/hyperion-cluster/hyperion/internal/metrics"
	"github.com/hyperion-cluster/hyperion/internal/reactor"
	"github.com/hyperion-cluster/hyperion/internal/registry"
	"github.com/hyperion-cluster/hyperion/internal/wire"
)

// SlaveDelegate is the subset of internal/slaveserver.Server that the
// UI server needs for start_clone_session's non-local branch: asking
// the slave server to run a clone session on a remote host.
type SlaveDelegate interface {
	StartCloneSession(host, compID string) error
}

// Server is the UI-facing TCP server.
type Server struct {
	Registry *registry.Registry
	Notify   *events.Queue
	CC       controlcenter.ControlCenter
	Slave    SlaveDelegate
	Logger   *slog.Logger

	// Shutdown is invoked when a UI client sends "quit". It is
	// expected to cancel the process-wide context that
	// internal/supervisor watches; nil is a no-op, useful in tests.
	Shutdown func()

	dispatcher *dispatch.Dispatcher
	reactor    *reactor.Reactor
}

// New builds a UI server bound to ln, delegating component lifecycle
// operations to cc and, for remote clone sessions, to slave.
func New(ln net.Listener, cc controlcenter.ControlCenter, slave SlaveDelegate, notify *events.Queue, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	reg := registry.New()
	s := &Server{Registry: reg, Notify: notify, CC: cc, Slave: slave, Logger: logger}

	d := dispatch.New(reg, logger)
	d.Register("start_all", 0, dispatch.NoResponse, s.handleStartAll)
	d.Register("stop_all", 0, dispatch.NoResponse, s.handleStopAll)
	d.Register("start", 1, dispatch.NoResponse, s.handleStart)
	d.Register("stop", 1, dispatch.NoResponse, s.handleStop)
	d.Register("check", 1, dispatch.NoResponse, s.handleCheck)
	d.Register("get_conf", 0, dispatch.Single, s.handleGetConf)
	d.Register("get_host_states", 0, dispatch.Single, s.handleGetHostStates)
	d.Register("get_host_stats", 0, dispatch.Single, s.handleGetHostStats)
	d.Register("reload_config", 0, dispatch.NoResponse, s.handleReloadConfig)
	d.Register("reconnect_with_host", 1, dispatch.NoResponse, s.handleReconnectWithHost)
	d.Register("start_clone_session", 1, dispatch.NoResponse, s.handleStartCloneSession)
	d.Register("quit", 0, dispatch.NoResponse, s.handleQuit)
	s.dispatcher = d

	re := reactor.New("ui", ln, reg, d.Dispatch, logger)
	s.reactor = re
	return s
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr {
	return s.reactor.Listener.Addr()
}

// Run drives the accept loop until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.reactor.Run(ctx)
}

// FanOut drains the shared notify queue and broadcasts a queue_event
// frame for each event to every connected UI client, until ctx is
// cancelled. It should be run in its own goroutine alongside Run.
func (s *Server) FanOut(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		s.Notify.Close()
		close(done)
	}()

	for {
		ev, ok := s.Notify.Pop()
		if !ok {
			return
		}
		s.broadcastEvent(ev)
	}
}

func (s *Server) broadcastEvent(ev events.Event) {
	metrics.EventsFannedOutTotal.WithLabelValues(ev.Kind()).Inc()
	if de, ok := ev.(events.DisconnectEvent); ok {
		s.CC.MarkHostDisconnected(de.HostName)
		if state, ok := s.CC.HostStates()[de.HostName]; ok {
			s.Logger.Info("host disconnected", "host", de.HostName, "last_seen", state.LastSeenISO8601())
		}
	}
	frame, err := wire.Encode("queue_event", []any{ev})
	if err != nil {
		s.Logger.Error("failed to encode event for fan-out", "kind", ev.Kind(), "error", err)
		return
	}
	s.Registry.Broadcast(frame)
}

func (s *Server) handleStartAll(c *registry.Conn, args []any) (any, error) {
	s.CC.StartAll()
	return nil, nil
}

func (s *Server) handleStopAll(c *registry.Conn, args []any) (any, error) {
	s.CC.StopAll()
	return nil, nil
}

func (s *Server) handleStart(c *registry.Conn, args []any) (any, error) {
	compID, ok := args[0].(string)
	if !ok {
		s.Logger.Error("start: comp_id not a string", "conn_id", c.ID)
		return nil, nil
	}
	force := false
	if len(args) > 1 {
		force, _ = args[1].(bool)
	}
	if !s.CC.Start(compID, force) {
		s.Logger.Debug("start: unknown component, dropping", "comp_id", compID)
	}
	return nil, nil
}

func (s *Server) handleStop(c *registry.Conn, args []any) (any, error) {
	compID, ok := args[0].(string)
	if !ok {
		s.Logger.Error("stop: comp_id not a string", "conn_id", c.ID)
		return nil, nil
	}
	if !s.CC.Stop(compID) {
		s.Logger.Debug("stop: unknown component, dropping", "comp_id", compID)
	}
	return nil, nil
}

func (s *Server) handleCheck(c *registry.Conn, args []any) (any, error) {
	compID, ok := args[0].(string)
	if !ok {
		s.Logger.Error("check: comp_id not a string", "conn_id", c.ID)
		return nil, nil
	}
	if !s.CC.Check(compID) {
		s.Logger.Debug("check: unknown component, dropping", "comp_id", compID)
	}
	return nil, nil
}

func (s *Server) handleGetConf(c *registry.Conn, args []any) (any, error) {
	return s.CC.ConfSnapshot(), nil
}

func (s *Server) handleGetHostStates(c *registry.Conn, args []any) (any, error) {
	return s.CC.HostStates(), nil
}

func (s *Server) handleGetHostStats(c *registry.Conn, args []any) (any, error) {
	return s.CC.HostStats(), nil
}

func (s *Server) handleReloadConfig(c *registry.Conn, args []any) (any, error) {
	s.CC.ReloadConfig()
	return nil, nil
}

func (s *Server) handleReconnectWithHost(c *registry.Conn, args []any) (any, error) {
	host, ok := args[0].(string)
	if !ok {
		s.Logger.Error("reconnect_with_host: host not a string", "conn_id", c.ID)
		return nil, nil
	}
	s.CC.ReconnectWithHost(host)
	return nil, nil
}

func (s *Server) handleStartCloneSession(c *registry.Conn, args []any) (any, error) {
	compID, ok := args[0].(string)
	if !ok {
		s.Logger.Error("start_clone_session: comp_id not a string", "conn_id", c.ID)
		return nil, nil
	}
	host, ok := s.CC.HostForComponent(compID)
	if !ok {
		s.Logger.Debug("start_clone_session: unknown component, dropping", "comp_id", compID)
		return nil, nil
	}
	if s.CC.RunsOnMaster(compID) {
		s.CC.StartCloneSessionLocal(compID)
		return nil, nil
	}
	if s.Slave == nil {
		s.Logger.Warn("start_clone_session: no slave delegate configured", "comp_id", compID)
		return nil, nil
	}
	if err := s.Slave.StartCloneSession(host, compID); err != nil {
		s.Logger.Warn("start_clone_session: slave not reachable", "comp_id", compID, "host", host, "error", err)
	}
	return nil, nil
}

func (s *Server) handleQuit(c *registry.Conn, args []any) (any, error) {
	if s.Shutdown != nil {
		s.Shutdown()
	}
	return nil, nil
}
