// Package reactor runs the accept loop and per-connection read/write
// goroutines shared by the UI server and the slave server. The Python
// original multiplexed every socket through a single select() loop;
// Go's cheap goroutines make a goroutine-per-connection model the
// idiomatic replacement for that readiness-multiplexing primitive, so
// one reader and one writer goroutine is spawned per accepted
// connection instead.
package reactor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/hyperion-cluster/hyperion/internal/metrics"
	"github.com/hyperion-cluster/hyperion/internal/registry"
	"github.com/hyperion-cluster/hyperion/internal/wire"
)

// connectionGauge returns the active-connections gauge for a reactor
// name ("ui" or "slave"), or nil for any other name (e.g. in tests that
// build a Reactor directly with an arbitrary name).
func connectionGauge(name string) prometheusGauge {
	switch name {
	case "ui":
		return metrics.UIConnectionsActive
	case "slave":
		return metrics.SlaveConnectionsActive
	default:
		return nil
	}
}

// prometheusGauge is the minimal interface both metrics gauges satisfy,
// scoped narrowly so this package doesn't need to import the
// prometheus client just to name the type.
type prometheusGauge interface {
	Inc()
	Dec()
}

// Handler processes one decoded frame body read off a connection. The
// reader goroutine starts a new goroutine for each call, so a slow
// handler does not stall further reads from that connection or any
// other; handlers for one connection may complete out of order.
type Handler func(c *registry.Conn, env wire.Envelope)

// Reactor accepts connections on a listener, registers each in a
// registry.Registry, and drives a reader/writer goroutine pair per
// connection until it closes or the reactor is stopped.
type Reactor struct {
	Name     string
	Listener net.Listener
	Registry *registry.Registry
	Handler  Handler
	Logger   *slog.Logger

	// OnAccept, if set, runs synchronously right after a connection is
	// registered, before its reader goroutine starts. Servers use this
	// to send a greeting frame.
	OnAccept func(c *registry.Conn)
	// OnClose, if set, runs once the connection's reader goroutine
	// observes EOF or an unrecoverable framing error.
	OnClose func(c *registry.Conn)
}

// New builds a Reactor. logger defaults to slog.Default() if nil.
func New(name string, ln net.Listener, reg *registry.Registry, h Handler, logger *slog.Logger) *Reactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reactor{Name: name, Listener: ln, Registry: reg, Handler: h, Logger: logger}
}

// Run accepts connections until ctx is cancelled or the listener is
// closed. It blocks until the listener's accept loop exits; callers
// typically run it in its own goroutine.
func (re *Reactor) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		re.Listener.Close()
	}()

	for {
		nc, err := re.Listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && !ne.Timeout() {
				return err
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			re.Logger.Warn("accept failed", "server", re.Name, "error", err)
			continue
		}
		c := re.Registry.Register(nc)
		re.Logger.Info("connection accepted", "server", re.Name, "remote", nc.RemoteAddr(), "conn_id", c.ID)
		if g := connectionGauge(re.Name); g != nil {
			g.Inc()
		}
		if re.OnAccept != nil {
			re.OnAccept(c)
		}
		go re.writeLoop(c)
		go re.readLoop(ctx, c)
	}
}

func (re *Reactor) readLoop(ctx context.Context, c *registry.Conn) {
	defer re.teardown(c)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		body, err := wire.ReadFrame(c.Net)
		if err != nil {
			if errors.Is(err, io.EOF) {
				re.Logger.Info("connection closed by peer", "server", re.Name, "conn_id", c.ID)
				return
			}
			var fe *wire.FramingError
			if errors.As(err, &fe) {
				re.Logger.Warn("framing error, closing connection", "server", re.Name, "conn_id", c.ID, "error", err)
				return
			}
			re.Logger.Warn("read error, closing connection", "server", re.Name, "conn_id", c.ID, "error", err)
			return
		}

		env, err := wire.Decode(body)
		if err != nil {
			// A single malformed frame does not necessarily indicate a
			// desynchronized stream (unlike a FramingError); log and
			// keep reading.
			re.Logger.Warn("decode error, dropping frame", "server", re.Name, "conn_id", c.ID, "error", err)
			continue
		}

		// Dispatch runs on its own goroutine per spec.md §5 — one
		// worker task per decoded frame, so a slow handler cannot
		// stall this connection's further reads. Submission order
		// matches arrival order; completion order does not.
		go re.Handler(c, env)
	}
}

func (re *Reactor) writeLoop(c *registry.Conn) {
	for {
		frame, ok := c.Queue.Pop()
		if !ok {
			return
		}
		if _, err := c.Net.Write(frame); err != nil {
			re.Logger.Warn("write error, closing connection", "server", re.Name, "conn_id", c.ID, "error", err)
			c.Net.Close()
			return
		}
	}
}

func (re *Reactor) teardown(c *registry.Conn) {
	re.Registry.Unregister(c)
	c.Net.Close()
	if g := connectionGauge(re.Name); g != nil {
		g.Dec()
	}
	if re.OnClose != nil {
		re.OnClose(c)
	}
}
