// Package supervisor owns process lifecycle: running both servers,
// reacting to a UI "quit" action or an external shutdown signal, and
// draining outbound queues before the process exits. Grounded in the
// teacher's hub/server.go Serve() shutdown sequence, generalized from
// a single HTTP server to the two TCP servers this core runs.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyperion-cluster/hyperion/internal/registry"
	"github.com/hyperion-cluster/hyperion/internal/slaveserver"
	"github.com/hyperion-cluster/hyperion/internal/uiserver"
)

// DefaultDrainTimeout bounds how long shutdown waits for every
// connection's outbound queue to empty before giving up and closing
// anyway.
const DefaultDrainTimeout = 10 * time.Second

const drainPollInterval = 20 * time.Millisecond

// Supervisor runs the UI server, the slave server, and their shared
// event fan-out loop, and coordinates graceful shutdown across all
// three.
type Supervisor struct {
	UI           *uiserver.Server
	Slave        *slaveserver.Server
	Logger       *slog.Logger
	DrainTimeout time.Duration
}

// New builds a Supervisor. logger defaults to slog.Default() and
// DrainTimeout to DefaultDrainTimeout when zero-valued.
func New(ui *uiserver.Server, slave *slaveserver.Server, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{UI: ui, Slave: slave, Logger: logger, DrainTimeout: DefaultDrainTimeout}
}

// Run starts both servers and the fan-out loop, and blocks until
// parent is cancelled (e.g. by a SIGINT/SIGTERM-derived context from
// cmd/hyperion) or a UI client sends "quit". On either trigger it
// drains every connection's outbound queue, then returns once both
// servers' accept loops have exited.
func (sv *Supervisor) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	sv.UI.Shutdown = cancel

	errCh := make(chan error, 2)
	go func() { errCh <- sv.UI.Run(ctx) }()
	go func() { errCh <- sv.Slave.Run(ctx) }()
	go sv.UI.FanOut(ctx)

	<-ctx.Done()
	sv.Logger.Info("shutdown initiated")
	sv.drain()

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	sv.Logger.Info("shutdown complete")
	return firstErr
}

// drain waits, for every connection currently registered on either
// server, for its outbound queue to empty — the corrected predicate
// (loop while NOT empty) rather than the inverted one the Python base
// class used, whose `while sub.empty()` condition is true for an empty
// queue, so it spun for as long as there was nothing to drain.
func (sv *Supervisor) drain() {
	deadline := time.Now().Add(sv.DrainTimeout)
	conns := append(sv.UI.Registry.Connections(), sv.Slave.Registry.Connections()...)
	for _, c := range conns {
		drainOne(c, deadline)
	}
}

func drainOne(c *registry.Conn, deadline time.Time) {
	for !c.Queue.Empty() {
		if time.Now().After(deadline) {
			return
		}
		time.Sleep(drainPollInterval)
	}
}
