// Package bootstrap implements start_slave and validate_on_slave
// (spec.md §4.8): bringing up a slave agent on a remote host and
// waiting for it to authenticate back to the slave server.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hyperion-cluster/hyperion/internal/events"
	"github.com/hyperion-cluster/hyperion/internal/metrics"
)

// ExitStatus is the outcome of a remote validation command, decoded
// from its exit code.
type ExitStatus int

const (
	StatusOK ExitStatus = iota
	StatusFailed
	StatusUnreachable
)

func (s ExitStatus) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusFailed:
		return "FAILED"
	case StatusUnreachable:
		return "UNREACHABLE"
	default:
		return "UNKNOWN"
	}
}

// RemoteLauncher starts the slave process on a remote host and runs
// the pre-flight validation command. It is the out-of-scope
// collaborator: it may invoke the remote's terminal multiplexer and
// process supervision, which this core does not implement.
type RemoteLauncher interface {
	// StartSlave asks host to launch a slave process that will
	// connect back to masterHostname:slavePort.
	StartSlave(ctx context.Context, host, masterHostname string, slavePort int) error
	// ValidateOnSlave runs a synchronous pre-flight check on host.
	ValidateOnSlave(ctx context.Context, host string) (ExitStatus, error)
}

// SlaveRegistry is the subset of internal/slaveserver.Server the
// bootstrapper needs: a reconnect pre-check, custom-message replay,
// and the slave server's own bound address (to tell the remote slave
// where to dial back).
type SlaveRegistry interface {
	IsOnline(host string) bool
	ReplayCustomMessages(host string, msgs [][]byte) error
	Addr() net.Addr
}

// LogRegistry is the subset of internal/logsink.Sink the bootstrapper
// needs. ip is the resolved address the slave will connect from,
// since the log sink looks up slave records by peer IP, not hostname.
type LogRegistry interface {
	Register(hostname, ip string) error
}

const (
	pollInterval = 500 * time.Millisecond
	pollTimeout  = 10 * time.Second
)

// Bootstrapper implements start_slave.
type Bootstrapper struct {
	Slave          SlaveRegistry
	LogSink        LogRegistry
	Notify         *events.Queue
	Launcher       RemoteLauncher
	MasterHostname string
	Logger         *slog.Logger
}

// New builds a Bootstrapper. logger defaults to slog.Default() if nil.
func New(slave SlaveRegistry, logSink LogRegistry, notify *events.Queue, launcher RemoteLauncher, masterHostname string, logger *slog.Logger) *Bootstrapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrapper{
		Slave: slave, LogSink: logSink, Notify: notify, Launcher: launcher,
		MasterHostname: masterHostname, Logger: logger,
	}
}

// StartSlave implements the 5-step algorithm of spec.md §4.8. ip is
// the address the slave is expected to connect back from — resolved
// by the caller, the same way the Python original takes a separately
// resolved host_ip alongside hostname — since the log sink looks up
// in-flight records by peer IP rather than hostname.
func (b *Bootstrapper) StartSlave(ctx context.Context, host, ip string, customMessages [][]byte) error {
	start := time.Now()
	observe := func(outcome string) {
		metrics.SlaveBootstrapDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}

	// Step 1: reconnect pre-check.
	if b.Slave.IsOnline(host) {
		if err := b.Slave.ReplayCustomMessages(host, customMessages); err != nil {
			b.Logger.Warn("start_slave: failed replaying custom messages on already-online host", "host", host, "error", err)
		}
		b.Notify.Push(events.SlaveReconnectEvent{HostName: host})
		observe("reconnect")
		return nil
	}

	// Step 2: register the log sink before anything remote can start
	// writing to it.
	if err := b.LogSink.Register(host, ip); err != nil {
		observe("launch_failed")
		return fmt.Errorf("bootstrap: registering log sink for %s: %w", host, err)
	}

	// Step 3: ask the remote launcher to start the slave process.
	slavePort := 0
	if tcpAddr, ok := b.Slave.Addr().(*net.TCPAddr); ok {
		slavePort = tcpAddr.Port
	}
	if err := b.Launcher.StartSlave(ctx, host, b.MasterHostname, slavePort); err != nil {
		observe("launch_failed")
		return fmt.Errorf("bootstrap: launching slave on %s: %w", host, err)
	}

	// Step 4: poll for authentication, 500ms-interval up to pollTimeout,
	// as a constant-interval bounded retry.
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if b.Slave.IsOnline(host) {
			return struct{}{}, nil
		}
		return struct{}{}, fmt.Errorf("bootstrap: %s has not authenticated yet", host)
	}, backoff.WithBackOff(backoff.NewConstantBackOff(pollInterval)), backoff.WithMaxElapsedTime(pollTimeout))
	if err != nil {
		observe("timed_out")
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("bootstrap: %s did not authenticate within %s", host, pollTimeout)
	}

	if err := b.Slave.ReplayCustomMessages(host, customMessages); err != nil {
		b.Logger.Warn("start_slave: failed replaying custom messages", "host", host, "error", err)
	}
	b.Notify.Push(events.SlaveReconnectEvent{HostName: host})
	observe("started")
	return nil
}

// ValidateOnSlave runs the pre-flight remote check via the configured
// RemoteLauncher.
func (b *Bootstrapper) ValidateOnSlave(ctx context.Context, host string) (ExitStatus, error) {
	return b.Launcher.ValidateOnSlave(ctx, host)
}
