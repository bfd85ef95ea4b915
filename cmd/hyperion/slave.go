package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/hyperion-cluster/hyperion/internal/events"
	"github.com/hyperion-cluster/hyperion/internal/logging"
	"github.com/hyperion-cluster/hyperion/internal/wire"
)

// runSlave is a reference slave client: it dials the master's
// slave-facing server, authenticates with this host's hostname, and
// logs every action frame it receives. It does not start or supervise
// any component process — that is the out-of-scope component executor's
// job, driven by the dependency engine this core never implements.
func runSlave(args []string) error {
	fs := flag.NewFlagSet("slave", flag.ExitOnError)
	master := fs.String("master", "", "master host to dial")
	port := fs.Int("port", 0, "master's slave-facing port")
	hostname := fs.String("hostname", "", "hostname to authenticate as (defaults to os.Hostname)")
	logLevel := fs.String("log-level", "", "override the default log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *master == "" || *port == 0 {
		return fmt.Errorf("slave: -master and -port are required")
	}
	if *logLevel != "" {
		lvl, err := logging.ParseLevel(*logLevel)
		if err != nil {
			return fmt.Errorf("slave: parsing -log-level: %w", err)
		}
		logging.SetLevel(lvl)
	}

	name := *hostname
	if name == "" {
		h, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("slave: resolving hostname: %w", err)
		}
		name = h
	}

	logging.PrintBanner("slave", version, fmt.Sprintf("%s:%d", *master, *port))

	addr := fmt.Sprintf("%s:%d", *master, *port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("slave: dialing master %s: %w", addr, err)
	}
	defer conn.Close()

	authFrame, err := wire.Encode("auth", []any{name})
	if err != nil {
		return fmt.Errorf("slave: encoding auth: %w", err)
	}
	if _, err := conn.Write(authFrame); err != nil {
		return fmt.Errorf("slave: sending auth: %w", err)
	}
	slog.Info("authenticated", "master", addr, "hostname", name)

	for {
		body, err := wire.ReadFrame(conn)
		if err != nil {
			return fmt.Errorf("slave: connection to master lost: %w", err)
		}
		env, err := wire.Decode(body)
		if err != nil {
			slog.Warn("slave: dropping undecodable frame", "error", err)
			continue
		}
		handleMasterAction(conn, env)
	}
}

// handleMasterAction logs every inbound action. check acknowledges
// immediately with a synthetic RUNNING CheckEvent so a master running
// against this reference client observes a live health-check round
// trip without a real component executor behind it.
func handleMasterAction(conn net.Conn, env wire.Envelope) {
	slog.Info("received action", "action", env.Action, "args", env.Args)

	switch env.Action {
	case "check":
		if len(env.Args) < 1 {
			return
		}
		compID, ok := env.Args[0].(string)
		if !ok {
			return
		}
		ev := events.CheckEvent{CompID: compID, CheckState: events.Running}
		frame, err := wire.Encode("queue_event", []any{ev})
		if err != nil {
			slog.Warn("slave: encoding check response failed", "error", err)
			return
		}
		if _, err := conn.Write(frame); err != nil {
			slog.Warn("slave: writing check response failed", "error", err)
		}
	case "quit":
		os.Exit(0)
	}
}
