package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/crypto/ssh"

	"github.com/hyperion-cluster/hyperion/internal/bootstrap"
	"github.com/hyperion-cluster/hyperion/internal/bootstrap/sshlauncher"
	"github.com/hyperion-cluster/hyperion/internal/config"
	"github.com/hyperion-cluster/hyperion/internal/controlcenter"
	"github.com/hyperion-cluster/hyperion/internal/events"
	"github.com/hyperion-cluster/hyperion/internal/logging"
	"github.com/hyperion-cluster/hyperion/internal/logsink"
	"github.com/hyperion-cluster/hyperion/internal/slaveserver"
	"github.com/hyperion-cluster/hyperion/internal/supervisor"
	"github.com/hyperion-cluster/hyperion/internal/uiserver"
)

// runMaster starts the UI-facing and slave-facing servers and blocks
// until a SIGINT/SIGTERM or a UI "quit" action shuts them down.
func runMaster(args []string) error {
	fs := flag.NewFlagSet("master", flag.ExitOnError)
	uiAddr := fs.String("ui-addr", "", "address the UI server listens on (overrides config file)")
	slaveAddr := fs.String("slave-addr", "", "address the slave server listens on (overrides config file)")
	configPath := fs.String("config", "", "path to a YAML config file")
	hostname := fs.String("hostname", "", "this master's hostname, as advertised to slaves (defaults to os.Hostname)")
	sshUser := fs.String("ssh-user", "", "SSH user for bootstrapping slaves (bootstrap disabled if empty)")
	sshKey := fs.String("ssh-key", "", "path to an SSH private key for bootstrapping slaves")
	bootstrapHost := fs.String("bootstrap-slave", "", "hostname to start_slave on once the master is listening (requires -ssh-user/-ssh-key)")
	bootstrapIP := fs.String("bootstrap-ip", "", "address -bootstrap-slave is expected to connect back from (defaults to resolving the hostname)")
	logLevel := fs.String("log-level", "", "override the default log level (debug, info, warn, error)")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Println(version)
		return nil
	}
	if *logLevel != "" {
		lvl, err := logging.ParseLevel(*logLevel)
		if err != nil {
			return fmt.Errorf("master: parsing -log-level: %w", err)
		}
		logging.SetLevel(lvl)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("master: loading config: %w", err)
	}
	if *uiAddr != "" {
		cfg.UIAddr = *uiAddr
	}
	if *slaveAddr != "" {
		cfg.SlaveAddr = *slaveAddr
	}

	masterHostname := *hostname
	if masterHostname == "" {
		if h, err := os.Hostname(); err == nil {
			masterHostname = h
		}
	}

	logging.PrintBanner("master", version, cfg.UIAddr)
	logging.PrintAccessURL(cfg.UIAddr)

	uiLn, err := net.Listen("tcp", cfg.UIAddr)
	if err != nil {
		return fmt.Errorf("master: binding UI address %s: %w", cfg.UIAddr, err)
	}
	slaveLn, err := net.Listen("tcp", cfg.SlaveAddr)
	if err != nil {
		return fmt.Errorf("master: binding slave address %s: %w", cfg.SlaveAddr, err)
	}

	notify := events.NewQueue()
	cc := controlcenter.NewReference(nil)
	sink := logsink.New(cfg.LogDir, "hyperion", slog.Default())

	slaveSrv := slaveserver.New(slaveLn, notify, slog.Default())
	slaveSrv.LogSink = sink
	uiSrv := uiserver.New(uiLn, cc, slaveSrv, notify, slog.Default())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *sshUser != "" {
		b, err := newBootstrapper(slaveSrv, sink, notify, masterHostname, cfg, *sshUser, *sshKey)
		if err != nil {
			slog.Warn("master: bootstrap disabled", "error", err)
		} else if *bootstrapHost != "" {
			go runBootstrap(ctx, b, *bootstrapHost, *bootstrapIP)
		}
	} else if *bootstrapHost != "" {
		slog.Warn("master: -bootstrap-slave ignored, -ssh-user not set")
	}

	sv := supervisor.New(uiSrv, slaveSrv, slog.Default())
	return sv.Run(ctx)
}

// newBootstrapper wires a bootstrap.Bootstrapper using the SSH remote
// launcher.
func newBootstrapper(slaveSrv *slaveserver.Server, sink *logsink.Sink, notify *events.Queue, masterHostname string, cfg config.Config, sshUser, sshKeyPath string) (*bootstrap.Bootstrapper, error) {
	if sshKeyPath == "" {
		return nil, fmt.Errorf("master: -ssh-key is required when -ssh-user is set")
	}
	signer, err := sshlauncher.LoadSignerFromFile(sshKeyPath)
	if err != nil {
		return nil, err
	}
	launcher := &sshlauncher.Launcher{
		SourceScript:   cfg.SourceScript,
		MasterHostname: masterHostname,
		ClientConfig: &ssh.ClientConfig{
			User:            sshUser,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		},
	}
	return bootstrap.New(slaveSrv, sink, notify, launcher, masterHostname, slog.Default()), nil
}

// runBootstrap drives start_slave for the -bootstrap-slave flag once
// the master's servers are listening. ip defaults to resolving host
// when -bootstrap-ip is not given.
func runBootstrap(ctx context.Context, b *bootstrap.Bootstrapper, host, ip string) {
	if ip == "" {
		addrs, err := net.LookupHost(host)
		if err != nil || len(addrs) == 0 {
			slog.Error("master: bootstrap: could not resolve -bootstrap-slave host", "host", host, "error", err)
			return
		}
		ip = addrs[0]
	}
	if err := b.StartSlave(ctx, host, ip, nil); err != nil {
		slog.Error("master: bootstrap: start_slave failed", "host", host, "error", err)
		return
	}
	slog.Info("master: bootstrap: slave started", "host", host)
}
