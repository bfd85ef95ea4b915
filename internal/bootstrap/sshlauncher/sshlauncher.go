// Package sshlauncher is the default bootstrap.RemoteLauncher: it
// starts the slave process over SSH instead of shelling out to the
// `ssh` binary the Python original used, using golang.org/x/crypto/ssh
// directly as a real client.
package sshlauncher

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"

	"github.com/hyperion-cluster/hyperion/internal/bootstrap"
)

// Launcher dials a remote host over SSH to start the slave process and
// to run the validate_on_slave pre-flight check.
type Launcher struct {
	// SourceScript, if non-empty, is sourced before the slave command
	// runs (e.g. to set up a virtualenv or PATH on the remote host).
	SourceScript string
	// ClientConfig carries the SSH user, auth methods and host-key
	// policy; the caller builds it (see New and LoadSignerFromFile).
	// The launcher reads no ssh_config file of its own.
	ClientConfig *ssh.ClientConfig
	// Port is the SSH port on every target host; 22 if zero.
	Port int
	// MasterHostname is the hostname ValidateOnSlave's reciprocal check
	// asks the remote host to SSH back to, confirming slave->master
	// reachability rather than just master->slave.
	MasterHostname string
}

// New builds a Launcher authenticating with the given signer over the
// host's default SSH port (22), accepting any host key. Production
// deployments should supply a ClientConfig with a proper
// HostKeyCallback instead of mutating this default.
func New(user string, signer ssh.Signer) *Launcher {
	return &Launcher{
		ClientConfig: &ssh.ClientConfig{
			User:            user,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		},
	}
}

func (l *Launcher) port() int {
	if l.Port != 0 {
		return l.Port
	}
	return 22
}

func (l *Launcher) dial(host string) (*ssh.Client, error) {
	addr := fmt.Sprintf("%s:%d", host, l.port())
	return ssh.Dial("tcp", addr, l.ClientConfig)
}

func (l *Launcher) runCommand(ctx context.Context, host, cmd string) (string, int, error) {
	client, err := l.dial(host)
	if err != nil {
		return "", -1, fmt.Errorf("sshlauncher: dialing %s: %w", host, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", -1, fmt.Errorf("sshlauncher: opening session on %s: %w", host, err)
	}
	defer session.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-done:
		}
	}()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out

	runErr := session.Run(cmd)
	if runErr == nil {
		return out.String(), 0, nil
	}
	if exitErr, ok := runErr.(*ssh.ExitError); ok {
		return out.String(), exitErr.ExitStatus(), nil
	}
	return out.String(), -1, runErr
}

// StartSlave opens an SSH session on host and runs the command that
// launches a slave process pointing back at masterHostname:slavePort,
// sourcing SourceScript first when configured.
func (l *Launcher) StartSlave(ctx context.Context, host, masterHostname string, slavePort int) error {
	cmd := l.slaveCommand(masterHostname, slavePort)
	_, exitCode, err := l.runCommand(ctx, host, cmd)
	if err != nil {
		return fmt.Errorf("sshlauncher: starting slave on %s: %w", host, err)
	}
	if exitCode != 0 {
		return fmt.Errorf("sshlauncher: slave launch on %s exited %d", host, exitCode)
	}
	return nil
}

func (l *Launcher) slaveCommand(masterHostname string, slavePort int) string {
	cmd := fmt.Sprintf("hyperion slave --master %s --port %d", masterHostname, slavePort)
	if l.SourceScript != "" {
		return fmt.Sprintf("source %s && %s", l.SourceScript, cmd)
	}
	return cmd
}

func (l *Launcher) validateCommand() string {
	cmd := "hyperion validate"
	if l.SourceScript != "" {
		return fmt.Sprintf("source %s && %s", l.SourceScript, cmd)
	}
	return cmd
}

// reciprocalCommand is run ON the remote slave host (via a session to
// host) and itself dials back to MasterHostname over SSH, the
// slave->master half of the reachability check — the SSH session to
// host only proves master->slave works.
func (l *Launcher) reciprocalCommand() string {
	return fmt.Sprintf("ssh -o BatchMode=yes -o ConnectTimeout=5 %s echo test", l.MasterHostname)
}

// ValidateOnSlave runs the two-phase pre-flight check: a remote
// "hyperion validate" command, then (only if that succeeds) a command
// run on host that itself SSHes back to MasterHostname, confirming the
// slave can reach the master and not just the reverse.
func (l *Launcher) ValidateOnSlave(ctx context.Context, host string) (bootstrap.ExitStatus, error) {
	_, exitCode, err := l.runCommand(ctx, host, l.validateCommand())
	if err != nil {
		return bootstrap.StatusUnreachable, err
	}
	if exitCode != 0 {
		return bootstrap.StatusFailed, nil
	}

	_, exitCode, err = l.runCommand(ctx, host, l.reciprocalCommand())
	if err != nil {
		return bootstrap.StatusUnreachable, err
	}
	if exitCode != 0 {
		return bootstrap.StatusFailed, nil
	}

	return bootstrap.StatusOK, nil
}

// LoadSignerFromFile reads a private key file (e.g. ~/.ssh/id_ed25519)
// and parses it into an ssh.Signer for use with New.
func LoadSignerFromFile(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sshlauncher: reading key %s: %w", path, err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("sshlauncher: parsing key %s: %w", path, err)
	}
	return signer, nil
}
