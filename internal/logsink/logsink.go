// Package logsink delivers slave-originated log-record frames
// (spec.md §4.7) to a per-peer-IP rotating file, mirroring the Python
// original's RotatingFileHandler plus its single rotation-on-start
// behavior. The original keys slave_log_handlers by
// connection.getpeername()[0] (the peer's IP) rather than its
// authenticated hostname, because a log record can arrive before auth
// completes; this sink follows the same key.
package logsink

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/hyperion-cluster/hyperion/internal/wire"
)

// levelColor maps a log record's level name to the tint-style ANSI
// color code used when the opened log file is a terminal (isatty),
// following the same isatty-gated color choice internal/logging makes.
// Regular files get the plain format.
var levelColor = map[string]string{
	"DEBUG":    "90", // gray
	"INFO":     "36", // cyan
	"WARNING":  "33", // yellow
	"WARN":     "33",
	"ERROR":    "31", // red
	"CRITICAL": "91", // bright red
}

// Sink is a peer-IP-keyed set of rotating log files, one per slave
// connection's remote IP.
type Sink struct {
	dir        string
	configName string
	logger     *slog.Logger

	mu    sync.Mutex
	files map[string]*os.File
	tty   map[string]bool
}

// New builds a Sink that creates log files under dir, named
// "<configName>@<hostname>.log".
func New(dir, configName string, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		dir: dir, configName: configName, logger: logger,
		files: make(map[string]*os.File), tty: make(map[string]bool),
	}
}

func (s *Sink) pathFor(hostname string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s@%s.log", s.configName, hostname))
}

// Register opens (or reopens) the log file for hostname and files it
// under ip, rotating any pre-existing file to ".1" exactly once, at
// creation. hostname only names the file on disk; ip is the lookup key
// Deliver uses, since a log-record frame carries no hostname of its
// own — only the connection it arrived on does. Idempotent: a second
// Register call for the same ip reuses the existing open file without
// rotating again.
func (s *Sink) Register(hostname, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[ip]; ok {
		return nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("logsink: creating %s: %w", s.dir, err)
	}

	path := s.pathFor(hostname)
	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".1"); err != nil {
			return fmt.Errorf("logsink: rotating %s: %w", path, err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("logsink: opening %s: %w", path, err)
	}
	s.files[ip] = f
	s.tty[ip] = isatty.IsTerminal(f.Fd())
	return nil
}

// Deliver writes rec to the log file registered for ip, the remote
// address the log-record frame arrived on. If ip has no sink
// registered yet, the record is dropped with a debug log, per
// spec.md §4.7.
func (s *Sink) Deliver(ip string, rec wire.LogRecord) {
	s.mu.Lock()
	f, ok := s.files[ip]
	tty := s.tty[ip]
	s.mu.Unlock()
	if !ok {
		s.logger.Debug("dropping log record: no sink registered yet", "ip", ip)
		return
	}

	var line string
	if tty {
		if code, ok := levelColor[rec.Level]; ok {
			line = fmt.Sprintf("\x1b[%sm[%s]\x1b[0m %s\n", code, rec.Level, rec.Message)
		} else {
			line = fmt.Sprintf("[%s] %s\n", rec.Level, rec.Message)
		}
	} else {
		line = fmt.Sprintf("[%s] %s\n", rec.Level, rec.Message)
	}
	if _, err := f.WriteString(line); err != nil {
		s.logger.Warn("logsink: write failed", "ip", ip, "error", err)
	}
}

// Close closes every open file. Intended for shutdown.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ip, f := range s.files {
		if err := f.Close(); err != nil {
			s.logger.Warn("logsink: close failed", "ip", ip, "error", err)
		}
	}
	s.files = make(map[string]*os.File)
	s.tty = make(map[string]bool)
}
