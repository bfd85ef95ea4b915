// Package config loads the core's own small environment: listen
// addresses, ssh and log paths, and default timeouts. It does not
// parse the component-dependency topology — that file format belongs
// to the out-of-scope config loader collaborator.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "HYPERION_"

// Config is the core's runtime environment.
type Config struct {
	// UIAddr is the loopback address the UI server listens on.
	UIAddr string `koanf:"ui_addr"`
	// SlaveAddr is the address the slave server listens on; port 0
	// asks the OS for an ephemeral port, per spec.md §6.
	SlaveAddr string `koanf:"slave_addr"`
	// SSHConfigPath is an optional custom ssh_config file path. It is
	// loaded here but no other package reads it: the bootstrap's SSH
	// launcher is configured only through its ssh.ClientConfig.
	SSHConfigPath string `koanf:"ssh_config_path"`
	// SourceScript is sourced on the remote host before the slave
	// process is launched, e.g. to set up a virtualenv or PATH.
	SourceScript string `koanf:"source_script"`
	// LogDir is where per-slave rotating log files are created.
	LogDir string `koanf:"log_dir"`
	// DefaultWait is the default bounded-wait duration for
	// check_component when the caller does not specify one.
	DefaultWait time.Duration `koanf:"default_wait"`
}

// Default returns the built-in defaults, used as the base layer before
// a config file or environment variables are applied.
func Default() Config {
	return Config{
		UIAddr:      "127.0.0.1:16500",
		SlaveAddr:   "127.0.0.1:0",
		LogDir:      "/tmp/hyperion",
		DefaultWait: 5 * time.Second,
	}
}

// Load builds a Config by layering, in increasing priority: built-in
// defaults, an optional YAML file at path (skipped if path is empty or
// the file does not exist), and HYPERION_-prefixed environment
// variables (e.g. HYPERION_UI_ADDR, HYPERION_DEFAULT_WAIT).
func Load(path string) (Config, error) {
	k := koanf.New(".")

	def := Default()
	defMap := map[string]any{
		"ui_addr":         def.UIAddr,
		"slave_addr":      def.SlaveAddr,
		"ssh_config_path": def.SSHConfigPath,
		"source_script":   def.SourceScript,
		"log_dir":         def.LogDir,
		"default_wait":    def.DefaultWait.String(),
	}
	if err := k.Load(confmap.Provider(defMap, "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: loading file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ToLower(s)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("config: loading environment: %w", err)
	}

	waitStr := k.String("default_wait")
	wait, err := time.ParseDuration(waitStr)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid default_wait %q: %w", waitStr, err)
	}

	cfg := Config{
		UIAddr:        k.String("ui_addr"),
		SlaveAddr:     k.String("slave_addr"),
		SSHConfigPath: k.String("ssh_config_path"),
		SourceScript:  k.String("source_script"),
		LogDir:        k.String("log_dir"),
		DefaultWait:   wait,
	}
	return cfg, nil
}
