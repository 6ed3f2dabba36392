package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/netip"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config]. A missing file is not an
// error: defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Run on defaults.
	case err != nil:
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	default:
		defer f.Close()
		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of the defaults and
// validates the result. Environment overrides are not applied. Useful in
// tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	if err := decode(r, cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode parses YAML from r into cfg, rejecting unknown fields. An empty
// document leaves cfg untouched.
func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv applies the documented environment overrides: PS5_IP pins the
// console address, WS_PORT moves the client transport port. Both win over
// file values; validation still applies to the result.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PS5_IP"); v != "" {
		cfg.Telemetry.ConsoleAddr = v
	}
	if v := os.Getenv("WS_PORT"); v != "" {
		host := ""
		if h, _, err := net.SplitHostPort(cfg.Server.ListenAddr); err == nil {
			host = h
		}
		cfg.Server.ListenAddr = net.JoinHostPort(host, v)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	} else if _, port, err := net.SplitHostPort(cfg.Server.ListenAddr); err != nil {
		errs = append(errs, fmt.Errorf("server.listen_addr %q is not a host:port address", cfg.Server.ListenAddr))
	} else if p, err := strconv.Atoi(port); err != nil || p < 1 || p > 65535 {
		errs = append(errs, fmt.Errorf("server.listen_addr port %q is out of range [1, 65535]", port))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	// Telemetry
	if cfg.Telemetry.ConsoleAddr != "" {
		if _, err := netip.ParseAddr(cfg.Telemetry.ConsoleAddr); err != nil {
			errs = append(errs, fmt.Errorf("telemetry.console_addr %q is not an IP address", cfg.Telemetry.ConsoleAddr))
		}
	}
	if cfg.Telemetry.ListenPort < 1 || cfg.Telemetry.ListenPort > 65535 {
		errs = append(errs, fmt.Errorf("telemetry.listen_port %d is out of range [1, 65535]", cfg.Telemetry.ListenPort))
	}
	if cfg.Telemetry.HeartbeatPort < 1 || cfg.Telemetry.HeartbeatPort > 65535 {
		errs = append(errs, fmt.Errorf("telemetry.heartbeat_port %d is out of range [1, 65535]", cfg.Telemetry.HeartbeatPort))
	}
	if cfg.Telemetry.HeartbeatInterval < time.Second {
		errs = append(errs, fmt.Errorf("telemetry.heartbeat_interval %s is below the 1s minimum", cfg.Telemetry.HeartbeatInterval))
	}
	// The console emits 60 frames per second; asking for more is a typo.
	if cfg.Telemetry.BroadcastHz < 1 || cfg.Telemetry.BroadcastHz > 60 {
		errs = append(errs, fmt.Errorf("telemetry.broadcast_hz %d is out of range [1, 60]", cfg.Telemetry.BroadcastHz))
	}
	if cfg.Telemetry.SnapshotInterval < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("telemetry.snapshot_interval %s is below the 100ms minimum", cfg.Telemetry.SnapshotInterval))
	}

	// Engineer
	if cfg.Engineer.Model == "" {
		errs = append(errs, errors.New("engineer.model is required"))
	}
	if !cfg.Engineer.DefaultVerbosity.IsValid() {
		errs = append(errs, fmt.Errorf("engineer.default_verbosity %d is invalid; valid values: 1, 2, 3", int(cfg.Engineer.DefaultVerbosity)))
	}
	if cfg.Engineer.ContextInterval < time.Second {
		errs = append(errs, fmt.Errorf("engineer.context_interval %s is below the 1s minimum", cfg.Engineer.ContextInterval))
	}
	if cfg.Engineer.CredentialsPath == "" {
		errs = append(errs, errors.New("engineer.credentials_path is required"))
	}

	// Race log
	if cfg.RaceLog.Dir == "" {
		errs = append(errs, errors.New("race_log.dir is required"))
	}
	if cfg.RaceLog.IdleTimeout < time.Second {
		errs = append(errs, fmt.Errorf("race_log.idle_timeout %s is below the 1s minimum", cfg.RaceLog.IdleTimeout))
	}

	return errors.Join(errs...)
}
