// Package config provides the YAML server configuration and the encrypted
// credential store for the pitwall server.
package config

import (
	"time"

	"github.com/rennlabs/pitwall/internal/callout"
	"github.com/rennlabs/pitwall/pkg/gt7"
)

// LogLevel controls log verbosity for the pitwall server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler used for server logs.
type LogFormat string

const (
	LogText LogFormat = "text"
	LogJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogText || f == LogJSON
}

// Config is the root configuration structure for pitwall.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader];
// fields absent from the file keep their [DefaultConfig] values.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Engineer  EngineerConfig  `yaml:"engineer"`
	RaceLog   RaceLogConfig   `yaml:"race_log"`
}

// ServerConfig holds the client transport and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP/WebSocket server listens on
	// (e.g., ":4401"). The WS_PORT environment variable overrides the port.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat selects text or JSON log output.
	LogFormat LogFormat `yaml:"log_format"`
}

// TelemetryConfig holds the console-facing UDP settings and the fan-out rate.
type TelemetryConfig struct {
	// ConsoleAddr is the console's IP address. When set, discovery is
	// skipped and heartbeats go straight to it. The PS5_IP environment
	// variable overrides this field.
	ConsoleAddr string `yaml:"console_addr"`

	// ListenPort is the local UDP port telemetry datagrams arrive on.
	ListenPort int `yaml:"listen_port"`

	// HeartbeatPort is the console-side UDP port heartbeats are sent to.
	HeartbeatPort int `yaml:"heartbeat_port"`

	// HeartbeatInterval is the heartbeat probe period.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// BroadcastHz caps how many telemetry frames per second are fanned out
	// to connected clients. Frames above the cap are skipped, not queued.
	BroadcastHz int `yaml:"broadcast_hz"`

	// SnapshotInterval is the cadence of analyzer snapshots toward clients
	// and the callout engine.
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// EngineerConfig holds voice-session settings.
type EngineerConfig struct {
	// Model is the Gemini Live model used for voice sessions.
	Model string `yaml:"model"`

	// DefaultPersonality is used when a session start request names no
	// personality. Unknown IDs fall back to the built-in default at runtime.
	DefaultPersonality string `yaml:"default_personality"`

	// DefaultVerbosity is the callout gate level at startup: 1 admits
	// critical only, 2 adds normal, 3 everything.
	DefaultVerbosity callout.Verbosity `yaml:"default_verbosity"`

	// ContextInterval is the cadence of background telemetry pushes into a
	// live voice session.
	ContextInterval time.Duration `yaml:"context_interval"`

	// CredentialsPath is where the encrypted API-key store lives.
	CredentialsPath string `yaml:"credentials_path"`
}

// RaceLogConfig holds session recording settings.
type RaceLogConfig struct {
	// Dir is the directory race session files are written to.
	Dir string `yaml:"dir"`

	// IdleTimeout closes an open session file after this long without an
	// on-track frame.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// DefaultConfig returns a fully-populated configuration with the documented
// defaults. Loading merges file values on top of it.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":4401",
			LogLevel:   LogInfo,
			LogFormat:  LogText,
		},
		Telemetry: TelemetryConfig{
			ListenPort:        gt7.TelemetryPort,
			HeartbeatPort:     gt7.HeartbeatPort,
			HeartbeatInterval: 10 * time.Second,
			BroadcastHz:       30,
			SnapshotInterval:  time.Second,
		},
		Engineer: EngineerConfig{
			Model:              "gemini-2.0-flash-live-001",
			DefaultPersonality: "professional",
			DefaultVerbosity:   callout.VerbosityMedium,
			ContextInterval:    5 * time.Second,
			CredentialsPath:    "pitwall-credentials.json",
		},
		RaceLog: RaceLogConfig{
			Dir:         "sessions",
			IdleTimeout: 30 * time.Second,
		},
	}
}
