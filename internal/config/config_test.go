package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rennlabs/pitwall/internal/callout"
	"github.com/rennlabs/pitwall/internal/config"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: debug
  log_format: json

telemetry:
  console_addr: 192.168.1.30
  listen_port: 33740
  heartbeat_port: 33739
  heartbeat_interval: 12s
  broadcast_hz: 20
  snapshot_interval: 500ms

engineer:
  model: gemini-2.0-flash-live-001
  default_personality: veteran
  default_verbosity: 3
  context_interval: 4s
  credentials_path: /var/lib/pitwall/credentials.json

race_log:
  dir: /var/lib/pitwall/sessions
  idle_timeout: 45s
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Server.LogFormat != config.LogJSON {
		t.Errorf("server.log_format: got %q, want %q", cfg.Server.LogFormat, config.LogJSON)
	}
	if cfg.Telemetry.ConsoleAddr != "192.168.1.30" {
		t.Errorf("telemetry.console_addr: got %q", cfg.Telemetry.ConsoleAddr)
	}
	if cfg.Telemetry.HeartbeatInterval != 12*time.Second {
		t.Errorf("telemetry.heartbeat_interval: got %s, want 12s", cfg.Telemetry.HeartbeatInterval)
	}
	if cfg.Telemetry.BroadcastHz != 20 {
		t.Errorf("telemetry.broadcast_hz: got %d, want 20", cfg.Telemetry.BroadcastHz)
	}
	if cfg.Telemetry.SnapshotInterval != 500*time.Millisecond {
		t.Errorf("telemetry.snapshot_interval: got %s, want 500ms", cfg.Telemetry.SnapshotInterval)
	}
	if cfg.Engineer.DefaultPersonality != "veteran" {
		t.Errorf("engineer.default_personality: got %q", cfg.Engineer.DefaultPersonality)
	}
	if cfg.Engineer.DefaultVerbosity != callout.VerbosityHigh {
		t.Errorf("engineer.default_verbosity: got %d, want 3", int(cfg.Engineer.DefaultVerbosity))
	}
	if cfg.RaceLog.IdleTimeout != 45*time.Second {
		t.Errorf("race_log.idle_timeout: got %s, want 45s", cfg.RaceLog.IdleTimeout)
	}
}

func TestLoadFromReader_EmptyKeepsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error for empty config: %v", err)
	}
	want := config.DefaultConfig()
	if cfg.Server.ListenAddr != want.Server.ListenAddr {
		t.Errorf("listen_addr: got %q, want default %q", cfg.Server.ListenAddr, want.Server.ListenAddr)
	}
	if cfg.Telemetry.ListenPort != want.Telemetry.ListenPort {
		t.Errorf("listen_port: got %d, want default %d", cfg.Telemetry.ListenPort, want.Telemetry.ListenPort)
	}
	if cfg.Engineer.DefaultVerbosity != want.Engineer.DefaultVerbosity {
		t.Errorf("default_verbosity: got %d, want default %d",
			int(cfg.Engineer.DefaultVerbosity), int(want.Engineer.DefaultVerbosity))
	}
}

func TestLoadFromReader_PartialFileMergesDefaults(t *testing.T) {
	t.Parallel()
	yaml := `
telemetry:
  console_addr: 10.0.0.5
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Telemetry.ConsoleAddr != "10.0.0.5" {
		t.Errorf("console_addr: got %q", cfg.Telemetry.ConsoleAddr)
	}
	// Everything else stays at the default.
	if cfg.Telemetry.BroadcastHz != 30 {
		t.Errorf("broadcast_hz: got %d, want default 30", cfg.Telemetry.BroadcastHz)
	}
	if cfg.Server.ListenAddr != ":4401" {
		t.Errorf("listen_addr: got %q, want default :4401", cfg.Server.ListenAddr)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_address: ":8080"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoadFromReader_BadDuration(t *testing.T) {
	t.Parallel()
	yaml := `
telemetry:
  heartbeat_interval: fast
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unparsable duration, got nil")
	}
}

func TestDefaultConfig_Validates(t *testing.T) {
	t.Parallel()
	if err := config.Validate(config.DefaultConfig()); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_format: xml
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_format, got nil")
	}
	if !strings.Contains(err.Error(), "log_format") {
		t.Errorf("error should mention log_format, got: %v", err)
	}
}

func TestValidate_BadListenAddr(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: "not-an-address"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for bad listen_addr, got nil")
	}
	if !strings.Contains(err.Error(), "listen_addr") {
		t.Errorf("error should mention listen_addr, got: %v", err)
	}
}

func TestValidate_BadConsoleAddr(t *testing.T) {
	t.Parallel()
	yaml := `
telemetry:
  console_addr: playstation.local
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for non-IP console_addr, got nil")
	}
	if !strings.Contains(err.Error(), "console_addr") {
		t.Errorf("error should mention console_addr, got: %v", err)
	}
}

func TestValidate_BroadcastHzOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
telemetry:
  broadcast_hz: 120
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for broadcast_hz above 60, got nil")
	}
	if !strings.Contains(err.Error(), "broadcast_hz") {
		t.Errorf("error should mention broadcast_hz, got: %v", err)
	}
}

func TestValidate_InvalidVerbosity(t *testing.T) {
	t.Parallel()
	yaml := `
engineer:
  default_verbosity: 5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid verbosity, got nil")
	}
	if !strings.Contains(err.Error(), "default_verbosity") {
		t.Errorf("error should mention default_verbosity, got: %v", err)
	}
}

func TestValidate_JoinsAllFailures(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
telemetry:
  broadcast_hz: 0
engineer:
  default_verbosity: 9
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected joined validation error, got nil")
	}
	for _, want := range []string{"log_level", "broadcast_hz", "default_verbosity"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %s, got: %v", want, err)
		}
	}
}

// ── Load from file + environment ──────────────────────────────────────────────

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PS5_IP", "")
	t.Setenv("WS_PORT", "")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not be an error, got: %v", err)
	}
	if cfg.Server.ListenAddr != ":4401" {
		t.Errorf("listen_addr: got %q, want default :4401", cfg.Server.ListenAddr)
	}
}

func TestLoad_ReadsFile(t *testing.T) {
	t.Setenv("PS5_IP", "")
	t.Setenv("WS_PORT", "")

	path := filepath.Join(t.TempDir(), "pitwall.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Telemetry.ConsoleAddr != "192.168.1.30" {
		t.Errorf("console_addr: got %q", cfg.Telemetry.ConsoleAddr)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PS5_IP", "192.168.1.77")
	t.Setenv("WS_PORT", "9001")

	path := filepath.Join(t.TempDir(), "pitwall.yaml")
	yaml := `
server:
  listen_addr: "127.0.0.1:4401"
telemetry:
  console_addr: 10.0.0.1
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Telemetry.ConsoleAddr != "192.168.1.77" {
		t.Errorf("PS5_IP should win over the file, got %q", cfg.Telemetry.ConsoleAddr)
	}
	if cfg.Server.ListenAddr != "127.0.0.1:9001" {
		t.Errorf("WS_PORT should replace the port and keep the host, got %q", cfg.Server.ListenAddr)
	}
}

func TestLoad_EnvOverridesAreValidated(t *testing.T) {
	t.Setenv("PS5_IP", "not.an.ip.addr")
	t.Setenv("WS_PORT", "")

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected validation error for garbage PS5_IP, got nil")
	}
	if !strings.Contains(err.Error(), "console_addr") {
		t.Errorf("error should mention console_addr, got: %v", err)
	}
}
