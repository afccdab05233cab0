// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
service:
  servers: ["front1.example.com", "front2.example.com"]
  local_addresses: ["10.0.0.2"]
  poll_interval: "1s"
  restart_delay: "3s"
  request_timeout: "15s"
  poll_failure_threshold: 0
  idle_timeout: "2m"

relay:
  isolation: "process"

moderator:
  command_prefix: "."
  room_topic: true
  matrix:
    homeserver: "https://matrix.example.org"
    user_id: "@relay:example.org"
    access_token: "secret"
    room_id: "!room:example.org"
    allowed_users:
      - "@mod:example.org"
  personas:
    relay:
      name: "ManInTheMiddle"
      icon: "mxc://example.org/eye"
    a:
      name: "Alice"

database:
  path: "./relay.db"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  addr: ":9100"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Service.Servers) != 2 || cfg.Service.Servers[1] != "front2.example.com" {
		t.Errorf("Service.Servers = %v", cfg.Service.Servers)
	}
	if cfg.Service.PollInterval != time.Second {
		t.Errorf("Service.PollInterval = %v, want 1s", cfg.Service.PollInterval)
	}
	if cfg.Service.RestartDelay != 3*time.Second {
		t.Errorf("Service.RestartDelay = %v, want 3s", cfg.Service.RestartDelay)
	}
	if cfg.Service.RequestTimeout != 15*time.Second {
		t.Errorf("Service.RequestTimeout = %v, want 15s", cfg.Service.RequestTimeout)
	}
	if cfg.Service.IdleTimeout != 2*time.Minute {
		t.Errorf("Service.IdleTimeout = %v, want 2m", cfg.Service.IdleTimeout)
	}
	if cfg.Service.PollFailureThreshold == nil || *cfg.Service.PollFailureThreshold != 0 {
		t.Errorf("Service.PollFailureThreshold = %v, want explicit 0", cfg.Service.PollFailureThreshold)
	}
	if cfg.Relay.Isolation != IsolationProcess {
		t.Errorf("Relay.Isolation = %q, want process", cfg.Relay.Isolation)
	}
	if cfg.Moderator.CommandPrefix != "." {
		t.Errorf("Moderator.CommandPrefix = %q, want .", cfg.Moderator.CommandPrefix)
	}
	if !cfg.Moderator.RoomTopic {
		t.Error("Moderator.RoomTopic should be true")
	}
	if !cfg.Moderator.Matrix.Enabled() {
		t.Error("Moderator.Matrix should be enabled")
	}
	if len(cfg.Moderator.Matrix.AllowedUsers) != 1 || cfg.Moderator.Matrix.AllowedUsers[0] != "@mod:example.org" {
		t.Errorf("Matrix.AllowedUsers = %v", cfg.Moderator.Matrix.AllowedUsers)
	}
	if cfg.Moderator.Personas.Relay.Icon != "mxc://example.org/eye" {
		t.Errorf("Personas.Relay.Icon = %q", cfg.Moderator.Personas.Relay.Icon)
	}
	if cfg.Moderator.Personas.A.Name != "Alice" {
		t.Errorf("Personas.A.Name = %q, want Alice", cfg.Moderator.Personas.A.Name)
	}
	if cfg.Database.Path != "./relay.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != ":9100" || cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[service]
base_url = "http://127.0.0.1:8099"
poll_interval = "500ms"

[relay]
isolation = "goroutine"

[moderator.personas.b]
name = "Bob"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.BaseURL != "http://127.0.0.1:8099" {
		t.Errorf("Service.BaseURL = %q", cfg.Service.BaseURL)
	}
	if cfg.Service.PollInterval != 500*time.Millisecond {
		t.Errorf("Service.PollInterval = %v, want 500ms", cfg.Service.PollInterval)
	}
	if cfg.Moderator.Personas.B.Name != "Bob" {
		t.Errorf("Personas.B.Name = %q, want Bob", cfg.Moderator.Personas.B.Name)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", "{}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.PollInterval != DefaultPollInterval {
		t.Errorf("PollInterval = %v, want %v", cfg.Service.PollInterval, DefaultPollInterval)
	}
	if cfg.Service.RestartDelay != DefaultRestartDelay {
		t.Errorf("RestartDelay = %v, want %v", cfg.Service.RestartDelay, DefaultRestartDelay)
	}
	if cfg.Service.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("RequestTimeout = %v, want %v", cfg.Service.RequestTimeout, DefaultRequestTimeout)
	}
	if cfg.Service.PollFailureThreshold == nil || *cfg.Service.PollFailureThreshold != DefaultPollFailureThreshold {
		t.Errorf("PollFailureThreshold = %v, want %d", cfg.Service.PollFailureThreshold, DefaultPollFailureThreshold)
	}
	if cfg.Service.IdleTimeout != 0 {
		t.Errorf("IdleTimeout = %v, want disabled", cfg.Service.IdleTimeout)
	}
	if cfg.Relay.Isolation != IsolationGoroutine {
		t.Errorf("Isolation = %q, want goroutine", cfg.Relay.Isolation)
	}
	if cfg.Moderator.CommandPrefix != DefaultCommandPrefix {
		t.Errorf("CommandPrefix = %q, want %q", cfg.Moderator.CommandPrefix, DefaultCommandPrefix)
	}
	if cfg.Moderator.Matrix.Enabled() {
		t.Error("Matrix should be disabled by default")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics should be disabled by default")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_RELAY_TOKEN", "expanded-token")
	t.Setenv("TEST_RELAY_ROOM", "!env:example.org")

	path := writeConfig(t, "config.yaml", `
moderator:
  matrix:
    homeserver: "https://matrix.example.org"
    user_id: "@relay:example.org"
    access_token: "${TEST_RELAY_TOKEN}"
    room_id: "${TEST_RELAY_ROOM}"
database:
  path: "${TEST_RELAY_UNSET_VAR}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Moderator.Matrix.AccessToken != "expanded-token" {
		t.Errorf("AccessToken = %q, want expanded-token", cfg.Moderator.Matrix.AccessToken)
	}
	if cfg.Moderator.Matrix.RoomID != "!env:example.org" {
		t.Errorf("RoomID = %q, want !env:example.org", cfg.Moderator.Matrix.RoomID)
	}
	if cfg.Database.Path != "" {
		t.Errorf("Database.Path = %q, want empty for unset var", cfg.Database.Path)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad yaml", "service: [", "parsing config file"},
		{"bad duration", "service:\n  poll_interval: \"soon\"\n", "poll_interval"},
		{"negative idle", "service:\n  idle_timeout: \"-1s\"\n", "idle_timeout"},
		{"negative threshold", "service:\n  poll_failure_threshold: -2\n", "poll_failure_threshold"},
		{"bad base url", "service:\n  base_url: \"ftp://x\"\n", "base_url"},
		{"bad isolation", "relay:\n  isolation: \"thread\"\n", "isolation"},
		{"matrix without room", "moderator:\n  matrix:\n    homeserver: \"https://m.org\"\n    user_id: \"@a:m.org\"\n    access_token: \"t\"\n", "room_id"},
		{"matrix without token", "moderator:\n  matrix:\n    homeserver: \"https://m.org\"\n    user_id: \"@a:m.org\"\n", "access_token"},
		{"bad level", "logging:\n  level: \"loud\"\n", "logging.level"},
		{"bad format", "logging:\n  format: \"xml\"\n", "logging.format"},
		{"bad metrics path", "metrics:\n  enabled: true\n  path: \"metrics\"\n", "metrics.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestPath(t *testing.T) {
	t.Run("env var wins", func(t *testing.T) {
		t.Setenv("RELAY_CONFIG", "/etc/relay.toml")
		if got := Path(); got != "/etc/relay.toml" {
			t.Errorf("Path() = %q", got)
		}
	})

	t.Run("xdg fallback", func(t *testing.T) {
		t.Setenv("RELAY_CONFIG", "")
		xdg := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", xdg)
		t.Chdir(t.TempDir())

		want := filepath.Join(xdg, "stranger-relay", "config.yaml")
		if got := Path(); got != want {
			t.Errorf("Path() = %q, want %q", got, want)
		}
	})

	t.Run("working directory", func(t *testing.T) {
		t.Setenv("RELAY_CONFIG", "")
		dir := t.TempDir()
		t.Chdir(dir)
		if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
		if got := Path(); got != "config.yaml" {
			t.Errorf("Path() = %q, want config.yaml", got)
		}
	})
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}
