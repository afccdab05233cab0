// ABOUTME: Configuration loading and parsing for stranger-relay
// ABOUTME: Supports YAML or TOML files with environment variable expansion, defaults and duration parsing

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Isolation modes for session hosts.
const (
	IsolationGoroutine = "goroutine"
	IsolationProcess   = "process"
)

// Defaults applied by Load for fields left empty.
const (
	DefaultPollInterval         = 2500 * time.Millisecond
	DefaultRestartDelay         = 2500 * time.Millisecond
	DefaultRequestTimeout       = 10 * time.Second
	DefaultPollFailureThreshold = 5
	DefaultCommandPrefix        = "!"
	DefaultMetricsAddr          = "127.0.0.1:9464"
	DefaultMetricsPath          = "/metrics"
)

// Config is the complete stranger-relay configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service" toml:"service"`
	Relay     RelayConfig     `yaml:"relay" toml:"relay"`
	Moderator ModeratorConfig `yaml:"moderator" toml:"moderator"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServiceConfig describes how to reach the chat service.
type ServiceConfig struct {
	// Servers is the pool one host is drawn from per connect. Empty means
	// the built-in pool.
	Servers []string `yaml:"servers" toml:"servers"`
	// BaseURL replaces the pool with one URL (for example a local fake).
	BaseURL        string   `yaml:"base_url" toml:"base_url"`
	LocalAddresses []string `yaml:"local_addresses" toml:"local_addresses"`
	// PollFailureThreshold of 0 disables dead-poll detection; nil means the default.
	PollFailureThreshold *int `yaml:"poll_failure_threshold" toml:"poll_failure_threshold"`

	PollInterval   time.Duration `yaml:"-" toml:"-"`
	RestartDelay   time.Duration `yaml:"-" toml:"-"`
	RequestTimeout time.Duration `yaml:"-" toml:"-"`
	IdleTimeout    time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	PollIntervalRaw   string `yaml:"poll_interval" toml:"poll_interval"`
	RestartDelayRaw   string `yaml:"restart_delay" toml:"restart_delay"`
	RequestTimeoutRaw string `yaml:"request_timeout" toml:"request_timeout"`
	IdleTimeoutRaw    string `yaml:"idle_timeout" toml:"idle_timeout"`
}

// RelayConfig holds orchestrator settings.
type RelayConfig struct {
	Isolation string `yaml:"isolation" toml:"isolation"`
}

// ModeratorConfig holds the moderator channel.
type ModeratorConfig struct {
	CommandPrefix string         `yaml:"command_prefix" toml:"command_prefix"`
	RoomTopic     bool           `yaml:"room_topic" toml:"room_topic"`
	Matrix        MatrixConfig   `yaml:"matrix" toml:"matrix"`
	Personas      PersonasConfig `yaml:"personas" toml:"personas"`
}

// MatrixConfig holds Matrix credentials and the moderator room.
type MatrixConfig struct {
	Homeserver  string `yaml:"homeserver" toml:"homeserver"`
	UserID      string `yaml:"user_id" toml:"user_id"`
	AccessToken string `yaml:"access_token" toml:"access_token"`
	RoomID      string `yaml:"room_id" toml:"room_id"`

	// AllowedUsers limits who may issue commands. Empty allows everyone in the room.
	AllowedUsers []string `yaml:"allowed_users" toml:"allowed_users"`
}

// Enabled reports whether a homeserver is configured.
func (m MatrixConfig) Enabled() bool {
	return m.Homeserver != ""
}

// PersonasConfig names the three voices notices are posted with.
type PersonasConfig struct {
	Relay PersonaConfig `yaml:"relay" toml:"relay"`
	A     PersonaConfig `yaml:"a" toml:"a"`
	B     PersonaConfig `yaml:"b" toml:"b"`
}

// PersonaConfig is a display name and an avatar (mxc:// URL).
type PersonaConfig struct {
	Name string `yaml:"name" toml:"name"`
	Icon string `yaml:"icon" toml:"icon"`
}

// DatabaseConfig holds the ledger location. An empty path disables it.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
	Path    string `yaml:"path" toml:"path"`
}

// Path returns the configuration file to load.
// Priority: RELAY_CONFIG env var > ./config.yaml > XDG_CONFIG_HOME/stranger-relay/config.yaml
func Path() string {
	if envPath := os.Getenv("RELAY_CONFIG"); envPath != "" {
		return envPath
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "stranger-relay", "config.yaml")
}

// Load reads a configuration file. Files ending in .toml are parsed as TOML,
// everything else as YAML. Environment variables in the format ${VAR_NAME}
// are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(path, data)
}

// Parse decodes configuration bytes. name selects the format by extension.
func Parse(name string, data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(name), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and nothing
// else set.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or nothing
// when it is unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Service.PollInterval == 0 {
		c.Service.PollInterval = DefaultPollInterval
	}
	if c.Service.RestartDelay == 0 {
		c.Service.RestartDelay = DefaultRestartDelay
	}
	if c.Service.RequestTimeout == 0 {
		c.Service.RequestTimeout = DefaultRequestTimeout
	}
	if c.Service.PollFailureThreshold == nil {
		n := DefaultPollFailureThreshold
		c.Service.PollFailureThreshold = &n
	}
	if c.Relay.Isolation == "" {
		c.Relay.Isolation = IsolationGoroutine
	}
	if c.Moderator.CommandPrefix == "" {
		c.Moderator.CommandPrefix = DefaultCommandPrefix
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Service.BaseURL != "" {
		if err := checkHTTPURL(c.Service.BaseURL); err != nil {
			return fmt.Errorf("service.base_url: %w", err)
		}
	}
	if c.Service.PollInterval < 0 || c.Service.RestartDelay < 0 || c.Service.RequestTimeout < 0 {
		return errors.New("service durations must be positive")
	}
	if c.Service.IdleTimeout < 0 {
		return errors.New("service.idle_timeout must not be negative")
	}
	if c.Service.PollFailureThreshold != nil && *c.Service.PollFailureThreshold < 0 {
		return errors.New("service.poll_failure_threshold must not be negative")
	}

	switch c.Relay.Isolation {
	case IsolationGoroutine, IsolationProcess:
	default:
		return fmt.Errorf("relay.isolation must be %q or %q, got %q", IsolationGoroutine, IsolationProcess, c.Relay.Isolation)
	}

	if m := c.Moderator.Matrix; m.Enabled() {
		if err := checkHTTPURL(m.Homeserver); err != nil {
			return fmt.Errorf("moderator.matrix.homeserver: %w", err)
		}
		if m.UserID == "" {
			return errors.New("moderator.matrix.user_id is required")
		}
		if m.AccessToken == "" {
			return errors.New("moderator.matrix.access_token is required")
		}
		if m.RoomID == "" {
			return errors.New("moderator.matrix.room_id is required")
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path)
	}
	return nil
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must use http or https scheme")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"poll_interval", cfg.Service.PollIntervalRaw, &cfg.Service.PollInterval},
		{"restart_delay", cfg.Service.RestartDelayRaw, &cfg.Service.RestartDelay},
		{"request_timeout", cfg.Service.RequestTimeoutRaw, &cfg.Service.RequestTimeout},
		{"idle_timeout", cfg.Service.IdleTimeoutRaw, &cfg.Service.IdleTimeout},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
