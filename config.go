// config.go: Host configuration loading, environment expansion and validation
//
// The host configuration is a YAML, JSON or TOML file. ${VAR} and
// ${VAR:-default} placeholders are expanded from the environment before
// parsing, and GO_PIECES_* variables override individual fields afterwards.
//
// Example:
//
//	self_id: "${GO_PIECES_SELF_ID:-bot-1}"
//	init_timeout: 10s
//	directories:
//	  provider: ["./pieces/providers"]
//	  monitor:  ["./pieces/monitors"]
//	hot_reload:
//	  enabled: true
//	  poll_interval: 2s
//	breaker:
//	  enabled: true
//	  failure_threshold: 5
//	  recovery_timeout: 30s
//	admin:
//	  address: ":8081"
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GO_PIECES_"

// HostConfig configures a Host.
type HostConfig struct {
	// SelfID identifies events authored by the host itself, for ignoreSelf.
	SelfID string `json:"self_id" yaml:"self_id"`

	// Directories lists manifest directories per kind.
	Directories map[Kind][]string `json:"directories,omitempty" yaml:"directories,omitempty"`

	// InitTimeout bounds each piece's Init. Zero means no limit.
	InitTimeout time.Duration `json:"init_timeout" yaml:"init_timeout"`

	// QueueSize is the initial capacity of the publish queue.
	QueueSize int `json:"queue_size" yaml:"queue_size"`

	// TeardownOrphans closes replaced or unloaded pieces implementing io.Closer.
	TeardownOrphans bool `json:"teardown_orphans" yaml:"teardown_orphans"`

	HotReload HotReloadConfig `json:"hot_reload" yaml:"hot_reload"`
	Breaker   BreakerConfig   `json:"breaker" yaml:"breaker"`
	Admin     AdminConfig     `json:"admin" yaml:"admin"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// HotReloadConfig controls the manifest watcher.
type HotReloadConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// MinInterval is the minimum time between two reloads of one piece.
	MinInterval time.Duration `json:"min_interval" yaml:"min_interval"`

	// AuditFile enables the argus audit trail when set.
	AuditFile string `json:"audit_file,omitempty" yaml:"audit_file,omitempty"`
}

// AdminConfig controls the admin HTTP and gRPC health listeners.
type AdminConfig struct {
	Address     string `json:"address,omitempty" yaml:"address,omitempty"`
	GRPCAddress string `json:"grpc_address,omitempty" yaml:"grpc_address,omitempty"`
}

// MetricsConfig controls Prometheus naming.
type MetricsConfig struct {
	Namespace string `json:"namespace" yaml:"namespace"`
}

// LoggingConfig controls the logger built by hosting binaries.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// DefaultHostConfig returns a configuration with every default applied.
func DefaultHostConfig() HostConfig {
	var c HostConfig
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unset fields.
func (c *HostConfig) ApplyDefaults() {
	if c.Directories == nil {
		c.Directories = make(map[Kind][]string)
	}
	if c.InitTimeout == 0 {
		c.InitTimeout = 30 * time.Second
	}
	if c.QueueSize == 0 {
		c.QueueSize = 1024
	}
	if c.HotReload.PollInterval == 0 {
		c.HotReload.PollInterval = 2 * time.Second
	}
	if c.HotReload.MinInterval == 0 {
		c.HotReload.MinInterval = 500 * time.Millisecond
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.RecoveryTimeout == 0 {
		c.Breaker.RecoveryTimeout = 30 * time.Second
	}
	if c.Breaker.SuccessThreshold == 0 {
		c.Breaker.SuccessThreshold = 1
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "gopieces"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate checks the configuration for values the host cannot use.
func (c HostConfig) Validate() error {
	for kind, dirs := range c.Directories {
		if !kind.Valid() {
			return NewConfigValidationError(fmt.Sprintf("unknown kind %q in directories", kind), NewUnknownKindError(string(kind)))
		}
		for _, dir := range dirs {
			if dir == "" {
				return NewConfigValidationError(fmt.Sprintf("empty directory listed for kind %s", kind), nil)
			}
		}
	}
	if c.InitTimeout < 0 {
		return NewConfigValidationError("init_timeout cannot be negative", nil)
	}
	if c.QueueSize < 0 {
		return NewConfigValidationError("queue_size cannot be negative", nil)
	}
	if c.HotReload.PollInterval < 0 || c.HotReload.MinInterval < 0 {
		return NewConfigValidationError("hot_reload intervals cannot be negative", nil)
	}
	if c.Breaker.FailureThreshold < 0 || c.Breaker.SuccessThreshold < 0 || c.Breaker.RecoveryTimeout < 0 {
		return NewConfigValidationError("breaker thresholds cannot be negative", nil)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return NewConfigValidationError(fmt.Sprintf("unknown log level %q", c.Logging.Level), nil)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return NewConfigValidationError(fmt.Sprintf("unknown log format %q", c.Logging.Format), nil)
	}
	return nil
}

// LoadHostConfig reads, expands, parses and validates a host configuration file.
func LoadHostConfig(path string) (HostConfig, error) {
	var config HostConfig

	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return config, NewConfigNotFoundError(path, err)
	}
	expanded, err := ExpandEnv(string(data))
	if err != nil {
		return config, NewConfigParseError(path, err)
	}
	if err := parseHostConfig(path, []byte(expanded), &config); err != nil {
		return config, NewConfigParseError(path, err)
	}
	if err := applyEnvOverrides(&config); err != nil {
		return config, err
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// parseHostConfig decodes by detected format. JSON is decoded with yaml.v3,
// which accepts it and understands duration strings; TOML goes through
// argus and is re-encoded so the same struct tags apply.
func parseHostConfig(path string, data []byte, config *HostConfig) error {
	switch format := argus.DetectFormat(path); format {
	case argus.FormatYAML, argus.FormatJSON:
		return yaml.Unmarshal(data, config)
	case argus.FormatTOML:
		raw, err := argus.ParseConfig(data, format)
		if err != nil {
			return err
		}
		bridged, err := yaml.Marshal(raw)
		if err != nil {
			return err
		}
		return yaml.Unmarshal(bridged, config)
	default:
		return fmt.Errorf("unsupported config format: %s", format.String())
	}
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default}. A variable that is unset
// and has no default is an error.
func ExpandEnv(input string) (string, error) {
	var missing []string
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if value, ok := os.LookupEnv(parts[1]); ok {
			return value
		}
		if parts[2] != "" {
			return parts[3]
		}
		missing = append(missing, parts[1])
		return match
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("environment variables not set: %v", missing)
	}
	return out, nil
}

// applyEnvOverrides lets GO_PIECES_* variables win over file values.
func applyEnvOverrides(c *HostConfig) error {
	if v, ok := os.LookupEnv(EnvPrefix + "SELF_ID"); ok {
		c.SelfID = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "ADMIN_ADDRESS"); ok {
		c.Admin.Address = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "INIT_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return NewConfigValidationError(EnvPrefix+"INIT_TIMEOUT is not a duration", err)
		}
		c.InitTimeout = d
	}
	if v, ok := os.LookupEnv(EnvPrefix + "HOT_RELOAD"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return NewConfigValidationError(EnvPrefix+"HOT_RELOAD is not a boolean", err)
		}
		c.HotReload.Enabled = enabled
	}
	return nil
}
