// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the engine.
//
// Configuration is loaded from a single file specified by:
//   - CONCLAVE_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
//
// The config file may contain environment-specific sections
// (development, production) that override base values when the
// environment matches.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/conclave-im/conclave/lib/jid"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the engine configuration.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Account configures the XMPP account the engine acts for.
	Account AccountConfig `yaml:"account"`

	// Storage configures the SQLite persistence layer.
	Storage StorageConfig `yaml:"storage"`

	// MUC configures group chat session behavior.
	MUC MUCConfig `yaml:"muc"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`

	// Per-environment overrides, applied after the base config.
	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains fields that can be overridden per environment.
type Overrides struct {
	Storage *StorageConfig `yaml:"storage,omitempty"`
	MUC     *MUCConfig     `yaml:"muc,omitempty"`
	Logging *LoggingConfig `yaml:"logging,omitempty"`
}

// AccountConfig identifies the account.
type AccountConfig struct {
	// Address is the account's bare address. Required.
	Address string `yaml:"address"`

	// DisplayName is the preferred nickname source. Falls back to the
	// address localpart when empty.
	DisplayName string `yaml:"display_name"`

	// ConferenceService is the domain group chats are created on.
	// Default: "conference." prepended to the account domain.
	ConferenceService string `yaml:"conference_service"`
}

// StorageConfig configures the SQLite store.
type StorageConfig struct {
	// Path is the database file. Default: ${HOME}/.local/share/conclave/conclave.db
	Path string `yaml:"path"`

	// PoolSize is the connection pool size. Zero selects the pool
	// default.
	PoolSize int `yaml:"pool_size"`
}

// MUCConfig configures session behavior.
type MUCConfig struct {
	// LeaveBeforeJoin sends an unavailable presence before every join,
	// working around servers that hold stale sessions.
	LeaveBeforeJoin bool `yaml:"leave_before_join"`

	// RequestTimeout bounds every IQ round trip. Default: 30s.
	RequestTimeout string `yaml:"request_timeout"`

	// RejoinDelay is the wait before rejoining after a technical
	// removal. Default: 5s.
	RejoinDelay string `yaml:"rejoin_delay"`

	// HistoryPageSize is the archive catch-up page size. Default: 50.
	HistoryPageSize int `yaml:"history_page_size"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Default: info.
	Level string `yaml:"level"`
}

// Default returns the default configuration. The defaults exist to
// give all fields sensible zero-values, not as a fallback; the config
// file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Environment: Development,
		Storage: StorageConfig{
			Path: filepath.Join(homeDir, ".local", "share", "conclave", "conclave.db"),
		},
		MUC: MUCConfig{
			RequestTimeout:  "30s",
			RejoinDelay:     "5s",
			HistoryPageSize: 50,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the CONCLAVE_CONFIG environment
// variable. There are no fallbacks: if it is not set, Load fails.
func Load() (*Config, error) {
	path := os.Getenv("CONCLAVE_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("CONCLAVE_CONFIG environment variable not set; " +
			"set it to the path of your conclave.yaml config file, or use --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth; environment variables do not
// override config values. The only expansion performed is ${HOME} and
// similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.Storage.Path = expandVars(cfg.Storage.Path, map[string]string{
		"HOME": os.Getenv("HOME"),
	})
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Storage != nil {
		if overrides.Storage.Path != "" {
			c.Storage.Path = overrides.Storage.Path
		}
		if overrides.Storage.PoolSize != 0 {
			c.Storage.PoolSize = overrides.Storage.PoolSize
		}
	}
	if overrides.MUC != nil {
		// LeaveBeforeJoin is a bool, so overrides always apply it.
		c.MUC.LeaveBeforeJoin = overrides.MUC.LeaveBeforeJoin
		if overrides.MUC.RequestTimeout != "" {
			c.MUC.RequestTimeout = overrides.MUC.RequestTimeout
		}
		if overrides.MUC.RejoinDelay != "" {
			c.MUC.RejoinDelay = overrides.MUC.RejoinDelay
		}
		if overrides.MUC.HistoryPageSize != 0 {
			c.MUC.HistoryPageSize = overrides.MUC.HistoryPageSize
		}
	}
	if overrides.Logging != nil {
		if overrides.Logging.Level != "" {
			c.Logging.Level = overrides.Logging.Level
		}
	}
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Account.Address == "" {
		errs = append(errs, fmt.Errorf("account.address is required"))
	} else if address, err := jid.Parse(c.Account.Address); err != nil {
		errs = append(errs, fmt.Errorf("account.address: %w", err))
	} else if !address.IsBare() {
		errs = append(errs, fmt.Errorf("account.address must be bare, got %s", address))
	}
	if c.Storage.Path == "" {
		errs = append(errs, fmt.Errorf("storage.path is required"))
	}
	if _, err := time.ParseDuration(c.MUC.RequestTimeout); err != nil {
		errs = append(errs, fmt.Errorf("muc.request_timeout: %w", err))
	}
	if _, err := time.ParseDuration(c.MUC.RejoinDelay); err != nil {
		errs = append(errs, fmt.Errorf("muc.rejoin_delay: %w", err))
	}
	if c.MUC.HistoryPageSize <= 0 {
		errs = append(errs, fmt.Errorf("muc.history_page_size must be positive"))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// AccountAddress returns the parsed account address. Call Validate
// first.
func (c *Config) AccountAddress() (jid.JID, error) {
	return jid.Parse(c.Account.Address)
}

// ConferenceService returns the configured conference service domain,
// defaulting to "conference." prepended to the account domain.
func (c *Config) ConferenceService() (jid.JID, error) {
	if c.Account.ConferenceService != "" {
		return jid.Parse(c.Account.ConferenceService)
	}
	address, err := jid.Parse(c.Account.Address)
	if err != nil {
		return jid.JID{}, err
	}
	return jid.Parse("conference." + address.Domain())
}

// RequestTimeout returns the parsed IQ timeout.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.MUC.RequestTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// RejoinDelay returns the parsed rejoin delay.
func (c *Config) RejoinDelay() time.Duration {
	d, err := time.ParseDuration(c.MUC.RejoinDelay)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// LogLevel maps the configured level name to a slog level.
func (c *Config) LogLevel() (slog.Level, error) {
	switch c.Logging.Level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
}
