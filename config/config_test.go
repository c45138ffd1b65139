// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conclave.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.MUC.RequestTimeout != "30s" {
		t.Errorf("expected request_timeout=30s, got %s", cfg.MUC.RequestTimeout)
	}
	if cfg.MUC.HistoryPageSize != 50 {
		t.Errorf("expected history_page_size=50, got %d", cfg.MUC.HistoryPageSize)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected level=info, got %s", cfg.Logging.Level)
	}
}

func TestLoad_RequiresConclaveConfig(t *testing.T) {
	t.Setenv("CONCLAVE_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when CONCLAVE_CONFIG not set, got nil")
	}
	if !strings.Contains(err.Error(), "CONCLAVE_CONFIG environment variable not set") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestLoad_WithConclaveConfig(t *testing.T) {
	path := writeConfig(t, `
account:
  address: tester@example.org
storage:
  path: /test/conclave.db
`)
	t.Setenv("CONCLAVE_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Account.Address != "tester@example.org" {
		t.Errorf("expected address=tester@example.org, got %s", cfg.Account.Address)
	}
	if cfg.Storage.Path != "/test/conclave.db" {
		t.Errorf("expected path=/test/conclave.db, got %s", cfg.Storage.Path)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
environment: production

account:
  address: tester@example.org
  display_name: Tester

muc:
  leave_before_join: true
  request_timeout: 10s
  rejoin_delay: 2s

logging:
  level: warn
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Environment != Production {
		t.Errorf("expected environment=production, got %s", cfg.Environment)
	}
	if !cfg.MUC.LeaveBeforeJoin {
		t.Error("expected leave_before_join=true")
	}
	if cfg.RequestTimeout() != 10*time.Second {
		t.Errorf("expected request_timeout=10s, got %s", cfg.RequestTimeout())
	}
	if cfg.RejoinDelay() != 2*time.Second {
		t.Errorf("expected rejoin_delay=2s, got %s", cfg.RejoinDelay())
	}
	if level, err := cfg.LogLevel(); err != nil || level != slog.LevelWarn {
		t.Errorf("expected level=warn, got %v (%v)", level, err)
	}
	// Unset fields keep defaults.
	if cfg.MUC.HistoryPageSize != 50 {
		t.Errorf("expected history_page_size default, got %d", cfg.MUC.HistoryPageSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: production

account:
  address: tester@example.org

storage:
  path: /base/conclave.db

production:
  storage:
    path: /prod/conclave.db
  logging:
    level: error
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Storage.Path != "/prod/conclave.db" {
		t.Errorf("production override not applied, got %s", cfg.Storage.Path)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("production logging override not applied, got %s", cfg.Logging.Level)
	}
}

func TestVariableExpansion(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	path := writeConfig(t, `
account:
  address: tester@example.org
storage:
  path: ${HOME}/conclave/conclave.db
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Storage.Path != "/home/tester/conclave/conclave.db" {
		t.Errorf("expansion failed, got %s", cfg.Storage.Path)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing address",
			mutate:  func(c *Config) { c.Account.Address = "" },
			wantErr: "account.address is required",
		},
		{
			name:    "full address",
			mutate:  func(c *Config) { c.Account.Address = "tester@example.org/phone" },
			wantErr: "must be bare",
		},
		{
			name:    "bad timeout",
			mutate:  func(c *Config) { c.MUC.RequestTimeout = "soon" },
			wantErr: "muc.request_timeout",
		},
		{
			name:    "bad level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "bad environment",
			mutate:  func(c *Config) { c.Environment = "staging" },
			wantErr: "invalid environment",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Account.Address = "tester@example.org"
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestConferenceService(t *testing.T) {
	cfg := Default()
	cfg.Account.Address = "tester@example.org"

	service, err := cfg.ConferenceService()
	if err != nil {
		t.Fatalf("ConferenceService: %v", err)
	}
	if service.Domain() != "conference.example.org" {
		t.Errorf("service = %s", service)
	}

	cfg.Account.ConferenceService = "rooms.example.org"
	service, err = cfg.ConferenceService()
	if err != nil {
		t.Fatalf("ConferenceService: %v", err)
	}
	if service.Domain() != "rooms.example.org" {
		t.Errorf("configured service = %s", service)
	}
}
