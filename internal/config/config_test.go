// Package config_test provides tests for the server configuration loader.
package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wealthpath-desktop/wealth-backend/internal/config"
)

func TestDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load with defaults failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Default port incorrect: %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Default log level incorrect: %q", cfg.Log.Level)
	}
	if cfg.Data.Dir != "./data" {
		t.Errorf("Default data dir incorrect: %q", cfg.Data.Dir)
	}
	if cfg.Simulation.BatchSize != 2000 {
		t.Errorf("Default batch size incorrect: %d", cfg.Simulation.BatchSize)
	}
	if cfg.WebSocket.PingInterval != 30*time.Second {
		t.Errorf("Default ping interval incorrect: %v", cfg.WebSocket.PingInterval)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr incorrect: %q", cfg.Addr())
	}
}

func TestFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	body := `
server:
  port: 9090
data:
  dir: /srv/returns
websocket:
  pingInterval: 10s
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config fixture: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("File port not applied: %d", cfg.Server.Port)
	}
	if cfg.Data.Dir != "/srv/returns" {
		t.Errorf("File data dir not applied: %q", cfg.Data.Dir)
	}
	if cfg.WebSocket.PingInterval != 10*time.Second {
		t.Errorf("File ping interval not applied: %v", cfg.WebSocket.PingInterval)
	}
	// Untouched keys keep their defaults
	if cfg.Log.Level != "info" {
		t.Errorf("Default log level lost: %q", cfg.Log.Level)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0644); err != nil {
		t.Fatalf("Failed to write config fixture: %v", err)
	}

	t.Setenv("WEALTH_SERVER_PORT", "7777")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("Environment must beat the file: %d", cfg.Server.Port)
	}
}

func TestExplicitFileMustExist(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Missing explicit config file must be an error")
	}
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad port", "server:\n  port: -1\n"},
		{"bad log level", "log:\n  level: chatty\n"},
		{"negative workers", "simulation:\n  workers: -2\n"},
		{"zero ping", "websocket:\n  pingInterval: 0s\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "server.yaml")
			if err := os.WriteFile(path, []byte(tc.body), 0644); err != nil {
				t.Fatalf("Failed to write config fixture: %v", err)
			}
			if _, err := config.Load(path); err == nil {
				t.Error("Invalid configuration must be rejected")
			}
		})
	}
}
