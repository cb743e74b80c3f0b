// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, durations and validation

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
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "client.yaml", `
server:
  url: "https://compliai.example.com"
  timeout: "10s"
session:
  validation_interval: "90s"
cache:
  driver: "sqlite3"
  path: "/tmp/cache.db"
logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.URL != "https://compliai.example.com" {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}
	if cfg.Server.Timeout != 10*time.Second {
		t.Errorf("Server.Timeout = %v, want 10s", cfg.Server.Timeout)
	}
	if cfg.Session.ValidationInterval != 90*time.Second {
		t.Errorf("Session.ValidationInterval = %v, want 90s", cfg.Session.ValidationInterval)
	}
	if cfg.Cache.Driver != DriverSQLite3 || cfg.Cache.Path != "/tmp/cache.db" {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "client.toml", `
[server]
url = "http://10.0.0.5:8000"

[session]
validation_interval = "1m"

[cache]
driver = "memory"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.URL != "http://10.0.0.5:8000" {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}
	if cfg.Session.ValidationInterval != time.Minute {
		t.Errorf("Session.ValidationInterval = %v, want 1m", cfg.Session.ValidationInterval)
	}
	if cfg.Cache.Driver != DriverMemory {
		t.Errorf("Cache.Driver = %q", cfg.Cache.Driver)
	}
	// Unset keys keep their defaults.
	if cfg.Server.Timeout != 30*time.Second {
		t.Errorf("Server.Timeout = %v, want default 30s", cfg.Server.Timeout)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "client.yml", "logging:\n  level: warn\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := Default()
	if cfg.Server.URL != def.Server.URL {
		t.Errorf("Server.URL = %q, want default %q", cfg.Server.URL, def.Server.URL)
	}
	if cfg.Session.ValidationInterval != 5*time.Minute {
		t.Errorf("ValidationInterval = %v, want 5m", cfg.Session.ValidationInterval)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("COMPLIAI_TEST_URL", "http://backend.internal:9000")
	t.Setenv("COMPLIAI_TEST_DIR", "/var/lib/compliai")

	path := writeConfig(t, "client.yaml", `
server:
  url: "${COMPLIAI_TEST_URL}"
cache:
  path: "${COMPLIAI_TEST_DIR}/cache.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.URL != "http://backend.internal:9000" {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}
	if cfg.Cache.Path != "/var/lib/compliai/cache.db" {
		t.Errorf("Cache.Path = %q", cfg.Cache.Path)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "client.yaml", "session:\n  validation_interval: \"often\"\n")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "validation_interval") {
		t.Errorf("Load() error = %v, want validation_interval parse error", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "client.yaml", "server: [unclosed\n")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected parse error")
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Server.URL != Default().Server.URL {
		t.Errorf("expected default config, got %+v", cfg.Server)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults valid", mutate: func(*Config) {}},
		{name: "missing url", mutate: func(c *Config) { c.Server.URL = "" }, wantErr: "server.url is required"},
		{name: "non-http url", mutate: func(c *Config) { c.Server.URL = "ftp://x" }, wantErr: "server.url must be"},
		{name: "zero timeout", mutate: func(c *Config) { c.Server.Timeout = 0 }, wantErr: "server.timeout"},
		{name: "zero interval", mutate: func(c *Config) { c.Session.ValidationInterval = 0 }, wantErr: "validation_interval"},
		{name: "unknown driver", mutate: func(c *Config) { c.Cache.Driver = "redis" }, wantErr: "cache.driver"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Cache.Path = "" }, wantErr: "cache.path"},
		{name: "memory without path", mutate: func(c *Config) { c.Cache.Driver = DriverMemory; c.Cache.Path = "" }},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, wantErr: "logging.level"},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/compliai.toml")
	if got := ResolvePath(); got != "/etc/compliai.toml" {
		t.Errorf("ResolvePath() = %q", got)
	}

	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := ResolvePath(); got != filepath.Join("/xdg", "compliai", "client.yaml") {
		t.Errorf("ResolvePath() = %q", got)
	}

	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/tester")
	if got := ResolvePath(); got != filepath.Join("/home/tester", ".config", "compliai", "client.yaml") {
		t.Errorf("ResolvePath() = %q", got)
	}
}

func TestDefaultCachePath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	if got := DefaultCachePath(); got != filepath.Join("/data", "compliai", "cache.db") {
		t.Errorf("DefaultCachePath() = %q", got)
	}
}

func TestLoadBackend(t *testing.T) {
	t.Setenv("COMPLIAI_TEST_SECRET", strings.Repeat("s", 32))
	path := writeConfig(t, "backend.yaml", `
listen: "0.0.0.0:9000"
auth:
  jwt_secret: "${COMPLIAI_TEST_SECRET}"
  token_lifetime: "1h"
demo_user:
  email: "demo@example.com"
  password: "demo-pass"
  role: "auditor"
`)

	cfg, err := LoadBackend(path)
	if err != nil {
		t.Fatalf("LoadBackend() error = %v", err)
	}
	if cfg.Listen != "0.0.0.0:9000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.Auth.TokenLifetime != time.Hour {
		t.Errorf("TokenLifetime = %v", cfg.Auth.TokenLifetime)
	}
	if cfg.DemoUser.Email != "demo@example.com" || cfg.DemoUser.Role != "auditor" {
		t.Errorf("DemoUser = %+v", cfg.DemoUser)
	}
}

func TestBackendValidate(t *testing.T) {
	cfg := DefaultBackend()
	cfg.Auth.JWTSecret = "short"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("Validate() error = %v, want jwt_secret error", err)
	}

	cfg.Auth.JWTSecret = strings.Repeat("k", 32)
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if cfg.Auth.TokenLifetime != 7*24*time.Hour {
		t.Errorf("default TokenLifetime = %v, want 7 days", cfg.Auth.TokenLifetime)
	}
}
