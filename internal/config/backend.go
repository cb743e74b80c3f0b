// ABOUTME: Configuration for the reference CompliAI backend server
// ABOUTME: Listen address, JWT signing settings and the seeded demo account

package config

import (
	"fmt"
	"os"
	"time"
)

// BackendConfig configures cmd/compliai-backend.
type BackendConfig struct {
	Listen   string         `yaml:"listen" toml:"listen"`
	Auth     BackendAuth    `yaml:"auth" toml:"auth"`
	DemoUser DemoUserConfig `yaml:"demo_user" toml:"demo_user"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// BackendAuth holds token signing settings
type BackendAuth struct {
	JWTSecret     string        `yaml:"jwt_secret" toml:"jwt_secret"`
	TokenLifetime time.Duration `yaml:"-" toml:"-"`

	TokenLifetimeRaw string `yaml:"token_lifetime" toml:"token_lifetime"`
}

// DemoUserConfig is an account created at startup. Empty Email disables it.
type DemoUserConfig struct {
	Email       string   `yaml:"email" toml:"email"`
	Password    string   `yaml:"password" toml:"password"`
	FullName    string   `yaml:"full_name" toml:"full_name"`
	Role        string   `yaml:"role" toml:"role"`
	Department  string   `yaml:"department" toml:"department"`
	Permissions []string `yaml:"permissions" toml:"permissions"`
}

// DefaultBackend returns the backend defaults. The JWT secret comes from
// COMPLIAI_JWT_SECRET when set.
func DefaultBackend() *BackendConfig {
	return &BackendConfig{
		Listen: "127.0.0.1:8000",
		Auth: BackendAuth{
			JWTSecret:        os.Getenv("COMPLIAI_JWT_SECRET"),
			TokenLifetime:    7 * 24 * time.Hour,
			TokenLifetimeRaw: "168h",
		},
		DemoUser: DemoUserConfig{
			Email:       "admin@compliai.com",
			Password:    "admin123",
			FullName:    "Admin User",
			Role:        "admin",
			Department:  "IT Security",
			Permissions: []string{"chat_access", "document_upload", "user_management"},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// LoadBackend reads a backend config file over DefaultBackend.
func LoadBackend(path string) (*BackendConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultBackend()
	if err := decode(path, expandEnvVars(string(data)), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Auth.TokenLifetimeRaw != "" {
		cfg.Auth.TokenLifetime, err = time.ParseDuration(cfg.Auth.TokenLifetimeRaw)
		if err != nil {
			return nil, fmt.Errorf("parsing auth.token_lifetime %q: %w", cfg.Auth.TokenLifetimeRaw, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required backend fields are present and valid.
func (c *BackendConfig) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes (set COMPLIAI_JWT_SECRET)")
	}
	if c.Auth.TokenLifetime <= 0 {
		return fmt.Errorf("auth.token_lifetime must be positive")
	}
	if c.DemoUser.Email != "" && c.DemoUser.Password == "" {
		return fmt.Errorf("demo_user.password is required when demo_user.email is set")
	}
	return c.Logging.Validate()
}
