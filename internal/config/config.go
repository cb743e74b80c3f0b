// ABOUTME: Configuration loading and parsing for the compliai client
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that overrides the config path.
const EnvConfigPath = "COMPLIAI_CONFIG"

// Cache drivers.
const (
	DriverSQLite  = "sqlite"  // modernc.org/sqlite, pure Go
	DriverSQLite3 = "sqlite3" // mattn/go-sqlite3, cgo
	DriverMemory  = "memory"
)

// Config represents the complete client configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Session SessionConfig `yaml:"session" toml:"session"`
	Cache   CacheConfig   `yaml:"cache" toml:"cache"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the backend connection settings
type ServerConfig struct {
	URL     string        `yaml:"url" toml:"url"`
	Timeout time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// SessionConfig holds session lifecycle settings
type SessionConfig struct {
	ValidationInterval time.Duration `yaml:"-" toml:"-"`

	ValidationIntervalRaw string `yaml:"validation_interval" toml:"validation_interval"`
}

// CacheConfig selects the persisted cache backend
type CacheConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:        "http://localhost:8000",
			Timeout:    30 * time.Second,
			TimeoutRaw: "30s",
		},
		Session: SessionConfig{
			ValidationInterval:    5 * time.Minute,
			ValidationIntervalRaw: "5m",
		},
		Cache: CacheConfig{
			Driver: DriverSQLite,
			Path:   DefaultCachePath(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// The format follows the extension: .toml is TOML, anything else YAML.
// Keys missing from the file keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := decode(path, expandEnvVars(string(data)), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func decode(path, content string, v any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err := toml.Decode(content, v)
		return err
	default:
		return yaml.Unmarshal([]byte(content), v)
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ResolvePath returns the config path to use: $COMPLIAI_CONFIG, then
// $XDG_CONFIG_HOME/compliai/client.yaml, then ~/.config/compliai/client.yaml.
func ResolvePath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "compliai", "client.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "compliai", "client.yaml")
	}
	return filepath.Join(home, ".config", "compliai", "client.yaml")
}

// DefaultCachePath is $XDG_DATA_HOME/compliai/cache.db, or
// ~/.local/share/compliai/cache.db when XDG_DATA_HOME is unset.
func DefaultCachePath() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "compliai", "cache.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "compliai-cache.db"
	}
	return filepath.Join(home, ".local", "share", "compliai", "cache.db")
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server.url must be an http(s) URL, got %q", c.Server.URL)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive")
	}
	if c.Session.ValidationInterval <= 0 {
		return fmt.Errorf("session.validation_interval must be positive")
	}

	switch c.Cache.Driver {
	case DriverSQLite, DriverSQLite3:
		if c.Cache.Path == "" {
			return fmt.Errorf("cache.path is required for driver %q", c.Cache.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("cache.driver must be one of sqlite, sqlite3, memory; got %q", c.Cache.Driver)
	}

	if err := c.Logging.Validate(); err != nil {
		return err
	}
	return nil
}

// Validate checks the logging level and format.
func (l LoggingConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error; got %q", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json; got %q", l.Format)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Server.TimeoutRaw != "" {
		cfg.Server.Timeout, err = time.ParseDuration(cfg.Server.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing server.timeout %q: %w", cfg.Server.TimeoutRaw, err)
		}
	}

	if cfg.Session.ValidationIntervalRaw != "" {
		cfg.Session.ValidationInterval, err = time.ParseDuration(cfg.Session.ValidationIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing session.validation_interval %q: %w", cfg.Session.ValidationIntervalRaw, err)
		}
	}

	return nil
}
