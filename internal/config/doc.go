// Package config handles configuration loading for compliai.
//
// # Overview
//
// The client reads a YAML or TOML file (chosen by extension) with
// environment variable expansion. Keys missing from the file keep the
// values from Default, and a missing file means Default altogether.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COMPLIAI_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/compliai/client.yaml
//  3. ~/.config/compliai/client.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	cache:
//	  path: "${XDG_DATA_HOME}/compliai/cache.db"
//
// Unset variables expand to empty strings.
//
// # Example
//
//	server:
//	  url: "http://localhost:8000"
//	  timeout: "30s"
//	session:
//	  validation_interval: "5m"
//	cache:
//	  driver: "sqlite"     # sqlite | sqlite3 | memory
//	  path: "/home/me/.local/share/compliai/cache.db"
//	logging:
//	  level: "info"
//	  format: "text"       # text | json
//
// # Backend
//
// BackendConfig configures the reference backend server: listen address,
// JWT secret and lifetime, and a demo account seeded at startup.
package config
