// Package config loads the optional YAML configuration shared by the
// broker host binary and the standalone CLI: the rendezvous pipe
// directory override, read/write timeout defaults, and log level.
//
// Configuration is loaded from a single file specified by:
//   - the MUMBLE_JSON_BRIDGE_CONFIG environment variable, or
//   - a --config flag passed to the command
//
// There are no fallbacks or automatic discovery beyond that, matching
// the deterministic, auditable configuration stance the rest of the
// retrieval pack's config loaders take.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the shared broker/CLI configuration.
type Config struct {
	// PipeDir overrides the directory (POSIX) or namespace root
	// (Windows) the rendezvous and reply pipes are created under.
	// Empty means use the platform default (pipe.DefaultDir()).
	PipeDir string `yaml:"pipe_dir"`

	// ReadTimeoutMS is the default millisecond timeout for reply reads.
	ReadTimeoutMS int `yaml:"read_timeout_ms"`

	// WriteTimeoutMS is the default millisecond timeout for request/reply writes.
	WriteTimeoutMS int `yaml:"write_timeout_ms"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is loaded.
func Default() *Config {
	return &Config{
		ReadTimeoutMS:  1000,
		WriteTimeoutMS: 100,
		LogLevel:       "info",
	}
}

// EnvVar is the environment variable Load consults when no explicit
// path is given.
const EnvVar = "MUMBLE_JSON_BRIDGE_CONFIG"

// Load loads configuration from the path named by the --config flag
// value (explicitPath), falling back to the MUMBLE_JSON_BRIDGE_CONFIG
// environment variable. If neither is set, Load returns Default() with
// no error: an absent config file is not itself a failure, unlike an
// explicitly-named one that cannot be read.
func Load(explicitPath string) (*Config, error) {
	path := explicitPath
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, starting from
// Default() and merging in whatever fields the file sets.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
