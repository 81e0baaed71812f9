// Package config loads server configuration from a TOML or YAML file with
// QUILL_-prefixed environment overrides, and can watch the file for live
// reload.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// envPrefix namespaces the environment overrides.
const envPrefix = "QUILL_"

// Config holds the server settings.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level" yaml:"log_level"`

	// MaxMessageBytes bounds the frame buffer: the largest header+body
	// frame the server will accept.
	MaxMessageBytes int `toml:"max_message_bytes" yaml:"max_message_bytes"`

	// IdleTimeoutMS is the event-loop wait bound in milliseconds; idle work
	// runs once per elapsed timeout with no input.
	IdleTimeoutMS int `toml:"idle_timeout_ms" yaml:"idle_timeout_ms"`

	// ScriptDir points at a directory of Lua handler scripts loaded at
	// startup. Empty disables scripting.
	ScriptDir string `toml:"script_dir" yaml:"script_dir"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LogLevel:        "info",
		MaxMessageBytes: 8 << 20,
		IdleTimeoutMS:   200,
	}
}

// Load reads configuration from path, falling back to defaults when the
// path is empty or the file does not exist, then applies environment
// overrides. The format is chosen by extension: .toml, .yaml or .yml.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Missing config file is not an error.
		case err != nil:
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := unmarshal(path, data, cfg); err != nil {
				return nil, err
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// unmarshal parses data into cfg according to the file extension.
func unmarshal(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format: %s", path)
	}
	return nil
}

// applyEnv overrides file values from QUILL_* environment variables.
// An empty value is still a value; only unset variables are skipped.
func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv(envPrefix + "LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv(envPrefix + "SCRIPT_DIR"); ok {
		cfg.ScriptDir = v
	}
	if v, ok := os.LookupEnv(envPrefix + "MAX_MESSAGE_BYTES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxMessageBytes = n
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "IDLE_TIMEOUT_MS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.IdleTimeoutMS = n
		}
	}
}

// validate rejects values the server cannot run with.
func (c *Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("max_message_bytes must be positive, got %d", c.MaxMessageBytes)
	}
	if c.IdleTimeoutMS <= 0 {
		return fmt.Errorf("idle_timeout_ms must be positive, got %d", c.IdleTimeoutMS)
	}
	return nil
}
