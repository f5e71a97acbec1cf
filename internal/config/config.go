// Package config provides configuration loading and validation for the
// service and the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// defaultPort is where the HTTP server listens when nothing else is set.
const defaultPort = 8080

// Config represents the service configuration that can be loaded from a JSON
// file. All fields are optional; missing values use defaults, environment
// variables, or must be provided via CLI flags.
type Config struct {
	// Server
	Port int `json:"port,omitempty"` // HTTP listen port

	// Storage
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL

	// Model access
	APIKey        string `json:"api_key,omitempty"`        // Gemini API key
	ModelLite     string `json:"model_lite,omitempty"`     // Override for the lite tier
	ModelStandard string `json:"model_standard,omitempty"` // Override for the standard tier
	ModelAdvanced string `json:"model_advanced,omitempty"` // Override for the advanced tier

	// Behavior
	Verbose bool `json:"verbose,omitempty"` // Print detailed debug information
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// FromEnv builds a Config out of environment variables alone.
func FromEnv() *Config {
	cfg := &Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		APIKey:        os.Getenv("GEMINI_API_KEY"),
		ModelLite:     os.Getenv("SCREENFLOW_MODEL_LITE"),
		ModelStandard: os.Getenv("SCREENFLOW_MODEL_STANDARD"),
		ModelAdvanced: os.Getenv("SCREENFLOW_MODEL_ADVANCED"),
	}
	if p := os.Getenv("PORT"); p != "" {
		if port, err := strconv.Atoi(p); err == nil {
			cfg.Port = port
		}
	}
	return cfg
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be in 0-65535, got %d", c.Port)
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from
// defaults. This is used to apply config file values as defaults for CLI
// flags and environment variables.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.ModelLite == "" {
		result.ModelLite = defaults.ModelLite
	}
	if result.ModelStandard == "" {
		result.ModelStandard = defaults.ModelStandard
	}
	if result.ModelAdvanced == "" {
		result.ModelAdvanced = defaults.ModelAdvanced
	}

	if result.Port == 0 {
		if defaults.Port > 0 {
			result.Port = defaults.Port
		} else {
			result.Port = defaultPort
		}
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}
