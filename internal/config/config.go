// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/threadline/threadline-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete threadline configuration.
type Config struct {
	Version string `toml:"version"`

	// Server configuration (serve mode).
	Server ServerConfig `toml:"server"`

	// Model backend (Ollama) configuration.
	Model ModelConfig `toml:"model"`

	// Client configuration (TUI talking to the server).
	Client ClientConfig `toml:"client"`

	// UI configuration.
	UI UIConfig `toml:"ui"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Port is the TCP port the server listens on.
	Port int `toml:"port"`
	// DatabasePath is the sqlite database file. Empty means
	// ~/.threadline/threads.db.
	DatabasePath string `toml:"database_path"`
}

// ModelConfig contains model backend settings.
type ModelConfig struct {
	// OllamaURL is the URL of the Ollama server.
	OllamaURL string `toml:"ollama_url"`
	// Name is the model used to generate responses.
	Name string `toml:"name"`
	// TimeoutSecs bounds non-streaming backend requests.
	TimeoutSecs int `toml:"timeout_secs"`
}

// ClientConfig contains settings for the TUI's connection to the server.
type ClientConfig struct {
	// ServerURL is the base URL of the threadline server.
	ServerURL string `toml:"server_url"`
	// TimeoutSecs bounds non-streaming requests.
	TimeoutSecs int `toml:"timeout_secs"`
}

// UIConfig contains UI settings.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto".
	Theme string `toml:"theme"`
	// CompactMode uses a more compact layout.
	CompactMode bool `toml:"compact_mode"`
	// ShowSidebar shows the thread sidebar on startup.
	ShowSidebar bool `toml:"show_sidebar"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Server: ServerConfig{
			Port: 8600,
		},

		Model: ModelConfig{
			OllamaURL:   "http://127.0.0.1:11434",
			Name:        "qwen2.5:7b",
			TimeoutSecs: 30,
		},

		Client: ClientConfig{
			ServerURL:   "http://127.0.0.1:8600",
			TimeoutSecs: 30,
		},

		UI: UIConfig{
			Theme:       "dark",
			ShowSidebar: true,
		},
	}
}

// =============================================================================
// PATH HELPERS
// =============================================================================

// Dir returns the threadline configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".threadline"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultDatabasePath returns the default sqlite database path.
func DefaultDatabasePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "threads.db"), nil
}

// ResolveDatabasePath returns the configured database path, falling back to
// DefaultDatabasePath when database_path is unset. An empty path must never
// reach the store: sqlite would open a private temporary database and every
// thread would vanish on restart.
func (c *Config) ResolveDatabasePath() (string, error) {
	if c.Server.DatabasePath != "" {
		return c.Server.DatabasePath, nil
	}
	return DefaultDatabasePath()
}

// EnsureDir ensures the config directory exists.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load loads configuration from the default config file, falling back to
// defaults when no file exists. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file with defaults
// backfilled, environment overrides applied, and validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	fillDefaults(cfg)
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}

	if cfg.Model.OllamaURL == "" {
		cfg.Model.OllamaURL = defaults.Model.OllamaURL
	}
	if cfg.Model.Name == "" {
		cfg.Model.Name = defaults.Model.Name
	}
	if cfg.Model.TimeoutSecs == 0 {
		cfg.Model.TimeoutSecs = defaults.Model.TimeoutSecs
	}

	if cfg.Client.ServerURL == "" {
		cfg.Client.ServerURL = defaults.Client.ServerURL
	}
	if cfg.Client.TimeoutSecs == 0 {
		cfg.Client.TimeoutSecs = defaults.Client.TimeoutSecs
	}

	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
}

// Save saves the configuration to the default TOML file. The file is created
// with owner-only permissions.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath saves the configuration to the given TOML file. The write is
// atomic so a crash mid-save never leaves a corrupt config behind.
func SaveToPath(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# threadline configuration file\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("must be 1-65535, got %d", c.Server.Port),
		}
	}

	if _, err := url.Parse(c.Model.OllamaURL); err != nil {
		return ValidationError{
			Field:   "model.ollama_url",
			Message: fmt.Sprintf("invalid URL: %v", err),
		}
	}
	if c.Model.TimeoutSecs < 0 {
		return ValidationError{
			Field:   "model.timeout_secs",
			Message: "must be non-negative",
		}
	}

	if _, err := url.Parse(c.Client.ServerURL); err != nil {
		return ValidationError{
			Field:   "client.server_url",
			Message: fmt.Sprintf("invalid URL: %v", err),
		}
	}
	if c.Client.TimeoutSecs < 0 {
		return ValidationError{
			Field:   "client.timeout_secs",
			Message: "must be non-negative",
		}
	}

	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		return ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		}
	}

	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - THREADLINE_PORT: overrides server.port
//   - THREADLINE_DB: overrides server.database_path
//   - THREADLINE_OLLAMA_URL: overrides model.ollama_url
//   - THREADLINE_MODEL: overrides model.name
//   - THREADLINE_SERVER_URL: overrides client.server_url
//   - THREADLINE_THEME: overrides ui.theme
func (c *Config) ApplyEnvOverrides() {
	if port := os.Getenv("THREADLINE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if db := os.Getenv("THREADLINE_DB"); db != "" {
		c.Server.DatabasePath = db
	}

	if ollamaURL := os.Getenv("THREADLINE_OLLAMA_URL"); ollamaURL != "" {
		c.Model.OllamaURL = ollamaURL
	}

	if model := os.Getenv("THREADLINE_MODEL"); model != "" {
		c.Model.Name = model
	}

	if serverURL := os.Getenv("THREADLINE_SERVER_URL"); serverURL != "" {
		c.Client.ServerURL = serverURL
	}

	if theme := os.Getenv("THREADLINE_THEME"); theme != "" {
		c.UI.Theme = theme
	}
}
