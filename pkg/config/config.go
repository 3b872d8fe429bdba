package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Parley configuration.
type Config struct {
	Listen     string           `yaml:"listen"`
	DBPath     string           `yaml:"db_path"`
	LogLevel   string           `yaml:"log_level"`
	Providers  []ProviderConfig `yaml:"providers"`
	Completion CompletionConfig `yaml:"completion"`
	Audit      AuditConfig      `yaml:"audit"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ProviderConfig defines an OpenAI-compatible upstream LLM provider.
// Providers are tried in the order they are listed.
type ProviderConfig struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// CompletionConfig bounds a single upstream completion attempt.
type CompletionConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// AuditConfig selects the audit store backend.
// Driver is "sqlite" (default), "postgres" or "memory".
type AuditConfig struct {
	Driver       string        `yaml:"driver"`
	DBPath       string        `yaml:"db_path"`
	DatabaseURL  string        `yaml:"database_url"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// MetricsConfig controls Prometheus instrument naming.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:   ":8080",
		DBPath:   "parley.db",
		LogLevel: "info",
		Completion: CompletionConfig{
			Timeout: 60 * time.Second,
		},
		Audit: AuditConfig{
			Driver:       "sqlite",
			DBPath:       "parley_audit.db",
			WriteTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Namespace: "parley",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Audit.Driver {
	case "", "sqlite", "memory":
	case "postgres":
		if c.Audit.DatabaseURL == "" {
			return fmt.Errorf("audit: postgres driver requires database_url")
		}
	default:
		return fmt.Errorf("audit: unknown driver %q", c.Audit.Driver)
	}

	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.Completion.Timeout <= 0 {
		return fmt.Errorf("completion: timeout must be positive, got %v", c.Completion.Timeout)
	}
	if c.Audit.WriteTimeout <= 0 {
		return fmt.Errorf("audit: write_timeout must be positive, got %v", c.Audit.WriteTimeout)
	}

	for i, p := range c.Providers {
		if p.URL == "" {
			return fmt.Errorf("providers[%d] %q: url is required", i, p.Name)
		}
	}
	return nil
}

// SlogLevel maps log_level to a slog.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level: unknown level %q", c.LogLevel)
	}
}
