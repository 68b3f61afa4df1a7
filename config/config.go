// Package config loads the monarch host configuration.
//
// Config is stored at $XDG_CONFIG_HOME/monarch/config.yaml (defaults to
// ~/.config/monarch/config.yaml). Every field is optional; command-line
// flags override what the file sets.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"monarch"
	"monarch/internal/logging"

	"gopkg.in/yaml.v3"
)

const DefaultID = "dev.monarch.demo"

// Send tunes how a secondary launch reaches the primary.
type Send struct {
	Attempts        int           `yaml:"attempts,omitempty"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout,omitempty"`
	RetryDelay      time.Duration `yaml:"retry_delay,omitempty"`
	RedirectTimeout time.Duration `yaml:"redirect_timeout,omitempty"`
}

// Receive tunes the primary's activation receiver.
type Receive struct {
	ReadTimeout time.Duration `yaml:"read_timeout,omitempty"`
}

// Config is the host configuration.
type Config struct {
	ID          string  `yaml:"id,omitempty"`
	LogLevel    string  `yaml:"log_level,omitempty"`
	RuntimeDir  string  `yaml:"runtime_dir,omitempty"` // sockets and lock files
	JournalPath string  `yaml:"journal_path,omitempty"`
	Health      bool    `yaml:"health"`
	Send        Send    `yaml:"send,omitempty"`
	Receive     Receive `yaml:"receive,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		ID:       DefaultID,
		LogLevel: "info",
		Health:   true,
		Send: Send{
			Attempts:        5,
			ConnectTimeout:  1 * time.Second,
			RetryDelay:      100 * time.Millisecond,
			RedirectTimeout: 5 * time.Second,
		},
		Receive: Receive{ReadTimeout: 10 * time.Second},
	}
}

// Path returns the config file location. It respects XDG_CONFIG_HOME,
// falling back to ~/.config/monarch/config.yaml.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "monarch", "config.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "monarch", "config.yaml")
}

// Load reads the config file at path, or Path() when path is empty. If the
// file does not exist, defaults are returned (not an error). Fields the
// file omits keep their defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to path, creating directories as needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = Path()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Identity parses the configured instance identity.
func (c *Config) Identity() (monarch.Identity, error) {
	return monarch.ParseIdentity(c.ID)
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Identity(); err != nil {
		errs = append(errs, fmt.Errorf("id: %w", err))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.Send.Attempts <= 0 {
		errs = append(errs, fmt.Errorf("send.attempts must be positive, got %d", c.Send.Attempts))
	}
	for name, d := range map[string]time.Duration{
		"send.connect_timeout":  c.Send.ConnectTimeout,
		"send.retry_delay":      c.Send.RetryDelay,
		"send.redirect_timeout": c.Send.RedirectTimeout,
		"receive.read_timeout":  c.Receive.ReadTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	return errors.Join(errs...)
}
