// Package server configures the status HTTP server.
package server

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Server defaults
const (
	DefaultAddress      = ":8080"
	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// Config represents the status server configuration.
type Config struct {
	Enabled      bool          `yaml:"enabled"`
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// New creates a server configuration with default values.
func New() *Config {
	return &Config{
		Address:      DefaultAddress,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// LoadFromViper reads the "server" section over the defaults.
func LoadFromViper(v *viper.Viper) *Config {
	cfg := New()
	if v.IsSet("server.enabled") {
		cfg.Enabled = v.GetBool("server.enabled")
	}
	if v.IsSet("server.address") {
		cfg.Address = v.GetString("server.address")
	}
	if v.IsSet("server.read_timeout") {
		cfg.ReadTimeout = v.GetDuration("server.read_timeout")
	}
	if v.IsSet("server.write_timeout") {
		cfg.WriteTimeout = v.GetDuration("server.write_timeout")
	}
	return cfg
}

// Validate validates the server configuration.
func (c *Config) Validate() error {
	if c.Enabled && c.Address == "" {
		return errors.New("server address required when enabled")
	}
	return nil
}
