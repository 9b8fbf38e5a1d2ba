// Package elasticsearch configures the optional advertisement mirror index.
package elasticsearch

import (
	"errors"

	"github.com/spf13/viper"
)

// DefaultIndex is the index advertisements are mirrored into.
const DefaultIndex = "nmls_advt"

// Config represents the Elasticsearch mirror configuration.
type Config struct {
	Enabled   bool     `yaml:"enabled"`
	Addresses []string `yaml:"addresses"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	Index     string   `yaml:"index"`
}

// New creates an Elasticsearch configuration with default values.
func New() *Config {
	return &Config{
		Addresses: []string{"http://localhost:9200"},
		Index:     DefaultIndex,
	}
}

// LoadFromViper reads the "elasticsearch" section over the defaults.
func LoadFromViper(v *viper.Viper) *Config {
	cfg := New()
	if v.IsSet("elasticsearch.enabled") {
		cfg.Enabled = v.GetBool("elasticsearch.enabled")
	}
	if v.IsSet("elasticsearch.addresses") {
		cfg.Addresses = v.GetStringSlice("elasticsearch.addresses")
	}
	if v.IsSet("elasticsearch.username") {
		cfg.Username = v.GetString("elasticsearch.username")
	}
	if v.IsSet("elasticsearch.password") {
		cfg.Password = v.GetString("elasticsearch.password")
	}
	if v.IsSet("elasticsearch.index") {
		cfg.Index = v.GetString("elasticsearch.index")
	}
	return cfg
}

// Validate validates the Elasticsearch configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Addresses) == 0 {
		return errors.New("elasticsearch addresses required when enabled")
	}
	if c.Index == "" {
		return errors.New("elasticsearch index required when enabled")
	}
	return nil
}
