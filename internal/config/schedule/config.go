// Package schedule configures periodic crawl runs.
package schedule

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// DefaultCron runs one crawl per day.
const DefaultCron = "@daily"

// Config represents the schedule configuration.
type Config struct {
	Cron string `yaml:"cron"`
}

// New creates a schedule configuration with default values.
func New() *Config {
	return &Config{Cron: DefaultCron}
}

// LoadFromViper reads the "schedule" section over the defaults.
func LoadFromViper(v *viper.Viper) *Config {
	cfg := New()
	if v.IsSet("schedule.cron") {
		cfg.Cron = v.GetString("schedule.cron")
	}
	return cfg
}

// Validate checks that Cron parses as a standard cron spec or descriptor.
func (c *Config) Validate() error {
	if _, err := cron.ParseStandard(c.Cron); err != nil {
		return fmt.Errorf("invalid schedule cron %q: %w", c.Cron, err)
	}
	return nil
}
