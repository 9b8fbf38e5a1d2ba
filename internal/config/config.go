// Package config assembles the per-concern configuration of the crawler
// from a viper instance (config file, .env and environment).
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/jonesrussell/nmls-crawler/internal/config/crawler"
	"github.com/jonesrussell/nmls-crawler/internal/config/database"
	"github.com/jonesrussell/nmls-crawler/internal/config/elasticsearch"
	"github.com/jonesrussell/nmls-crawler/internal/config/minio"
	"github.com/jonesrussell/nmls-crawler/internal/config/schedule"
	"github.com/jonesrussell/nmls-crawler/internal/config/server"
	"github.com/jonesrussell/nmls-crawler/internal/logger"
)

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the application configuration.
type Config struct {
	Crawler       *crawler.Config       `yaml:"crawler"`
	Database      *database.Config      `yaml:"database"`
	Logger        *logger.Config        `yaml:"logger"`
	MinIO         *minio.Config         `yaml:"minio"`
	Elasticsearch *elasticsearch.Config `yaml:"elasticsearch"`
	Server        *server.Config        `yaml:"server"`
	Schedule      *schedule.Config      `yaml:"schedule"`
}

// Load builds the configuration from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Crawler:       crawler.LoadFromViper(v),
		Database:      database.LoadFromViper(v),
		Logger:        loggerFromViper(v),
		MinIO:         minio.LoadFromViper(v),
		Elasticsearch: elasticsearch.LoadFromViper(v),
		Server:        server.LoadFromViper(v),
		Schedule:      schedule.LoadFromViper(v),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates every section.
func (c *Config) Validate() error {
	sections := []struct {
		name     string
		validate func() error
	}{
		{"crawler", c.Crawler.Validate},
		{"database", c.Database.Validate},
		{"minio", c.MinIO.Validate},
		{"elasticsearch", c.Elasticsearch.Validate},
		{"server", c.Server.Validate},
		{"schedule", c.Schedule.Validate},
	}
	for _, s := range sections {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalid, s.name, err)
		}
	}
	return nil
}

// SetupViper points v at config.yaml in the usual places and enables
// environment overrides such as DATABASE_HOST for database.host.
func SetupViper(v *viper.Viper, cfgFile string) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
}

// ReadFile reads the config file if one exists. A missing file is not an
// error; defaults and the environment still apply.
func ReadFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func loggerFromViper(v *viper.Viper) *logger.Config {
	cfg := &logger.Config{
		Level:       logger.Level(strings.ToLower(v.GetString("logger.level"))),
		Encoding:    v.GetString("logger.encoding"),
		Development: v.GetBool("logger.development"),
		OutputPaths: v.GetStringSlice("logger.output_paths"),
	}
	if lvl := v.GetString("LOG_LEVEL"); lvl != "" && !v.IsSet("logger.level") {
		cfg.Level = logger.Level(strings.ToLower(lvl))
	}
	cfg.SetDefaults()
	return cfg
}
