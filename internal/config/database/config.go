// Package database holds the Postgres connection and table settings.
package database

import (
	"errors"

	"github.com/spf13/viper"
)

// Default configuration values
const (
	DefaultHost        = "localhost"
	DefaultPort        = "5432"
	DefaultSSLMode     = "disable"
	DefaultSchema      = "data"
	DefaultAdvtTable   = "advt"
	DefaultImagesTable = "images"
	DefaultPhonesTable = "phones"
)

// Config represents the database configuration.
type Config struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	// Schema is put first on the search path of every write.
	Schema      string `yaml:"schema"`
	AdvtTable   string `yaml:"advt_table"`
	ImagesTable string `yaml:"images_table"`
	PhonesTable string `yaml:"phones_table"`
}

// New creates a database configuration with default values.
func New() *Config {
	return &Config{
		Host:        DefaultHost,
		Port:        DefaultPort,
		SSLMode:     DefaultSSLMode,
		Schema:      DefaultSchema,
		AdvtTable:   DefaultAdvtTable,
		ImagesTable: DefaultImagesTable,
		PhonesTable: DefaultPhonesTable,
	}
}

// LoadFromViper reads the "database" section over the defaults.
func LoadFromViper(v *viper.Viper) *Config {
	cfg := New()
	fields := map[string]*string{
		"database.host":         &cfg.Host,
		"database.port":         &cfg.Port,
		"database.user":         &cfg.User,
		"database.password":     &cfg.Password,
		"database.dbname":       &cfg.DBName,
		"database.sslmode":      &cfg.SSLMode,
		"database.schema":       &cfg.Schema,
		"database.advt_table":   &cfg.AdvtTable,
		"database.images_table": &cfg.ImagesTable,
		"database.phones_table": &cfg.PhonesTable,
	}
	for key, dst := range fields {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	return cfg
}

// Validate validates the database configuration.
func (c *Config) Validate() error {
	switch {
	case c.Host == "":
		return errors.New("database host is required")
	case c.Port == "":
		return errors.New("database port is required")
	case c.User == "":
		return errors.New("database user is required")
	case c.DBName == "":
		return errors.New("database dbname is required")
	case c.Schema == "":
		return errors.New("database schema is required")
	case c.AdvtTable == "" || c.ImagesTable == "" || c.PhonesTable == "":
		return errors.New("database table names are required")
	}
	return nil
}
