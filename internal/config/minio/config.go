// Package minio provides MinIO configuration for HTML archiving.
package minio

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

const defaultUploadTimeout = 30 * time.Second

// Config represents MinIO configuration for HTML archiving.
type Config struct {
	// Enabled toggles HTML archiving on/off
	Enabled bool `yaml:"enabled"`
	// Endpoint is the MinIO server address (e.g., "minio:9000")
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	// Bucket receives one object per archived detail page
	Bucket string `yaml:"bucket"`
	// UploadTimeout bounds a single upload
	UploadTimeout time.Duration `yaml:"upload_timeout"`
	// FailSilently continues crawling even if archiving fails
	FailSilently bool `yaml:"fail_silently"`
}

// NewConfig returns a new MinIO configuration with default values.
func NewConfig() *Config {
	return &Config{
		Endpoint:      "localhost:9000",
		Bucket:        "nmls-html",
		UploadTimeout: defaultUploadTimeout,
		FailSilently:  true,
	}
}

// LoadFromViper loads MinIO configuration from Viper.
func LoadFromViper(v *viper.Viper) *Config {
	cfg := NewConfig()

	if v.IsSet("minio.enabled") {
		cfg.Enabled = v.GetBool("minio.enabled")
	}
	if v.IsSet("minio.endpoint") {
		cfg.Endpoint = v.GetString("minio.endpoint")
	}
	if v.IsSet("minio.access_key") {
		cfg.AccessKey = v.GetString("minio.access_key")
	}
	if v.IsSet("minio.secret_key") {
		cfg.SecretKey = v.GetString("minio.secret_key")
	}
	if v.IsSet("minio.use_ssl") {
		cfg.UseSSL = v.GetBool("minio.use_ssl")
	}
	if v.IsSet("minio.bucket") {
		cfg.Bucket = v.GetString("minio.bucket")
	}
	if v.IsSet("minio.upload_timeout") {
		cfg.UploadTimeout = v.GetDuration("minio.upload_timeout")
	}
	if v.IsSet("minio.fail_silently") {
		cfg.FailSilently = v.GetBool("minio.fail_silently")
	}

	return cfg
}

// Validate validates the MinIO configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return errors.New("minio endpoint required when enabled")
	}
	if c.AccessKey == "" {
		return errors.New("minio access_key required when enabled")
	}
	if c.SecretKey == "" {
		return errors.New("minio secret_key required when enabled")
	}
	if c.Bucket == "" {
		return errors.New("minio bucket required when enabled")
	}
	if c.UploadTimeout <= 0 {
		return errors.New("minio upload_timeout must be greater than 0")
	}
	return nil
}
