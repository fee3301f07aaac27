// Package config holds engine configuration loaded from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edurail/quotaguard/internal/store/postgres"
)

// Config is the engine's host-process configuration.
type Config struct {
	// DefaultBufferPercent is the tolerance band applied to organizations
	// without their own buffer configuration. Default: 0.20
	DefaultBufferPercent float64 `yaml:"default_buffer_percent"`

	// LockTimeout bounds the organization row-lock wait when the caller
	// supplies no deadline of its own. Default: 5s
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// Database configures the PostgreSQL connection pool.
	Database DatabaseConfig `yaml:"database"`
}

// DatabaseConfig mirrors the pool settings in YAML form.
type DatabaseConfig struct {
	ConnString        string `yaml:"conn_string"`
	MaxConns          int32  `yaml:"max_conns"`
	MinConns          int32  `yaml:"min_conns"`
	MaxConnLifetime   int32  `yaml:"max_conn_lifetime_seconds"`
	MaxConnIdleTime   int32  `yaml:"max_conn_idle_time_seconds"`
	HealthCheckPeriod int32  `yaml:"health_check_period_seconds"`
	ConnectTimeout    int32  `yaml:"connect_timeout_seconds"`
	AutoMigrate       bool   `yaml:"auto_migrate"`
}

// PoolConfig converts the YAML form to the store's pool configuration.
func (d *DatabaseConfig) PoolConfig() *postgres.PoolConfig {
	return &postgres.PoolConfig{
		ConnString:        d.ConnString,
		MaxConns:          d.MaxConns,
		MinConns:          d.MinConns,
		MaxConnLifetime:   d.MaxConnLifetime,
		MaxConnIdleTime:   d.MaxConnIdleTime,
		HealthCheckPeriod: d.HealthCheckPeriod,
		ConnectTimeout:    d.ConnectTimeout,
		AutoMigrate:       d.AutoMigrate,
	}
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.DefaultBufferPercent == 0 {
		c.DefaultBufferPercent = 0.20
	}
	if c.LockTimeout == 0 {
		c.LockTimeout = 5 * time.Second
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.DefaultBufferPercent < 0 {
		return fmt.Errorf("default buffer percent must be non-negative, got %v", c.DefaultBufferPercent)
	}
	if c.LockTimeout < 0 {
		return fmt.Errorf("lock timeout must be non-negative, got %v", c.LockTimeout)
	}
	if c.Database.ConnString == "" {
		return fmt.Errorf("database conn_string is required")
	}
	return nil
}

// Parse parses a YAML config document, applies defaults, and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads, parses, and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}
