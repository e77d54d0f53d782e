// Package config resolves the forwarder configuration from defaults, an
// optional YAML file, and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	defaultBatchSize           = 500
	defaultPollIntervalSeconds = 5

	defaultPostgresHost     = "postgres"
	defaultPostgresPort     = 5432
	defaultPostgresDatabase = "edge_db"
	defaultPostgresUser     = "postgres"

	defaultClickHouseHost     = "clickhouse"
	defaultClickHousePort     = 9000
	defaultClickHouseDatabase = "radius_analytics"
	defaultClickHouseUser     = "radius"
)

// StoreConfig is the connection configuration for one of the two stores.
type StoreConfig struct {
	Host     string   `env:"HOST" yaml:"host"`
	Port     int      `env:"PORT" yaml:"port"`
	Database string   `env:"DB" yaml:"db"`
	User     string   `env:"USER" yaml:"user"`
	Password Password `env:"PASSWORD" yaml:"password"`
}

func (s *StoreConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *StoreConfig) check(name string) error {
	if len(s.Host) == 0 {
		return fmt.Errorf("undefined %s host", name)
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("%s port out of range, got %d", name, s.Port)
	}
	if len(s.Database) == 0 {
		return fmt.Errorf("undefined %s database name", name)
	}
	if len(s.User) == 0 {
		return fmt.Errorf("undefined %s user", name)
	}
	return nil
}

// Config is the full forwarder configuration. The environment is the primary
// interface; the YAML file exists for deployments that mount configuration.
type Config struct {
	Postgres   StoreConfig `envPrefix:"POSTGRES_" yaml:"postgres"`
	ClickHouse StoreConfig `envPrefix:"CLICKHOUSE_" yaml:"clickhouse"`

	BatchSize           int    `env:"BATCH_SIZE" yaml:"batch_size"`
	PollIntervalSeconds int    `env:"POLL_INTERVAL_SECONDS" yaml:"poll_interval_seconds"`
	LogLevel            string `env:"LOG_LEVEL" yaml:"log_level"`
	EdgeSiteID          string `env:"EDGE_SITE_ID" yaml:"edge_site_id"`
}

func (c *Config) SetDefaults() {
	c.Postgres = StoreConfig{
		Host:     defaultPostgresHost,
		Port:     defaultPostgresPort,
		Database: defaultPostgresDatabase,
		User:     defaultPostgresUser,
	}
	c.ClickHouse = StoreConfig{
		Host:     defaultClickHouseHost,
		Port:     defaultClickHousePort,
		Database: defaultClickHouseDatabase,
		User:     defaultClickHouseUser,
	}
	c.BatchSize = defaultBatchSize
	c.PollIntervalSeconds = defaultPollIntervalSeconds
	c.LogLevel = "info"
}

func (c *Config) Check() error {
	if err := c.Postgres.check("postgres"); err != nil {
		return err
	}
	if err := c.ClickHouse.check("clickhouse"); err != nil {
		return err
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll interval must be positive, got %d", c.PollIntervalSeconds)
	}
	return nil
}

// Load resolves the configuration. An empty path skips the file stage.
func Load(path string) (*Config, error) {
	cfg := Config{}
	cfg.SetDefaults()
	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open configuration file: %w", err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse configuration file: %w", err)
	}
	return nil
}

func (c *Config) loadFromEnv() error {
	return env.Parse(c)
}
