package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_SetDefaults(t *testing.T) {
	t.Run("Sets all default values correctly", func(t *testing.T) {
		cfg := &Config{}
		cfg.SetDefaults()

		assert.Equal(t, defaultPostgresHost, cfg.Postgres.Host)
		assert.Equal(t, defaultPostgresPort, cfg.Postgres.Port)
		assert.Equal(t, defaultPostgresDatabase, cfg.Postgres.Database)
		assert.Equal(t, defaultClickHouseHost, cfg.ClickHouse.Host)
		assert.Equal(t, defaultClickHousePort, cfg.ClickHouse.Port)
		assert.Equal(t, defaultClickHouseDatabase, cfg.ClickHouse.Database)
		assert.Equal(t, defaultBatchSize, cfg.BatchSize)
		assert.Equal(t, defaultPollIntervalSeconds, cfg.PollIntervalSeconds)
		assert.Equal(t, "info", cfg.LogLevel)
	})
}

func TestConfig_Check(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.SetDefaults()
		return cfg
	}

	t.Run("Valid config passes validation", func(t *testing.T) {
		assert.NoError(t, valid().Check())
	})

	t.Run("Missing postgres host returns error", func(t *testing.T) {
		cfg := valid()
		cfg.Postgres.Host = ""
		assert.Error(t, cfg.Check())
	})

	t.Run("Out of range clickhouse port returns error", func(t *testing.T) {
		cfg := valid()
		cfg.ClickHouse.Port = 70000
		assert.Error(t, cfg.Check())
	})

	t.Run("Zero batch size returns error", func(t *testing.T) {
		cfg := valid()
		cfg.BatchSize = 0
		assert.Error(t, cfg.Check())
	})

	t.Run("Negative poll interval returns error", func(t *testing.T) {
		cfg := valid()
		cfg.PollIntervalSeconds = -1
		assert.Error(t, cfg.Check())
	})
}

func TestLoad(t *testing.T) {
	t.Run("Environment overrides defaults", func(t *testing.T) {
		t.Setenv("POSTGRES_HOST", "pg.internal")
		t.Setenv("POSTGRES_PORT", "5433")
		t.Setenv("CLICKHOUSE_PASSWORD", "s3cret")
		t.Setenv("BATCH_SIZE", "100")
		t.Setenv("EDGE_SITE_ID", "edge-berlin-01")

		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, "pg.internal", cfg.Postgres.Host)
		assert.Equal(t, 5433, cfg.Postgres.Port)
		assert.Equal(t, "s3cret", cfg.ClickHouse.Password.Expose())
		assert.Equal(t, 100, cfg.BatchSize)
		assert.Equal(t, "edge-berlin-01", cfg.EdgeSiteID)
		// untouched defaults survive
		assert.Equal(t, defaultClickHouseHost, cfg.ClickHouse.Host)
	})

	t.Run("File overrides defaults, environment overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "forwarder.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
postgres:
  host: pg-from-file
  port: 15432
batch_size: 250
edge_site_id: edge-file
`), 0o600))
		t.Setenv("POSTGRES_HOST", "pg-from-env")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "pg-from-env", cfg.Postgres.Host)
		assert.Equal(t, 15432, cfg.Postgres.Port)
		assert.Equal(t, 250, cfg.BatchSize)
		assert.Equal(t, "edge-file", cfg.EdgeSiteID)
	})

	t.Run("Unknown file keys are rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "forwarder.yaml")
		require.NoError(t, os.WriteFile(path, []byte("no_such_option: true\n"), 0o600))

		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("Invalid resulting config is rejected", func(t *testing.T) {
		t.Setenv("BATCH_SIZE", "0")

		_, err := Load("")
		assert.Error(t, err)
	})
}

func TestPassword(t *testing.T) {
	t.Run("String never exposes the value", func(t *testing.T) {
		p := Password("hunter2")
		assert.Equal(t, "...", p.String())
		assert.Equal(t, "hunter2", p.Expose())
	})

	t.Run("Set stores the value", func(t *testing.T) {
		var p Password
		require.NoError(t, p.Set("changeme"))
		assert.Equal(t, "changeme", p.Expose())
	})
}
