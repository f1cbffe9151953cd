package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "valuation", cfg.Database.Database)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr())
	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, 5*time.Second, cfg.Engine.ListingBudget)
	assert.Equal(t, "@every 30s", cfg.Engine.SweepSchedule)
	assert.Equal(t, "valuation.recalculated", cfg.Engine.CompletionChannel)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
engine:
  workers: 8
  listing_budget: 2s
database:
  database: dealscope
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Engine.Workers)
	assert.Equal(t, 2*time.Second, cfg.Engine.ListingBudget)
	assert.Equal(t, "dealscope", cfg.Database.Database)
	// Unspecified keys keep their defaults.
	assert.Equal(t, "localhost", cfg.Database.Host)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("VALUATION_SERVER_PORT", "7070")
	t.Setenv("VALUATION_ENGINE_WORKERS", "16")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 16, cfg.Engine.Workers)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "missing database host",
			mutate:  func(c *Config) { c.Database.Host = "" },
			wantErr: "database host is required",
		},
		{
			name:    "missing redis host",
			mutate:  func(c *Config) { c.Redis.Host = "" },
			wantErr: "redis host is required",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Engine.Workers = 0 },
			wantErr: "worker count must be positive",
		},
		{
			name:    "zero listing budget",
			mutate:  func(c *Config) { c.Engine.ListingBudget = 0 },
			wantErr: "listing budget must be positive",
		},
		{
			name:    "production requires jwt secret",
			mutate:  func(c *Config) { c.App.Environment = "production"; c.Auth.JWTSecret = "" },
			wantErr: "jwt_secret must be set in production",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	dsn := cfg.DatabaseDSN()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "dbname=valuation")
	assert.Contains(t, dsn, "sslmode=disable")
}
