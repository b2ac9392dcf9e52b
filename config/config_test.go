package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "points.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_NoPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, []string{"DANNON", "UNILEVER", "MILLER COORS"}, cfg.Seed.Payers)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: ":9090"
  shutdownTimeout: 5s
store:
  driver: POSTGRES
  dsn: postgres://points@localhost/points
log:
  level: debug
  format: json
seed:
  userID: 3
  payers: [ACME]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout, "unset fields keep defaults")
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, int64(3), cfg.Seed.UserID)
	assert.Equal(t, []string{"ACME"}, cfg.Seed.Payers)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	path := writeConfig(t, "store:\n  engine: sqlite\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, ErrUnknownDriver},
		{"sqlite without path", func(c *Config) { c.Store.Path = " " }, ErrMissingPath},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = DriverPostgres }, ErrMissingDSN},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}

	t.Run("memory needs nothing else", func(t *testing.T) {
		cfg := Default()
		cfg.Store = StoreConfig{Driver: "Memory"}
		require.NoError(t, cfg.Validate())
		assert.Equal(t, DriverMemory, cfg.Store.Driver)
	})

	t.Run("blank seed payer", func(t *testing.T) {
		cfg := Default()
		cfg.Seed.Payers = []string{"DANNON", ""}
		assert.Error(t, cfg.Validate())
	})

	t.Run("metrics path", func(t *testing.T) {
		cfg := Default()
		cfg.Metrics.Path = "metrics"
		assert.Error(t, cfg.Validate())
	})
}
