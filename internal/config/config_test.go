package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/revrec-engine/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "revrec.db", cfg.Database.Path)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "4000-Revenue", cfg.Accounts.Revenue)
	assert.Equal(t, "2150-Loyalty Liability", cfg.Accounts.LoyaltyLiability)

	p := cfg.RevrecPolicy()
	assert.Equal(t, "0.6", p.ReturnsAssetRatio.String())
	assert.Equal(t, "2100-Deferred Revenue", p.DeferredRevenueAccount)
	assert.NotNil(t, p.ReferenceDate)
}

func TestLoad_FileAndEnv(t *testing.T) {
	// GIVEN: a YAML file and an env override
	// WHEN: loading
	// THEN: env wins over the file, the file wins over defaults

	dir := t.TempDir()
	path := filepath.Join(dir, "revrec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
  write_timeout: 30s
database:
  path: /tmp/ledger.db
policy:
  returns_asset_ratio: 0.5
accounts:
  revenue: 4100-Subscription Revenue
`), 0o600))

	t.Setenv("REVREC_SERVER_PORT", "9191")
	t.Setenv("REVREC_SCHEDULER_ENABLED", "true")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "/tmp/ledger.db", cfg.Database.Path)
	assert.Equal(t, "4100-Subscription Revenue", cfg.Accounts.Revenue)
	assert.Equal(t, "2100-Deferred Revenue", cfg.Accounts.DeferredRevenue)
	assert.Equal(t, "0.5", cfg.RevrecPolicy().ReturnsAssetRatio.String())
	assert.Equal(t, "4100-Subscription Revenue", cfg.RevrecPolicy().RevenueAccount)
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policy:\n  returns_asset_ratio: 1.5\n"), 0o600))
	_, err = config.Load(path)
	assert.ErrorContains(t, err, "returns_asset_ratio")
}
