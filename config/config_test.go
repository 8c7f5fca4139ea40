package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/clinic-rx/config"
	"github.com/warp/clinic-rx/dispensing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), *cfg)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_FileThenEnvOverrides(t *testing.T) {
	// GIVEN: A YAML file and an env var that both set stock_policy
	// WHEN: Loading
	// THEN: The env var wins; other file values apply

	path := filepath.Join(t.TempDir(), "clinicrx.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path: /var/lib/clinic/rx.db
busy_timeout: 5s
stock_policy: reject
http_port: 9090
cors_origins:
  - http://reception.local
`), 0o644))
	t.Setenv("CLINICRX_STOCK_POLICY", "allow-negative")
	t.Setenv("CLINICRX_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/clinic/rx.db", cfg.DBPath)
	assert.Equal(t, 5*time.Second, cfg.BusyTimeout)
	assert.Equal(t, dispensing.PolicyAllowNegative, cfg.StockPolicy)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, []string{"http://reception.local"}, cfg.CORSOrigins)
	assert.Equal(t, "backups", cfg.BackupDir)
}

func TestLoad_InvalidValues_Rejected(t *testing.T) {
	t.Setenv("CLINICRX_STOCK_POLICY", "whatever")
	t.Setenv("CLINICRX_HTTP_PORT", "0")

	_, err := config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stock_policy")
	assert.Contains(t, err.Error(), "http_port")
}

func TestLoad_MissingFile_Error(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_LowStockMonitor(t *testing.T) {
	t.Setenv("CLINICRX_LOW_STOCK_THRESHOLD", "25")
	t.Setenv("CLINICRX_LOW_STOCK_INTERVAL", "15m")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, int64(25), cfg.LowStockThreshold)
	assert.Equal(t, 15*time.Minute, cfg.LowStockInterval)
}

func TestDefault_StockPolicyParses(t *testing.T) {
	// GIVEN: Every policy name config accepts
	// THEN: The dispensing package parses it and names it back the same way

	for _, name := range []string{config.Default().StockPolicy, dispensing.PolicyAllowNegative} {
		p, err := dispensing.ParseStockPolicy(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, p.String())
	}
}
