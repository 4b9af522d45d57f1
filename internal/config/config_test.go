package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coldroute/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, model.StrategyJIT, cfg.Plan.Strategy)
	assert.Equal(t, 15, cfg.Plan.ToleranceMin)
	assert.Equal(t, 30, cfg.Limit.Ceiling)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coldroute.yaml")
	data := []byte(`
addr: ":9090"
oracle:
  model: test-model
  calls_per_sec: 2
limit:
  ceiling: 5
  window_sec: 10
plan:
  strategy: density
  tolerance_min: 5
  depot:
    name: Hub West
    lat: 52.37
    lng: 4.89
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "test-model", cfg.Oracle.Model)
	assert.Equal(t, 2.0, cfg.Oracle.CallsPerSec)
	assert.Equal(t, 5, cfg.Limit.Ceiling)
	assert.Equal(t, model.StrategyDensity, cfg.Plan.Strategy)
	assert.Equal(t, "Hub West", cfg.Plan.Depot.Name)
	assert.Equal(t, 10*time.Second, cfg.LimitWindow())
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coldroute.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9090\"\n"), 0o600))

	t.Setenv("PORT", "7070")
	t.Setenv("RATE_CEILING", "3")
	t.Setenv("ORACLE_API_KEY", "k-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, 3, cfg.Limit.Ceiling)
	assert.Equal(t, "k-env", cfg.Oracle.APIKey)
}

func TestMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
}
