package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir changes into dir for the duration of the test, restoring the
// previous working directory on cleanup. (testing.T.Chdir requires Go 1.24.)
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Errorf("restoring working directory: %v", err)
		}
	})
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NotNil(t, cfg)
	assert.Equal(t, ":8090", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Geoloc.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Geoloc.MaximumAge)
	assert.Equal(t, []string{"contacts"}, cfg.Sync.Sources)
	assert.Equal(t, 50, cfg.Telemetry.EventBufferSize)
	assert.False(t, cfg.Auth.Enabled)

	require.NoError(t, Validate(cfg))
}

func TestLoadDefaultsOnly(t *testing.T) {
	// Run from an empty directory so no stray dsc.toml is picked up.
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8090", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DSC_SERVER_ADDR", ":9999")
	t.Setenv("DSC_GEOLOC_POLL_INTERVAL", "2s")
	t.Setenv("DSC_GEOLOC_HIGH_ACCURACY", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 2*time.Second, cfg.Geoloc.PollInterval)
	assert.True(t, cfg.Geoloc.HighAccuracy)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	content := `
[server]
addr = ":7070"

[geoloc]
poll_interval = "3s"
min_distance_m = 25.0

[sync]
base_url = "https://sync.example.com"
sources = ["contacts", "orders"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	chdir(t, dir)
	t.Setenv("DSC_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.Geoloc.PollInterval)
	assert.Equal(t, 25.0, cfg.Geoloc.MinDistanceM)
	assert.Equal(t, "https://sync.example.com", cfg.Sync.BaseURL)
	assert.Equal(t, []string{"contacts", "orders"}, cfg.Sync.Sources)

	// Unspecified keys keep their defaults
	assert.Equal(t, 10*time.Second, cfg.Geoloc.AcquireTimeout)
}

func TestLoadInvalidConfigRejected(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DSC_GEOLOC_POLL_INTERVAL", "0s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll interval")
}
