package app_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obvcore/internal/app"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	home := t.TempDir()
	cfg, err := app.LoadConfig(filepath.Join(home, app.ConfigFilename), home)
	require.NoError(t, err)
	assert.Equal(t, app.DefaultConfig(home), cfg)
	assert.Equal(t, 24*time.Hour, cfg.RetentionPeriod())
	assert.Equal(t, 7*24*time.Hour, cfg.ParkedPeriod())
	assert.Equal(t, 30*24*time.Hour, cfg.CompletedPeriod())
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, app.ConfigFilename)
	require.NoError(t, os.WriteFile(path, []byte(`
server: relay.example.org
log_level: debug
workers: 2
retention: 1h
redis:
  addr: localhost:6379
`), 0o600))

	cfg, err := app.LoadConfig(path, home)
	require.NoError(t, err)
	assert.Equal(t, "relay.example.org", cfg.Server)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, time.Hour, cfg.RetentionPeriod())
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, app.DefaultConfig(home).ProvisionWindow, cfg.ProvisionWindow)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"log level":     "log_level: loud\n",
		"workers":       "workers: 0\n",
		"retention":     "retention: soon\n",
		"negative ttl":  "parked_ttl: -1h\n",
		"completed ttl": "completed_ttl: 0s\n",
		"redis address": "redis:\n  addr: not an address\n",
		"not yaml":      "server: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			home := t.TempDir()
			path := filepath.Join(home, app.ConfigFilename)
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := app.LoadConfig(path, home)
			require.ErrorIs(t, err, app.ErrInvalidConfig)
		})
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, app.ConfigFilename)
	cfg := app.DefaultConfig(home)
	cfg.Server = "other.example.org"
	cfg.InMemory = true
	require.NoError(t, cfg.Save(path))

	got, err := app.LoadConfig(path, home)
	require.NoError(t, err)
	cfg.InMemory = false
	assert.Equal(t, cfg, got)
}
