package gorawrfeed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rawrfeed.yaml")
	err := os.WriteFile(path, []byte(`
logger:
  level: debug
cache:
  max_entries: 500
store:
  debounce: 250ms
backend:
  kind: pebble
  path: /var/lib/rawrfeed
retry:
  max_retries: 5
prune_schedule: "@every 30s"
`), 0o600)
	require.NoError(t, err)

	t.Setenv("RAWRFEED_BACKEND_KIND", "file")
	t.Setenv("RAWRFEED_RATE_LIMIT_RPS", "2.5")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.Logger.Level)
	require.Equal(t, "json", cfg.Logger.Encoding)
	require.EqualValues(t, 500, cfg.Cache.MaxEntries)
	require.Equal(t, time.Minute, cfg.Cache.DefaultTTL)
	require.Equal(t, 250*time.Millisecond, cfg.Store.Debounce)
	require.Equal(t, "rawr:", cfg.Store.Prefix)
	require.Equal(t, BackendFile, cfg.Backend.Kind)
	require.Equal(t, "/var/lib/rawrfeed", cfg.Backend.Path)
	require.Equal(t, 5, cfg.Retry.MaxRetries)
	require.Equal(t, time.Second, cfg.Retry.InitialDelay)
	require.NotNil(t, cfg.Retry.ShouldRetry)
	require.InDelta(t, 2.5, cfg.RateLimit.RPS, 1e-9)
	require.Equal(t, "@every 30s", cfg.PruneSchedule)
	require.Equal(t, 6, cfg.Images.MaxConcurrent)
}

func TestLoadConfigWithoutFile(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, BackendMemory, cfg.Backend.Kind)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "failed to read config")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.Backend.Kind = "tape" }, "unknown backend"},
		{"pebble without path", func(c *Config) { c.Backend.Kind = BackendPebble }, "requires a path"},
		{"redis without addr", func(c *Config) { c.Backend.Kind = BackendRedis }, "requires redis_addr"},
		{"empty schedule", func(c *Config) { c.PruneSchedule = "" }, "invalid prune schedule"},
		{"bad level", func(c *Config) { c.Logger.Level = "loud" }, "level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
