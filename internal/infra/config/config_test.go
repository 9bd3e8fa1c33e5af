package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "switchboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 0.6, cfg.Routing.PerformanceWeight)
	assert.Equal(t, 0.4, cfg.Routing.LoadWeight)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, 0.5, cfg.Tools.MinConfidence)
	assert.True(t, cfg.Scheduler.Enabled)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
logger:
  level: debug
  format: json
routing:
  performance_weight: 0.7
  load_weight: 0.3
session:
  backend: memory
  ttl: 30m
tools:
  min_confidence: 0.4
  chains:
    travel:
      - tool: search
        threshold: 0.5
      - tool: booking
        threshold: 0.7
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, 0.7, cfg.Routing.PerformanceWeight)
	assert.Equal(t, "30m", cfg.Session.TTL)
	assert.Equal(t, 0.4, cfg.Tools.MinConfidence)

	steps := cfg.Tools.Chains["travel"]
	require.Len(t, steps, 2)
	assert.Equal(t, "search", steps[0].Tool)
	assert.Equal(t, 0.7, steps[1].Threshold)

	// Untouched sections keep their defaults.
	assert.Equal(t, ":2112", cfg.Metrics.Addr)
	assert.Equal(t, "720h", cfg.Interactions.Retention)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "logger: [not a mapping")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsInsecurePermissions(t *testing.T) {
	path := writeConfig(t, "logger:\n  level: info\n")
	require.NoError(t, os.Chmod(path, 0o666))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure permissions")
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SWITCHBOARD_LOGGER_LEVEL", "debug")
	t.Setenv("SWITCHBOARD_SESSION_BACKEND", "redis")
	t.Setenv("SWITCHBOARD_SESSION_REDIS_URL", "redis://localhost:6379")
	t.Setenv("SWITCHBOARD_TOOLS_MIN_CONFIDENCE", "0.25")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "redis", cfg.Session.Backend)
	assert.Equal(t, "redis://localhost:6379", cfg.Session.RedisURL)
	assert.Equal(t, 0.25, cfg.Tools.MinConfidence)
}

func TestDuration(t *testing.T) {
	assert.Equal(t, time.Hour, Duration("", time.Hour))
	assert.Equal(t, time.Hour, Duration("bogus", time.Hour))
	assert.Equal(t, time.Hour, Duration("-5s", time.Hour))
	assert.Equal(t, 90*time.Second, Duration("90s", time.Hour))
}
