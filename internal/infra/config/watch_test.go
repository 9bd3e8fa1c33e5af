package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "logger:\n  level: info\n")

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, slog.Default(), func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("logger:\n  level: debug\n"), 0o600))

	select {
	case cfg := <-reloaded:
		require.Equal(t, "debug", cfg.Logger.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload after write")
	}
}

func TestWatcherKeepsLastGoodConfigOnError(t *testing.T) {
	path := writeConfig(t, "logger:\n  level: info\n")

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, slog.Default(), func(cfg *Config) {
		reloaded <- cfg
	})
	require.NoError(t, err)
	defer w.Stop()

	// Malformed write must not reach the callback.
	require.NoError(t, os.WriteFile(path, []byte("logger: [broken"), 0o600))
	select {
	case <-reloaded:
		t.Fatal("malformed config should not trigger the callback")
	case <-time.After(1500 * time.Millisecond):
	}

	// A subsequent good write still comes through.
	require.NoError(t, os.WriteFile(path, []byte("logger:\n  level: warn\n"), 0o600))
	select {
	case cfg := <-reloaded:
		require.Equal(t, "warn", cfg.Logger.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not recover after a bad write")
	}
}
