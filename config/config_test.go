package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default("gracesrvd")
	assert.Equal(t, "./gracesrvd.pid", cfg.PIDPath)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bind: tcp://127.0.0.1:6789
pid_path: /tmp/test.pid
allowed_networks:
  - 10.0.0.0/8
log_level: debug
drain_timeout: 5s
`), 0o644))

	cfg, err := Load(path, "", nil, "gracesrvd")
	require.NoError(t, err)
	assert.Equal(t, "tcp://127.0.0.1:6789", cfg.Bind)
	assert.Equal(t, "/tmp/test.pid", cfg.PIDPath)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.AllowedNetworks)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, Duration(5*time.Second), cfg.DrainTimeout)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bind: tcp://127.0.0.1:6789
drain_timeout: moments
`), 0o644))

	_, err := Load(path, "", nil, "gracesrvd")
	assert.Error(t, err)
}

func TestValidateRejectsEmptyBind(t *testing.T) {
	cfg := Default("gracesrvd")
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := Default("gracesrvd")
	cfg.Bind = "tcp://127.0.0.1:0"
	cfg.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestWatchFileCallsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bind: tcp://127.0.0.1:0\n"), 0o644))

	changed := make(chan struct{}, 1)
	stop, err := WatchFile(path, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("bind: tcp://127.0.0.1:1\n"), 0o644))

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("WatchFile did not observe the file write")
	}
}
