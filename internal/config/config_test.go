package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8888", cfg.ListenAddr)
	assert.Equal(t, StorageTypeFile, cfg.StorageType)
	assert.Equal(t, 9000, cfg.PortLow)
	assert.Equal(t, 9100, cfg.PortHigh)
	assert.Equal(t, time.Minute, cfg.FrameTimeout)
	assert.Equal(t, 2*time.Minute, cfg.TransferTimeout)
	assert.Equal(t, "python3", cfg.PythonInterp)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lobby.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"listen_addr: 127.0.0.1:7000\nport_low: 20000\nport_high: 20010\nframe_timeout: 30s\nlog_level: debug\n",
	), 0o644))

	t.Setenv("LOBBY_PORT_HIGH", "20020")
	t.Setenv("LOBBY_STORAGE_TYPE", "memory")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", cfg.ListenAddr)
	assert.Equal(t, 20000, cfg.PortLow)
	assert.Equal(t, 20020, cfg.PortHigh)
	assert.Equal(t, StorageTypeMemory, cfg.StorageType)
	assert.Equal(t, 30*time.Second, cfg.FrameTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestFlagsOverrideEnvAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lobby.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: 127.0.0.1:7000\nport_low: 20000\n"), 0o644))
	t.Setenv("LOBBY_LISTEN_ADDR", "127.0.0.1:7001")

	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--listen-addr", "127.0.0.1:7002", "--storage-type", "memory"}))

	cfg, err := LoadWithFlags(path, fs)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7002", cfg.ListenAddr)
	assert.Equal(t, StorageTypeMemory, cfg.StorageType)
	// Unset flags do not shadow the file or the defaults
	assert.Equal(t, 20000, cfg.PortLow)
	assert.Equal(t, 9100, cfg.PortHigh)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("LOBBY_STORAGE_TYPE", "postgres")
	_, err := Load("")
	assert.ErrorContains(t, err, "storage_type")

	t.Setenv("LOBBY_STORAGE_TYPE", "memory")
	t.Setenv("LOBBY_PORT_LOW", "9100")
	_, err = Load("")
	assert.ErrorContains(t, err, "port range")
}
