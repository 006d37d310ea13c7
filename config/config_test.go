package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "./data", cfg.DataDir)
	require.Equal(t, "none", cfg.Translog.Compression)
	require.Equal(t, 5*time.Second, cfg.Translog.SyncInterval)
	require.Equal(t, 30*time.Second, cfg.Recovery.WaitForSchemaUpdateTimeout)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corvus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/corvus
translog:
  locations:
    - /mnt/fast
    - /mnt/slow
  compression: zstd
  sync_interval: 250ms
recovery:
  wait_for_schema_update_timeout: 10s
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/corvus", cfg.DataDir)
	require.Equal(t, []string{"/mnt/fast", "/mnt/slow"}, cfg.Translog.Locations)
	require.Equal(t, "zstd", cfg.Translog.Compression)
	require.Equal(t, 250*time.Millisecond, cfg.Translog.SyncInterval)
	require.Equal(t, 10*time.Second, cfg.Recovery.WaitForSchemaUpdateTimeout)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CORVUS_DATA_DIR", "/srv/corvus")
	t.Setenv("CORVUS_TRANSLOG_COMPRESSION", "snappy")
	t.Setenv("CORVUS_TRANSLOG_SYNC_INTERVAL", "1s")
	t.Setenv("CORVUS_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "/srv/corvus", cfg.DataDir)
	require.Equal(t, "snappy", cfg.Translog.Compression)
	require.Equal(t, time.Second, cfg.Translog.SyncInterval)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Translog.Compression = "gzip"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.DataDir = ""
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Recovery.WaitForSchemaUpdateTimeout = -time.Second
	require.Error(t, cfg.Validate())
}

func TestShardPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/data"
	require.Equal(t, "/data/web-0/store", cfg.StoreDir("web-0"))
	require.Equal(t, []string{"/data/web-0/translog"}, cfg.TranslogLocations("web-0"))

	cfg.Translog.Locations = []string{"/mnt/a", "/mnt/b"}
	require.Equal(t, []string{"/mnt/a/web-0", "/mnt/b/web-0"}, cfg.TranslogLocations("web-0"))
}
