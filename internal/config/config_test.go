package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3210", cfg.Server.Port)
	assert.Equal(t, "timestamp", cfg.Sync.DefaultStrategy)
	assert.Equal(t, 30*time.Second, cfg.Sync.LockTTL)
	assert.Equal(t, time.Hour, cfg.Sync.Freshness)
}

func TestLoadRequiresSecret(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("JWT_SECRET", "")
	require.NoError(t, os.Unsetenv("JWT_SECRET"))

	_, err := Load()
	assert.Error(t, err)
}

func TestSyncFileOverridesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"default_strategy": "erp_wins",
		"max_items": 25,
		"interval_seconds": 60,
		"item_delay_ms": 0
	}`), 0o600))

	c := SyncConfig{DefaultStrategy: "timestamp", MaxItems: 100, ItemDelay: 100 * time.Millisecond, LockTTL: 30 * time.Second, FilePath: path}
	require.NoError(t, c.applyFile())
	require.NoError(t, c.validate())

	assert.Equal(t, "erp_wins", c.DefaultStrategy)
	assert.Equal(t, 25, c.MaxItems)
	assert.Equal(t, time.Minute, c.Interval)
	assert.Equal(t, time.Duration(0), c.ItemDelay)
	assert.Equal(t, 30*time.Second, c.LockTTL)
}

func TestSyncValidate(t *testing.T) {
	c := SyncConfig{DefaultStrategy: "newest", MaxItems: 1}
	assert.Error(t, c.validate())

	c = SyncConfig{DefaultStrategy: "manual", MaxItems: 0}
	assert.Error(t, c.validate())

	c = SyncConfig{DefaultStrategy: "manual", MaxItems: 5}
	require.NoError(t, c.validate())
	assert.Equal(t, 15*time.Minute, c.Interval)
}

// chdir changes the working directory for the duration of the test
// (stand-in for testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
