package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 300*time.Millisecond, cfg.LoadingDelay)
	assert.Equal(t, 10, cfg.ShutdownPolls)
	assert.Equal(t, 16*time.Millisecond, cfg.FrameInterval)
	assert.Equal(t, BackendMemory, cfg.Cache.Backend)
	assert.Equal(t, HostHeadless, cfg.Host.Kind)
}

func TestFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "realm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9000"
origin: http://app.test
loading_delay: 150ms
modules: [Pages.Index, Pages.About]
cache:
  backend: sqlite
  sqlite_path: /tmp/x.db
  ttl: 1h
`), 0o644))

	t.Setenv("REALM_CONFIG", path)
	t.Setenv("PORT", "7000")
	t.Setenv("REALM_CANCEL_STALE", "true")
	t.Setenv("REALM_SHUTDOWN_POLLS", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, "http://app.test", cfg.Origin)
	assert.Equal(t, 150*time.Millisecond, cfg.LoadingDelay)
	assert.Equal(t, []string{"Pages.Index", "Pages.About"}, cfg.Modules)
	assert.Equal(t, BackendSQLite, cfg.Cache.Backend)
	assert.Equal(t, "/tmp/x.db", cfg.Cache.SQLitePath)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.True(t, cfg.CancelStale)
	assert.Equal(t, 4, cfg.ShutdownPolls)
}

func TestEnvModulesAndErrors(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("REALM_MODULES", " Pages.A, ,Pages.B ")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"Pages.A", "Pages.B"}, cfg.Modules)

	t.Setenv("REALM_DISABLE_CACHING", "sometimes")
	_, err = Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Cache.Backend = "Redis "
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendRedis, cfg.Cache.Backend)

	cfg.Cache.Backend = "floppy"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Host.Kind = "firefox"
	assert.Error(t, cfg.Validate())
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
