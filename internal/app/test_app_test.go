package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realm/internal/cache"
	"realm/internal/config"
	"realm/internal/host"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(origin string) *config.Config {
	cfg := config.Default()
	cfg.Origin = origin
	cfg.Modules = []string{"Pages.Foo"}
	cfg.FrameInterval = time.Millisecond
	cfg.LoadingDelay = time.Hour
	return &cfg
}

func TestNavigateThroughApp(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/foo/" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `{"id":"Pages.Foo","title":"Foo","url":"/foo/","config":{}}`)
	}))
	defer origin.Close()

	a, err := NewWithConfig(context.Background(), testConfig(origin.URL), quietLogger())
	require.NoError(t, err)
	defer a.Close()

	a.Runtime().Navigate("/foo/", false, false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Runtime().Wait(ctx))

	id, inst := a.Runtime().Current()
	assert.Equal(t, "Pages.Foo", id)
	require.NotNil(t, inst)

	raw, ok, err := cache.Get(ctx, a.Store(), "/foo/")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(raw), `"Pages.Foo"`)

	_, isHeadless := a.Host().(*host.Headless)
	assert.True(t, isHeadless)
}

func TestHandlerServesHealth(t *testing.T) {
	a, err := NewWithConfig(context.Background(), testConfig(""), quietLogger())
	require.NoError(t, err)
	defer a.Close()

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cases := []struct {
		name string
		cfg  config.CacheConfig
	}{
		{"memory", config.CacheConfig{Backend: config.BackendMemory}},
		{"disk", config.CacheConfig{Backend: config.BackendDisk, Dir: filepath.Join(dir, "disk")}},
		{"sqlite", config.CacheConfig{Backend: config.BackendSQLite, SQLitePath: filepath.Join(dir, "c.db")}},
		{"layered sqlite", config.CacheConfig{Backend: config.BackendSQLite, Layered: true, SQLitePath: filepath.Join(dir, "l.db")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, closers, err := OpenStore(tc.cfg)
			require.NoError(t, err)
			require.NotNil(t, s)
			defer func() {
				for _, c := range closers {
					_ = c.Close()
				}
			}()

			require.NoError(t, s.Put(ctx, "/a/", []byte("x")))
			raw, ok, err := s.Get(ctx, "/a/")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "x", string(raw))
		})
	}

	t.Run("layered", func(t *testing.T) {
		s, closers, err := OpenStore(config.CacheConfig{Backend: config.BackendSQLite, Layered: true, SQLitePath: ":memory:"})
		require.NoError(t, err)
		defer closers[0].Close()
		_, isLayered := s.(*cache.Layered)
		assert.True(t, isLayered)
	})

	t.Run("none", func(t *testing.T) {
		s, closers, err := OpenStore(config.CacheConfig{Backend: config.BackendNone})
		require.NoError(t, err)
		assert.Nil(t, s)
		assert.Empty(t, closers)
	})

	t.Run("incomplete s3", func(t *testing.T) {
		_, _, err := OpenStore(config.CacheConfig{Backend: config.BackendS3})
		assert.ErrorContains(t, err, "incomplete")
	})

	t.Run("redis without addr", func(t *testing.T) {
		_, _, err := OpenStore(config.CacheConfig{Backend: config.BackendRedis})
		assert.Error(t, err)
	})

	t.Run("unknown", func(t *testing.T) {
		_, _, err := OpenStore(config.CacheConfig{Backend: "tape"})
		assert.Error(t, err)
	})
}

func TestNewLogger(t *testing.T) {
	assert.True(t, NewLogger("debug").Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, NewLogger("warn").Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, NewLogger("nonsense").Enabled(context.Background(), slog.LevelInfo))
}
