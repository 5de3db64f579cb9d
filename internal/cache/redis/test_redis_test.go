package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realm/internal/cache"
)

func TestNewRequiresAddr(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestStoreAgainstRedis(t *testing.T) {
	addr := os.Getenv("REALM_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("REALM_TEST_REDIS_ADDR not set")
	}
	s, err := New(Config{Addr: addr, Prefix: "realm-test:", TTL: time.Minute})
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	require.NoError(t, s.Put(ctx, cache.UserDataKey, []byte(`{"u":1}`)))
	raw, ok, err := s.Get(ctx, cache.UserDataKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"u":1}`, string(raw))

	require.NoError(t, s.Delete(ctx, cache.UserDataKey))
	_, ok, err = s.Get(ctx, cache.UserDataKey)
	require.NoError(t, err)
	assert.False(t, ok)
}
