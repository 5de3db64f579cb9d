package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realm/internal/cache"
)

func TestStoreRoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New(DefaultConfig())

	_, ok, err := s.Get(ctx, "/foo/")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "/foo/", []byte("v1")))
	raw, ok, err := s.Get(ctx, "/foo/")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", string(raw))

	require.NoError(t, s.Delete(ctx, "/foo/"))
	_, ok, _ = s.Get(ctx, "/foo/")
	assert.False(t, ok)

	assert.ErrorIs(t, s.Put(ctx, " ", nil), cache.ErrEmptyKey)
}

func TestStoreEvictsAndExpires(t *testing.T) {
	ctx := context.Background()
	s := New(Config{MaxEntries: 2})
	require.NoError(t, s.Put(ctx, "a", []byte("a")))
	require.NoError(t, s.Put(ctx, "b", []byte("b")))
	require.NoError(t, s.Put(ctx, "c", []byte("c")))
	assert.Equal(t, []string{"b", "c"}, s.Keys())

	short := New(Config{MaxEntries: 10, TTL: 20 * time.Millisecond})
	require.NoError(t, short.Put(ctx, "k", []byte("v")))
	time.Sleep(60 * time.Millisecond)
	_, ok, err := short.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	s := New(DefaultConfig())
	buf := []byte("abc")
	require.NoError(t, s.Put(ctx, "k", buf))
	buf[0] = 'z'
	raw, _, _ := s.Get(ctx, "k")
	assert.Equal(t, "abc", string(raw))
}
