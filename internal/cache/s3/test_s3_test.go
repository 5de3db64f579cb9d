package s3

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)
	_, err = New(Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"})
	assert.Error(t, err)

	s, err := New(Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "realm"})
	require.NoError(t, err)
	key := s.ObjectKey("/foo/?a=1")
	assert.True(t, strings.HasPrefix(key, "realm-cache/"))
	assert.Equal(t, key, s.ObjectKey("/foo/?a=1"))
	assert.NotEqual(t, key, s.ObjectKey("/foo/?a=2"))

	assert.False(t, Config{Endpoint: "x"}.Complete())
}

func TestStoreAgainstMinio(t *testing.T) {
	endpoint := os.Getenv("REALM_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("REALM_TEST_S3_ENDPOINT not set")
	}
	s, err := New(Config{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("REALM_TEST_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("REALM_TEST_S3_SECRET_KEY"),
		Bucket:    "realm-test",
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "/foo/", []byte("v1")))
	raw, ok, err := s.Get(ctx, "/foo/")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", string(raw))

	require.NoError(t, s.Delete(ctx, "/foo/"))
	_, ok, err = s.Get(ctx, "/foo/")
	require.NoError(t, err)
	assert.False(t, ok)
}
