package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := NewRedis(Config{URL: "redis://" + mr.Addr(), TTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return mr, c
}

func TestRedisSetAndGet(t *testing.T) {
	_, c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "trends:1", []byte(`{"count":2}`)))

	val, found, err := c.Get(ctx, "trends:1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"count":2}`, string(val))
}

func TestRedisGetMiss(t *testing.T) {
	_, c := setupTestRedis(t)

	val, found, err := c.Get(context.Background(), "trends:99")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestRedisEntriesExpire(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "trends:1", []byte("v")))

	mr.FastForward(2 * time.Minute)

	_, found, err := c.Get(ctx, "trends:1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNewRedisBadURL(t *testing.T) {
	_, err := NewRedis(Config{URL: "not-a-url"}, nil)
	assert.Error(t, err)
}

func TestNewRedisUnreachable(t *testing.T) {
	_, err := NewRedis(Config{URL: "redis://127.0.0.1:1"}, nil)
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	c := NewNoop()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v")))

	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, c.Close())
}
