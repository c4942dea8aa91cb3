package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCacheSuite 对任意Cache实现跑同一组行为测试
func runCacheSuite(t *testing.T, c Cache) {
	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, c.Set("k1", "v1", time.Minute))

		value, found, err := c.Get("k1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "v1", value)
	})

	t.Run("missing key", func(t *testing.T) {
		_, found, err := c.Get("no-such-key")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, c.Set("k2", "v2", time.Minute))
		require.NoError(t, c.Delete("k2"))

		_, found, err := c.Get("k2")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, c.Set("k3", "v3", time.Minute))
		require.NoError(t, c.Clear())

		_, found, err := c.Get("k3")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

// TestMemoryCache 测试内存缓存
func TestMemoryCache(t *testing.T) {
	c, err := NewMemoryCache(Config{Prefix: "test:"})
	require.NoError(t, err)
	runCacheSuite(t, c)
}

// TestRedisCache 测试Redis缓存（使用miniredis）
func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewRedisCache(Config{
		RedisAddr: mr.Addr(),
		Prefix:    "test:",
	})
	require.NoError(t, err)
	runCacheSuite(t, c)
}

// TestNewCacheFallback 测试工厂回退到内存缓存
func TestNewCacheFallback(t *testing.T) {
	c, err := NewCache(Config{Type: "unknown"})
	require.NoError(t, err)
	require.NotNil(t, c)

	require.NoError(t, c.Set("k", "v", 0))
	value, found, err := c.Get("k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", value)
}
