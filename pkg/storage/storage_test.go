package storage

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLocalStorageSaveAndFetch 测试本地存储的保存和取回
func TestLocalStorageSaveAndFetch(t *testing.T) {
	store, err := NewLocalStorage(LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("save assigns uploads key", func(t *testing.T) {
		info, err := store.Save(ctx, strings.NewReader("hello world"), "my doc.pdf")
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(info.Key, "uploads/"), "键应该位于uploads/前缀下")
		assert.NotContains(t, info.Key, " ", "键中不应包含空格")
		assert.Equal(t, int64(11), info.Size)
	})

	t.Run("fetch returns temp copy", func(t *testing.T) {
		info, err := store.Save(ctx, strings.NewReader("pdf bytes"), "a.pdf")
		require.NoError(t, err)

		localPath, cleanup, err := store.Fetch(ctx, info.Key)
		require.NoError(t, err)
		require.NotNil(t, cleanup)

		data, err := os.ReadFile(localPath)
		require.NoError(t, err)
		assert.Equal(t, "pdf bytes", string(data))
		assert.Equal(t, ".pdf", localPath[len(localPath)-4:], "临时文件应保留扩展名")

		// 清理函数应删除临时副本
		cleanup()
		_, err = os.Stat(localPath)
		assert.True(t, os.IsNotExist(err), "清理后临时文件不应存在")
	})

	t.Run("fetch missing object", func(t *testing.T) {
		_, _, err := store.Fetch(ctx, "uploads/does-not-exist.pdf")
		require.Error(t, err)

		fe, ok := err.(FetchError)
		require.True(t, ok, "应该返回FetchError类型")
		assert.Equal(t, ErrCodeObjectNotFound, fe.Code)
		assert.True(t, IsNotFound(err))
	})

	t.Run("key escaping storage root", func(t *testing.T) {
		_, _, err := store.Fetch(ctx, "../outside.pdf")
		require.Error(t, err)

		fe, ok := err.(FetchError)
		require.True(t, ok)
		assert.Equal(t, ErrCodeAccessDenied, fe.Code)
	})
}

// TestLocalStorageExistsAndDelete 测试对象存在性检查和删除
func TestLocalStorageExistsAndDelete(t *testing.T) {
	store, err := NewLocalStorage(LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	ctx := context.Background()

	info, err := store.Save(ctx, strings.NewReader("content"), "doc.txt")
	require.NoError(t, err)

	exists, err := store.Exists(ctx, info.Key)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Delete(ctx, info.Key))

	exists, err = store.Exists(ctx, info.Key)
	require.NoError(t, err)
	assert.False(t, exists)

	// 再次删除应报对象不存在
	err = store.Delete(ctx, info.Key)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

// TestMinioConfigValidation 测试MinIO配置校验
func TestMinioConfigValidation(t *testing.T) {
	_, err := NewMinioStorage(MinioConfig{Bucket: "docs"})
	require.Error(t, err)
	fe, ok := err.(FetchError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeInvalidConfig, fe.Code)

	_, err = NewMinioStorage(MinioConfig{Endpoint: "localhost:9000"})
	require.Error(t, err)
}
