package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyerfyer/pdf-vector-ingest/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEmbeddingServer 构造返回固定维度向量的模拟嵌入服务
func newEmbeddingServer(t *testing.T, dims int, calls *int64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt64(calls, 1)
		}

		var req openaiEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := map[string]interface{}{"model": req.Model}
		data := make([]map[string]interface{}, len(req.Input))
		for i := range req.Input {
			vec := make([]float32, dims)
			for j := range vec {
				vec[j] = float32(i + 1)
			}
			data[i] = map[string]interface{}{"embedding": vec, "index": i}
		}
		resp["data"] = data

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

// TestOpenAIClientEmbed 测试OpenAI兼容客户端
func TestOpenAIClientEmbed(t *testing.T) {
	t.Run("missing api key", func(t *testing.T) {
		_, err := NewOpenAIClient()
		require.Error(t, err)

		ee, ok := err.(EmbeddingError)
		require.True(t, ok)
		assert.Equal(t, ErrCodeInvalidAPIKey, ee.Code)
	})

	t.Run("successful embed", func(t *testing.T) {
		server := newEmbeddingServer(t, 8, nil)
		defer server.Close()

		client, err := NewOpenAIClient(
			WithAPIKey("test-key"),
			WithBaseURL(server.URL),
			WithDimensions(8),
		)
		require.NoError(t, err)

		vec, err := client.Embed(context.Background(), "hello world")
		require.NoError(t, err)
		assert.Len(t, vec, 8)
	})

	t.Run("empty input rejected", func(t *testing.T) {
		server := newEmbeddingServer(t, 8, nil)
		defer server.Close()

		client, err := NewOpenAIClient(WithAPIKey("k"), WithBaseURL(server.URL), WithDimensions(8))
		require.NoError(t, err)

		_, err = client.Embed(context.Background(), "")
		require.Error(t, err)
		assert.Equal(t, ErrCodeEmptyInput, err.(EmbeddingError).Code)
	})

	t.Run("dimension mismatch detected", func(t *testing.T) {
		// 服务返回8维，客户端声明16维
		server := newEmbeddingServer(t, 8, nil)
		defer server.Close()

		client, err := NewOpenAIClient(WithAPIKey("k"), WithBaseURL(server.URL), WithDimensions(16))
		require.NoError(t, err)

		_, err = client.Embed(context.Background(), "text")
		require.Error(t, err)

		ee, ok := err.(EmbeddingError)
		require.True(t, ok, "应该返回EmbeddingError类型")
		assert.Equal(t, ErrCodeDimensionMismatch, ee.Code)
	})

	t.Run("server error surfaced", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client, err := NewOpenAIClient(WithAPIKey("k"), WithBaseURL(server.URL))
		require.NoError(t, err)

		_, err = client.Embed(context.Background(), "text")
		require.Error(t, err)
		assert.Equal(t, ErrCodeServerError, err.(EmbeddingError).Code)
	})

	t.Run("batch preserves order", func(t *testing.T) {
		server := newEmbeddingServer(t, 4, nil)
		defer server.Close()

		client, err := NewOpenAIClient(WithAPIKey("k"), WithBaseURL(server.URL), WithDimensions(4))
		require.NoError(t, err)

		vectors, err := client.EmbedBatch(context.Background(), []string{"a", "b", "c"})
		require.NoError(t, err)
		require.Len(t, vectors, 3)

		// 模拟服务按输入序号填充向量值
		assert.Equal(t, float32(1), vectors[0][0])
		assert.Equal(t, float32(2), vectors[1][0])
		assert.Equal(t, float32(3), vectors[2][0])
	})

	t.Run("batch size limit", func(t *testing.T) {
		server := newEmbeddingServer(t, 4, nil)
		defer server.Close()

		client, err := NewOpenAIClient(WithAPIKey("k"), WithBaseURL(server.URL), WithBatchSize(2))
		require.NoError(t, err)

		_, err = client.EmbedBatch(context.Background(), []string{"a", "b", "c"})
		require.Error(t, err)
		assert.Equal(t, ErrCodeInvalidRequest, err.(EmbeddingError).Code)
	})
}

// TestClientRegistry 测试客户端工厂注册
func TestClientRegistry(t *testing.T) {
	t.Run("registered types", func(t *testing.T) {
		for _, name := range []string{"openai", "tongyi", "dashscope"} {
			_, err := NewClient(name, WithAPIKey("key"))
			assert.NoError(t, err, "类型 %s 应该已注册", name)
		}
	})

	t.Run("unregistered type", func(t *testing.T) {
		_, err := NewClient("nonexistent")
		require.Error(t, err)
		assert.Equal(t, ErrCodeInvalidRequest, err.(EmbeddingError).Code)
	})
}

// TestCachedClient 测试嵌入缓存装饰器
func TestCachedClient(t *testing.T) {
	var calls int64
	server := newEmbeddingServer(t, 4, &calls)
	defer server.Close()

	inner, err := NewOpenAIClient(WithAPIKey("k"), WithBaseURL(server.URL), WithDimensions(4))
	require.NoError(t, err)

	memCache, err := cache.NewMemoryCache(cache.Config{Prefix: "emb:"})
	require.NoError(t, err)

	client := NewCachedClient(inner, memCache, time.Hour)

	t.Run("second call hits cache", func(t *testing.T) {
		ctx := context.Background()

		first, err := client.Embed(ctx, "repeated text")
		require.NoError(t, err)
		callsAfterFirst := atomic.LoadInt64(&calls)

		second, err := client.Embed(ctx, "repeated text")
		require.NoError(t, err)

		assert.Equal(t, first, second, "缓存命中必须返回相同向量")
		assert.Equal(t, callsAfterFirst, atomic.LoadInt64(&calls), "第二次调用不应触发HTTP请求")
	})

	t.Run("batch embeds only misses", func(t *testing.T) {
		ctx := context.Background()

		_, err := client.Embed(ctx, "warm")
		require.NoError(t, err)

		before := atomic.LoadInt64(&calls)
		vectors, err := client.EmbedBatch(ctx, []string{"warm", "cold"})
		require.NoError(t, err)
		require.Len(t, vectors, 2)
		assert.NotNil(t, vectors[0])
		assert.NotNil(t, vectors[1])
		assert.Equal(t, before+1, atomic.LoadInt64(&calls), "只有未命中的文本触发请求")
	})

	t.Run("name and dimensions delegated", func(t *testing.T) {
		assert.Equal(t, inner.Name(), client.Name())
		assert.Equal(t, 4, client.Dimensions())
	})
}
