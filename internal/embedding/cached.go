package embedding

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/fyerfyer/pdf-vector-ingest/internal/cache"
)

// CachedClient 带缓存的嵌入客户端装饰器
// 缓存键由模型名和文本的内容哈希组成，
// 同一文本重复摄取时不再调用外部服务
type CachedClient struct {
	inner Client
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedClient 用缓存包装一个嵌入客户端
func NewCachedClient(inner Client, c cache.Cache, ttl time.Duration) *CachedClient {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedClient{
		inner: inner,
		cache: c,
		ttl:   ttl,
	}
}

// Name 返回底层模型名称
func (c *CachedClient) Name() string {
	return c.inner.Name()
}

// Dimensions 返回底层客户端的向量维度
func (c *CachedClient) Dimensions() int {
	return c.inner.Dimensions()
}

// Embed 生成单条文本的向量表示，优先命中缓存
func (c *CachedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if cached, found, err := c.cache.Get(key); err == nil && found {
		var vec []float32
		if err := json.Unmarshal([]byte(cached), &vec); err == nil && len(vec) > 0 {
			return vec, nil
		}
		// 缓存内容损坏时按未命中处理
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(vec); err == nil {
		// 缓存写入失败不影响结果
		_ = c.cache.Set(key, string(data), c.ttl)
	}

	return vec, nil
}

// EmbedBatch 批量生成向量表示
// 只把缓存未命中的文本发给底层客户端
func (c *CachedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	result := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if cached, found, err := c.cache.Get(c.cacheKey(text)); err == nil && found {
			var vec []float32
			if err := json.Unmarshal([]byte(cached), &vec); err == nil && len(vec) > 0 {
				result[i] = vec
				continue
			}
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return result, nil
	}

	vectors, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, NewEmbeddingError(ErrCodeMalformedResponse,
			"batch result count does not match input count")
	}

	for j, vec := range vectors {
		idx := missingIdx[j]
		result[idx] = vec
		if data, err := json.Marshal(vec); err == nil {
			_ = c.cache.Set(c.cacheKey(texts[idx]), string(data), c.ttl)
		}
	}

	return result, nil
}

// cacheKey 构造缓存键: <模型名>:<文本内容哈希>
func (c *CachedClient) cacheKey(text string) string {
	sum := md5.Sum([]byte(text))
	return c.inner.Name() + ":" + hex.EncodeToString(sum[:])
}
