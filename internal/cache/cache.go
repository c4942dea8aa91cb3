package cache

import (
	"time"
)

// Cache 缓存接口
// 流水线用它缓存内容哈希对应的嵌入向量
type Cache interface {
	// Get 获取缓存内容，found为false表示键不存在
	Get(key string) (value string, found bool, err error)

	// Set 设置缓存内容，ttl为0时使用默认过期时间
	Set(key string, value string, ttl time.Duration) error

	// Delete 删除缓存项
	Delete(key string) error

	// Clear 清空所有缓存
	Clear() error
}

// Config 缓存配置
type Config struct {
	// 缓存类型: "memory", "redis"
	Type string
	// 键前缀，用于在共享实例中隔离不同用途的缓存
	Prefix string
	// Redis连接地址 (仅Redis缓存使用)
	RedisAddr string
	// Redis密码 (仅Redis缓存使用)
	RedisPassword string
	// Redis数据库编号 (仅Redis缓存使用)
	RedisDB int
	// 默认缓存过期时间
	DefaultTTL time.Duration
	// 自动清理间隔时间 (仅内存缓存使用)
	CleanupInterval time.Duration
}

// Factory 缓存工厂函数类型
type Factory func(config Config) (Cache, error)

// 注册的缓存实现
var registry = make(map[string]Factory)

// RegisterCache 注册缓存实现
func RegisterCache(name string, factory Factory) {
	registry[name] = factory
}

// NewCache 创建缓存实例
// 未注册的类型回退到内存缓存
func NewCache(config Config) (Cache, error) {
	if factory, ok := registry[config.Type]; ok {
		return factory(config)
	}
	return NewMemoryCache(config)
}
