package vectordb

import (
	"context"
	"fmt"
)

// Metadata 向量记录的元数据
// text和pageNumber是下游检索层唯一可以依赖的字段
type Metadata struct {
	Text       string `json:"text"`       // 截断后的块文本
	PageNumber int    `json:"pageNumber"` // 来源页码
}

// Record 向量记录
// ID是块原始文本的内容哈希，同一命名空间内相同ID的记录互相覆盖
type Record struct {
	ID       string    `json:"id"`       // 内容寻址标识符
	Values   []float32 `json:"values"`   // 固定长度向量
	Metadata Metadata  `json:"metadata"` // 元数据
}

// Store 向量存储接口
// Upsert按(命名空间, ID)幂等：重复写入同一ID是覆盖而不是追加
type Store interface {
	// Upsert 将一批记录写入指定命名空间
	// 整批要么全部成功要么失败，调用方不应依赖部分成功的可见性
	Upsert(ctx context.Context, namespace string, records []Record) error

	// Count 返回命名空间内的记录数量
	Count(ctx context.Context, namespace string) (int, error)

	// DeleteNamespace 删除整个命名空间及其所有记录
	DeleteNamespace(ctx context.Context, namespace string) error

	// Close 关闭存储连接
	Close() error
}

// StoreError 向量存储错误类型
type StoreError struct {
	Code    int    // 错误码
	Message string // 错误消息
}

// Error 实现error接口
func (e StoreError) Error() string {
	return fmt.Sprintf("store error (code=%d): %s", e.Code, e.Message)
}

// 错误码常量
const (
	ErrCodeTransport     = 4001 // 传输失败
	ErrCodeQuotaExceeded = 4002 // 配额超限
	ErrCodeInvalidRecord = 4003 // 记录形状不合法
	ErrCodeBadNamespace  = 4004 // 命名空间不合法
	ErrCodeStoreClosed   = 4005 // 存储已关闭
)

// NewStoreError 创建新的存储错误
func NewStoreError(code int, message string) StoreError {
	return StoreError{Code: code, Message: message}
}

// Config 向量存储配置
type Config struct {
	Type      string // 存储类型，如 "memory", "faiss"
	Path      string // 索引文件目录(faiss使用)
	Dimension int    // 向量维度
}

// Factory 向量存储工厂函数类型
type Factory func(config Config) (Store, error)

// 注册的向量存储实现
var storeRegistry = map[string]Factory{}

// RegisterStore 注册向量存储工厂函数
func RegisterStore(name string, factory Factory) {
	storeRegistry[name] = factory
}

// NewStore 根据配置创建向量存储实例
// 未注册的类型回退到内存实现
func NewStore(config Config) (Store, error) {
	factory, ok := storeRegistry[config.Type]
	if !ok {
		factory = NewMemoryStore
	}
	return factory(config)
}

// validateRecords 校验一批记录的形状
// ID为空、向量为空或维度不符都会整批拒绝
func validateRecords(records []Record, dimension int) error {
	for i, rec := range records {
		if rec.ID == "" {
			return NewStoreError(ErrCodeInvalidRecord,
				fmt.Sprintf("record %d has empty id", i))
		}
		if len(rec.Values) == 0 {
			return NewStoreError(ErrCodeInvalidRecord,
				fmt.Sprintf("record %s has empty vector", rec.ID))
		}
		if dimension > 0 && len(rec.Values) != dimension {
			return NewStoreError(ErrCodeInvalidRecord,
				fmt.Sprintf("record %s has %d dimensions, expected %d",
					rec.ID, len(rec.Values), dimension))
		}
	}
	return nil
}
