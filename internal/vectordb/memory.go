package vectordb

import (
	"context"
	"sync"
)

// MemoryStore 内存向量存储实现
// 用于开发和测试环境，不持久化
type MemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]Record // 命名空间 -> ID -> 记录
	dimension  int
	closed     bool
}

// NewMemoryStore 创建内存向量存储
func NewMemoryStore(config Config) (Store, error) {
	return &MemoryStore{
		namespaces: make(map[string]map[string]Record),
		dimension:  config.Dimension,
	}, nil
}

// Upsert 将一批记录写入指定命名空间
// 相同ID的记录被整条覆盖，包括向量和元数据
func (s *MemoryStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if namespace == "" {
		return NewStoreError(ErrCodeBadNamespace, "namespace cannot be empty")
	}
	if err := validateRecords(records, s.dimension); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewStoreError(ErrCodeStoreClosed, "store is closed")
	}

	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = make(map[string]Record, len(records))
		s.namespaces[namespace] = ns
	}

	for _, rec := range records {
		ns[rec.ID] = rec
	}

	return nil
}

// Count 返回命名空间内的记录数量
func (s *MemoryStore) Count(ctx context.Context, namespace string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, NewStoreError(ErrCodeStoreClosed, "store is closed")
	}

	return len(s.namespaces[namespace]), nil
}

// DeleteNamespace 删除整个命名空间
func (s *MemoryStore) DeleteNamespace(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewStoreError(ErrCodeStoreClosed, "store is closed")
	}

	delete(s.namespaces, namespace)
	return nil
}

// Close 关闭存储
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Get 按ID读取记录，仅测试使用
func (s *MemoryStore) Get(namespace, id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.namespaces[namespace][id]
	return rec, ok
}

// 在包初始化时注册内存实现
func init() {
	RegisterStore("memory", NewMemoryStore)
}
