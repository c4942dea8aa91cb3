package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/DataIntelligenceCrew/go-faiss"
)

// FaissStore 基于Faiss的向量存储实现
// 每个命名空间对应一个独立的平面索引和一个元数据边车文件，
// 重复写入同一ID时整个命名空间的索引会被重建以保证覆盖语义
type FaissStore struct {
	mu         sync.Mutex
	dir        string
	dimension  int
	namespaces map[string]*faissNamespace
	closed     bool
}

// faissNamespace 单个命名空间的索引和记录
type faissNamespace struct {
	index   faiss.Index
	records map[string]Record
	order   []string // 记录在索引中的位置顺序
}

// NewFaissStore 创建Faiss向量存储
func NewFaissStore(config Config) (Store, error) {
	if config.Dimension <= 0 {
		return nil, NewStoreError(ErrCodeInvalidRecord, "vector dimension must be positive")
	}
	if config.Path == "" {
		return nil, NewStoreError(ErrCodeTransport, "faiss store requires an index directory")
	}
	if err := os.MkdirAll(config.Path, 0755); err != nil {
		return nil, NewStoreError(ErrCodeTransport,
			fmt.Sprintf("failed to create index directory: %v", err))
	}

	return &FaissStore{
		dir:        config.Path,
		dimension:  config.Dimension,
		namespaces: make(map[string]*faissNamespace),
	}, nil
}

// Upsert 将一批记录写入指定命名空间
func (s *FaissStore) Upsert(ctx context.Context, namespace string, records []Record) error {
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

	ns, err := s.loadNamespace(namespace)
	if err != nil {
		return err
	}

	// 合并记录：已存在的ID被覆盖，新ID追加到末尾
	for _, rec := range records {
		if _, exists := ns.records[rec.ID]; !exists {
			ns.order = append(ns.order, rec.ID)
		}
		ns.records[rec.ID] = rec
	}

	// 平面索引不支持原位替换，重建整个命名空间的索引
	if err := ns.rebuild(s.dimension); err != nil {
		return err
	}

	return s.persistNamespace(namespace, ns)
}

// Count 返回命名空间内的记录数量
func (s *FaissStore) Count(ctx context.Context, namespace string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, NewStoreError(ErrCodeStoreClosed, "store is closed")
	}

	ns, err := s.loadNamespace(namespace)
	if err != nil {
		return 0, err
	}
	return len(ns.records), nil
}

// DeleteNamespace 删除整个命名空间及其索引文件
func (s *FaissStore) DeleteNamespace(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewStoreError(ErrCodeStoreClosed, "store is closed")
	}

	if ns, ok := s.namespaces[namespace]; ok {
		if ns.index != nil {
			ns.index.Delete()
		}
		delete(s.namespaces, namespace)
	}

	indexPath, metaPath := s.namespacePaths(namespace)
	os.Remove(indexPath)
	os.Remove(metaPath)
	return nil
}

// Close 释放所有索引
func (s *FaissStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ns := range s.namespaces {
		if ns.index != nil {
			ns.index.Delete()
		}
	}
	s.namespaces = make(map[string]*faissNamespace)
	s.closed = true
	return nil
}

// loadNamespace 获取命名空间状态，必要时从磁盘加载
func (s *FaissStore) loadNamespace(namespace string) (*faissNamespace, error) {
	if ns, ok := s.namespaces[namespace]; ok {
		return ns, nil
	}

	ns := &faissNamespace{
		records: make(map[string]Record),
	}

	_, metaPath := s.namespacePaths(namespace)
	if data, err := os.ReadFile(metaPath); err == nil {
		var stored []Record
		if err := json.Unmarshal(data, &stored); err != nil {
			return nil, NewStoreError(ErrCodeTransport,
				fmt.Sprintf("corrupt metadata for namespace %s: %v", namespace, err))
		}
		for _, rec := range stored {
			ns.records[rec.ID] = rec
			ns.order = append(ns.order, rec.ID)
		}
		if err := ns.rebuild(s.dimension); err != nil {
			return nil, err
		}
	}

	s.namespaces[namespace] = ns
	return ns, nil
}

// persistNamespace 将命名空间的索引和元数据写入磁盘
func (s *FaissStore) persistNamespace(namespace string, ns *faissNamespace) error {
	indexPath, metaPath := s.namespacePaths(namespace)

	stored := make([]Record, 0, len(ns.order))
	for _, id := range ns.order {
		stored = append(stored, ns.records[id])
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return NewStoreError(ErrCodeTransport,
			fmt.Sprintf("failed to marshal metadata: %v", err))
	}
	if err := os.WriteFile(metaPath, data, 0644); err != nil {
		return NewStoreError(ErrCodeTransport,
			fmt.Sprintf("failed to write metadata: %v", err))
	}

	if ns.index != nil {
		if err := faiss.WriteIndex(ns.index, indexPath); err != nil {
			return NewStoreError(ErrCodeTransport,
				fmt.Sprintf("failed to write index: %v", err))
		}
	}

	return nil
}

// rebuild 根据记录重建faiss索引
// 余弦度量下向量在入索引前归一化，记录里保留原始向量
func (ns *faissNamespace) rebuild(dimension int) error {
	index, err := faiss.NewIndexFlat(dimension, faiss.MetricInnerProduct)
	if err != nil {
		return NewStoreError(ErrCodeTransport,
			fmt.Sprintf("failed to create faiss index: %v", err))
	}

	for _, id := range ns.order {
		vec := normalizeVector(ns.records[id].Values)
		if err := index.Add(vec); err != nil {
			index.Delete()
			return NewStoreError(ErrCodeTransport,
				fmt.Sprintf("failed to add vector to index: %v", err))
		}
	}

	if ns.index != nil {
		ns.index.Delete()
	}
	ns.index = index
	return nil
}

// namespacePaths 返回命名空间的索引文件和元数据文件路径
func (s *FaissStore) namespacePaths(namespace string) (string, string) {
	safe := sanitizeFilename(namespace)
	indexPath := filepath.Join(s.dir, safe+".faiss")
	return indexPath, indexPath + ".meta.json"
}

// sanitizeFilename 将命名空间映射为安全的文件名
func sanitizeFilename(namespace string) string {
	var sb strings.Builder
	for _, r := range namespace {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// normalizeVector 归一化向量使其长度为1
func normalizeVector(v []float32) []float32 {
	var sum float32
	for _, val := range v {
		sum += val * val
	}
	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(float64(sum)))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}
	return result
}

// 在包初始化时注册Faiss实现
func init() {
	RegisterStore("faiss", NewFaissStore)
}
