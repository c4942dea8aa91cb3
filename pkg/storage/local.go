package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage 本地文件系统存储实现
// 主要用于开发和测试环境
type LocalStorage struct {
	basePath string // 基础存储路径
}

// LocalConfig 本地存储配置
type LocalConfig struct {
	Path string // 本地存储路径
}

// NewLocalStorage 创建本地存储实例
func NewLocalStorage(cfg LocalConfig) (*LocalStorage, error) {
	if cfg.Path == "" {
		return nil, NewFetchError(ErrCodeInvalidConfig, "", "local storage path is required")
	}

	// 确保路径是绝对路径
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, NewFetchError(ErrCodeInvalidConfig, "",
			fmt.Sprintf("failed to resolve absolute path: %v", err))
	}

	// 确保目录存在
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, NewFetchError(ErrCodeInvalidConfig, "",
			fmt.Sprintf("failed to create storage directory: %v", err))
	}

	return &LocalStorage{
		basePath: absPath,
	}, nil
}

// Save 保存对象到本地存储
func (s *LocalStorage) Save(ctx context.Context, reader io.Reader, filename string) (FileInfo, error) {
	key := buildObjectKey(filename)
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return FileInfo{}, NewFetchError(ErrCodeTransferFailed, key,
			fmt.Sprintf("failed to create directory: %v", err))
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return FileInfo{}, NewFetchError(ErrCodeTransferFailed, key,
			fmt.Sprintf("failed to create file: %v", err))
	}
	defer file.Close()

	size, err := io.Copy(file, reader)
	if err != nil {
		os.Remove(fullPath)
		return FileInfo{}, NewFetchError(ErrCodeTransferFailed, key,
			fmt.Sprintf("failed to write file: %v", err))
	}

	return FileInfo{
		Key:      key,
		Name:     filename,
		Size:     size,
		MimeType: getMimeType(filename),
	}, nil
}

// Fetch 将对象复制为临时文件
// 和MinIO实现保持相同的临时副本语义，方便下游统一清理
func (s *LocalStorage) Fetch(ctx context.Context, key string) (string, CleanupFunc, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return "", nil, err
	}

	src, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, NewFetchError(ErrCodeObjectNotFound, key, "object not found")
		}
		if os.IsPermission(err) {
			return "", nil, NewFetchError(ErrCodeAccessDenied, key, "access denied")
		}
		return "", nil, NewFetchError(ErrCodeUnreadableBody, key, err.Error())
	}
	defer src.Close()

	tmpFile, err := os.CreateTemp("", "ingest-*"+filepath.Ext(key))
	if err != nil {
		return "", nil, NewFetchError(ErrCodeUnreadableBody, key,
			fmt.Sprintf("failed to create temp file: %v", err))
	}

	cleanup := func() {
		os.Remove(tmpFile.Name())
	}

	if _, err := io.Copy(tmpFile, src); err != nil {
		tmpFile.Close()
		cleanup()
		return "", nil, NewFetchError(ErrCodeTransferFailed, key,
			fmt.Sprintf("transfer interrupted: %v", err))
	}

	if err := tmpFile.Close(); err != nil {
		cleanup()
		return "", nil, NewFetchError(ErrCodeTransferFailed, key,
			fmt.Sprintf("failed to flush temp file: %v", err))
	}

	return tmpFile.Name(), cleanup, nil
}

// Exists 检查本地存储中是否存在指定键的对象
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, NewFetchError(ErrCodeUnreadableBody, key, err.Error())
	}
	return true, nil
}

// Delete 从本地存储中删除对象
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return NewFetchError(ErrCodeObjectNotFound, key, "object not found")
		}
		return NewFetchError(ErrCodeTransferFailed, key, err.Error())
	}
	return nil
}

// resolve 将对象键映射到基础目录内的路径，拒绝目录逃逸
func (s *LocalStorage) resolve(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", NewFetchError(ErrCodeAccessDenied, key, "key escapes storage root")
	}

	return filepath.Join(s.basePath, cleaned), nil
}
