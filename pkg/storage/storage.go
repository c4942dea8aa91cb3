package storage

import (
	"context"
	"io"
	"mime"
	"path/filepath"
)

// FileInfo 对象元数据结构
type FileInfo struct {
	Key      string // 对象存储键
	Name     string // 原始文件名
	Size     int64  // 对象大小(字节)
	MimeType string // MIME类型(可选)
}

// CleanupFunc 临时文件清理函数
// Fetch返回的本地副本必须由调用方在所有退出路径上释放
type CleanupFunc func()

// Storage 对象存储接口
// 定义上传和取回对象的基本操作，可以有不同实现(本地文件系统、MinIO等)
type Storage interface {
	// Save 上传对象并返回存储键等信息
	Save(ctx context.Context, reader io.Reader, filename string) (FileInfo, error)

	// Fetch 将对象下载为本地临时文件，返回文件路径和清理函数
	// 无论后续处理成功与否，调用方都应调用清理函数删除临时副本
	Fetch(ctx context.Context, key string) (string, CleanupFunc, error)

	// Exists 检查对象是否存在
	Exists(ctx context.Context, key string) (bool, error)

	// Delete 删除对象
	Delete(ctx context.Context, key string) error
}

// Factory 存储实现的工厂函数
// 用于根据配置创建不同类型的存储实现
type Factory func(cfg interface{}) (Storage, error)

// getMimeType 根据文件扩展名推断MIME类型
func getMimeType(filename string) string {
	ext := filepath.Ext(filename)
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
